package plugins

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/feature"
	"github.com/makemykankotri/kankotri/pkg/generator"
	"github.com/makemykankotri/kankotri/pkg/observability"
	"github.com/makemykankotri/kankotri/pkg/plugin"
)

// Binding ties a plugin to the flag that switches it on
type Binding struct {
	Flag       string
	Descriptor plugin.Descriptor
}

// Builtins returns the bindings of every built-in plugin. Dependencies come
// before their dependents.
func Builtins(gen generator.Generator) []Binding {
	return []Binding{
		{Flag: feature.Analytics, Descriptor: Analytics()},
		{Flag: feature.AIGeneration, Descriptor: AIAssist(gen)},
		{Flag: feature.SocialShare, Descriptor: SocialShare()},
	}
}

// Manager installs and uninstalls plugins as their flags change
type Manager struct {
	registry *plugin.Registry
	flags    *feature.Flags
	bus      *events.Bus
	bindings []Binding
	logger   observability.Logger
}

// NewManager creates a manager. Bindings must list dependencies first.
func NewManager(registry *plugin.Registry, flags *feature.Flags, bus *events.Bus, logger observability.Logger, bindings ...Binding) *Manager {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Manager{
		registry: registry,
		flags:    flags,
		bus:      bus,
		bindings: bindings,
		logger:   logger.WithPrefix("plugins"),
	}
}

// Sync brings the registry in line with the current flags. Plugins are
// installed in binding order and removed in reverse order.
func (m *Manager) Sync(ctx context.Context) error {
	var failed []string

	for i := len(m.bindings) - 1; i >= 0; i-- {
		b := m.bindings[i]
		if !m.flags.IsEnabled(b.Flag) {
			if err := m.disable(ctx, b); err != nil {
				failed = append(failed, b.Descriptor.Name)
			}
		}
	}
	for _, b := range m.bindings {
		if m.flags.IsEnabled(b.Flag) {
			if err := m.enable(ctx, b); err != nil {
				failed = append(failed, b.Descriptor.Name)
			}
		}
	}

	if len(failed) > 0 {
		return errors.Errorf("failed to sync plugins: %s", strings.Join(failed, ", "))
	}
	return nil
}

// Watch applies every later flag toggle and announces it on the bus. A
// toggle whose plugin cannot be installed or removed is rejected before the
// flag is persisted.
func (m *Manager) Watch() {
	m.flags.Guard(func(ctx context.Context, name string, enabled bool) error {
		for _, b := range m.bindings {
			if b.Flag != name {
				continue
			}
			if enabled {
				return m.enable(ctx, b)
			}
			return m.disable(ctx, b)
		}
		return nil
	})
	m.flags.OnChange(func(ctx context.Context, name string, enabled bool) {
		if m.bus != nil {
			m.bus.Emit(ctx, events.FeatureToggled, events.FeaturePayload{Name: name, Enabled: enabled})
		}
		// a no-op after Set; reconciles flags restored by Reset
		if err := m.Sync(ctx); err != nil {
			m.logger.Warn("Plugins out of sync with flags", map[string]interface{}{
				"flag":  name,
				"error": err.Error(),
			})
		}
	})
}

// PluginFor returns the plugin bound to a flag, if any
func (m *Manager) PluginFor(flag string) (string, bool) {
	for _, b := range m.bindings {
		if b.Flag == flag {
			return b.Descriptor.Name, true
		}
	}
	return "", false
}

func (m *Manager) enable(ctx context.Context, b Binding) error {
	if m.registry.IsInstalled(b.Descriptor.Name) {
		return nil
	}
	if err := m.registry.Register(ctx, b.Descriptor); err != nil {
		m.logger.Warn("Plugin not enabled", map[string]interface{}{
			"plugin": b.Descriptor.Name,
			"flag":   b.Flag,
			"error":  err.Error(),
		})
		return err
	}
	return nil
}

func (m *Manager) disable(ctx context.Context, b Binding) error {
	if !m.registry.IsInstalled(b.Descriptor.Name) {
		return nil
	}
	if err := m.registry.Unregister(ctx, b.Descriptor.Name); err != nil {
		m.logger.Warn("Plugin not disabled", map[string]interface{}{
			"plugin": b.Descriptor.Name,
			"flag":   b.Flag,
			"error":  err.Error(),
		})
		return err
	}
	return nil
}
