// Package plugin implements a name-keyed registry of optional features with
// an install/uninstall lifecycle and declared dependencies.
//
// A plugin may only be installed once everything it depends on is installed,
// and may only be removed once nothing installed depends on it.
package plugin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Descriptor describes a plugin and its lifecycle hooks
type Descriptor struct {
	Name         string
	Version      string
	Description  string
	Dependencies []string
	Install      func(ctx context.Context, host *Host) error
	Uninstall    func(ctx context.Context, host *Host) error
}

// Validate checks the descriptor is usable
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlugin)
	}
	for _, dep := range d.Dependencies {
		if dep == d.Name {
			return fmt.Errorf("%w: %s depends on itself", ErrInvalidPlugin, d.Name)
		}
	}
	return nil
}

// Host is the set of services handed to plugin hooks
type Host struct {
	Bus     *events.Bus
	Logger  observability.Logger
	Metrics observability.MetricsClient

	mu   sync.Mutex
	subs map[string][]events.Subscription
}

// Subscribe registers a bus handler owned by the named plugin. Handlers are
// removed automatically when the plugin is uninstalled.
func (h *Host) Subscribe(plugin, event string, handler events.Handler) {
	sub := h.Bus.On(event, handler)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[plugin] = append(h.subs[plugin], sub)
}

func (h *Host) release(plugin string) {
	h.mu.Lock()
	subs := h.subs[plugin]
	delete(h.subs, plugin)
	h.mu.Unlock()

	for _, sub := range subs {
		h.Bus.Off(sub)
	}
}

// Info describes an installed plugin
type Info struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Description  string    `json:"description,omitempty"`
	Dependencies []string  `json:"dependencies,omitempty"`
	InstalledAt  time.Time `json:"installedAt"`
}

type entry struct {
	desc        Descriptor
	installedAt time.Time
}

// Registry tracks installed plugins
type Registry struct {
	host *Host

	// opMu serializes lifecycle operations; hooks run while it is held.
	opMu sync.Mutex
	mu   sync.RWMutex

	plugins map[string]*entry
	order   []string
}

// NewRegistry creates an empty registry
func NewRegistry(bus *events.Bus, logger observability.Logger, metrics observability.MetricsClient) *Registry {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	if bus == nil {
		bus = events.NewBus(logger, metrics)
	}
	return &Registry{
		host: &Host{
			Bus:     bus,
			Logger:  logger.WithPrefix("plugin"),
			Metrics: metrics,
			subs:    make(map[string][]events.Subscription),
		},
		plugins: make(map[string]*entry),
	}
}

// Register installs a plugin after verifying its dependencies are installed.
// If Install fails nothing is registered.
func (r *Registry) Register(ctx context.Context, desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	_, exists := r.plugins[desc.Name]
	var missing []string
	for _, dep := range desc.Dependencies {
		if _, ok := r.plugins[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	r.mu.RUnlock()

	if exists {
		return fmt.Errorf("plugin %q: %w", desc.Name, ErrAlreadyInstalled)
	}
	if len(missing) > 0 {
		return fmt.Errorf("plugin %q requires %s: %w", desc.Name, strings.Join(missing, ", "), ErrDependencyNotFound)
	}

	if desc.Install != nil {
		if err := desc.Install(ctx, r.host); err != nil {
			r.host.release(desc.Name)
			return fmt.Errorf("failed to install plugin %q: %w", desc.Name, err)
		}
	}

	r.mu.Lock()
	r.plugins[desc.Name] = &entry{
		desc:        desc,
		installedAt: time.Now().UTC(),
	}
	r.order = append(r.order, desc.Name)
	r.mu.Unlock()

	r.host.Logger.Info("Plugin installed", map[string]interface{}{
		"plugin":  desc.Name,
		"version": desc.Version,
	})
	r.emit(ctx, events.PluginInstalled, desc)
	return nil
}

// Unregister uninstalls a plugin. It refuses while any installed plugin
// depends on it.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	e, exists := r.plugins[name]
	dependents := r.dependentsLocked(name)
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("plugin %q: %w", name, ErrNotInstalled)
	}
	if len(dependents) > 0 {
		return fmt.Errorf("plugin %q is required by %s: %w", name, strings.Join(dependents, ", "), ErrHasDependents)
	}

	if e.desc.Uninstall != nil {
		if err := e.desc.Uninstall(ctx, r.host); err != nil {
			return fmt.Errorf("failed to uninstall plugin %q: %w", name, err)
		}
	}
	r.host.release(name)

	r.mu.Lock()
	delete(r.plugins, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.host.Logger.Info("Plugin uninstalled", map[string]interface{}{"plugin": name})
	r.emit(ctx, events.PluginUninstalled, e.desc)
	return nil
}

// Get returns the info of an installed plugin
func (r *Registry) Get(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.plugins[name]
	if !ok {
		return Info{}, false
	}
	return e.info(), true
}

// IsInstalled reports whether name is installed
func (r *Registry) IsInstalled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[name]
	return ok
}

// List returns installed plugins in install order
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.plugins[name].info())
	}
	return out
}

// Dependents returns the installed plugins that declare name as a dependency
func (r *Registry) Dependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dependentsLocked(name)
}

func (r *Registry) dependentsLocked(name string) []string {
	var out []string
	for _, n := range r.order {
		for _, dep := range r.plugins[n].desc.Dependencies {
			if dep == name {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// UnregisterAll uninstalls every plugin in reverse install order
func (r *Registry) UnregisterAll(ctx context.Context) error {
	r.mu.RLock()
	names := make([]string, len(r.order))
	for i, name := range r.order {
		names[len(r.order)-1-i] = name
	}
	r.mu.RUnlock()

	var failed []string
	for _, name := range names {
		if err := r.Unregister(ctx, name); err != nil {
			r.host.Logger.Error("Failed to uninstall plugin", map[string]interface{}{
				"plugin": name,
				"error":  err.Error(),
			})
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to uninstall plugins: %s", strings.Join(failed, ", "))
	}
	return nil
}

func (r *Registry) emit(ctx context.Context, name string, desc Descriptor) {
	r.host.Bus.Emit(ctx, name, events.PluginPayload{Name: desc.Name, Version: desc.Version})
}

func (e *entry) info() Info {
	return Info{
		Name:         e.desc.Name,
		Version:      e.desc.Version,
		Description:  e.desc.Description,
		Dependencies: append([]string(nil), e.desc.Dependencies...),
		InstalledAt:  e.installedAt,
	}
}
