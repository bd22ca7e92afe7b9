// Package feature provides boolean toggles that gate optional plugin
// functionality. Defaults can be overridden by FEATURE_<NAME> environment
// variables, and toggles made at runtime are persisted through a Store.
package feature

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Known flags
const (
	AIGeneration = "ai_generation"
	Analytics    = "analytics"
	SocialShare  = "social_share"
	AutoSave     = "auto_save"
	RichText     = "rich_text"
)

// ErrUnknownFlag is returned for names that are not registered
var ErrUnknownFlag = errors.New("unknown feature flag")

// Defaults returns the built-in default of every known flag
func Defaults() map[string]bool {
	return map[string]bool{
		AIGeneration: false,
		Analytics:    true,
		SocialShare:  true,
		AutoSave:     true,
		RichText:     false,
	}
}

// ChangeFunc is called after a flag changes value
type ChangeFunc func(ctx context.Context, name string, enabled bool)

// GuardFunc runs before a toggle is persisted. An error rejects the toggle.
type GuardFunc func(ctx context.Context, name string, enabled bool) error

// Flags holds the current state of every known flag
type Flags struct {
	// setMu serializes Set and Reset so listeners see toggles in order
	setMu    sync.Mutex
	mu       sync.RWMutex
	values   map[string]bool
	baseline map[string]bool

	store     Store
	logger    observability.Logger
	listeners []ChangeFunc
	guards    []GuardFunc
}

// New creates flags from defaults, then config overrides, then FEATURE_ env vars
func New(store Store, overrides map[string]bool, logger observability.Logger) *Flags {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	baseline := Defaults()
	for name, v := range overrides {
		name = normalize(name)
		if _, ok := baseline[name]; ok {
			baseline[name] = v
		}
	}
	applyEnv(baseline, os.Environ())

	values := make(map[string]bool, len(baseline))
	for k, v := range baseline {
		values[k] = v
	}

	return &Flags{
		values:   values,
		baseline: baseline,
		store:    store,
		logger:   logger.WithPrefix("feature"),
	}
}

func applyEnv(flags map[string]bool, environ []string) {
	for _, env := range environ {
		if !strings.HasPrefix(env, "FEATURE_") {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := normalize(strings.TrimPrefix(parts[0], "FEATURE_"))
		if _, ok := flags[name]; !ok {
			continue
		}
		value := strings.ToLower(strings.TrimSpace(parts[1]))
		flags[name] = value == "true" || value == "1" || value == "yes" || value == "on"
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
}

// OnChange registers a callback run after every effective toggle
func (f *Flags) OnChange(fn ChangeFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Guard registers a check run before every effective toggle. Guards must
// not call Set or Reset.
func (f *Flags) Guard(fn GuardFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guards = append(f.guards, fn)
}

// Load applies toggles persisted in the store
func (f *Flags) Load(ctx context.Context) error {
	persisted, err := f.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load feature flags")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for name, v := range persisted {
		if _, ok := f.values[name]; ok {
			f.values[name] = v
		} else {
			f.logger.Warn("Ignoring persisted unknown flag", map[string]interface{}{"flag": name})
		}
	}
	return nil
}

// IsEnabled returns whether a flag is on. Unknown names are off.
func (f *Flags) IsEnabled(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[normalize(name)]
}

// Set toggles a flag and persists the new value. A guard error leaves the
// flag and the store untouched and is returned to the caller.
func (f *Flags) Set(ctx context.Context, name string, enabled bool) error {
	name = normalize(name)

	f.setMu.Lock()
	defer f.setMu.Unlock()

	f.mu.RLock()
	current, ok := f.values[name]
	guards := append([]GuardFunc(nil), f.guards...)
	f.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrUnknownFlag, "flag %q", name)
	}

	changed := current != enabled
	if changed {
		for i, guard := range guards {
			if err := guard(ctx, name, enabled); err != nil {
				f.revert(ctx, guards[:i], name, current)
				return errors.Wrapf(err, "flag %q rejected", name)
			}
		}
	}

	if err := f.store.Save(ctx, name, enabled); err != nil {
		if changed {
			f.revert(ctx, guards, name, current)
		}
		return errors.Wrapf(err, "failed to persist flag %q", name)
	}

	f.mu.Lock()
	f.values[name] = enabled
	listeners := append([]ChangeFunc(nil), f.listeners...)
	f.mu.Unlock()

	f.logger.Info("Feature flag updated", map[string]interface{}{"flag": name, "enabled": enabled})

	if changed {
		for _, fn := range listeners {
			fn(ctx, name, enabled)
		}
	}
	return nil
}

// revert undoes guards that already accepted a toggle, newest first
func (f *Flags) revert(ctx context.Context, applied []GuardFunc, name string, previous bool) {
	for i := len(applied) - 1; i >= 0; i-- {
		if err := applied[i](ctx, name, previous); err != nil {
			f.logger.Error("Failed to revert flag guard", map[string]interface{}{
				"flag":  name,
				"error": err.Error(),
			})
		}
	}
}

// All returns a copy of every flag value
func (f *Flags) All() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]bool, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Names returns the known flag names in sorted order
func (f *Flags) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.values))
	for k := range f.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Reset discards persisted toggles and restores the construction-time values.
// Guards are not consulted; listeners see every restored change.
func (f *Flags) Reset(ctx context.Context) error {
	f.setMu.Lock()
	defer f.setMu.Unlock()

	if err := f.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "failed to clear feature flags")
	}

	f.mu.Lock()
	changed := make(map[string]bool)
	for k, v := range f.baseline {
		if f.values[k] != v {
			changed[k] = v
		}
		f.values[k] = v
	}
	listeners := append([]ChangeFunc(nil), f.listeners...)
	f.mu.Unlock()

	names := make([]string, 0, len(changed))
	for name := range changed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, fn := range listeners {
			fn(ctx, name, changed[name])
		}
	}
	return nil
}
