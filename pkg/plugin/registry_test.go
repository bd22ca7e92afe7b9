package plugin_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/observability"
	"github.com/makemykankotri/kankotri/pkg/plugin"
)

var _ = Describe("Registry", func() {
	var (
		ctx      context.Context
		bus      *events.Bus
		registry *plugin.Registry
		emitted  []string
	)

	BeforeEach(func() {
		ctx = context.Background()
		bus = events.NewBus(observability.NewNoopLogger(), nil)
		registry = plugin.NewRegistry(bus, observability.NewNoopLogger(), nil)
		emitted = nil
		bus.On(events.Wildcard, func(ctx context.Context, e events.Event) error {
			emitted = append(emitted, e.Name)
			return nil
		})
	})

	Describe("Register", func() {
		It("installs a plugin and runs its install hook", func() {
			installed := false
			err := registry.Register(ctx, plugin.Descriptor{
				Name:    "analytics",
				Version: "1.0.0",
				Install: func(ctx context.Context, host *plugin.Host) error {
					installed = true
					Expect(host.Bus).To(BeIdenticalTo(bus))
					return nil
				},
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(installed).To(BeTrue())
			Expect(registry.IsInstalled("analytics")).To(BeTrue())
			Expect(emitted).To(ConsistOf(events.PluginInstalled))

			info, ok := registry.Get("analytics")
			Expect(ok).To(BeTrue())
			Expect(info.Version).To(Equal("1.0.0"))
			Expect(info.InstalledAt).NotTo(BeZero())
		})

		It("rejects a descriptor without a name", func() {
			err := registry.Register(ctx, plugin.Descriptor{Name: "  "})
			Expect(errors.Is(err, plugin.ErrInvalidPlugin)).To(BeTrue())
		})

		It("rejects a plugin that depends on itself", func() {
			err := registry.Register(ctx, plugin.Descriptor{Name: "loop", Dependencies: []string{"loop"}})
			Expect(errors.Is(err, plugin.ErrInvalidPlugin)).To(BeTrue())
		})

		It("rejects duplicates", func() {
			Expect(registry.Register(ctx, plugin.Descriptor{Name: "analytics"})).To(Succeed())
			err := registry.Register(ctx, plugin.Descriptor{Name: "analytics"})
			Expect(errors.Is(err, plugin.ErrAlreadyInstalled)).To(BeTrue())
		})

		It("requires dependencies to be installed first", func() {
			err := registry.Register(ctx, plugin.Descriptor{Name: "social-share", Dependencies: []string{"analytics"}})
			Expect(errors.Is(err, plugin.ErrDependencyNotFound)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("analytics"))
			Expect(registry.IsInstalled("social-share")).To(BeFalse())

			Expect(registry.Register(ctx, plugin.Descriptor{Name: "analytics"})).To(Succeed())
			Expect(registry.Register(ctx, plugin.Descriptor{Name: "social-share", Dependencies: []string{"analytics"}})).To(Succeed())
		})

		It("registers nothing when the install hook fails", func() {
			err := registry.Register(ctx, plugin.Descriptor{
				Name: "ai-assist",
				Install: func(ctx context.Context, host *plugin.Host) error {
					host.Subscribe("ai-assist", events.TemplateViewed, func(ctx context.Context, e events.Event) error { return nil })
					return errors.New("no model configured")
				},
			})

			Expect(err).To(MatchError(ContainSubstring("no model configured")))
			Expect(registry.IsInstalled("ai-assist")).To(BeFalse())
			Expect(bus.ListenerCount(events.TemplateViewed)).To(Equal(0))
			Expect(emitted).To(BeEmpty())
		})
	})

	Describe("Unregister", func() {
		BeforeEach(func() {
			Expect(registry.Register(ctx, plugin.Descriptor{Name: "analytics"})).To(Succeed())
			Expect(registry.Register(ctx, plugin.Descriptor{Name: "social-share", Dependencies: []string{"analytics"}})).To(Succeed())
			emitted = nil
		})

		It("refuses while dependents are installed", func() {
			err := registry.Unregister(ctx, "analytics")
			Expect(errors.Is(err, plugin.ErrHasDependents)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("social-share"))
			Expect(registry.Dependents("analytics")).To(Equal([]string{"social-share"}))
		})

		It("removes plugins in dependency order", func() {
			Expect(registry.Unregister(ctx, "social-share")).To(Succeed())
			Expect(registry.Unregister(ctx, "analytics")).To(Succeed())
			Expect(registry.List()).To(BeEmpty())
			Expect(emitted).To(Equal([]string{events.PluginUninstalled, events.PluginUninstalled}))
		})

		It("returns ErrNotInstalled for unknown plugins", func() {
			err := registry.Unregister(ctx, "missing")
			Expect(errors.Is(err, plugin.ErrNotInstalled)).To(BeTrue())
		})

		It("releases bus subscriptions owned by the plugin", func() {
			Expect(registry.Register(ctx, plugin.Descriptor{
				Name: "counter",
				Install: func(ctx context.Context, host *plugin.Host) error {
					host.Subscribe("counter", events.TemplateUsed, func(ctx context.Context, e events.Event) error { return nil })
					return nil
				},
			})).To(Succeed())
			Expect(bus.ListenerCount(events.TemplateUsed)).To(Equal(1))

			Expect(registry.Unregister(ctx, "counter")).To(Succeed())
			Expect(bus.ListenerCount(events.TemplateUsed)).To(Equal(0))
		})

		It("keeps the plugin when the uninstall hook fails", func() {
			Expect(registry.Register(ctx, plugin.Descriptor{
				Name:      "sticky",
				Uninstall: func(ctx context.Context, host *plugin.Host) error { return errors.New("busy") },
			})).To(Succeed())

			Expect(registry.Unregister(ctx, "sticky")).NotTo(Succeed())
			Expect(registry.IsInstalled("sticky")).To(BeTrue())
		})
	})

	Describe("List", func() {
		It("returns plugins in install order", func() {
			for _, name := range []string{"b", "a", "c"} {
				Expect(registry.Register(ctx, plugin.Descriptor{Name: name})).To(Succeed())
			}
			var names []string
			for _, info := range registry.List() {
				names = append(names, info.Name)
			}
			Expect(names).To(Equal([]string{"b", "a", "c"}))
		})
	})

	Describe("UnregisterAll", func() {
		It("tears down dependents before their dependencies", func() {
			Expect(registry.Register(ctx, plugin.Descriptor{Name: "analytics"})).To(Succeed())
			Expect(registry.Register(ctx, plugin.Descriptor{Name: "social-share", Dependencies: []string{"analytics"}})).To(Succeed())

			Expect(registry.UnregisterAll(ctx)).To(Succeed())
			Expect(registry.List()).To(BeEmpty())
		})
	})
})
