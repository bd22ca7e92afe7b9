// Package plugins holds the built-in kankotri plugins and keeps them in step
// with their feature flags.
package plugins

import (
	"context"

	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/generator"
	"github.com/makemykankotri/kankotri/pkg/plugin"
)

// Built-in plugin names
const (
	AnalyticsName   = "analytics"
	AIAssistName    = "ai-assist"
	SocialShareName = "social-share"
)

const builtinVersion = "1.0.0"

// trackedEvents are counted by the analytics plugin
var trackedEvents = []string{
	events.TemplateViewed,
	events.TemplateUsed,
	events.TemplatePublished,
	events.InvitationPublished,
	events.InvitationViewed,
}

// Analytics counts template and invitation activity into metrics
func Analytics() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        AnalyticsName,
		Version:     builtinVersion,
		Description: "Counts template views, uses and publications",
		Install: func(ctx context.Context, host *plugin.Host) error {
			for _, name := range trackedEvents {
				host.Subscribe(AnalyticsName, name, func(ctx context.Context, e events.Event) error {
					labels := map[string]string{"event": e.Name}
					if p, ok := e.Payload.(events.TemplatePayload); ok && p.Category != "" {
						labels["category"] = p.Category
					}
					host.Metrics.RecordCounter("analytics_events_total", 1, labels)
					return nil
				})
			}
			return nil
		},
	}
}

// AIAssist enables the copy generation endpoint backed by gen
func AIAssist(gen generator.Generator) plugin.Descriptor {
	return plugin.Descriptor{
		Name:        AIAssistName,
		Version:     builtinVersion,
		Description: "Writes invitation copy from wedding details",
		Install: func(ctx context.Context, host *plugin.Host) error {
			if gen == nil {
				return errors.New("no generator configured")
			}
			host.Metrics.RecordGauge("plugin_enabled", 1, map[string]string{"plugin": AIAssistName})
			return nil
		},
		Uninstall: func(ctx context.Context, host *plugin.Host) error {
			host.Metrics.RecordGauge("plugin_enabled", 0, map[string]string{"plugin": AIAssistName})
			return nil
		},
	}
}

// SocialShare adds share links to published invitations
func SocialShare() plugin.Descriptor {
	return plugin.Descriptor{
		Name:         SocialShareName,
		Version:      builtinVersion,
		Description:  "Share links for published invitations",
		Dependencies: []string{AnalyticsName},
		Install: func(ctx context.Context, host *plugin.Host) error {
			host.Subscribe(SocialShareName, events.InvitationPublished, func(ctx context.Context, e events.Event) error {
				host.Metrics.RecordCounter("share_links_total", float64(len(Networks)), nil)
				return nil
			})
			return nil
		},
	}
}
