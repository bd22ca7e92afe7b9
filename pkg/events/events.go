// Package events provides the in-process publish/subscribe bus used to
// decouple template, invitation, editor and plugin activity.
package events

import (
	"time"
)

// Wildcard subscribes a handler to every event
const Wildcard = "*"

// Event names emitted by kankotri components
const (
	TemplateCreated     = "template.created"
	TemplateUpdated     = "template.updated"
	TemplateDeleted     = "template.deleted"
	TemplatePublished   = "template.published"
	TemplateUnpublished = "template.unpublished"
	TemplateViewed      = "template.viewed"
	TemplateUsed        = "template.used"
	InvitationPublished = "invitation.published"
	InvitationViewed    = "invitation.viewed"
	EditorSaved         = "editor.saved"
	PluginInstalled     = "plugin.installed"
	PluginUninstalled   = "plugin.uninstalled"
	FeatureToggled      = "feature.toggled"
)

// Event is a single emission delivered to handlers
type Event struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TemplatePayload accompanies template.* events
type TemplatePayload struct {
	TemplateID string `json:"templateId"`
	Slug       string `json:"slug,omitempty"`
	Category   string `json:"category,omitempty"`
}

// InvitationPayload accompanies invitation.* events
type InvitationPayload struct {
	InvitationID string `json:"invitationId"`
	TemplateID   string `json:"templateId"`
	ShareCode    string `json:"shareCode,omitempty"`
}

// PluginPayload accompanies plugin.* events
type PluginPayload struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// FeaturePayload accompanies feature.toggled
type FeaturePayload struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// EditorPayload accompanies editor.saved
type EditorPayload struct {
	TemplateID string `json:"templateId"`
	Auto       bool   `json:"auto"`
}
