package services

import (
	"github.com/pkg/errors"
)

// Service errors
var (
	ErrNotPublished     = errors.New("template is not published")
	ErrSessionNotFound  = errors.New("editor session not found")
	ErrPluginDisabled   = errors.New("plugin is not enabled")
	ErrShareCodeExhaust = errors.New("could not allocate a unique share code")
)

// InputError reports a request that failed validation before reaching storage
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return "invalid input: " + e.Field + " - " + e.Message
}
