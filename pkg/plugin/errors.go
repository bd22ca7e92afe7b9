package plugin

import "errors"

// Registry errors.
var (
	// ErrInvalidPlugin is returned when a descriptor fails validation.
	ErrInvalidPlugin = errors.New("invalid plugin")

	// ErrAlreadyInstalled is returned when registering a name twice.
	ErrAlreadyInstalled = errors.New("plugin is already installed")

	// ErrNotInstalled is returned when unregistering an unknown plugin.
	ErrNotInstalled = errors.New("plugin is not installed")

	// ErrDependencyNotFound is returned when a declared dependency is not installed.
	ErrDependencyNotFound = errors.New("plugin dependency not installed")

	// ErrHasDependents is returned when an installed plugin still depends on the target.
	ErrHasDependents = errors.New("plugin has installed dependents")
)
