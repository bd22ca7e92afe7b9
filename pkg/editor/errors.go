package editor

import "errors"

// Editor errors.
var (
	ErrNothingToUndo     = errors.New("nothing to undo")
	ErrNothingToRedo     = errors.New("nothing to redo")
	ErrElementNotFound   = errors.New("element not found")
	ErrInvalidElement    = errors.New("invalid element")
	ErrInvalidDimensions = errors.New("width and height must be positive")
)
