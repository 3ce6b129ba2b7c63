package nn

import "errors"

// Common errors.
var (
	ErrInvalidConfig = errors.New("invalid layer configuration")
	ErrNoForward     = errors.New("backward called without a matching forward")
)
