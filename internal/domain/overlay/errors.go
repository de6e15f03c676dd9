package overlay

import (
	"errors"
	"fmt"
)

// ErrInvalidThreshold is matched by every ValidationError.
var ErrInvalidThreshold = errors.New("invalid preference threshold")

// ValidationError reports a preference value that was rejected and replaced
// by its default.
type ValidationError struct {
	Field    string
	Value    float64
	Fallback float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v rejected, using %v", e.Field, e.Value, e.Fallback)
}

// Unwrap lets errors.Is match ErrInvalidThreshold.
func (e *ValidationError) Unwrap() error { return ErrInvalidThreshold }
