package models

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrConfig     = errors.New("config error")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrIO         = errors.New("io error")
	ErrService    = errors.New("service error")
	ErrDecode     = errors.New("decode error")
)

// Wrap tags cause with kind and the failing operation. A nil cause yields an
// error carrying only the kind.
func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// Errorf is Wrap with a formatted message instead of a cause.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
