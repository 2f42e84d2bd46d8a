package realm

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingFeature means the targeted interface or member does not exist
	// on this engine build. Callers skip the affected patch.
	ErrMissingFeature = errors.New("realm: missing feature")
	// ErrIrreversible is returned by realms that cannot undo an installation.
	ErrIrreversible = errors.New("realm: operation cannot be reverted")
	// ErrInvalidHandle is returned for handles the realm never issued.
	ErrInvalidHandle = errors.New("realm: invalid handle")
)

// MissingFeature builds an ErrMissingFeature naming the absent member.
func MissingFeature(target, member string) error {
	if member == "" {
		return fmt.Errorf("%w: %s", ErrMissingFeature, target)
	}
	return fmt.Errorf("%w: %s.%s", ErrMissingFeature, target, member)
}

// JSError is an exception thrown inside the realm and observed from Go.
type JSError struct {
	Name    string
	Message string
}

func (e *JSError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// TypeError builds a JSError named TypeError.
func TypeError(format string, args ...interface{}) *JSError {
	return &JSError{Name: "TypeError", Message: fmt.Sprintf(format, args...)}
}
