package escalations

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a missing escalation record.
var ErrNotFound = errors.New("escalation: not found")

// InvalidTransitionError reports an illegal state change. Terminal
// records are never silently overwritten.
type InvalidTransitionError struct {
	ID   string
	From string
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("escalation %s: cannot %s from status %s", e.ID, e.Op, e.From)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// ValidationError reports malformed escalation input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("escalation: %s: %s", e.Field, e.Reason)
}
