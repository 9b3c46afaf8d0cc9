package notifications

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a missing notification record.
var ErrNotFound = errors.New("notification: not found")

// InvalidTransitionError reports an illegal status change.
type InvalidTransitionError struct {
	ID   string
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("notification %s: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}
