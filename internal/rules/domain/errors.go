package rules

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a missing rule record.
var ErrNotFound = errors.New("notification rule: not found")

// ValidationError reports a malformed rule or condition, rejected at
// write time.
type ValidationError struct {
	Field  string
	Reason string
	Index  int
}

func (e *ValidationError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("notification rule: %s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("notification rule: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
