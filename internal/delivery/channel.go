// Package delivery hands rendered notifications to outbound channels.
// Sends are fire-and-forget from the engine's perspective: failures
// are recorded, never retried synchronously.
package delivery

import (
	"context"
	"errors"
	"fmt"

	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
)

// Payload is the rendered content handed to a channel.
type Payload struct {
	NotificationID string                 `json:"notification_id"`
	TenantID       string                 `json:"tenant_id"`
	UserID         string                 `json:"user_id"`
	UserName       string                 `json:"user_name,omitempty"`
	UserEmail      string                 `json:"user_email,omitempty"`
	Title          string                 `json:"title"`
	Body           string                 `json:"body"`
	Category       string                 `json:"category"`
	Priority       notifications.Priority `json:"priority"`
	RuleID         string                 `json:"rule_id,omitempty"`
}

// Channel delivers a rendered payload to one recipient.
type Channel interface {
	Name() string
	Send(ctx context.Context, payload Payload) error
}

// FailureError wraps a transport error with its channel. The failure
// is recorded against the notification and never blocks persistence.
type FailureError struct {
	Channel string
	Err     error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("delivery via %s failed: %v", e.Channel, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// IsFailure reports whether err is a delivery failure.
func IsFailure(err error) bool {
	var target *FailureError
	return errors.As(err, &target)
}
