// Package eventing carries external events into the notification
// engine: an envelope format, an in-process bus with idempotent
// subscribers, and a Kafka source.
package eventing

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps an ingested event with metadata. EventID drives
// consumer idempotency; Fields are the raw event attributes rules
// evaluate conditions against.
type Envelope struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	OccurredAt time.Time      `json:"occurred_at"`
	TenantID   string         `json:"tenant_id"`
	SubjectID  string         `json:"subject_id"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// NewEnvelope builds an envelope, stamping id and time when absent.
func NewEnvelope(eventName, tenantID, subjectID string, fields map[string]any) (Envelope, error) {
	if eventName == "" {
		return Envelope{}, errors.New("eventing: empty event name")
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		OccurredAt: time.Now().UTC(),
		TenantID:   tenantID,
		SubjectID:  subjectID,
		Fields:     fields,
	}, nil
}

// Normalize fills missing id and timestamp on envelopes received from
// the wire.
func (e *Envelope) Normalize() error {
	if e.EventName == "" {
		return errors.New("eventing: empty event name")
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return nil
}
