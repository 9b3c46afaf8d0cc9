package rules

import (
	"time"

	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
)

// TriggerType determines which signals a rule reacts to.
type TriggerType string

const (
	TriggerEvent     TriggerType = "event"
	TriggerSchedule  TriggerType = "schedule"
	TriggerCondition TriggerType = "condition"
	TriggerThreshold TriggerType = "threshold"
	TriggerManual    TriggerType = "manual"
)

// Valid returns true when the trigger type is supported.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerEvent, TriggerSchedule, TriggerCondition, TriggerThreshold, TriggerManual:
		return true
	default:
		return false
	}
}

const (
	RuleActive   = "active"
	RulePaused   = "paused"
	RuleDisabled = "disabled"
)

// DigestFrequency selects the bundling window for digest delivery.
type DigestFrequency string

const (
	DigestHourly DigestFrequency = "hourly"
	DigestDaily  DigestFrequency = "daily"
)

// WindowKey buckets a UTC instant into the digest window it belongs to.
func (f DigestFrequency) WindowKey(t time.Time) string {
	switch f {
	case DigestDaily:
		return t.UTC().Format("2006-01-02")
	default:
		return t.UTC().Format("2006-01-02T15")
	}
}

// NotificationRule is a standing policy describing when a notification
// fires, who receives it and how it escalates.
type NotificationRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	TriggerType     TriggerType `json:"trigger_type"`
	TriggerEvent    string      `json:"trigger_event,omitempty"`
	TriggerSchedule string      `json:"trigger_schedule,omitempty"`
	Conditions      []Condition `json:"conditions,omitempty"`

	TargetRoles []string `json:"target_roles,omitempty"`
	TargetUsers []string `json:"target_users,omitempty"`

	Channels      []string               `json:"channels"`
	Priority      notifications.Priority `json:"priority"`
	Category      string                 `json:"category"`
	TitleTemplate string                 `json:"title_template,omitempty"`
	BodyTemplate  string                 `json:"body_template,omitempty"`

	CooldownMinutes int             `json:"cooldown_minutes,omitempty"`
	MaxPerDay       int             `json:"max_per_day,omitempty"`
	BundleInDigest  bool            `json:"bundle_in_digest,omitempty"`
	DigestFrequency DigestFrequency `json:"digest_frequency,omitempty"`

	// EscalateAfterMinutes of zero means the rule never escalates.
	EscalateAfterMinutes int    `json:"escalate_after_minutes,omitempty"`
	EscalateTo           string `json:"escalate_to,omitempty"`
	MaxEscalationLevel   int    `json:"max_escalation_level,omitempty"`

	Status string `json:"status"`

	// FiredCount and LastFiredAt are mutated only by the rule evaluator
	// after a successful, non-suppressed fire.
	FiredCount  int       `json:"fired_count"`
	LastFiredAt time.Time `json:"last_fired_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks rule invariants at write time.
func (r NotificationRule) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if r.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Reason: "required"}
	}
	if r.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if !r.TriggerType.Valid() {
		return &ValidationError{Field: "trigger_type", Reason: "unknown trigger type"}
	}
	if r.TriggerType == TriggerEvent && r.TriggerEvent == "" {
		return &ValidationError{Field: "trigger_event", Reason: "required for event trigger"}
	}
	if r.TriggerType == TriggerSchedule {
		if r.TriggerSchedule == "" {
			return &ValidationError{Field: "trigger_schedule", Reason: "required for schedule trigger"}
		}
		if _, err := ParseSchedule(r.TriggerSchedule); err != nil {
			return &ValidationError{Field: "trigger_schedule", Reason: err.Error()}
		}
	}
	for i, cond := range r.Conditions {
		if err := cond.Validate(); err != nil {
			return &ValidationError{Field: "conditions", Reason: err.Error(), Index: i}
		}
	}
	if len(r.TargetRoles) == 0 && len(r.TargetUsers) == 0 {
		return &ValidationError{Field: "targets", Reason: "at least one target role or user required"}
	}
	if len(r.Channels) == 0 {
		return &ValidationError{Field: "channels", Reason: "at least one channel required"}
	}
	if !r.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	if r.Category == "" {
		return &ValidationError{Field: "category", Reason: "required"}
	}
	if r.CooldownMinutes < 0 {
		return &ValidationError{Field: "cooldown_minutes", Reason: "must not be negative"}
	}
	if r.MaxPerDay < 0 {
		return &ValidationError{Field: "max_per_day", Reason: "must not be negative"}
	}
	if r.BundleInDigest && r.DigestFrequency != DigestHourly && r.DigestFrequency != DigestDaily {
		return &ValidationError{Field: "digest_frequency", Reason: "must be hourly or daily"}
	}
	if r.EscalateAfterMinutes < 0 {
		return &ValidationError{Field: "escalate_after_minutes", Reason: "must not be negative"}
	}
	if r.EscalateAfterMinutes > 0 && r.EscalateTo == "" {
		return &ValidationError{Field: "escalate_to", Reason: "required when escalation is enabled"}
	}
	switch r.Status {
	case RuleActive, RulePaused, RuleDisabled:
	default:
		return &ValidationError{Field: "status", Reason: "unknown status"}
	}
	return nil
}

// Escalates reports whether the rule declares an acknowledgement SLA.
func (r NotificationRule) Escalates() bool {
	return r.EscalateAfterMinutes > 0 && r.EscalateTo != ""
}
