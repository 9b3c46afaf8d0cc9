package application

import (
	"time"

	directory "github.com/SergFTM/wealth-os-sub013/internal/directory"
	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
	rules "github.com/SergFTM/wealth-os-sub013/internal/rules/domain"
)

// TriggerSignal is an external occurrence that may cause rules to fire:
// an ingested event, a schedule tick or a condition/threshold check.
type TriggerSignal struct {
	TriggerType  rules.TriggerType `json:"trigger_type"`
	EventName    string            `json:"event_name,omitempty"`
	ScheduleTick time.Time         `json:"schedule_tick,omitempty"`
	TenantID     string            `json:"tenant_id"`
	SubjectID    string            `json:"subject_id"`
	SourceType   string            `json:"source_type,omitempty"`
	SourceID     string            `json:"source_id,omitempty"`
	SourceName   string            `json:"source_name,omitempty"`
	Fields       map[string]any    `json:"fields,omitempty"`
}

// NotificationDraft is the evaluator output: one pending notification
// per resolved recipient set, not yet persisted or delivered.
type NotificationDraft struct {
	RuleID    string             `json:"rule_id"`
	RuleName  string             `json:"rule_name"`
	TenantID  string             `json:"tenant_id"`
	SubjectID string             `json:"subject_id"`
	Targets   []directory.Member `json:"targets"`

	Priority notifications.Priority `json:"priority"`
	Category string                 `json:"category"`
	Channels []string               `json:"channels"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body"`

	SourceType string `json:"source_type,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
	SourceName string `json:"source_name,omitempty"`

	EscalateAfterMinutes int    `json:"escalate_after_minutes,omitempty"`
	EscalateTo           string `json:"escalate_to,omitempty"`
	MaxEscalationLevel   int    `json:"max_escalation_level,omitempty"`
}

// SuppressReason classifies a throttle decision.
type SuppressReason string

const (
	SuppressCooldown SuppressReason = "cooldown"
	SuppressDailyCap SuppressReason = "max_per_day"
)

// Suppression is a recorded, non-fatal throttle decision.
type Suppression struct {
	RuleID    string         `json:"rule_id"`
	SubjectID string         `json:"subject_id"`
	Reason    SuppressReason `json:"reason"`
}

// Skip records a rule excluded from one evaluation pass. Skips never
// abort evaluation of the remaining rules.
type Skip struct {
	RuleID string `json:"rule_id"`
	Cause  string `json:"cause"`
}

// Result aggregates one evaluation pass.
type Result struct {
	Drafts     []NotificationDraft
	Digested   int
	Suppressed []Suppression
	Skipped    []Skip
}
