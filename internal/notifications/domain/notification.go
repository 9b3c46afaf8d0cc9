package notifications

import "time"

const (
	StatusUnread    = "unread"
	StatusRead      = "read"
	StatusDismissed = "dismissed"
	StatusArchived  = "archived"
)

// Priority expresses how urgently a notification should be surfaced.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid returns true when the priority is supported.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Rank orders priorities, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Notification is one instance surfaced to a user. Records are never
// deleted, only archived.
type Notification struct {
	ID         string   `json:"id"`
	TenantID   string   `json:"tenant_id"`
	UserID     string   `json:"user_id"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Category   string   `json:"category"`
	Priority   Priority `json:"priority"`
	Status     string   `json:"status"`
	SourceType string   `json:"source_type,omitempty"`
	SourceID   string   `json:"source_id,omitempty"`
	SourceName string   `json:"source_name,omitempty"`
	// RuleID is empty for manually created notifications.
	RuleID string `json:"rule_id,omitempty"`
	// EscalationID is set once an escalation has been raised for this record.
	EscalationID string `json:"escalation_id,omitempty"`
	// AIScore is nil until the scoring pass has run.
	AIScore *int     `json:"ai_score,omitempty"`
	AITags  []string `json:"ai_tags,omitempty"`
	// DeliveryRecords capture per-channel send outcomes. Failures are
	// recorded here and never block persistence.
	DeliveryRecords []DeliveryRecord `json:"delivery_records,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ReadAt          time.Time        `json:"read_at,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// DeliveryRecord is the outcome of one channel send attempt.
type DeliveryRecord struct {
	Channel     string    `json:"channel"`
	Succeeded   bool      `json:"succeeded"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// MarkRead transitions unread -> read and stamps ReadAt exactly once.
func (n *Notification) MarkRead(now time.Time) error {
	if n.Status != StatusUnread {
		return &InvalidTransitionError{ID: n.ID, From: n.Status, To: StatusRead}
	}
	n.Status = StatusRead
	n.ReadAt = now.UTC()
	n.UpdatedAt = now.UTC()
	return nil
}

// Dismiss transitions unread/read -> dismissed.
func (n *Notification) Dismiss(now time.Time) error {
	if n.Status != StatusUnread && n.Status != StatusRead {
		return &InvalidTransitionError{ID: n.ID, From: n.Status, To: StatusDismissed}
	}
	n.Status = StatusDismissed
	n.UpdatedAt = now.UTC()
	return nil
}

// Archive moves any non-archived record to its terminal archived state.
func (n *Notification) Archive(now time.Time) error {
	if n.Status == StatusArchived {
		return &InvalidTransitionError{ID: n.ID, From: n.Status, To: StatusArchived}
	}
	n.Status = StatusArchived
	n.UpdatedAt = now.UTC()
	return nil
}

// SetScore attaches the scoring result.
func (n *Notification) SetScore(score int, tags []string) {
	s := score
	n.AIScore = &s
	n.AITags = tags
}

// Scored reports whether the scoring pass has run.
func (n *Notification) Scored() bool { return n.AIScore != nil }

// Escalated reports whether an escalation was raised for this record.
func (n *Notification) Escalated() bool { return n.EscalationID != "" }
