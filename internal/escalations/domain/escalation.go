package escalations

import "time"

const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
	StatusExpired      = "expired"
)

// Reason records why an escalation was raised.
type Reason string

const (
	ReasonNoResponse Reason = "no_response"
	ReasonSLABreach  Reason = "sla_breach"
	ReasonManual     Reason = "manual"
	ReasonThreshold  Reason = "threshold"
	ReasonCritical   Reason = "critical"
)

// Valid returns true when the reason is supported.
func (r Reason) Valid() bool {
	switch r {
	case ReasonNoResponse, ReasonSLABreach, ReasonManual, ReasonThreshold, ReasonCritical:
		return true
	default:
		return false
	}
}

// Escalation tracks a notification that was not acknowledged in time and
// walks it up the responsibility chain.
type Escalation struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	NotificationID    string `json:"notification_id"`
	NotificationTitle string `json:"notification_title"`
	RuleID            string `json:"rule_id,omitempty"`

	// Level starts at 1 and never exceeds MaxLevel.
	Level    int `json:"level"`
	MaxLevel int `json:"max_level"`

	EscalatedFromUserID string `json:"escalated_from_user_id,omitempty"`
	EscalatedFromName   string `json:"escalated_from_name,omitempty"`
	EscalatedToUserID   string `json:"escalated_to_user_id,omitempty"`
	EscalatedToName     string `json:"escalated_to_name,omitempty"`
	EscalatedToRole     string `json:"escalated_to_role,omitempty"`

	Reason       Reason `json:"reason"`
	ReasonDetail string `json:"reason_detail,omitempty"`

	SLADeadline      time.Time `json:"sla_deadline,omitempty"`
	SLABreach        bool      `json:"sla_breach"`
	NextEscalationAt time.Time `json:"next_escalation_at,omitempty"`
	// Interval is the escalate-after window, reused for each level.
	Interval time.Duration `json:"interval"`

	Status string `json:"status"`

	AcknowledgedAt     time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy     string    `json:"acknowledged_by,omitempty"`
	AcknowledgedByName string    `json:"acknowledged_by_name,omitempty"`

	ResolvedAt      time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string    `json:"resolved_by,omitempty"`
	ResolvedByName  string    `json:"resolved_by_name,omitempty"`
	ResolutionNotes string    `json:"resolution_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Due reports whether the scheduler should act on this record now.
func (e Escalation) Due(now time.Time) bool {
	if e.Status != StatusActive || e.NextEscalationAt.IsZero() {
		return false
	}
	return !now.UTC().Before(e.NextEscalationAt)
}

// Terminal reports whether no further transitions are possible.
func (e Escalation) Terminal() bool {
	return e.Status == StatusResolved || e.Status == StatusExpired
}

// Advance walks the escalation one level up the chain. Only active
// records below MaxLevel advance; the next deadline reuses the same
// interval as the previous level.
func (e *Escalation) Advance(now time.Time, toUserID, toName, toRole string) error {
	if e.Status != StatusActive {
		return &InvalidTransitionError{ID: e.ID, From: e.Status, Op: "advance"}
	}
	if e.Level >= e.MaxLevel {
		return &InvalidTransitionError{ID: e.ID, From: e.Status, Op: "advance beyond max level"}
	}
	e.EscalatedFromUserID = e.EscalatedToUserID
	e.EscalatedFromName = e.EscalatedToName
	e.Level++
	e.EscalatedToUserID = toUserID
	e.EscalatedToName = toName
	e.EscalatedToRole = toRole
	e.SLABreach = true
	e.NextEscalationAt = now.UTC().Add(e.Interval)
	e.UpdatedAt = now.UTC()
	return nil
}

// Expire terminates an active record whose last level breached again.
func (e *Escalation) Expire(now time.Time) error {
	if e.Status != StatusActive {
		return &InvalidTransitionError{ID: e.ID, From: e.Status, Op: "expire"}
	}
	e.Status = StatusExpired
	e.SLABreach = true
	e.NextEscalationAt = time.Time{}
	e.UpdatedAt = now.UTC()
	return nil
}

// Acknowledge transitions active -> acknowledged. Acknowledged records
// are never advanced by the scheduler again.
func (e *Escalation) Acknowledge(now time.Time, byUserID, byName string) error {
	if e.Status != StatusActive {
		return &InvalidTransitionError{ID: e.ID, From: e.Status, Op: "acknowledge"}
	}
	e.Status = StatusAcknowledged
	e.AcknowledgedAt = now.UTC()
	e.AcknowledgedBy = byUserID
	e.AcknowledgedByName = byName
	e.NextEscalationAt = time.Time{}
	e.UpdatedAt = now.UTC()
	return nil
}

// Resolve closes the escalation. The normal path is from acknowledged;
// resolving directly from active is the operator short-circuit.
func (e *Escalation) Resolve(now time.Time, byUserID, byName, notes string) error {
	if e.Status != StatusAcknowledged && e.Status != StatusActive {
		return &InvalidTransitionError{ID: e.ID, From: e.Status, Op: "resolve"}
	}
	if notes == "" {
		return &ValidationError{Field: "resolution_notes", Reason: "required"}
	}
	e.Status = StatusResolved
	e.ResolvedAt = now.UTC()
	e.ResolvedBy = byUserID
	e.ResolvedByName = byName
	e.ResolutionNotes = notes
	e.NextEscalationAt = time.Time{}
	e.UpdatedAt = now.UTC()
	return nil
}
