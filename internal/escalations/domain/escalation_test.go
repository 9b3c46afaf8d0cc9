package escalations

import (
	"testing"
	"time"
)

var escNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func activeEscalation() Escalation {
	return Escalation{
		ID:                "esc-1",
		TenantID:          "tenant-a",
		NotificationID:    "n-1",
		NotificationTitle: "Invoice overdue",
		Level:             1,
		MaxLevel:          3,
		EscalatedToUserID: "user-1",
		EscalatedToName:   "Anna",
		EscalatedToRole:   "accountant",
		Reason:            ReasonNoResponse,
		Interval:          30 * time.Minute,
		NextEscalationAt:  escNow,
		Status:            StatusActive,
		CreatedAt:         escNow.Add(-30 * time.Minute),
	}
}

func TestAdvance(t *testing.T) {
	e := activeEscalation()
	if err := e.Advance(escNow, "user-2", "Boris", "manager"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if e.Level != 2 {
		t.Fatalf("level = %d", e.Level)
	}
	if e.EscalatedFromUserID != "user-1" || e.EscalatedFromName != "Anna" {
		t.Fatalf("chain not shifted: from %s/%s", e.EscalatedFromUserID, e.EscalatedFromName)
	}
	if e.EscalatedToUserID != "user-2" || e.EscalatedToRole != "manager" {
		t.Fatalf("assignee not updated: %s/%s", e.EscalatedToUserID, e.EscalatedToRole)
	}
	if !e.SLABreach {
		t.Fatal("advance must record the breach")
	}
	if want := escNow.Add(30 * time.Minute); !e.NextEscalationAt.Equal(want) {
		t.Fatalf("next deadline = %v, want %v", e.NextEscalationAt, want)
	}
}

func TestAdvance_BeyondMaxLevel(t *testing.T) {
	e := activeEscalation()
	e.Level = 3
	err := e.Advance(escNow, "user-9", "Dana", "director")
	if !IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if e.Level != 3 {
		t.Fatalf("level changed on failed advance: %d", e.Level)
	}
}

func TestAdvance_NonActive(t *testing.T) {
	for _, status := range []string{StatusAcknowledged, StatusResolved, StatusExpired} {
		e := activeEscalation()
		e.Status = status
		if err := e.Advance(escNow, "u", "n", "r"); !IsInvalidTransition(err) {
			t.Fatalf("advance from %s: %v", status, err)
		}
	}
}

func TestExpire(t *testing.T) {
	e := activeEscalation()
	if err := e.Expire(escNow); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if e.Status != StatusExpired || !e.Terminal() {
		t.Fatalf("status = %s", e.Status)
	}
	if !e.NextEscalationAt.IsZero() {
		t.Fatal("expired record still scheduled")
	}
	if err := e.Expire(escNow); !IsInvalidTransition(err) {
		t.Fatal("expire must be one-shot")
	}
}

func TestAcknowledge(t *testing.T) {
	e := activeEscalation()
	if err := e.Acknowledge(escNow, "user-2", "Boris"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if e.Status != StatusAcknowledged || e.AcknowledgedBy != "user-2" {
		t.Fatalf("ack state: %s by %s", e.Status, e.AcknowledgedBy)
	}
	if !e.NextEscalationAt.IsZero() {
		t.Fatal("acknowledged record still scheduled")
	}
	if e.Terminal() {
		t.Fatal("acknowledged is not terminal")
	}
}

func TestAcknowledge_ResolvedRecordRejected(t *testing.T) {
	e := activeEscalation()
	if err := e.Resolve(escNow, "user-2", "Boris", "fixed upstream"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	err := e.Acknowledge(escNow.Add(time.Minute), "user-3", "Clara")
	if !IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if e.Status != StatusResolved || e.ResolvedBy != "user-2" {
		t.Fatalf("terminal record mutated: %s by %s", e.Status, e.ResolvedBy)
	}
}

func TestResolve(t *testing.T) {
	// Normal path: acknowledged first.
	e := activeEscalation()
	if err := e.Acknowledge(escNow, "user-2", "Boris"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if err := e.Resolve(escNow.Add(time.Minute), "user-2", "Boris", "restarted the export"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.Status != StatusResolved || !e.Terminal() {
		t.Fatalf("status = %s", e.Status)
	}
	if e.ResolutionNotes != "restarted the export" {
		t.Fatalf("notes = %q", e.ResolutionNotes)
	}

	// Operator short-circuit from active.
	direct := activeEscalation()
	if err := direct.Resolve(escNow, "user-2", "Boris", "false positive"); err != nil {
		t.Fatalf("resolve from active: %v", err)
	}
}

func TestResolve_NotesRequired(t *testing.T) {
	e := activeEscalation()
	err := e.Resolve(escNow, "user-2", "Boris", "")
	if err == nil {
		t.Fatal("expected validation error for empty notes")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if e.Status != StatusActive {
		t.Fatalf("status changed on failed resolve: %s", e.Status)
	}
}

func TestDue(t *testing.T) {
	e := activeEscalation()
	if !e.Due(escNow) {
		t.Fatal("deadline reached, should be due")
	}
	if !e.Due(escNow.Add(time.Minute)) {
		t.Fatal("past deadline, should be due")
	}
	if e.Due(escNow.Add(-time.Second)) {
		t.Fatal("before deadline, should not be due")
	}

	e.Status = StatusAcknowledged
	if e.Due(escNow.Add(time.Hour)) {
		t.Fatal("acknowledged records are never due")
	}

	unscheduled := activeEscalation()
	unscheduled.NextEscalationAt = time.Time{}
	if unscheduled.Due(escNow) {
		t.Fatal("unscheduled record reported due")
	}
}

func TestReasonValid(t *testing.T) {
	for _, r := range []Reason{ReasonNoResponse, ReasonSLABreach, ReasonManual, ReasonThreshold, ReasonCritical} {
		if !r.Valid() {
			t.Fatalf("%s should be valid", r)
		}
	}
	if Reason("boredom").Valid() {
		t.Fatal("unknown reason accepted")
	}
}
