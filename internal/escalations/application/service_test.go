package application

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	directory "github.com/SergFTM/wealth-os-sub013/internal/directory"
	escalations "github.com/SergFTM/wealth-os-sub013/internal/escalations/domain"
	memory "github.com/SergFTM/wealth-os-sub013/internal/escalations/infrastructure/memory"
)

var svcNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// chainDirectory walks accountant -> manager -> director and stops.
type chainDirectory struct {
	chain   map[string]directory.Target
	members map[string][]directory.Member
}

func newChainDirectory() *chainDirectory {
	return &chainDirectory{
		chain: map[string]directory.Target{
			"accountant": {Role: "manager"},
			"manager":    {UserID: "user-9", Name: "Dana"},
			"director":   {},
		},
		members: map[string][]directory.Member{
			"accountant": {{ID: "user-1", Name: "Anna"}},
			"manager":    {{ID: "user-2", Name: "Boris"}},
		},
	}
}

func (d *chainDirectory) ResolveRoleMembers(_ context.Context, role string) ([]directory.Member, error) {
	members, ok := d.members[role]
	if !ok {
		return nil, directory.ErrUnknownRole
	}
	return members, nil
}

func (d *chainDirectory) GetUser(_ context.Context, userID string) (*directory.Member, error) {
	for _, members := range d.members {
		for _, m := range members {
			if m.ID == userID {
				copied := m
				return &copied, nil
			}
		}
	}
	return nil, fmt.Errorf("directory: user %s not found", userID)
}

func (d *chainDirectory) EscalationTarget(_ context.Context, role string) (directory.Target, error) {
	target, ok := d.chain[role]
	if !ok {
		return directory.Target{}, directory.ErrUnknownRole
	}
	return target, nil
}

type recordingNotifier struct {
	events []LifecycleEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event LifecycleEvent) {
	n.events = append(n.events, event)
}

func newTestService(t *testing.T) (*Service, *memory.EscalationRepository, *fixedClock, *recordingNotifier) {
	t.Helper()
	repo := memory.NewEscalationRepository()
	clock := &fixedClock{now: svcNow}
	notifier := &recordingNotifier{}
	seq := 0
	svc, err := NewService(repo, newChainDirectory(), log.New(io.Discard, "", 0),
		WithClock(clock),
		WithNotifier(notifier),
		WithIDFunc(func() string { seq++; return fmt.Sprintf("esc-%d", seq) }),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo, clock, notifier
}

func validSpec() CreateSpec {
	return CreateSpec{
		TenantID:          "tenant-a",
		NotificationID:    "n-1",
		NotificationTitle: "Invoice overdue",
		RuleID:            "rule-1",
		AssignedUserID:    "user-1",
		AssignedUserName:  "Anna",
		AssignedRole:      "accountant",
		Reason:            escalations.ReasonNoResponse,
		Interval:          30 * time.Minute,
		MaxLevel:          3,
	}
}

func TestCreate(t *testing.T) {
	svc, _, _, notifier := newTestService(t)
	esc, err := svc.Create(context.Background(), validSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if esc.Level != 1 || esc.Status != escalations.StatusActive {
		t.Fatalf("level=%d status=%s", esc.Level, esc.Status)
	}
	if want := svcNow.Add(30 * time.Minute); !esc.NextEscalationAt.Equal(want) {
		t.Fatalf("first deadline = %v, want %v", esc.NextEscalationAt, want)
	}
	if !esc.SLADeadline.Equal(esc.NextEscalationAt) {
		t.Fatal("sla deadline and first escalation deadline must match")
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != EventCreated {
		t.Fatalf("events = %+v", notifier.events)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	cases := []struct {
		name   string
		mutate func(*CreateSpec)
	}{
		{"missing notification", func(s *CreateSpec) { s.NotificationID = "" }},
		{"zero interval", func(s *CreateSpec) { s.Interval = 0 }},
		{"zero max level", func(s *CreateSpec) { s.MaxLevel = 0 }},
		{"unknown reason", func(s *CreateSpec) { s.Reason = "boredom" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec()
			tc.mutate(&spec)
			if _, err := svc.Create(context.Background(), spec); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestAdvanceDue_WalksChain(t *testing.T) {
	svc, repo, clock, notifier := newTestService(t)
	esc, err := svc.Create(context.Background(), validSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// First breach: accountant escalates to the manager role, resolved
	// to its first member.
	clock.now = svcNow.Add(31 * time.Minute)
	result, err := svc.AdvanceDue(context.Background(), clock.now)
	if err != nil {
		t.Fatalf("advance due: %v", err)
	}
	if result.Advanced != 1 || result.Expired != 0 || result.Skipped != 0 {
		t.Fatalf("result = %+v", result)
	}
	stored, err := repo.Get(context.Background(), "tenant-a", esc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Level != 2 || stored.EscalatedToUserID != "user-2" || stored.EscalatedToName != "Boris" {
		t.Fatalf("level 2 assignee: %+v", stored)
	}
	if stored.EscalatedFromUserID != "user-1" {
		t.Fatalf("from = %s", stored.EscalatedFromUserID)
	}

	// Second breach: manager escalates to a direct user target.
	clock.now = clock.now.Add(31 * time.Minute)
	result, err = svc.AdvanceDue(context.Background(), clock.now)
	if err != nil || result.Advanced != 1 {
		t.Fatalf("second advance: %+v %v", result, err)
	}
	stored, _ = repo.Get(context.Background(), "tenant-a", esc.ID)
	if stored.Level != 3 || stored.EscalatedToUserID != "user-9" || stored.EscalatedToName != "Dana" {
		t.Fatalf("level 3 assignee: %+v", stored)
	}

	// Third breach: already at max level, the record expires.
	clock.now = clock.now.Add(31 * time.Minute)
	result, err = svc.AdvanceDue(context.Background(), clock.now)
	if err != nil || result.Expired != 1 {
		t.Fatalf("expire pass: %+v %v", result, err)
	}
	stored, _ = repo.Get(context.Background(), "tenant-a", esc.ID)
	if stored.Status != escalations.StatusExpired {
		t.Fatalf("status = %s", stored.Status)
	}

	types := make([]string, 0, len(notifier.events))
	for _, e := range notifier.events {
		types = append(types, e.Type)
	}
	want := []string{EventCreated, EventAdvanced, EventAdvanced, EventExpired}
	if len(types) != len(want) {
		t.Fatalf("events = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}

func TestAdvanceDue_EmptyTargetRetriesNextTick(t *testing.T) {
	svc, repo, clock, _ := newTestService(t)
	spec := validSpec()
	spec.AssignedRole = "director"
	esc, err := svc.Create(context.Background(), spec)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.now = svcNow.Add(31 * time.Minute)
	result, err := svc.AdvanceDue(context.Background(), clock.now)
	if err != nil {
		t.Fatalf("advance due: %v", err)
	}
	if result.Skipped != 1 || result.Advanced != 0 {
		t.Fatalf("result = %+v", result)
	}
	stored, _ := repo.Get(context.Background(), "tenant-a", esc.ID)
	if stored.Level != 1 || !stored.Due(clock.now) {
		t.Fatalf("skipped record must stay due: %+v", stored)
	}
}

func TestAdvanceDue_LostRaceSkips(t *testing.T) {
	svc, repo, clock, _ := newTestService(t)
	esc, err := svc.Create(context.Background(), validSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A user acknowledges between the due listing and the write.
	acked := *esc
	if err := acked.Acknowledge(svcNow.Add(time.Minute), "user-1", "Anna"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	due := []escalations.Escalation{*esc}
	if _, err := repo.UpdateCAS(context.Background(), &acked, escalations.StatusActive, 1); err != nil {
		t.Fatalf("cas: %v", err)
	}

	clock.now = svcNow.Add(31 * time.Minute)
	// The stale snapshot still looks active; the CAS write must lose.
	applied, err := repo.UpdateCAS(context.Background(), &due[0], due[0].Status, due[0].Level)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if applied {
		t.Fatal("stale write applied over acknowledged record")
	}

	result, err := svc.AdvanceDue(context.Background(), clock.now)
	if err != nil {
		t.Fatalf("advance due: %v", err)
	}
	if result.Advanced != 0 || result.Expired != 0 {
		t.Fatalf("acknowledged record advanced: %+v", result)
	}
}

func TestAcknowledgeAndResolve(t *testing.T) {
	svc, _, clock, _ := newTestService(t)
	esc, err := svc.Create(context.Background(), validSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clock.now = svcNow.Add(10 * time.Minute)
	acked, err := svc.Acknowledge(context.Background(), "tenant-a", esc.ID, "user-1", "Anna")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if acked.Status != escalations.StatusAcknowledged || acked.AcknowledgedBy != "user-1" {
		t.Fatalf("ack state: %+v", acked)
	}

	// Acknowledged records never advance, even long past the deadline.
	result, err := svc.AdvanceDue(context.Background(), svcNow.Add(24*time.Hour))
	if err != nil || result.Advanced != 0 || result.Expired != 0 {
		t.Fatalf("acknowledged record acted on: %+v %v", result, err)
	}

	resolved, err := svc.Resolve(context.Background(), "tenant-a", esc.ID, "user-1", "Anna", "restarted the export")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != escalations.StatusResolved || resolved.ResolutionNotes == "" {
		t.Fatalf("resolve state: %+v", resolved)
	}

	// A second acknowledge on the closed record must fail.
	if _, err := svc.Acknowledge(context.Background(), "tenant-a", esc.ID, "user-2", "Boris"); !escalations.IsInvalidTransition(err) {
		t.Fatalf("acknowledge resolved: %v", err)
	}
}

func TestResolve_RequiresNotes(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	esc, err := svc.Create(context.Background(), validSpec())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Resolve(context.Background(), "tenant-a", esc.ID, "user-1", "Anna", ""); err == nil {
		t.Fatal("expected validation error for empty notes")
	}
}

func TestGetAndList(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	first, _ := svc.Create(context.Background(), validSpec())
	spec := validSpec()
	spec.NotificationID = "n-2"
	second, _ := svc.Create(context.Background(), spec)
	if _, err := svc.Acknowledge(context.Background(), "tenant-a", second.ID, "user-1", "Anna"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	got, err := svc.Get(context.Background(), "tenant-a", first.ID)
	if err != nil || got.ID != first.ID {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := svc.Get(context.Background(), "tenant-a", "missing"); err != escalations.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	active, err := svc.List(context.Background(), "tenant-a", escalations.StatusActive)
	if err != nil || len(active) != 1 || active[0].ID != first.ID {
		t.Fatalf("active list: %+v %v", active, err)
	}
	all, err := svc.List(context.Background(), "tenant-a", "")
	if err != nil || len(all) != 2 {
		t.Fatalf("full list: %+v %v", all, err)
	}
}
