package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	directory "github.com/SergFTM/wealth-os-sub013/internal/directory"
	escalations "github.com/SergFTM/wealth-os-sub013/internal/escalations/domain"
	"github.com/SergFTM/wealth-os-sub013/internal/observability/metrics"
)

// Repository persists escalations. Status-changing writes are
// compare-and-swap: they apply only when the stored record still has
// the expected status and level, and report whether they did.
type Repository interface {
	Create(ctx context.Context, esc *escalations.Escalation) error
	Get(ctx context.Context, tenantID, id string) (*escalations.Escalation, error)
	List(ctx context.Context, tenantID, status string) ([]escalations.Escalation, error)
	// ListDue returns active records whose NextEscalationAt has passed.
	ListDue(ctx context.Context, now time.Time) ([]escalations.Escalation, error)
	// UpdateCAS writes esc if the stored row still matches
	// (expectStatus, expectLevel). A false return is a lost race.
	UpdateCAS(ctx context.Context, esc *escalations.Escalation, expectStatus string, expectLevel int) (bool, error)
}

// LifecycleNotifier publishes escalation lifecycle events.
type LifecycleNotifier interface {
	Notify(ctx context.Context, event LifecycleEvent)
}

// LifecycleEvent represents a lifecycle update.
type LifecycleEvent struct {
	Type       string                 `json:"type"`
	Escalation escalations.Escalation `json:"escalation"`
}

// Lifecycle event types.
const (
	EventCreated      = "created"
	EventAdvanced     = "advanced"
	EventExpired      = "expired"
	EventAcknowledged = "acknowledged"
	EventResolved     = "resolved"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service drives the escalation state machine: creation on SLA
// scheduling or breach, periodic chain advance, and the user-facing
// acknowledge/resolve transitions.
type Service struct {
	repo     Repository
	dir      directory.Directory
	notifier LifecycleNotifier
	clock    Clock
	logger   *log.Logger
	newID    func() string
}

// ServiceOption customizes the escalation service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithNotifier assigns a lifecycle notifier.
func WithNotifier(notifier LifecycleNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithIDFunc assigns an id generator.
func WithIDFunc(fn func() string) ServiceOption {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService constructs an escalation service.
func NewService(repo Repository, dir directory.Directory, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("escalations: nil repository")
	}
	if dir == nil {
		return nil, errors.New("escalations: nil directory")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		repo:   repo,
		dir:    dir,
		clock:  systemClock{},
		logger: logger,
		newID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateSpec describes a new escalation.
type CreateSpec struct {
	TenantID          string
	NotificationID    string
	NotificationTitle string
	RuleID            string
	AssignedUserID    string
	AssignedUserName  string
	AssignedRole      string
	Reason            escalations.Reason
	ReasonDetail      string
	Interval          time.Duration
	MaxLevel          int
}

// Create opens a level-1 escalation with its first deadline one
// interval out.
func (s *Service) Create(ctx context.Context, spec CreateSpec) (*escalations.Escalation, error) {
	if spec.NotificationID == "" {
		return nil, &escalations.ValidationError{Field: "notification_id", Reason: "required"}
	}
	if spec.Interval <= 0 {
		return nil, &escalations.ValidationError{Field: "interval", Reason: "must be positive"}
	}
	if spec.MaxLevel < 1 {
		return nil, &escalations.ValidationError{Field: "max_level", Reason: "must be at least 1"}
	}
	if !spec.Reason.Valid() {
		return nil, &escalations.ValidationError{Field: "reason", Reason: "unknown reason"}
	}
	now := s.clock.Now().UTC()
	deadline := now.Add(spec.Interval)
	esc := &escalations.Escalation{
		ID:                s.newID(),
		TenantID:          spec.TenantID,
		NotificationID:    spec.NotificationID,
		NotificationTitle: spec.NotificationTitle,
		RuleID:            spec.RuleID,
		Level:             1,
		MaxLevel:          spec.MaxLevel,
		EscalatedToUserID: spec.AssignedUserID,
		EscalatedToName:   spec.AssignedUserName,
		EscalatedToRole:   spec.AssignedRole,
		Reason:            spec.Reason,
		ReasonDetail:      spec.ReasonDetail,
		SLADeadline:       deadline,
		NextEscalationAt:  deadline,
		Interval:          spec.Interval,
		Status:            escalations.StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, esc); err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}
	metrics.IncEscalationEvent(EventCreated)
	s.notify(ctx, EventCreated, esc)
	return esc, nil
}

// AdvanceResult summarizes one advance pass.
type AdvanceResult struct {
	Advanced int
	Expired  int
	Skipped  int
}

// AdvanceDue walks every breached active escalation one level up the
// chain, expiring those already at max level. A failure on one record
// never stops the pass; the record is retried next tick.
func (s *Service) AdvanceDue(ctx context.Context, now time.Time) (AdvanceResult, error) {
	var result AdvanceResult
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return result, fmt.Errorf("list due escalations: %w", err)
	}
	for i := range due {
		esc := due[i]
		switch {
		case esc.Level >= esc.MaxLevel:
			if s.expire(ctx, esc, now) {
				result.Expired++
			} else {
				result.Skipped++
			}
		default:
			if s.advance(ctx, esc, now) {
				result.Advanced++
			} else {
				result.Skipped++
			}
		}
	}
	return result, nil
}

func (s *Service) advance(ctx context.Context, esc escalations.Escalation, now time.Time) bool {
	target, err := s.dir.EscalationTarget(ctx, esc.EscalatedToRole)
	if err != nil {
		metrics.IncEscalationSkip("directory_error")
		s.logger.Printf("escalations: target lookup failed for %s role=%s: %v", esc.ID, esc.EscalatedToRole, err)
		return false
	}
	if target.Empty() {
		// Nobody to escalate to. Leave the record due so the next
		// tick retries after the chain is fixed.
		metrics.IncEscalationSkip("empty_target")
		s.logger.Printf("escalations: no escalation target for %s role=%s", esc.ID, esc.EscalatedToRole)
		return false
	}
	toUserID, toName := target.UserID, target.Name
	if toUserID == "" && target.Role != "" {
		members, err := s.dir.ResolveRoleMembers(ctx, target.Role)
		if err != nil || len(members) == 0 {
			metrics.IncEscalationSkip("empty_target")
			s.logger.Printf("escalations: role %s resolves to no members for %s", target.Role, esc.ID)
			return false
		}
		toUserID, toName = members[0].ID, members[0].Name
	}

	prevStatus, prevLevel := esc.Status, esc.Level
	if err := esc.Advance(now, toUserID, toName, target.Role); err != nil {
		metrics.IncEscalationSkip("invalid_transition")
		s.logger.Printf("escalations: advance rejected for %s: %v", esc.ID, err)
		return false
	}
	applied, err := s.repo.UpdateCAS(ctx, &esc, prevStatus, prevLevel)
	if err != nil {
		metrics.IncEscalationSkip("store_error")
		s.logger.Printf("escalations: advance write failed for %s: %v", esc.ID, err)
		return false
	}
	if !applied {
		// Concurrent tick or user action won the race.
		metrics.IncEscalationSkip("lost_race")
		return false
	}
	metrics.IncEscalationEvent(EventAdvanced)
	s.notify(ctx, EventAdvanced, &esc)
	return true
}

func (s *Service) expire(ctx context.Context, esc escalations.Escalation, now time.Time) bool {
	prevStatus, prevLevel := esc.Status, esc.Level
	if err := esc.Expire(now); err != nil {
		metrics.IncEscalationSkip("invalid_transition")
		s.logger.Printf("escalations: expire rejected for %s: %v", esc.ID, err)
		return false
	}
	applied, err := s.repo.UpdateCAS(ctx, &esc, prevStatus, prevLevel)
	if err != nil {
		metrics.IncEscalationSkip("store_error")
		s.logger.Printf("escalations: expire write failed for %s: %v", esc.ID, err)
		return false
	}
	if !applied {
		metrics.IncEscalationSkip("lost_race")
		return false
	}
	metrics.IncEscalationEvent(EventExpired)
	s.notify(ctx, EventExpired, &esc)
	return true
}

// Acknowledge transitions active -> acknowledged. A concurrent status
// change surfaces as InvalidTransition, never a silent success.
func (s *Service) Acknowledge(ctx context.Context, tenantID, id, byUserID, byName string) (*escalations.Escalation, error) {
	esc, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	prevStatus, prevLevel := esc.Status, esc.Level
	if err := esc.Acknowledge(now, byUserID, byName); err != nil {
		return nil, err
	}
	applied, err := s.repo.UpdateCAS(ctx, esc, prevStatus, prevLevel)
	if err != nil {
		return nil, fmt.Errorf("acknowledge escalation: %w", err)
	}
	if !applied {
		return nil, &escalations.InvalidTransitionError{ID: id, From: prevStatus, Op: "acknowledge"}
	}
	metrics.IncEscalationEvent(EventAcknowledged)
	s.notify(ctx, EventAcknowledged, esc)
	return esc, nil
}

// Resolve closes the escalation with mandatory notes.
func (s *Service) Resolve(ctx context.Context, tenantID, id, byUserID, byName, notes string) (*escalations.Escalation, error) {
	esc, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	prevStatus, prevLevel := esc.Status, esc.Level
	if err := esc.Resolve(now, byUserID, byName, notes); err != nil {
		return nil, err
	}
	applied, err := s.repo.UpdateCAS(ctx, esc, prevStatus, prevLevel)
	if err != nil {
		return nil, fmt.Errorf("resolve escalation: %w", err)
	}
	if !applied {
		return nil, &escalations.InvalidTransitionError{ID: id, From: prevStatus, Op: "resolve"}
	}
	metrics.IncEscalationEvent(EventResolved)
	s.notify(ctx, EventResolved, esc)
	return esc, nil
}

// Get returns one escalation.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*escalations.Escalation, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns escalations filtered by optional status.
func (s *Service) List(ctx context.Context, tenantID, status string) ([]escalations.Escalation, error) {
	return s.repo.List(ctx, tenantID, status)
}

func (s *Service) notify(ctx context.Context, eventType string, esc *escalations.Escalation) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, LifecycleEvent{Type: eventType, Escalation: *esc})
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
