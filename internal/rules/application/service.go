package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/SergFTM/wealth-os-sub013/internal/audit"
	"github.com/SergFTM/wealth-os-sub013/internal/auth"
	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
	rules "github.com/SergFTM/wealth-os-sub013/internal/rules/domain"
)

// Repository persists notification rules.
type Repository interface {
	Create(ctx context.Context, rule *rules.NotificationRule) error
	Get(ctx context.Context, tenantID, id string) (*rules.NotificationRule, error)
	List(ctx context.Context, tenantID, status string) ([]rules.NotificationRule, error)
	Update(ctx context.Context, rule *rules.NotificationRule) error
	MarkFired(ctx context.Context, tenantID, ruleID string, firedAt time.Time) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service owns rule administration: create, patch, status changes.
// Every write is validated and audited.
type Service struct {
	repo   Repository
	audit  audit.Logger
	clock  Clock
	logger *log.Logger
	newID  func() string
}

// ServiceOption customizes the rule service.
type ServiceOption func(*Service)

// WithServiceClock assigns a clock.
func WithServiceClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithAudit assigns an audit logger.
func WithAudit(logger audit.Logger) ServiceOption {
	return func(s *Service) {
		s.audit = logger
	}
}

// WithServiceIDFunc assigns an id generator.
func WithServiceIDFunc(fn func() string) ServiceOption {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService constructs a rule service.
func NewService(repo Repository, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("rules: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		repo:   repo,
		clock:  systemClock{},
		logger: logger,
		newID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create validates and persists a new rule.
func (s *Service) Create(ctx context.Context, rule rules.NotificationRule) (*rules.NotificationRule, error) {
	now := s.clock.Now().UTC()
	rule.ID = s.newID()
	if rule.TenantID == "" {
		rule.TenantID = auth.TenantIDFromContext(ctx)
	}
	if rule.Status == "" {
		rule.Status = rules.RuleActive
	}
	rule.FiredCount = 0
	rule.LastFiredAt = time.Time{}
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &rule); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	s.record(ctx, "rule.create", &rule)
	return &rule, nil
}

// Patch carries the mutable rule fields for Update. Nil pointers mean
// "leave unchanged".
type Patch struct {
	Name                 *string                `json:"name,omitempty"`
	Description          *string                `json:"description,omitempty"`
	TriggerEvent         *string                `json:"trigger_event,omitempty"`
	TriggerSchedule      *string                `json:"trigger_schedule,omitempty"`
	Conditions           *[]rules.Condition     `json:"conditions,omitempty"`
	TargetRoles          *[]string              `json:"target_roles,omitempty"`
	TargetUsers          *[]string              `json:"target_users,omitempty"`
	Channels             *[]string              `json:"channels,omitempty"`
	Priority             *string                `json:"priority,omitempty"`
	Category             *string                `json:"category,omitempty"`
	TitleTemplate        *string                `json:"title_template,omitempty"`
	BodyTemplate         *string                `json:"body_template,omitempty"`
	CooldownMinutes      *int                   `json:"cooldown_minutes,omitempty"`
	MaxPerDay            *int                   `json:"max_per_day,omitempty"`
	BundleInDigest       *bool                  `json:"bundle_in_digest,omitempty"`
	DigestFrequency      *rules.DigestFrequency `json:"digest_frequency,omitempty"`
	EscalateAfterMinutes *int                   `json:"escalate_after_minutes,omitempty"`
	EscalateTo           *string                `json:"escalate_to,omitempty"`
	MaxEscalationLevel   *int                   `json:"max_escalation_level,omitempty"`
}

// Update applies a partial patch and revalidates the whole rule.
func (s *Service) Update(ctx context.Context, tenantID, id string, patch Patch) (*rules.NotificationRule, error) {
	rule, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	applyPatch(rule, patch)
	rule.UpdatedAt = s.clock.Now().UTC()
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	s.record(ctx, "rule.update", rule)
	return rule, nil
}

// SetStatus moves a rule between active, paused and disabled.
func (s *Service) SetStatus(ctx context.Context, tenantID, id, status string) (*rules.NotificationRule, error) {
	switch status {
	case rules.RuleActive, rules.RulePaused, rules.RuleDisabled:
	default:
		return nil, &rules.ValidationError{Field: "status", Reason: "unknown status " + status}
	}
	rule, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if rule.Status == status {
		return rule, nil
	}
	rule.Status = status
	rule.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("set rule status: %w", err)
	}
	s.record(ctx, "rule.status", rule)
	return rule, nil
}

// Get returns one rule.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*rules.NotificationRule, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns rules filtered by optional status.
func (s *Service) List(ctx context.Context, tenantID, status string) ([]rules.NotificationRule, error) {
	return s.repo.List(ctx, tenantID, status)
}

func applyPatch(rule *rules.NotificationRule, patch Patch) {
	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Description != nil {
		rule.Description = *patch.Description
	}
	if patch.TriggerEvent != nil {
		rule.TriggerEvent = *patch.TriggerEvent
	}
	if patch.TriggerSchedule != nil {
		rule.TriggerSchedule = *patch.TriggerSchedule
	}
	if patch.Conditions != nil {
		rule.Conditions = *patch.Conditions
	}
	if patch.TargetRoles != nil {
		rule.TargetRoles = *patch.TargetRoles
	}
	if patch.TargetUsers != nil {
		rule.TargetUsers = *patch.TargetUsers
	}
	if patch.Channels != nil {
		rule.Channels = *patch.Channels
	}
	if patch.Priority != nil {
		rule.Priority = notifications.Priority(*patch.Priority)
	}
	if patch.Category != nil {
		rule.Category = *patch.Category
	}
	if patch.TitleTemplate != nil {
		rule.TitleTemplate = *patch.TitleTemplate
	}
	if patch.BodyTemplate != nil {
		rule.BodyTemplate = *patch.BodyTemplate
	}
	if patch.CooldownMinutes != nil {
		rule.CooldownMinutes = *patch.CooldownMinutes
	}
	if patch.MaxPerDay != nil {
		rule.MaxPerDay = *patch.MaxPerDay
	}
	if patch.BundleInDigest != nil {
		rule.BundleInDigest = *patch.BundleInDigest
	}
	if patch.DigestFrequency != nil {
		rule.DigestFrequency = *patch.DigestFrequency
	}
	if patch.EscalateAfterMinutes != nil {
		rule.EscalateAfterMinutes = *patch.EscalateAfterMinutes
	}
	if patch.EscalateTo != nil {
		rule.EscalateTo = *patch.EscalateTo
	}
	if patch.MaxEscalationLevel != nil {
		rule.MaxEscalationLevel = *patch.MaxEscalationLevel
	}
}

func (s *Service) record(ctx context.Context, action string, rule *rules.NotificationRule) {
	if s.audit == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]any{
		"name":   rule.Name,
		"status": rule.Status,
	})
	entry := audit.Entry{
		TenantID:     rule.TenantID,
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       action,
		ResourceType: "rule",
		ResourceID:   rule.ID,
		RuleID:       rule.ID,
		Metadata:     metadata,
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.Printf("rules: audit log failed for %s: %v", rule.ID, err)
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
