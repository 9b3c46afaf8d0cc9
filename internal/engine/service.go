// Package engine is the facade over rule evaluation, scoring,
// escalation scheduling and delivery. The rest of the application
// talks to the engine, never to the parts directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/SergFTM/wealth-os-sub013/internal/delivery"
	directory "github.com/SergFTM/wealth-os-sub013/internal/directory"
	escapp "github.com/SergFTM/wealth-os-sub013/internal/escalations/application"
	escalations "github.com/SergFTM/wealth-os-sub013/internal/escalations/domain"
	"github.com/SergFTM/wealth-os-sub013/internal/notifications/anomaly"
	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
	"github.com/SergFTM/wealth-os-sub013/internal/notifications/scoring"
	"github.com/SergFTM/wealth-os-sub013/internal/observability/metrics"
	rulesapp "github.com/SergFTM/wealth-os-sub013/internal/rules/application"
	rules "github.com/SergFTM/wealth-os-sub013/internal/rules/domain"
)

// NotificationRepository persists notifications for the engine.
type NotificationRepository interface {
	Create(ctx context.Context, n *notifications.Notification) error
	Get(ctx context.Context, tenantID, id string) (*notifications.Notification, error)
	Update(ctx context.Context, n *notifications.Notification) error
	ListByUser(ctx context.Context, tenantID, userID, status string) ([]notifications.Notification, error)
	ListSince(ctx context.Context, tenantID string, cutoff time.Time) ([]notifications.Notification, error)
	ListUnreadWithSLA(ctx context.Context, tenantID string) ([]notifications.Notification, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Inbox lifecycle event types.
const (
	InboxCreated = "created"
	InboxUpdated = "updated"
)

// InboxEvent represents a notification lifecycle update.
type InboxEvent struct {
	Type         string                     `json:"type"`
	Notification notifications.Notification `json:"notification"`
}

// InboxNotifier publishes inbox lifecycle events, e.g. to SSE clients.
type InboxNotifier interface {
	Notify(ctx context.Context, event InboxEvent)
}

// Service wires the engine together.
type Service struct {
	cfg         Config
	rules       *rulesapp.Service
	evaluator   *rulesapp.Evaluator
	inbox       NotificationRepository
	scorer      *scoring.Scorer
	escalations *escapp.Service
	dispatcher  *delivery.Dispatcher
	dir         directory.Directory
	notifier    InboxNotifier
	clock       Clock
	logger      *log.Logger
	newID       func() string
	tenantID    string

	mu               sync.Mutex
	lastScheduleTick time.Time
}

// Option customizes the engine.
type Option func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithNotifier assigns an inbox notifier.
func WithNotifier(notifier InboxNotifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithIDFunc assigns an id generator.
func WithIDFunc(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService constructs the engine facade.
func NewService(cfg Config, ruleSvc *rulesapp.Service, evaluator *rulesapp.Evaluator, inbox NotificationRepository, escSvc *escapp.Service, dispatcher *delivery.Dispatcher, dir directory.Directory, tenantID string, logger *log.Logger, opts ...Option) (*Service, error) {
	if ruleSvc == nil || evaluator == nil {
		return nil, errors.New("engine: nil rule service or evaluator")
	}
	if inbox == nil {
		return nil, errors.New("engine: nil notification repository")
	}
	if escSvc == nil {
		return nil, errors.New("engine: nil escalation service")
	}
	if dispatcher == nil {
		return nil, errors.New("engine: nil dispatcher")
	}
	if dir == nil {
		return nil, errors.New("engine: nil directory")
	}
	if tenantID == "" {
		return nil, errors.New("engine: empty tenant id")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		cfg:         cfg,
		rules:       ruleSvc,
		evaluator:   evaluator,
		inbox:       inbox,
		scorer:      cfg.Scorer(),
		escalations: escSvc,
		dispatcher:  dispatcher,
		dir:         dir,
		clock:       systemClock{},
		logger:      logger,
		newID:       func() string { return ulid.Make().String() },
		tenantID:    tenantID,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateRule validates and persists a new rule.
func (s *Service) CreateRule(ctx context.Context, rule rules.NotificationRule) (*rules.NotificationRule, error) {
	if rule.TenantID == "" {
		rule.TenantID = s.tenantID
	}
	return s.rules.Create(ctx, rule)
}

// UpdateRule applies a partial patch to an existing rule.
func (s *Service) UpdateRule(ctx context.Context, id string, patch rulesapp.Patch) (*rules.NotificationRule, error) {
	return s.rules.Update(ctx, s.tenantID, id, patch)
}

// SetRuleStatus moves a rule between active, paused and disabled.
func (s *Service) SetRuleStatus(ctx context.Context, id, status string) (*rules.NotificationRule, error) {
	return s.rules.SetStatus(ctx, s.tenantID, id, status)
}

// GetRule returns one rule.
func (s *Service) GetRule(ctx context.Context, id string) (*rules.NotificationRule, error) {
	return s.rules.Get(ctx, s.tenantID, id)
}

// ListRules returns rules filtered by optional status.
func (s *Service) ListRules(ctx context.Context, status string) ([]rules.NotificationRule, error) {
	return s.rules.List(ctx, s.tenantID, status)
}

// IngestEvent evaluates an external event against the active rule set
// and synchronously materializes any surviving drafts.
func (s *Service) IngestEvent(ctx context.Context, eventName, subjectID string, fields map[string]any) ([]notifications.Notification, error) {
	started := time.Now()
	signal := rulesapp.TriggerSignal{
		TriggerType: rules.TriggerEvent,
		EventName:   eventName,
		TenantID:    s.tenantID,
		SubjectID:   subjectID,
		Fields:      fields,
	}
	created, err := s.evaluateSignal(ctx, signal)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveIngest(result, time.Since(started))
	return created, err
}

// EvaluateSignal runs one condition or threshold signal through the
// rule set. Event signals should go through IngestEvent.
func (s *Service) EvaluateSignal(ctx context.Context, signal rulesapp.TriggerSignal) ([]notifications.Notification, error) {
	if signal.TenantID == "" {
		signal.TenantID = s.tenantID
	}
	return s.evaluateSignal(ctx, signal)
}

func (s *Service) evaluateSignal(ctx context.Context, signal rulesapp.TriggerSignal) ([]notifications.Notification, error) {
	now := s.clock.Now().UTC()
	ruleSet, err := s.rules.List(ctx, signal.TenantID, rules.RuleActive)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	result, err := s.evaluator.Evaluate(ctx, signal, ruleSet, now)
	if err != nil {
		return nil, err
	}
	var created []notifications.Notification
	for _, draft := range result.Drafts {
		created = append(created, s.materialize(ctx, draft, now)...)
	}
	return created, nil
}

// ManualDraft describes a notification created by direct API call
// rather than a rule fire.
type ManualDraft struct {
	UserID   string                 `json:"user_id"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body"`
	Category string                 `json:"category"`
	Priority notifications.Priority `json:"priority"`
	Channels []string               `json:"channels,omitempty"`
}

// CreateNotification creates, scores and delivers a manual notification.
func (s *Service) CreateNotification(ctx context.Context, draft ManualDraft) (*notifications.Notification, error) {
	if draft.UserID == "" {
		return nil, &rules.ValidationError{Field: "user_id", Reason: "required"}
	}
	if draft.Title == "" {
		return nil, &rules.ValidationError{Field: "title", Reason: "required"}
	}
	if draft.Priority == "" {
		draft.Priority = notifications.PriorityNormal
	}
	if !draft.Priority.Valid() {
		return nil, &rules.ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	if draft.Category == "" {
		draft.Category = "message"
	}
	member, err := s.dir.GetUser(ctx, draft.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if member == nil {
		return nil, notifications.ErrNotFound
	}
	now := s.clock.Now().UTC()
	n := s.newNotification(rulesapp.NotificationDraft{
		TenantID: s.tenantID,
		Priority: draft.Priority,
		Category: draft.Category,
		Channels: draft.Channels,
		Title:    draft.Title,
		Body:     draft.Body,
	}, *member, now)
	if err := s.persistAndDeliver(ctx, &n, *member, draft.Channels); err != nil {
		return nil, err
	}
	return &n, nil
}

// Tick runs one scheduler pass: schedule rules, digest flush, SLA
// breach scan, escalation advance and anomaly detection. Calling it
// twice for the same instant performs no additional work.
func (s *Service) Tick(ctx context.Context, now time.Time) error {
	started := time.Now()
	defer func() { metrics.ObserveTick(time.Since(started)) }()
	now = now.UTC()

	s.fireScheduleRules(ctx, now)

	drafts, err := s.evaluator.FlushDigests(ctx, now)
	if err != nil {
		s.logger.Printf("engine: digest flush failed: %v", err)
	}
	for _, draft := range drafts {
		s.materialize(ctx, draft, now)
	}

	if err := s.scanSLABreaches(ctx, now); err != nil {
		s.logger.Printf("engine: sla scan failed: %v", err)
	}

	if _, err := s.escalations.AdvanceDue(ctx, now); err != nil {
		s.logger.Printf("engine: escalation advance failed: %v", err)
	}

	s.detectAnomalies(ctx, now)
	return nil
}

// fireScheduleRules evaluates schedule-triggered rules once per
// minute. Re-running the tick for the same minute is a no-op.
func (s *Service) fireScheduleRules(ctx context.Context, now time.Time) {
	minute := now.Truncate(time.Minute)
	s.mu.Lock()
	if !s.lastScheduleTick.Before(minute) {
		s.mu.Unlock()
		return
	}
	s.lastScheduleTick = minute
	s.mu.Unlock()

	signal := rulesapp.TriggerSignal{
		TriggerType:  rules.TriggerSchedule,
		ScheduleTick: minute,
		TenantID:     s.tenantID,
		SubjectID:    "schedule",
	}
	if _, err := s.evaluateSignal(ctx, signal); err != nil {
		s.logger.Printf("engine: schedule evaluation failed: %v", err)
	}
}

// scanSLABreaches opens escalations for unread notifications whose
// rule-implied acknowledgement deadline has passed.
func (s *Service) scanSLABreaches(ctx context.Context, now time.Time) error {
	pending, err := s.inbox.ListUnreadWithSLA(ctx, s.tenantID)
	if err != nil {
		return err
	}
	ruleCache := make(map[string]*rules.NotificationRule)
	for i := range pending {
		n := pending[i]
		if n.Escalated() {
			continue
		}
		rule, ok := ruleCache[n.RuleID]
		if !ok {
			rule, err = s.rules.Get(ctx, s.tenantID, n.RuleID)
			if err != nil {
				if !errors.Is(err, rules.ErrNotFound) {
					s.logger.Printf("engine: rule lookup failed for notification %s: %v", n.ID, err)
				}
				ruleCache[n.RuleID] = nil
				continue
			}
			ruleCache[n.RuleID] = rule
		}
		if rule == nil || !rule.Escalates() {
			continue
		}
		interval := time.Duration(rule.EscalateAfterMinutes) * time.Minute
		if now.Before(n.CreatedAt.Add(interval)) {
			continue
		}
		s.openEscalation(ctx, &n, rule, escalations.ReasonSLABreach, now)
	}
	return nil
}

func (s *Service) openEscalation(ctx context.Context, n *notifications.Notification, rule *rules.NotificationRule, reason escalations.Reason, now time.Time) {
	maxLevel := rule.MaxEscalationLevel
	if maxLevel < 1 {
		maxLevel = 3
	}
	member, err := s.dir.GetUser(ctx, n.UserID)
	if err != nil || member == nil {
		s.logger.Printf("engine: cannot resolve assignee for escalation on %s: %v", n.ID, err)
		return
	}
	esc, err := s.escalations.Create(ctx, escapp.CreateSpec{
		TenantID:          n.TenantID,
		NotificationID:    n.ID,
		NotificationTitle: n.Title,
		RuleID:            rule.ID,
		AssignedUserID:    member.ID,
		AssignedUserName:  member.Name,
		AssignedRole:      rule.EscalateTo,
		Reason:            reason,
		ReasonDetail:      "unacknowledged past SLA",
		Interval:          time.Duration(rule.EscalateAfterMinutes) * time.Minute,
		MaxLevel:          maxLevel,
	})
	if err != nil {
		s.logger.Printf("engine: escalation create failed for %s: %v", n.ID, err)
		return
	}
	n.EscalationID = esc.ID
	n.UpdatedAt = now
	if err := s.inbox.Update(ctx, n); err != nil {
		s.logger.Printf("engine: linking escalation %s to %s failed: %v", esc.ID, n.ID, err)
	}
}

func (s *Service) detectAnomalies(ctx context.Context, now time.Time) {
	window := time.Duration(s.cfg.AnomalyWindowHours) * time.Hour
	batch, err := s.inbox.ListSince(ctx, s.tenantID, now.Add(-window))
	if err != nil {
		s.logger.Printf("engine: anomaly scan failed: %v", err)
		return
	}
	for _, found := range anomaly.Detect(batch, now) {
		metrics.AnomalyDetected(found.Type)
		s.logger.Printf("engine: anomaly %s: %s (%d notifications)", found.Type, found.Description, len(found.NotificationIDs))
	}
}

// Anomalies runs the detector over the configured trailing window.
func (s *Service) Anomalies(ctx context.Context) ([]anomaly.Anomaly, error) {
	now := s.clock.Now().UTC()
	window := time.Duration(s.cfg.AnomalyWindowHours) * time.Hour
	batch, err := s.inbox.ListSince(ctx, s.tenantID, now.Add(-window))
	if err != nil {
		return nil, err
	}
	return anomaly.Detect(batch, now), nil
}

// Acknowledge marks an escalation acknowledged.
func (s *Service) Acknowledge(ctx context.Context, escalationID, byUserID, byName string) (*escalations.Escalation, error) {
	return s.escalations.Acknowledge(ctx, s.tenantID, escalationID, byUserID, byName)
}

// Resolve closes an escalation with mandatory notes.
func (s *Service) Resolve(ctx context.Context, escalationID, byUserID, byName, notes string) (*escalations.Escalation, error) {
	return s.escalations.Resolve(ctx, s.tenantID, escalationID, byUserID, byName, notes)
}

// ScoreInbox rescores a user's open notifications and returns them
// ordered by importance. The engagement factor is fed from the user's
// full history, dismissed and archived records included.
func (s *Service) ScoreInbox(ctx context.Context, userID, locale string) ([]notifications.Notification, error) {
	if locale == "" {
		locale = s.cfg.DefaultLocale
	}
	all, err := s.inbox.ListByUser(ctx, s.tenantID, userID, "")
	if err != nil {
		return nil, err
	}
	var open []notifications.Notification
	for _, n := range all {
		if n.Status == notifications.StatusUnread || n.Status == notifications.StatusRead {
			open = append(open, n)
		}
	}
	now := s.clock.Now().UTC()
	sorted := s.scorer.ScoreAndSort(open, engagementContext(all), locale, now)
	for i := range sorted {
		if err := s.inbox.Update(ctx, &sorted[i]); err != nil {
			s.logger.Printf("engine: persisting score for %s failed: %v", sorted[i].ID, err)
		}
	}
	return sorted, nil
}

// engagementMinSample is the per-category history size below which the
// engagement factor stays neutral.
const engagementMinSample = 4

// engagementContext tallies a user's history per category. A category
// is ignored once at least half its records were dismissed without
// being read; otherwise its rate is the share of records the user read.
func engagementContext(history []notifications.Notification) scoring.Context {
	type tally struct {
		total           int
		read            int
		dismissedUnread int
	}
	tallies := make(map[string]*tally)
	for _, n := range history {
		category := strings.ToLower(n.Category)
		if category == "" {
			continue
		}
		t := tallies[category]
		if t == nil {
			t = &tally{}
			tallies[category] = t
		}
		t.total++
		if !n.ReadAt.IsZero() {
			t.read++
		}
		if n.Status == notifications.StatusDismissed && n.ReadAt.IsZero() {
			t.dismissedUnread++
		}
	}
	var sctx scoring.Context
	for category, t := range tallies {
		if t.total < engagementMinSample {
			continue
		}
		if t.dismissedUnread*2 >= t.total {
			sctx.IgnoredCategories = append(sctx.IgnoredCategories, category)
			continue
		}
		if sctx.EngagementRates == nil {
			sctx.EngagementRates = make(map[string]float64)
		}
		sctx.EngagementRates[category] = float64(t.read) / float64(t.total)
	}
	sort.Strings(sctx.IgnoredCategories)
	return sctx
}

// MarkRead transitions a notification to read.
func (s *Service) MarkRead(ctx context.Context, id string) (*notifications.Notification, error) {
	return s.transition(ctx, id, (*notifications.Notification).MarkRead)
}

// Dismiss transitions a notification to dismissed.
func (s *Service) Dismiss(ctx context.Context, id string) (*notifications.Notification, error) {
	return s.transition(ctx, id, (*notifications.Notification).Dismiss)
}

// Archive moves a notification to its terminal archived state.
func (s *Service) Archive(ctx context.Context, id string) (*notifications.Notification, error) {
	return s.transition(ctx, id, (*notifications.Notification).Archive)
}

func (s *Service) transition(ctx context.Context, id string, fn func(*notifications.Notification, time.Time) error) (*notifications.Notification, error) {
	n, err := s.inbox.Get(ctx, s.tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(n, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.inbox.Update(ctx, n); err != nil {
		return nil, err
	}
	s.notifyInbox(ctx, InboxUpdated, *n)
	return n, nil
}

// ListInbox returns a user's notifications, optionally by status.
func (s *Service) ListInbox(ctx context.Context, userID, status string) ([]notifications.Notification, error) {
	return s.inbox.ListByUser(ctx, s.tenantID, userID, status)
}

// GetNotification returns one notification.
func (s *Service) GetNotification(ctx context.Context, id string) (*notifications.Notification, error) {
	return s.inbox.Get(ctx, s.tenantID, id)
}

// ListEscalations returns escalations filtered by optional status.
func (s *Service) ListEscalations(ctx context.Context, status string) ([]escalations.Escalation, error) {
	return s.escalations.List(ctx, s.tenantID, status)
}

// GetEscalation returns one escalation.
func (s *Service) GetEscalation(ctx context.Context, id string) (*escalations.Escalation, error) {
	return s.escalations.Get(ctx, s.tenantID, id)
}

// materialize turns one draft into persisted, scored, delivered
// notifications, one per resolved target.
func (s *Service) materialize(ctx context.Context, draft rulesapp.NotificationDraft, now time.Time) []notifications.Notification {
	var created []notifications.Notification
	for _, target := range draft.Targets {
		n := s.newNotification(draft, target, now)
		if err := s.persistAndDeliver(ctx, &n, target, draft.Channels); err != nil {
			s.logger.Printf("engine: creating notification for user %s failed: %v", target.ID, err)
			continue
		}
		if draft.EscalateAfterMinutes > 0 && draft.EscalateTo != "" {
			s.escalateAtFire(ctx, &n, draft, target, now)
		}
		created = append(created, n)
	}
	return created
}

func (s *Service) newNotification(draft rulesapp.NotificationDraft, target directory.Member, now time.Time) notifications.Notification {
	n := notifications.Notification{
		ID:         s.newID(),
		TenantID:   draft.TenantID,
		UserID:     target.ID,
		Title:      draft.Title,
		Body:       draft.Body,
		Category:   draft.Category,
		Priority:   draft.Priority,
		Status:     notifications.StatusUnread,
		SourceType: draft.SourceType,
		SourceID:   draft.SourceID,
		SourceName: draft.SourceName,
		RuleID:     draft.RuleID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	result := s.scorer.Score(n, scoring.Context{}, s.cfg.DefaultLocale, now)
	n.SetScore(result.Score, result.Tags)
	return n
}

func (s *Service) persistAndDeliver(ctx context.Context, n *notifications.Notification, target directory.Member, channels []string) error {
	if err := s.inbox.Create(ctx, n); err != nil {
		return err
	}
	metrics.NotificationCreated(string(n.Priority))
	s.notifyInbox(ctx, InboxCreated, *n)

	if len(channels) == 0 {
		return nil
	}
	payload := delivery.Payload{
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		UserID:         target.ID,
		UserName:       target.Name,
		UserEmail:      target.Email,
		Title:          n.Title,
		Body:           n.Body,
		Category:       n.Category,
		Priority:       n.Priority,
		RuleID:         n.RuleID,
	}
	attempts := s.dispatcher.Send(ctx, channels, payload)
	for _, attempt := range attempts {
		n.DeliveryRecords = append(n.DeliveryRecords, notifications.DeliveryRecord{
			Channel:     attempt.Channel,
			Succeeded:   attempt.Succeeded,
			Error:       attempt.Error,
			AttemptedAt: attempt.AttemptedAt,
		})
	}
	if err := s.inbox.Update(ctx, n); err != nil {
		s.logger.Printf("engine: recording delivery attempts for %s failed: %v", n.ID, err)
	}
	return nil
}

func (s *Service) escalateAtFire(ctx context.Context, n *notifications.Notification, draft rulesapp.NotificationDraft, target directory.Member, now time.Time) {
	maxLevel := draft.MaxEscalationLevel
	if maxLevel < 1 {
		maxLevel = 3
	}
	esc, err := s.escalations.Create(ctx, escapp.CreateSpec{
		TenantID:          n.TenantID,
		NotificationID:    n.ID,
		NotificationTitle: n.Title,
		RuleID:            n.RuleID,
		AssignedUserID:    target.ID,
		AssignedUserName:  target.Name,
		AssignedRole:      draft.EscalateTo,
		Reason:            escalations.ReasonNoResponse,
		ReasonDetail:      "acknowledgement SLA declared by rule",
		Interval:          time.Duration(draft.EscalateAfterMinutes) * time.Minute,
		MaxLevel:          maxLevel,
	})
	if err != nil {
		s.logger.Printf("engine: escalation create failed for %s: %v", n.ID, err)
		return
	}
	n.EscalationID = esc.ID
	n.UpdatedAt = now
	if err := s.inbox.Update(ctx, n); err != nil {
		s.logger.Printf("engine: linking escalation %s to %s failed: %v", esc.ID, n.ID, err)
	}
}

func (s *Service) notifyInbox(ctx context.Context, eventType string, n notifications.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, InboxEvent{Type: eventType, Notification: n})
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
