package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"text/template"
	"time"

	directory "github.com/SergFTM/wealth-os-sub013/internal/directory"
	"github.com/SergFTM/wealth-os-sub013/internal/observability/metrics"
	rules "github.com/SergFTM/wealth-os-sub013/internal/rules/domain"
)

// ThrottleDecision is the outcome of an atomic throttle reservation.
type ThrottleDecision struct {
	Allowed bool
	Reason  SuppressReason
}

// ThrottleStore reserves a firing slot for (rule, subject). Reserve is
// atomic: concurrent callers for the same key see at most one Allowed
// decision inside the cooldown window, and never more than maxPerDay
// Allowed decisions per UTC day. Zero cooldown or maxPerDay disables
// the respective limit.
type ThrottleStore interface {
	Reserve(ctx context.Context, ruleID, subjectID string, now time.Time, cooldown time.Duration, maxPerDay int) (ThrottleDecision, error)
}

// DigestStore buffers drafts for digest rules until their window closes.
type DigestStore interface {
	Append(ctx context.Context, entry DigestEntry) error
	// CollectDue removes and returns all buffers whose window has
	// closed relative to now.
	CollectDue(ctx context.Context, now time.Time) ([]DigestBuffer, error)
}

// DigestEntry is one buffered draft inside a digest window.
type DigestEntry struct {
	TenantID  string                `json:"tenant_id"`
	RuleID    string                `json:"rule_id"`
	WindowKey string                `json:"window_key"`
	Frequency rules.DigestFrequency `json:"frequency"`
	Draft     NotificationDraft     `json:"draft"`
	CreatedAt time.Time             `json:"created_at"`
}

// DigestBuffer is a closed digest window ready to flush.
type DigestBuffer struct {
	TenantID  string
	RuleID    string
	WindowKey string
	Frequency rules.DigestFrequency
	Drafts    []NotificationDraft
}

// RuleStats records fire bookkeeping back onto the rule row.
type RuleStats interface {
	MarkFired(ctx context.Context, tenantID, ruleID string, firedAt time.Time) error
}

// Evaluator matches trigger signals against notification rules and
// applies throttling and digest bundling. One misconfigured rule never
// blocks the rest of the set.
type Evaluator struct {
	dir      directory.Directory
	throttle ThrottleStore
	digests  DigestStore
	stats    RuleStats
	logger   *log.Logger
}

// NewEvaluator constructs an evaluator. Directory and throttle store
// are required; digests and stats may be nil when unused.
func NewEvaluator(dir directory.Directory, throttle ThrottleStore, digests DigestStore, stats RuleStats, logger *log.Logger) (*Evaluator, error) {
	if dir == nil {
		return nil, errors.New("evaluator: nil directory")
	}
	if throttle == nil {
		return nil, errors.New("evaluator: nil throttle store")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Evaluator{dir: dir, throttle: throttle, digests: digests, stats: stats, logger: logger}, nil
}

// Evaluate runs one pass of the rule set against a signal. Inactive
// rules and non-matching triggers are ignored silently; condition or
// template failures are recorded as skips.
func (e *Evaluator) Evaluate(ctx context.Context, signal TriggerSignal, ruleSet []rules.NotificationRule, now time.Time) (Result, error) {
	var result Result
	for i := range ruleSet {
		rule := &ruleSet[i]
		if rule.Status != rules.RuleActive {
			continue
		}
		matched, err := e.matches(rule, signal)
		if err != nil {
			result.Skipped = append(result.Skipped, Skip{RuleID: rule.ID, Cause: err.Error()})
			metrics.RuleSkipped(rule.ID)
			e.logger.Printf("rules: skipping rule %s: %v", rule.ID, err)
			continue
		}
		if !matched {
			continue
		}

		decision, err := e.reserve(ctx, rule, signal, now)
		if err != nil {
			result.Skipped = append(result.Skipped, Skip{RuleID: rule.ID, Cause: "throttle store: " + err.Error()})
			metrics.RuleSkipped(rule.ID)
			e.logger.Printf("rules: throttle reserve failed for rule %s: %v", rule.ID, err)
			continue
		}
		if !decision.Allowed {
			result.Suppressed = append(result.Suppressed, Suppression{
				RuleID:    rule.ID,
				SubjectID: signal.SubjectID,
				Reason:    decision.Reason,
			})
			metrics.RuleSuppressed(rule.ID, string(decision.Reason))
			continue
		}

		draft, err := e.buildDraft(ctx, rule, signal)
		if err != nil {
			result.Skipped = append(result.Skipped, Skip{RuleID: rule.ID, Cause: err.Error()})
			metrics.RuleSkipped(rule.ID)
			e.logger.Printf("rules: skipping rule %s: %v", rule.ID, err)
			continue
		}

		if rule.BundleInDigest && e.digests != nil {
			entry := DigestEntry{
				TenantID:  rule.TenantID,
				RuleID:    rule.ID,
				WindowKey: rule.DigestFrequency.WindowKey(now),
				Frequency: rule.DigestFrequency,
				Draft:     draft,
				CreatedAt: now,
			}
			if err := e.digests.Append(ctx, entry); err != nil {
				result.Skipped = append(result.Skipped, Skip{RuleID: rule.ID, Cause: "digest buffer: " + err.Error()})
				metrics.RuleSkipped(rule.ID)
				e.logger.Printf("rules: digest append failed for rule %s: %v", rule.ID, err)
				continue
			}
			result.Digested++
		} else {
			result.Drafts = append(result.Drafts, draft)
		}

		metrics.RuleFired(rule.ID)
		if e.stats != nil {
			if err := e.stats.MarkFired(ctx, rule.TenantID, rule.ID, now); err != nil {
				e.logger.Printf("rules: mark fired failed for rule %s: %v", rule.ID, err)
			}
		}
	}
	return result, nil
}

// FlushDigests collapses every closed digest window into a single
// bundled draft. Buffers from the same rule and window become one
// notification summarizing all items.
func (e *Evaluator) FlushDigests(ctx context.Context, now time.Time) ([]NotificationDraft, error) {
	if e.digests == nil {
		return nil, nil
	}
	buffers, err := e.digests.CollectDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("collect digests: %w", err)
	}
	var drafts []NotificationDraft
	for _, buf := range buffers {
		if len(buf.Drafts) == 0 {
			continue
		}
		drafts = append(drafts, bundleDigest(buf))
		metrics.DigestFlushed(buf.RuleID)
	}
	return drafts, nil
}

func bundleDigest(buf DigestBuffer) NotificationDraft {
	head := buf.Drafts[0]
	bundled := head
	bundled.Title = fmt.Sprintf("%s: %d updates", head.RuleName, len(buf.Drafts))

	var body bytes.Buffer
	for _, d := range buf.Drafts {
		fmt.Fprintf(&body, "- %s\n", d.Title)
	}
	bundled.Body = body.String()

	// Union of recipients across the window, stable order.
	seen := make(map[string]bool)
	var targets []directory.Member
	for _, d := range buf.Drafts {
		for _, m := range d.Targets {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			targets = append(targets, m)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
	bundled.Targets = targets
	return bundled
}

func (e *Evaluator) matches(rule *rules.NotificationRule, signal TriggerSignal) (bool, error) {
	if rule.TriggerType == rules.TriggerManual {
		// Manual rules fire only through an explicit call, never
		// from signal evaluation.
		return false, nil
	}
	if rule.TriggerType != signal.TriggerType {
		return false, nil
	}
	switch rule.TriggerType {
	case rules.TriggerEvent:
		if rule.TriggerEvent != signal.EventName {
			return false, nil
		}
	case rules.TriggerSchedule:
		sched, err := rules.ParseSchedule(rule.TriggerSchedule)
		if err != nil {
			return false, fmt.Errorf("schedule %q: %w", rule.TriggerSchedule, err)
		}
		if !sched.Matches(signal.ScheduleTick) {
			return false, nil
		}
	}
	for i := range rule.Conditions {
		ok, err := rule.Conditions[i].Eval(signal.Fields)
		if err != nil {
			return false, fmt.Errorf("condition %d: %w", i, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) reserve(ctx context.Context, rule *rules.NotificationRule, signal TriggerSignal, now time.Time) (ThrottleDecision, error) {
	if rule.CooldownMinutes <= 0 && rule.MaxPerDay <= 0 {
		return ThrottleDecision{Allowed: true}, nil
	}
	cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
	return e.throttle.Reserve(ctx, rule.ID, signal.SubjectID, now, cooldown, rule.MaxPerDay)
}

func (e *Evaluator) buildDraft(ctx context.Context, rule *rules.NotificationRule, signal TriggerSignal) (NotificationDraft, error) {
	targets, err := e.resolveTargets(ctx, rule)
	if err != nil {
		return NotificationDraft{}, err
	}
	if len(targets) == 0 {
		return NotificationDraft{}, errors.New("no resolvable recipients")
	}
	title, body, err := renderTemplates(rule, signal)
	if err != nil {
		return NotificationDraft{}, err
	}
	return NotificationDraft{
		RuleID:               rule.ID,
		RuleName:             rule.Name,
		TenantID:             rule.TenantID,
		SubjectID:            signal.SubjectID,
		Targets:              targets,
		Priority:             rule.Priority,
		Category:             rule.Category,
		Channels:             append([]string(nil), rule.Channels...),
		Title:                title,
		Body:                 body,
		SourceType:           signal.SourceType,
		SourceID:             signal.SourceID,
		SourceName:           signal.SourceName,
		EscalateAfterMinutes: rule.EscalateAfterMinutes,
		EscalateTo:           rule.EscalateTo,
		MaxEscalationLevel:   rule.MaxEscalationLevel,
	}, nil
}

func (e *Evaluator) resolveTargets(ctx context.Context, rule *rules.NotificationRule) ([]directory.Member, error) {
	seen := make(map[string]bool)
	var targets []directory.Member
	add := func(m directory.Member) {
		if m.ID == "" || seen[m.ID] {
			return
		}
		seen[m.ID] = true
		targets = append(targets, m)
	}
	for _, role := range rule.TargetRoles {
		members, err := e.dir.ResolveRoleMembers(ctx, role)
		if err != nil {
			if errors.Is(err, directory.ErrUnknownRole) {
				e.logger.Printf("rules: rule %s targets unknown role %q", rule.ID, role)
				continue
			}
			return nil, fmt.Errorf("resolve role %q: %w", role, err)
		}
		for _, m := range members {
			add(m)
		}
	}
	for _, userID := range rule.TargetUsers {
		member, err := e.dir.GetUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve user %q: %w", userID, err)
		}
		if member == nil {
			e.logger.Printf("rules: rule %s targets unknown user %q", rule.ID, userID)
			continue
		}
		add(*member)
	}
	return targets, nil
}

// templateData is what rule templates see. Fields carries the raw
// signal payload.
type templateData struct {
	Rule    string
	Event   string
	Subject string
	Source  string
	Fields  map[string]any
}

func renderTemplates(rule *rules.NotificationRule, signal TriggerSignal) (string, string, error) {
	data := templateData{
		Rule:    rule.Name,
		Event:   signal.EventName,
		Subject: signal.SubjectID,
		Source:  signal.SourceName,
		Fields:  signal.Fields,
	}
	title, err := renderTemplate("title", rule.TitleTemplate, data)
	if err != nil {
		return "", "", err
	}
	if title == "" {
		title = rule.Name
	}
	body, err := renderTemplate("body", rule.BodyTemplate, data)
	if err != nil {
		return "", "", err
	}
	if body == "" {
		body = defaultBody(data)
	}
	return title, body, nil
}

func renderTemplate(name, text string, data templateData) (string, error) {
	if text == "" {
		return "", nil
	}
	tpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("%s template: %w", name, err)
	}
	var out bytes.Buffer
	if err := tpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("%s template: %w", name, err)
	}
	return out.String(), nil
}

func defaultBody(data templateData) string {
	switch {
	case data.Event != "" && data.Subject != "":
		return fmt.Sprintf("%s triggered by %s for %s", data.Rule, data.Event, data.Subject)
	case data.Event != "":
		return fmt.Sprintf("%s triggered by %s", data.Rule, data.Event)
	default:
		return data.Rule + " triggered"
	}
}
