package application

import (
	"context"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	directory "github.com/SergFTM/wealth-os-sub013/internal/directory"
	rules "github.com/SergFTM/wealth-os-sub013/internal/rules/domain"
)

type fakeDirectory struct {
	roles map[string][]directory.Member
	users map[string]directory.Member
	chain map[string]directory.Target
}

func (d *fakeDirectory) ResolveRoleMembers(_ context.Context, role string) ([]directory.Member, error) {
	members, ok := d.roles[role]
	if !ok {
		return nil, directory.ErrUnknownRole
	}
	return members, nil
}

func (d *fakeDirectory) GetUser(_ context.Context, userID string) (*directory.Member, error) {
	member, ok := d.users[userID]
	if !ok {
		return nil, nil
	}
	return &member, nil
}

func (d *fakeDirectory) EscalationTarget(_ context.Context, role string) (directory.Target, error) {
	return d.chain[role], nil
}

// memThrottle mirrors the production store semantics for tests.
type memThrottle struct {
	mu    sync.Mutex
	last  map[string]time.Time
	daily map[string]int
}

func newMemThrottle() *memThrottle {
	return &memThrottle{last: make(map[string]time.Time), daily: make(map[string]int)}
}

func (t *memThrottle) Reserve(_ context.Context, ruleID, subjectID string, now time.Time, cooldown time.Duration, maxPerDay int) (ThrottleDecision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := ruleID + "|" + subjectID
	if cooldown > 0 {
		if fired, ok := t.last[key]; ok && now.Sub(fired) < cooldown {
			return ThrottleDecision{Reason: SuppressCooldown}, nil
		}
	}
	dayKey := key + "|" + now.UTC().Format("2006-01-02")
	if maxPerDay > 0 && t.daily[dayKey] >= maxPerDay {
		return ThrottleDecision{Reason: SuppressDailyCap}, nil
	}
	t.last[key] = now
	t.daily[dayKey]++
	return ThrottleDecision{Allowed: true}, nil
}

type memDigest struct {
	entries []DigestEntry
}

func (d *memDigest) Append(_ context.Context, entry DigestEntry) error {
	d.entries = append(d.entries, entry)
	return nil
}

func (d *memDigest) CollectDue(_ context.Context, now time.Time) ([]DigestBuffer, error) {
	byKey := make(map[string]*DigestBuffer)
	var order []string
	var remaining []DigestEntry
	for _, entry := range d.entries {
		if entry.WindowKey == entry.Frequency.WindowKey(now) {
			remaining = append(remaining, entry)
			continue
		}
		key := entry.RuleID + "|" + entry.WindowKey
		buf, ok := byKey[key]
		if !ok {
			buf = &DigestBuffer{
				TenantID:  entry.TenantID,
				RuleID:    entry.RuleID,
				WindowKey: entry.WindowKey,
				Frequency: entry.Frequency,
			}
			byKey[key] = buf
			order = append(order, key)
		}
		buf.Drafts = append(buf.Drafts, entry.Draft)
	}
	d.entries = remaining
	result := make([]DigestBuffer, 0, len(order))
	for _, key := range order {
		result = append(result, *byKey[key])
	}
	return result, nil
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		roles: map[string][]directory.Member{
			"accountant": {
				{ID: "user-1", Name: "Anna", Email: "anna@example.com"},
				{ID: "user-2", Name: "Boris", Email: "boris@example.com"},
			},
		},
		users: map[string]directory.Member{
			"user-2": {ID: "user-2", Name: "Boris", Email: "boris@example.com"},
			"user-3": {ID: "user-3", Name: "Clara", Email: "clara@example.com"},
		},
	}
}

func testRule() rules.NotificationRule {
	return rules.NotificationRule{
		ID:           "rule-1",
		TenantID:     "tenant-a",
		Name:         "Invoice overdue",
		TriggerType:  rules.TriggerEvent,
		TriggerEvent: "invoice.overdue",
		TargetRoles:  []string{"accountant"},
		Channels:     []string{"inapp"},
		Priority:     "high",
		Category:     "billing",
		Status:       rules.RuleActive,
	}
}

func testSignal(fields map[string]any) TriggerSignal {
	return TriggerSignal{
		TriggerType: rules.TriggerEvent,
		EventName:   "invoice.overdue",
		TenantID:    "tenant-a",
		SubjectID:   "invoice-42",
		Fields:      fields,
	}
}

func newTestEvaluator(t *testing.T, dir directory.Directory, throttle ThrottleStore, digests DigestStore) *Evaluator {
	t.Helper()
	eval, err := NewEvaluator(dir, throttle, digests, nil, log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	return eval
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func TestEvaluate_FiresAndFansOut(t *testing.T) {
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), nil)
	rule := testRule()
	rule.TargetUsers = []string{"user-2", "user-3"}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	result, err := eval.Evaluate(context.Background(), testSignal(nil), []rules.NotificationRule{rule}, now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(result.Drafts))
	}
	draft := result.Drafts[0]
	// user-2 is both an accountant and a direct target; deduped.
	if len(draft.Targets) != 3 {
		t.Fatalf("expected 3 unique targets, got %d", len(draft.Targets))
	}
	if draft.Title != rule.Name {
		t.Fatalf("expected title fallback to rule name, got %q", draft.Title)
	}
}

func TestEvaluate_CooldownSuppresses(t *testing.T) {
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), nil)
	rule := testRule()
	rule.CooldownMinutes = 60
	ruleSet := []rules.NotificationRule{rule}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	first, err := eval.Evaluate(ctx, testSignal(nil), ruleSet, now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(first.Drafts) != 1 {
		t.Fatalf("first fire: expected 1 draft, got %d", len(first.Drafts))
	}

	second, err := eval.Evaluate(ctx, testSignal(nil), ruleSet, now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(second.Drafts) != 0 {
		t.Fatalf("inside cooldown: expected 0 drafts, got %d", len(second.Drafts))
	}
	if len(second.Suppressed) != 1 || second.Suppressed[0].Reason != SuppressCooldown {
		t.Fatalf("expected cooldown suppression, got %+v", second.Suppressed)
	}

	third, err := eval.Evaluate(ctx, testSignal(nil), ruleSet, now.Add(61*time.Minute))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(third.Drafts) != 1 {
		t.Fatalf("after cooldown: expected 1 draft, got %d", len(third.Drafts))
	}
}

func TestEvaluate_DailyCapSuppresses(t *testing.T) {
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), nil)
	rule := testRule()
	rule.MaxPerDay = 2
	ruleSet := []rules.NotificationRule{rule}
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := eval.Evaluate(ctx, testSignal(nil), ruleSet, now.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
		if len(result.Drafts) != 1 {
			t.Fatalf("fire %d: expected draft, got %d", i, len(result.Drafts))
		}
	}

	capped, err := eval.Evaluate(ctx, testSignal(nil), ruleSet, now.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(capped.Suppressed) != 1 || capped.Suppressed[0].Reason != SuppressDailyCap {
		t.Fatalf("expected daily cap suppression, got %+v", capped.Suppressed)
	}

	nextDay, err := eval.Evaluate(ctx, testSignal(nil), ruleSet, now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(nextDay.Drafts) != 1 {
		t.Fatalf("next day: expected fire, got %+v", nextDay)
	}
}

func TestEvaluate_InactiveRulesIgnored(t *testing.T) {
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), nil)
	paused := testRule()
	paused.Status = rules.RulePaused
	disabled := testRule()
	disabled.ID = "rule-2"
	disabled.Status = rules.RuleDisabled

	result, err := eval.Evaluate(context.Background(), testSignal(nil), []rules.NotificationRule{paused, disabled}, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Drafts) != 0 || len(result.Suppressed) != 0 || len(result.Skipped) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestEvaluate_ConditionsFilter(t *testing.T) {
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), nil)
	rule := testRule()
	rule.Conditions = []rules.Condition{
		{Field: "amount", Operator: rules.OpGt, Value: rules.NumberVal(100)},
		{Field: "status", Operator: rules.OpEq, Value: rules.StringVal("overdue")},
	}
	ruleSet := []rules.NotificationRule{rule}
	ctx := context.Background()

	hit, err := eval.Evaluate(ctx, testSignal(map[string]any{"amount": float64(150), "status": "overdue"}), ruleSet, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(hit.Drafts) != 1 {
		t.Fatalf("expected fire, got %+v", hit)
	}

	miss, err := eval.Evaluate(ctx, testSignal(map[string]any{"amount": float64(50), "status": "overdue"}), ruleSet, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(miss.Drafts) != 0 || len(miss.Skipped) != 0 {
		t.Fatalf("expected silent non-match, got %+v", miss)
	}
}

func TestEvaluate_MalformedConditionSkipsRuleOnly(t *testing.T) {
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), nil)
	broken := testRule()
	broken.Conditions = []rules.Condition{
		{Field: "amount", Operator: rules.OpGt, Value: rules.NumberVal(10)},
	}
	healthy := testRule()
	healthy.ID = "rule-2"

	// Signal carries a string where the condition expects a number.
	signal := testSignal(map[string]any{"amount": "lots"})
	result, err := eval.Evaluate(context.Background(), signal, []rules.NotificationRule{broken, healthy}, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].RuleID != "rule-1" {
		t.Fatalf("expected rule-1 skipped, got %+v", result.Skipped)
	}
	if len(result.Drafts) != 1 || result.Drafts[0].RuleID != "rule-2" {
		t.Fatalf("expected rule-2 to still fire, got %+v", result.Drafts)
	}
}

func TestEvaluate_UnknownRoleDoesNotFailRule(t *testing.T) {
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), nil)
	rule := testRule()
	rule.TargetRoles = []string{"ghost-role", "accountant"}

	result, err := eval.Evaluate(context.Background(), testSignal(nil), []rules.NotificationRule{rule}, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Drafts) != 1 || len(result.Drafts[0].Targets) != 2 {
		t.Fatalf("expected fire with accountant members, got %+v", result)
	}
}

func TestEvaluate_NoRecipientsSkips(t *testing.T) {
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), nil)
	rule := testRule()
	rule.TargetRoles = []string{"ghost-role"}

	result, err := eval.Evaluate(context.Background(), testSignal(nil), []rules.NotificationRule{rule}, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("expected skip for unresolvable recipients, got %+v", result)
	}
}

func TestEvaluate_Templates(t *testing.T) {
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), nil)
	rule := testRule()
	rule.TitleTemplate = "{{.Rule}}: {{.Subject}}"
	rule.BodyTemplate = "amount {{.Fields.amount}}"

	result, err := eval.Evaluate(context.Background(), testSignal(map[string]any{"amount": float64(99)}), []rules.NotificationRule{rule}, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Drafts) != 1 {
		t.Fatalf("expected draft, got %+v", result)
	}
	if result.Drafts[0].Title != "Invoice overdue: invoice-42" {
		t.Fatalf("title: %q", result.Drafts[0].Title)
	}
	if result.Drafts[0].Body != "amount 99" {
		t.Fatalf("body: %q", result.Drafts[0].Body)
	}
}

func TestEvaluate_DigestBuffersAndFlush(t *testing.T) {
	digests := &memDigest{}
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), digests)
	rule := testRule()
	rule.BundleInDigest = true
	rule.DigestFrequency = rules.DigestHourly
	ruleSet := []rules.NotificationRule{rule}
	now := time.Date(2026, 3, 2, 10, 5, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		signal := testSignal(nil)
		signal.SubjectID = "invoice-" + string(rune('a'+i))
		result, err := eval.Evaluate(ctx, signal, ruleSet, now.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
		if len(result.Drafts) != 0 || result.Digested != 1 {
			t.Fatalf("fire %d: expected digest buffering, got %+v", i, result)
		}
	}

	// Same window: nothing due yet.
	early, err := eval.FlushDigests(ctx, now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(early) != 0 {
		t.Fatalf("expected no flush inside window, got %d", len(early))
	}

	flushed, err := eval.FlushDigests(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(flushed) != 1 {
		t.Fatalf("expected 1 bundled draft, got %d", len(flushed))
	}
	bundle := flushed[0]
	if bundle.Title != "Invoice overdue: 3 updates" {
		t.Fatalf("bundle title: %q", bundle.Title)
	}
	if got := strings.Count(bundle.Body, "- "); got != 3 {
		t.Fatalf("bundle body should list 3 items, got %d: %q", got, bundle.Body)
	}
	if len(bundle.Targets) != 2 {
		t.Fatalf("bundle targets: %d", len(bundle.Targets))
	}

	// Flushing again is a no-op.
	again, err := eval.FlushDigests(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected empty second flush, got %d", len(again))
	}
}

func TestEvaluate_ManualRulesNeverMatchSignals(t *testing.T) {
	eval := newTestEvaluator(t, testDirectory(), newMemThrottle(), nil)
	rule := testRule()
	rule.TriggerType = rules.TriggerManual
	rule.TriggerEvent = ""

	result, err := eval.Evaluate(context.Background(), testSignal(nil), []rules.NotificationRule{rule}, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Drafts) != 0 {
		t.Fatalf("manual rule fired from signal: %+v", result)
	}
}
