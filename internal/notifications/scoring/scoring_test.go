package scoring

import (
	"testing"
	"time"

	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
)

var scoreNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func stockScorer() *Scorer {
	return NewScorer(Weights{}, nil, nil)
}

func TestScore_Deterministic(t *testing.T) {
	scorer := stockScorer()
	n := notifications.Notification{
		ID:        "n-1",
		Title:     "Invoice overdue",
		Body:      "Invoice INV-42 is overdue, approve immediately",
		Category:  "approval",
		Priority:  notifications.PriorityHigh,
		CreatedAt: scoreNow.Add(-2 * time.Hour),
	}
	first := scorer.Score(n, Context{}, "en", scoreNow)
	for i := 0; i < 10; i++ {
		again := scorer.Score(n, Context{}, "en", scoreNow)
		if again.Score != first.Score {
			t.Fatalf("score changed between runs: %d vs %d", first.Score, again.Score)
		}
		if len(again.Tags) != len(first.Tags) {
			t.Fatalf("tags changed between runs: %v vs %v", first.Tags, again.Tags)
		}
	}
	if first.Score < 0 || first.Score > 100 {
		t.Fatalf("score out of range: %d", first.Score)
	}
}

func TestScore_UrgentRussianEscalation(t *testing.T) {
	scorer := stockScorer()
	n := notifications.Notification{
		ID:           "n-1",
		Title:        "Критично: сбой выгрузки",
		Body:         "Нарушение регламента, требуется вмешательство",
		Category:     "escalation",
		Priority:     notifications.PriorityUrgent,
		EscalationID: "esc-1",
		CreatedAt:    scoreNow.Add(-30 * time.Minute),
	}
	ctx := Context{EngagementRates: map[string]float64{"escalation": 1.0}}

	result := scorer.Score(n, ctx, "ru", scoreNow)
	if result.Score < 85 {
		t.Fatalf("expected score >= 85, got %d (factors %+v)", result.Score, result.Factors)
	}
	wantTags := map[string]bool{"urgent": true, "escalated": true, "important": true, "incident": true}
	got := make(map[string]bool, len(result.Tags))
	for _, tag := range result.Tags {
		got[tag] = true
	}
	for tag := range wantTags {
		if !got[tag] {
			t.Fatalf("missing tag %q in %v", tag, result.Tags)
		}
	}
}

func TestScore_LowNoisePressesScoreDown(t *testing.T) {
	scorer := stockScorer()
	noise := notifications.Notification{
		ID:        "n-1",
		Title:     "Weekly summary newsletter",
		Body:      "FYI, no action needed",
		Category:  "system",
		Priority:  notifications.PriorityLow,
		CreatedAt: scoreNow.Add(-80 * time.Hour),
	}
	urgent := notifications.Notification{
		ID:        "n-2",
		Title:     "Payment failed",
		Body:      "Critical: payment gateway breach, act immediately",
		Category:  "alert",
		Priority:  notifications.PriorityUrgent,
		CreatedAt: scoreNow.Add(-10 * time.Minute),
	}
	low := scorer.Score(noise, Context{}, "en", scoreNow)
	high := scorer.Score(urgent, Context{}, "en", scoreNow)
	if low.Score >= high.Score {
		t.Fatalf("noise scored %d, urgent scored %d", low.Score, high.Score)
	}
	if low.Score > 40 {
		t.Fatalf("noise notification scored too high: %d", low.Score)
	}
}

func TestScore_IgnoredCategoryLowersEngagement(t *testing.T) {
	scorer := stockScorer()
	n := notifications.Notification{
		ID:        "n-1",
		Title:     "Report ready",
		Category:  "report",
		Priority:  notifications.PriorityNormal,
		CreatedAt: scoreNow.Add(-2 * time.Hour),
	}
	neutral := scorer.Score(n, Context{}, "en", scoreNow)
	ignored := scorer.Score(n, Context{IgnoredCategories: []string{"report"}}, "en", scoreNow)
	if ignored.Score >= neutral.Score {
		t.Fatalf("ignored category should score lower: %d vs %d", ignored.Score, neutral.Score)
	}
}

func TestScore_UnknownLocaleFallsBackToEnglish(t *testing.T) {
	scorer := stockScorer()
	n := notifications.Notification{
		ID:        "n-1",
		Title:     "urgent deadline",
		Category:  "task",
		Priority:  notifications.PriorityNormal,
		CreatedAt: scoreNow.Add(-5 * time.Minute),
	}
	fallback := scorer.Score(n, Context{}, "de", scoreNow)
	english := scorer.Score(n, Context{}, "en", scoreNow)
	if fallback.Score != english.Score {
		t.Fatalf("locale fallback mismatch: %d vs %d", fallback.Score, english.Score)
	}
}

func TestScoreAndSort_StableOrder(t *testing.T) {
	scorer := stockScorer()
	batch := []notifications.Notification{
		{ID: "low", Title: "weekly summary", Category: "system", Priority: notifications.PriorityLow, CreatedAt: scoreNow.Add(-90 * time.Hour)},
		{ID: "tie-a", Title: "Report ready", Category: "report", Priority: notifications.PriorityNormal, CreatedAt: scoreNow.Add(-2 * time.Hour)},
		{ID: "tie-b", Title: "Report ready", Category: "report", Priority: notifications.PriorityNormal, CreatedAt: scoreNow.Add(-2 * time.Hour)},
		{ID: "top", Title: "Critical breach", Category: "alert", Priority: notifications.PriorityUrgent, CreatedAt: scoreNow.Add(-time.Minute)},
	}

	sorted := scorer.ScoreAndSort(batch, Context{}, "en", scoreNow)
	if sorted[0].ID != "top" {
		t.Fatalf("expected top first, got %s", sorted[0].ID)
	}
	if sorted[len(sorted)-1].ID != "low" {
		t.Fatalf("expected low last, got %s", sorted[len(sorted)-1].ID)
	}
	// Equal scores keep input order.
	posA, posB := -1, -1
	for i, n := range sorted {
		if n.ID == "tie-a" {
			posA = i
		}
		if n.ID == "tie-b" {
			posB = i
		}
	}
	if posA > posB {
		t.Fatalf("stable sort violated: tie-a at %d, tie-b at %d", posA, posB)
	}
	for _, n := range sorted {
		if !n.Scored() {
			t.Fatalf("notification %s left unscored", n.ID)
		}
		if *n.AIScore < 0 || *n.AIScore > 100 {
			t.Fatalf("score out of range for %s: %d", n.ID, *n.AIScore)
		}
	}
}

func TestScore_CustomWeightsAndKeywords(t *testing.T) {
	scorer := NewScorer(
		Weights{Priority: 1.0},
		map[string]float64{"alert": 2.0},
		map[string]KeywordSet{"en": {High: []string{"meltdown"}}},
	)
	n := notifications.Notification{
		ID:        "n-1",
		Title:     "meltdown",
		Category:  "alert",
		Priority:  notifications.PriorityUrgent,
		CreatedAt: scoreNow,
	}
	result := scorer.Score(n, Context{}, "en", scoreNow)
	// Priority carries all the weight: urgent maps to 90.
	if result.Score != 90 {
		t.Fatalf("expected 90, got %d", result.Score)
	}
	found := false
	for _, tag := range result.Tags {
		if tag == "important" {
			found = true
		}
	}
	if !found {
		t.Fatalf("custom high keyword should tag important: %v", result.Tags)
	}
}
