// Package scoring computes inbox importance scores. All functions are
// pure: no I/O, no clock reads, identical inputs give identical output.
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
)

// Weights distribute the six factors; they must sum to 1.0.
type Weights struct {
	Priority   float64 `yaml:"priority"`
	Category   float64 `yaml:"category"`
	Text       float64 `yaml:"text"`
	Age        float64 `yaml:"age"`
	Escalation float64 `yaml:"escalation"`
	Engagement float64 `yaml:"engagement"`
}

// DefaultWeights is the production weighting.
var DefaultWeights = Weights{
	Priority:   0.30,
	Category:   0.20,
	Text:       0.15,
	Age:        0.10,
	Escalation: 0.15,
	Engagement: 0.10,
}

// DefaultCategoryWeights rank categories by operational importance.
// The raw weight is multiplied by 50 and clamped to the factor range.
var DefaultCategoryWeights = map[string]float64{
	"escalation": 1.5,
	"compliance": 1.4,
	"approval":   1.3,
	"alert":      1.2,
	"task":       1.1,
	"message":    1.0,
	"report":     0.9,
	"reminder":   0.8,
	"system":     0.7,
}

// Context carries per-user history the engagement factor depends on.
// Zero value means no history: every category defaults to neutral.
type Context struct {
	// IgnoredCategories lists categories the user habitually ignores.
	IgnoredCategories []string
	// EngagementRates maps category to the historical interaction
	// rate in [0,1].
	EngagementRates map[string]float64
}

func (c Context) ignores(category string) bool {
	for _, ignored := range c.IgnoredCategories {
		if strings.EqualFold(ignored, category) {
			return true
		}
	}
	return false
}

// Factors are the per-factor values before weighting, each in [0,100].
type Factors struct {
	Priority   float64 `json:"priority"`
	Category   float64 `json:"category"`
	Text       float64 `json:"text"`
	Age        float64 `json:"age"`
	Escalation float64 `json:"escalation"`
	Engagement float64 `json:"engagement"`
}

// Result is the scoring output for one notification.
type Result struct {
	Score   int      `json:"score"`
	Tags    []string `json:"tags"`
	Factors Factors  `json:"factors"`
}

// Scorer evaluates notifications against a fixed policy. Construct
// once and share; the scorer holds no mutable state.
type Scorer struct {
	weights         Weights
	categoryWeights map[string]float64
	keywords        map[string]KeywordSet
}

// NewScorer builds a scorer. Zero-value arguments fall back to the
// defaults, so NewScorer(Weights{}, nil, nil) is the stock policy.
func NewScorer(weights Weights, categoryWeights map[string]float64, keywords map[string]KeywordSet) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	if categoryWeights == nil {
		categoryWeights = DefaultCategoryWeights
	}
	if keywords == nil {
		keywords = DefaultKeywords
	}
	return &Scorer{weights: weights, categoryWeights: categoryWeights, keywords: keywords}
}

// Score computes the 0-100 importance score, semantic tags and the raw
// factor breakdown for one notification. The caller supplies now so
// the age factor stays deterministic under test.
func (s *Scorer) Score(n notifications.Notification, ctx Context, locale string, now time.Time) Result {
	text := strings.ToLower(n.Title + " " + n.Body)
	set := s.keywordSet(locale)

	factors := Factors{
		Priority:   priorityFactor(n.Priority),
		Category:   s.categoryFactor(n.Category),
		Text:       textFactor(text, set),
		Age:        ageFactor(now.Sub(n.CreatedAt)),
		Escalation: escalationFactor(n),
		Engagement: engagementFactor(n.Category, ctx),
	}

	weighted := s.weights.Priority*factors.Priority +
		s.weights.Category*factors.Category +
		s.weights.Text*factors.Text +
		s.weights.Age*factors.Age +
		s.weights.Escalation*factors.Escalation +
		s.weights.Engagement*factors.Engagement

	return Result{
		Score:   int(math.Round(clamp(weighted))),
		Tags:    s.tags(n, text, set),
		Factors: factors,
	}
}

// ScoreAndSort scores a batch in place and returns it ordered by score
// descending. Equal scores keep their input order.
func (s *Scorer) ScoreAndSort(batch []notifications.Notification, ctx Context, locale string, now time.Time) []notifications.Notification {
	for i := range batch {
		result := s.Score(batch[i], ctx, locale, now)
		batch[i].SetScore(result.Score, result.Tags)
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return scoreOf(batch[i]) > scoreOf(batch[j])
	})
	return batch
}

func scoreOf(n notifications.Notification) int {
	if n.AIScore == nil {
		return 0
	}
	return *n.AIScore
}

func priorityFactor(p notifications.Priority) float64 {
	switch p {
	case notifications.PriorityUrgent:
		return 90
	case notifications.PriorityHigh:
		return 70
	case notifications.PriorityLow:
		return 30
	default:
		return 50
	}
}

func (s *Scorer) categoryFactor(category string) float64 {
	weight, ok := s.categoryWeights[strings.ToLower(category)]
	if !ok {
		weight = 1.0
	}
	return clamp(weight * 50)
}

func textFactor(text string, set KeywordSet) float64 {
	value := 50.0
	for _, kw := range set.High {
		if strings.Contains(text, kw) {
			value += 10
		}
	}
	for _, kw := range set.Low {
		if strings.Contains(text, kw) {
			value -= 5
		}
	}
	return clamp(value)
}

func ageFactor(age time.Duration) float64 {
	switch {
	case age < time.Hour:
		return 100
	case age < 4*time.Hour:
		return 80
	case age < 24*time.Hour:
		return 60
	case age < 72*time.Hour:
		return 40
	default:
		return 20
	}
}

func escalationFactor(n notifications.Notification) float64 {
	if n.Escalated() {
		return 100
	}
	return 0
}

func engagementFactor(category string, ctx Context) float64 {
	if ctx.ignores(category) {
		return 30
	}
	rate, ok := ctx.EngagementRates[strings.ToLower(category)]
	if !ok {
		return 50
	}
	return clamp(rate * 100)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
