package scoring

import (
	"strings"

	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
)

// tagPatterns map a tag to the phrases that imply it, per locale.
var tagPatterns = map[string][]string{
	"deadline":        {"deadline", "due", "overdue", "дедлайн", "срок", "просрочено"},
	"action-required": {"approve", "action required", "sign off", "требуется", "согласуйте"},
	"incident":        {"failed", "breach", "outage", "emergency", "авария", "сбой", "нарушение"},
}

// tags derives semantic tags from priority, category, escalation state
// and text patterns. Output is deduplicated and deterministic.
func (s *Scorer) tags(n notifications.Notification, text string, set KeywordSet) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(tag string) {
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		out = append(out, tag)
	}

	if n.Priority == notifications.PriorityUrgent || n.Priority == notifications.PriorityHigh {
		add("urgent")
	}
	if n.Escalated() {
		add("escalated")
	}
	add(strings.ToLower(n.Category))

	for _, kw := range set.High {
		if strings.Contains(text, kw) {
			add("important")
			break
		}
	}
	for _, tag := range []string{"deadline", "action-required", "incident"} {
		for _, phrase := range tagPatterns[tag] {
			if strings.Contains(text, phrase) {
				add(tag)
				break
			}
		}
	}
	return out
}
