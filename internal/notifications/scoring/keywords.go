package scoring

// KeywordSet holds the locale-specific importance vocabulary. Matching
// is case-insensitive substring search over title and body.
type KeywordSet struct {
	High []string `yaml:"high"`
	Low  []string `yaml:"low"`
}

// DefaultKeywords covers the locales the dashboard ships with. Keys
// are lowercase BCP 47 language codes.
var DefaultKeywords = map[string]KeywordSet{
	"en": {
		High: []string{
			"urgent", "critical", "immediately", "asap", "overdue",
			"breach", "failed", "emergency", "deadline", "blocked",
		},
		Low: []string{
			"fyi", "newsletter", "digest", "weekly summary", "no action",
		},
	},
	"ru": {
		High: []string{
			"критично", "срочно", "немедленно", "просрочено",
			"авария", "сбой", "нарушение", "дедлайн",
		},
		Low: []string{
			"к сведению", "рассылка", "дайджест", "еженедельный",
		},
	},
}

func (s *Scorer) keywordSet(locale string) KeywordSet {
	if set, ok := s.keywords[locale]; ok {
		return set
	}
	return s.keywords["en"]
}
