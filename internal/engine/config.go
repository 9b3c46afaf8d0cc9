package engine

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/SergFTM/wealth-os-sub013/internal/notifications/scoring"
)

// Config is the engine policy: tick cadence, scoring weights, keyword
// locales and delivery settings.
type Config struct {
	TickIntervalSeconds    int                           `yaml:"tick_interval_seconds"`
	DeliveryTimeoutSeconds int                           `yaml:"delivery_timeout_seconds"`
	DefaultLocale          string                        `yaml:"default_locale"`
	AnomalyWindowHours     int                           `yaml:"anomaly_window_hours"`
	ScoringWeights         scoring.Weights               `yaml:"scoring_weights"`
	CategoryWeights        map[string]float64            `yaml:"category_weights"`
	Keywords               map[string]scoring.KeywordSet `yaml:"keywords"`
	WebhookURL             string                        `yaml:"webhook_url"`
}

// LoadConfig loads engine policy from yaml or env. Defaults match the
// stock scoring policy; NOTIFY_ENGINE_CONFIG points at the yaml file.
func LoadConfig() (Config, error) {
	cfg := Config{
		TickIntervalSeconds:    getenvIntDefault("NOTIFY_TICK_INTERVAL_SECONDS", 60),
		DeliveryTimeoutSeconds: getenvIntDefault("NOTIFY_DELIVERY_TIMEOUT_SECONDS", 10),
		DefaultLocale:          getenvDefault("NOTIFY_DEFAULT_LOCALE", "en"),
		AnomalyWindowHours:     getenvIntDefault("NOTIFY_ANOMALY_WINDOW_HOURS", 24),
		WebhookURL:             os.Getenv("NOTIFY_WEBHOOK_URL"),
	}

	if path := os.Getenv("NOTIFY_ENGINE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.TickIntervalSeconds <= 0 {
		cfg.TickIntervalSeconds = 60
	}
	if cfg.DeliveryTimeoutSeconds <= 0 {
		cfg.DeliveryTimeoutSeconds = 10
	}
	if cfg.AnomalyWindowHours <= 0 {
		cfg.AnomalyWindowHours = 24
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}
	return cfg, nil
}

// Scorer builds the scorer described by the policy.
func (c Config) Scorer() *scoring.Scorer {
	return scoring.NewScorer(c.ScoringWeights, c.CategoryWeights, c.Keywords)
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
