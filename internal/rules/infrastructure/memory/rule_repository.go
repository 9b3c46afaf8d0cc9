package memory

import (
	"context"
	"sync"
	"time"

	rules "github.com/SergFTM/wealth-os-sub013/internal/rules/domain"
)

// RuleRepository is an in-memory repository for notification rules.
type RuleRepository struct {
	mu    sync.RWMutex
	data  map[string]rules.NotificationRule
	order []string
}

// NewRuleRepository constructs a repository.
func NewRuleRepository() *RuleRepository {
	return &RuleRepository{data: make(map[string]rules.NotificationRule)}
}

// Create persists a new rule.
func (r *RuleRepository) Create(_ context.Context, rule *rules.NotificationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[rule.ID]; !exists {
		r.order = append(r.order, rule.ID)
	}
	r.data[rule.ID] = *rule
	return nil
}

// Get loads one rule.
func (r *RuleRepository) Get(_ context.Context, tenantID, id string) (*rules.NotificationRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.data[id]
	if !ok || (tenantID != "" && rule.TenantID != tenantID) {
		return nil, rules.ErrNotFound
	}
	copied := rule
	return &copied, nil
}

// List returns rules in insertion order, optionally filtered by status.
func (r *RuleRepository) List(_ context.Context, tenantID, status string) ([]rules.NotificationRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []rules.NotificationRule
	for _, id := range r.order {
		rule := r.data[id]
		if tenantID != "" && rule.TenantID != tenantID {
			continue
		}
		if status != "" && rule.Status != status {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

// Update overwrites an existing rule.
func (r *RuleRepository) Update(_ context.Context, rule *rules.NotificationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[rule.ID]; !ok {
		return rules.ErrNotFound
	}
	r.data[rule.ID] = *rule
	return nil
}

// MarkFired records a successful fire on the rule row.
func (r *RuleRepository) MarkFired(_ context.Context, tenantID, ruleID string, firedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.data[ruleID]
	if !ok || (tenantID != "" && rule.TenantID != tenantID) {
		return rules.ErrNotFound
	}
	rule.FiredCount++
	rule.LastFiredAt = firedAt.UTC()
	rule.UpdatedAt = firedAt.UTC()
	r.data[ruleID] = rule
	return nil
}
