package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
	rules "github.com/SergFTM/wealth-os-sub013/internal/rules/domain"
)

// RuleRepository is a Postgres repository for notification rules.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository constructs a repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create inserts a rule.
func (r *RuleRepository) Create(ctx context.Context, rule *rules.NotificationRule) error {
	if r == nil || r.db == nil {
		return errors.New("rule repo: nil db")
	}
	if rule == nil {
		return errors.New("rule repo: nil rule")
	}
	conditions, targetRoles, targetUsers, channels, err := marshalRuleLists(rule)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO notification_rules (
	id, tenant_id, name, description, trigger_type, trigger_event, trigger_schedule,
	conditions, target_roles, target_users, channels, priority, category,
	title_template, body_template, cooldown_minutes, max_per_day, bundle_in_digest,
	digest_frequency, escalate_after_minutes, escalate_to, max_escalation_level,
	status, fired_count, last_fired_at, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18,
	$19, $20, $21, $22,
	$23, $24, $25, $26, $27
)`, rule.ID, rule.TenantID, rule.Name, rule.Description, string(rule.TriggerType),
		rule.TriggerEvent, rule.TriggerSchedule,
		conditions, targetRoles, targetUsers, channels, string(rule.Priority), rule.Category,
		rule.TitleTemplate, rule.BodyTemplate, rule.CooldownMinutes, rule.MaxPerDay, rule.BundleInDigest,
		string(rule.DigestFrequency), rule.EscalateAfterMinutes, rule.EscalateTo, rule.MaxEscalationLevel,
		rule.Status, rule.FiredCount, nullTime(rule.LastFiredAt), rule.CreatedAt, rule.UpdatedAt)
	return err
}

// Get loads a rule by id within a tenant.
func (r *RuleRepository) Get(ctx context.Context, tenantID, id string) (*rules.NotificationRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rule repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, selectRuleColumns+`
FROM notification_rules
WHERE tenant_id = $1 AND id = $2
LIMIT 1`, tenantID, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rules.ErrNotFound
		}
		return nil, err
	}
	return rule, nil
}

// List returns tenant rules ordered by creation, optionally filtered
// by status.
func (r *RuleRepository) List(ctx context.Context, tenantID, status string) ([]rules.NotificationRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rule repo: nil db")
	}
	query := selectRuleColumns + `
FROM notification_rules
WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at ASC"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rules.NotificationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update overwrites the mutable rule columns.
func (r *RuleRepository) Update(ctx context.Context, rule *rules.NotificationRule) error {
	if r == nil || r.db == nil {
		return errors.New("rule repo: nil db")
	}
	if rule == nil {
		return errors.New("rule repo: nil rule")
	}
	conditions, targetRoles, targetUsers, channels, err := marshalRuleLists(rule)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE notification_rules SET
	name = $3, description = $4, trigger_type = $5, trigger_event = $6,
	trigger_schedule = $7, conditions = $8, target_roles = $9, target_users = $10,
	channels = $11, priority = $12, category = $13, title_template = $14,
	body_template = $15, cooldown_minutes = $16, max_per_day = $17,
	bundle_in_digest = $18, digest_frequency = $19, escalate_after_minutes = $20,
	escalate_to = $21, max_escalation_level = $22, status = $23, updated_at = $24
WHERE tenant_id = $1 AND id = $2`,
		rule.TenantID, rule.ID,
		rule.Name, rule.Description, string(rule.TriggerType), rule.TriggerEvent,
		rule.TriggerSchedule, conditions, targetRoles, targetUsers,
		channels, string(rule.Priority), rule.Category, rule.TitleTemplate,
		rule.BodyTemplate, rule.CooldownMinutes, rule.MaxPerDay,
		rule.BundleInDigest, string(rule.DigestFrequency), rule.EscalateAfterMinutes,
		rule.EscalateTo, rule.MaxEscalationLevel, rule.Status, rule.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return rules.ErrNotFound
	}
	return nil
}

// MarkFired bumps the fire counters on a successful fire.
func (r *RuleRepository) MarkFired(ctx context.Context, tenantID, ruleID string, firedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("rule repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE notification_rules SET
	fired_count = fired_count + 1, last_fired_at = $3, updated_at = $3
WHERE tenant_id = $1 AND id = $2`, tenantID, ruleID, firedAt.UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return rules.ErrNotFound
	}
	return nil
}

const selectRuleColumns = `
SELECT id, tenant_id, name, description, trigger_type, trigger_event, trigger_schedule,
	conditions, target_roles, target_users, channels, priority, category,
	title_template, body_template, cooldown_minutes, max_per_day, bundle_in_digest,
	digest_frequency, escalate_after_minutes, escalate_to, max_escalation_level,
	status, fired_count, last_fired_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*rules.NotificationRule, error) {
	var rule rules.NotificationRule
	var triggerType, priority, digestFrequency string
	var conditions, targetRoles, targetUsers, channels []byte
	var lastFiredAt sql.NullTime
	if err := row.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.Name,
		&rule.Description,
		&triggerType,
		&rule.TriggerEvent,
		&rule.TriggerSchedule,
		&conditions,
		&targetRoles,
		&targetUsers,
		&channels,
		&priority,
		&rule.Category,
		&rule.TitleTemplate,
		&rule.BodyTemplate,
		&rule.CooldownMinutes,
		&rule.MaxPerDay,
		&rule.BundleInDigest,
		&digestFrequency,
		&rule.EscalateAfterMinutes,
		&rule.EscalateTo,
		&rule.MaxEscalationLevel,
		&rule.Status,
		&rule.FiredCount,
		&lastFiredAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rule.TriggerType = rules.TriggerType(triggerType)
	rule.Priority = notifications.Priority(priority)
	rule.DigestFrequency = rules.DigestFrequency(digestFrequency)
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, err
		}
	}
	if len(targetRoles) > 0 {
		if err := json.Unmarshal(targetRoles, &rule.TargetRoles); err != nil {
			return nil, err
		}
	}
	if len(targetUsers) > 0 {
		if err := json.Unmarshal(targetUsers, &rule.TargetUsers); err != nil {
			return nil, err
		}
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &rule.Channels); err != nil {
			return nil, err
		}
	}
	if lastFiredAt.Valid {
		rule.LastFiredAt = lastFiredAt.Time.UTC()
	}
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()
	return &rule, nil
}

func marshalRuleLists(rule *rules.NotificationRule) (conditions, targetRoles, targetUsers, channels []byte, err error) {
	if conditions, err = json.Marshal(rule.Conditions); err != nil {
		return nil, nil, nil, nil, err
	}
	if targetRoles, err = json.Marshal(rule.TargetRoles); err != nil {
		return nil, nil, nil, nil, err
	}
	if targetUsers, err = json.Marshal(rule.TargetUsers); err != nil {
		return nil, nil, nil, nil, err
	}
	if channels, err = json.Marshal(rule.Channels); err != nil {
		return nil, nil, nil, nil, err
	}
	return conditions, targetRoles, targetUsers, channels, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
