package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	escalations "github.com/SergFTM/wealth-os-sub013/internal/escalations/domain"
)

// EscalationRepository is a Postgres repository for escalations. All
// status-changing writes are compare-and-swap on (status, level).
type EscalationRepository struct {
	db *sql.DB
}

// NewEscalationRepository constructs a repository.
func NewEscalationRepository(db *sql.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// Create inserts a new escalation.
func (r *EscalationRepository) Create(ctx context.Context, esc *escalations.Escalation) error {
	if r == nil || r.db == nil {
		return errors.New("escalation repo: nil db")
	}
	if esc == nil {
		return errors.New("escalation repo: nil escalation")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO escalations (
	id, tenant_id, notification_id, notification_title, rule_id,
	level, max_level, escalated_from_user_id, escalated_from_name,
	escalated_to_user_id, escalated_to_name, escalated_to_role,
	reason, reason_detail, sla_deadline, sla_breach, next_escalation_at,
	interval_seconds, status, acknowledged_at, acknowledged_by, acknowledged_by_name,
	resolved_at, resolved_by, resolved_by_name, resolution_notes,
	created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8, $9,
	$10, $11, $12,
	$13, $14, $15, $16, $17,
	$18, $19, $20, $21, $22,
	$23, $24, $25, $26,
	$27, $28
)`, esc.ID, esc.TenantID, esc.NotificationID, esc.NotificationTitle, esc.RuleID,
		esc.Level, esc.MaxLevel, esc.EscalatedFromUserID, esc.EscalatedFromName,
		esc.EscalatedToUserID, esc.EscalatedToName, esc.EscalatedToRole,
		string(esc.Reason), esc.ReasonDetail, nullTime(esc.SLADeadline), esc.SLABreach, nullTime(esc.NextEscalationAt),
		int(esc.Interval/time.Second), esc.Status, nullTime(esc.AcknowledgedAt), esc.AcknowledgedBy, esc.AcknowledgedByName,
		nullTime(esc.ResolvedAt), esc.ResolvedBy, esc.ResolvedByName, esc.ResolutionNotes,
		esc.CreatedAt, esc.UpdatedAt)
	return err
}

// Get loads one escalation.
func (r *EscalationRepository) Get(ctx context.Context, tenantID, id string) (*escalations.Escalation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("escalation repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, selectEscalationColumns+`
FROM escalations
WHERE tenant_id = $1 AND id = $2
LIMIT 1`, tenantID, id)
	esc, err := scanEscalation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, escalations.ErrNotFound
		}
		return nil, err
	}
	return esc, nil
}

// List returns tenant escalations newest first, optionally filtered by
// status.
func (r *EscalationRepository) List(ctx context.Context, tenantID, status string) ([]escalations.Escalation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("escalation repo: nil db")
	}
	query := selectEscalationColumns + `
FROM escalations
WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalations(rows)
}

// ListDue returns active escalations whose next deadline has passed.
func (r *EscalationRepository) ListDue(ctx context.Context, now time.Time) ([]escalations.Escalation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("escalation repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, selectEscalationColumns+`
FROM escalations
WHERE status = 'active' AND next_escalation_at IS NOT NULL AND next_escalation_at <= $1
ORDER BY next_escalation_at ASC`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalations(rows)
}

// UpdateCAS overwrites the row only while it still matches the
// expected status and level; zero rows affected means a lost race.
func (r *EscalationRepository) UpdateCAS(ctx context.Context, esc *escalations.Escalation, expectStatus string, expectLevel int) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("escalation repo: nil db")
	}
	if esc == nil {
		return false, errors.New("escalation repo: nil escalation")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE escalations SET
	level = $3, escalated_from_user_id = $4, escalated_from_name = $5,
	escalated_to_user_id = $6, escalated_to_name = $7, escalated_to_role = $8,
	sla_breach = $9, next_escalation_at = $10, status = $11,
	acknowledged_at = $12, acknowledged_by = $13, acknowledged_by_name = $14,
	resolved_at = $15, resolved_by = $16, resolved_by_name = $17,
	resolution_notes = $18, updated_at = $19
WHERE id = $1 AND status = $2 AND level = $20`,
		esc.ID, expectStatus,
		esc.Level, esc.EscalatedFromUserID, esc.EscalatedFromName,
		esc.EscalatedToUserID, esc.EscalatedToName, esc.EscalatedToRole,
		esc.SLABreach, nullTime(esc.NextEscalationAt), esc.Status,
		nullTime(esc.AcknowledgedAt), esc.AcknowledgedBy, esc.AcknowledgedByName,
		nullTime(esc.ResolvedAt), esc.ResolvedBy, esc.ResolvedByName,
		esc.ResolutionNotes, esc.UpdatedAt, expectLevel)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

const selectEscalationColumns = `
SELECT id, tenant_id, notification_id, notification_title, rule_id,
	level, max_level, escalated_from_user_id, escalated_from_name,
	escalated_to_user_id, escalated_to_name, escalated_to_role,
	reason, reason_detail, sla_deadline, sla_breach, next_escalation_at,
	interval_seconds, status, acknowledged_at, acknowledged_by, acknowledged_by_name,
	resolved_at, resolved_by, resolved_by_name, resolution_notes,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscalation(row rowScanner) (*escalations.Escalation, error) {
	var esc escalations.Escalation
	var reason string
	var intervalSeconds int64
	var slaDeadline, nextEscalationAt, acknowledgedAt, resolvedAt sql.NullTime
	if err := row.Scan(
		&esc.ID,
		&esc.TenantID,
		&esc.NotificationID,
		&esc.NotificationTitle,
		&esc.RuleID,
		&esc.Level,
		&esc.MaxLevel,
		&esc.EscalatedFromUserID,
		&esc.EscalatedFromName,
		&esc.EscalatedToUserID,
		&esc.EscalatedToName,
		&esc.EscalatedToRole,
		&reason,
		&esc.ReasonDetail,
		&slaDeadline,
		&esc.SLABreach,
		&nextEscalationAt,
		&intervalSeconds,
		&esc.Status,
		&acknowledgedAt,
		&esc.AcknowledgedBy,
		&esc.AcknowledgedByName,
		&resolvedAt,
		&esc.ResolvedBy,
		&esc.ResolvedByName,
		&esc.ResolutionNotes,
		&esc.CreatedAt,
		&esc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	esc.Reason = escalations.Reason(reason)
	esc.Interval = time.Duration(intervalSeconds) * time.Second
	if slaDeadline.Valid {
		esc.SLADeadline = slaDeadline.Time.UTC()
	}
	if nextEscalationAt.Valid {
		esc.NextEscalationAt = nextEscalationAt.Time.UTC()
	}
	if acknowledgedAt.Valid {
		esc.AcknowledgedAt = acknowledgedAt.Time.UTC()
	}
	if resolvedAt.Valid {
		esc.ResolvedAt = resolvedAt.Time.UTC()
	}
	esc.CreatedAt = esc.CreatedAt.UTC()
	esc.UpdatedAt = esc.UpdatedAt.UTC()
	return &esc, nil
}

func scanEscalations(rows *sql.Rows) ([]escalations.Escalation, error) {
	var result []escalations.Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *esc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
