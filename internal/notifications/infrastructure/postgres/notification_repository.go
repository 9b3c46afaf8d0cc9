package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
)

// NotificationRepository is a Postgres repository for notifications.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository constructs a repository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *notifications.Notification) error {
	if r == nil || r.db == nil {
		return errors.New("notification repo: nil db")
	}
	if n == nil {
		return errors.New("notification repo: nil notification")
	}
	tags, err := json.Marshal(n.AITags)
	if err != nil {
		return err
	}
	records, err := json.Marshal(n.DeliveryRecords)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO notifications (
	id, tenant_id, user_id, title, body, category, priority, status,
	source_type, source_id, source_name, rule_id, escalation_id,
	ai_score, ai_tags, delivery_records, created_at, read_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19
)`, n.ID, n.TenantID, n.UserID, n.Title, n.Body, n.Category, string(n.Priority), n.Status,
		n.SourceType, n.SourceID, n.SourceName, n.RuleID, n.EscalationID,
		n.AIScore, tags, records, n.CreatedAt, nullTime(n.ReadAt), n.UpdatedAt)
	return err
}

// Get loads one notification.
func (r *NotificationRepository) Get(ctx context.Context, tenantID, id string) (*notifications.Notification, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("notification repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, selectNotificationColumns+`
FROM notifications
WHERE tenant_id = $1 AND id = $2
LIMIT 1`, tenantID, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notifications.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

// Update overwrites the mutable notification columns.
func (r *NotificationRepository) Update(ctx context.Context, n *notifications.Notification) error {
	if r == nil || r.db == nil {
		return errors.New("notification repo: nil db")
	}
	if n == nil {
		return errors.New("notification repo: nil notification")
	}
	tags, err := json.Marshal(n.AITags)
	if err != nil {
		return err
	}
	records, err := json.Marshal(n.DeliveryRecords)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE notifications SET
	status = $3, escalation_id = $4, ai_score = $5, ai_tags = $6,
	delivery_records = $7, read_at = $8, updated_at = $9
WHERE tenant_id = $1 AND id = $2`,
		n.TenantID, n.ID, n.Status, n.EscalationID, n.AIScore, tags,
		records, nullTime(n.ReadAt), n.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notifications.ErrNotFound
	}
	return nil
}

// ListByUser returns a user's notifications newest first, optionally
// filtered by status.
func (r *NotificationRepository) ListByUser(ctx context.Context, tenantID, userID, status string) ([]notifications.Notification, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("notification repo: nil db")
	}
	query := selectNotificationColumns + `
FROM notifications
WHERE tenant_id = $1 AND user_id = $2`
	args := []any{tenantID, userID}
	if status != "" {
		query += " AND status = $3"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"
	return r.queryList(ctx, query, args...)
}

// ListSince returns tenant notifications created at or after the cutoff.
func (r *NotificationRepository) ListSince(ctx context.Context, tenantID string, cutoff time.Time) ([]notifications.Notification, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("notification repo: nil db")
	}
	return r.queryList(ctx, selectNotificationColumns+`
FROM notifications
WHERE tenant_id = $1 AND created_at >= $2
ORDER BY created_at ASC`, tenantID, cutoff.UTC())
}

// ListUnreadWithSLA returns unread rule-created notifications for the
// SLA-breach scan.
func (r *NotificationRepository) ListUnreadWithSLA(ctx context.Context, tenantID string) ([]notifications.Notification, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("notification repo: nil db")
	}
	return r.queryList(ctx, selectNotificationColumns+`
FROM notifications
WHERE tenant_id = $1 AND status = 'unread' AND rule_id <> ''
ORDER BY created_at ASC`, tenantID)
}

func (r *NotificationRepository) queryList(ctx context.Context, query string, args ...any) ([]notifications.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notifications.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const selectNotificationColumns = `
SELECT id, tenant_id, user_id, title, body, category, priority, status,
	source_type, source_id, source_name, rule_id, escalation_id,
	ai_score, ai_tags, delivery_records, created_at, read_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*notifications.Notification, error) {
	var n notifications.Notification
	var priority string
	var aiScore sql.NullInt64
	var tags, records []byte
	var readAt sql.NullTime
	if err := row.Scan(
		&n.ID,
		&n.TenantID,
		&n.UserID,
		&n.Title,
		&n.Body,
		&n.Category,
		&priority,
		&n.Status,
		&n.SourceType,
		&n.SourceID,
		&n.SourceName,
		&n.RuleID,
		&n.EscalationID,
		&aiScore,
		&tags,
		&records,
		&n.CreatedAt,
		&readAt,
		&n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	n.Priority = notifications.Priority(priority)
	if aiScore.Valid {
		score := int(aiScore.Int64)
		n.AIScore = &score
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &n.AITags); err != nil {
			return nil, err
		}
	}
	if len(records) > 0 {
		if err := json.Unmarshal(records, &n.DeliveryRecords); err != nil {
			return nil, err
		}
	}
	if readAt.Valid {
		n.ReadAt = readAt.Time.UTC()
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return &n, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
