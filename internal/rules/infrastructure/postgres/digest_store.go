package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/SergFTM/wealth-os-sub013/internal/rules/application"
	rules "github.com/SergFTM/wealth-os-sub013/internal/rules/domain"
)

// DigestStore buffers digest drafts in the digest_items table, one row
// per buffered draft.
type DigestStore struct {
	db *sql.DB
}

// NewDigestStore constructs a digest store.
func NewDigestStore(db *sql.DB) *DigestStore {
	return &DigestStore{db: db}
}

// Append implements application.DigestStore.
func (d *DigestStore) Append(ctx context.Context, entry application.DigestEntry) error {
	if d == nil || d.db == nil {
		return errors.New("digest store: nil db")
	}
	draft, err := json.Marshal(entry.Draft)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `
INSERT INTO digest_items (tenant_id, rule_id, window_key, frequency, draft, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.TenantID, entry.RuleID, entry.WindowKey, string(entry.Frequency), draft, entry.CreatedAt.UTC())
	return err
}

// CollectDue implements application.DigestStore: it deletes and
// returns every item whose window has closed, grouped per buffer.
func (d *DigestStore) CollectDue(ctx context.Context, now time.Time) ([]application.DigestBuffer, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("digest store: nil db")
	}
	hourKey := rules.DigestHourly.WindowKey(now)
	dayKey := rules.DigestDaily.WindowKey(now)

	rows, err := d.db.QueryContext(ctx, `
DELETE FROM digest_items
WHERE (frequency = 'hourly' AND window_key <> $1)
   OR (frequency = 'daily' AND window_key <> $2)
RETURNING tenant_id, rule_id, window_key, frequency, draft`, hourKey, dayKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type bufferKey struct {
		tenantID  string
		ruleID    string
		windowKey string
	}
	buffers := make(map[bufferKey]*application.DigestBuffer)
	var order []bufferKey
	for rows.Next() {
		var key bufferKey
		var frequency string
		var draftJSON []byte
		if err := rows.Scan(&key.tenantID, &key.ruleID, &key.windowKey, &frequency, &draftJSON); err != nil {
			return nil, err
		}
		var draft application.NotificationDraft
		if err := json.Unmarshal(draftJSON, &draft); err != nil {
			return nil, err
		}
		buf, ok := buffers[key]
		if !ok {
			buf = &application.DigestBuffer{
				TenantID:  key.tenantID,
				RuleID:    key.ruleID,
				WindowKey: key.windowKey,
				Frequency: rules.DigestFrequency(frequency),
			}
			buffers[key] = buf
			order = append(order, key)
		}
		buf.Drafts = append(buf.Drafts, draft)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result := make([]application.DigestBuffer, 0, len(order))
	for _, key := range order {
		result = append(result, *buffers[key])
	}
	return result, nil
}
