package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SergFTM/wealth-os-sub013/internal/rules/application"
)

// ThrottleStore reserves firing slots in the rule_throttle table. The
// check and update run in one transaction with the row locked, so
// concurrent signals for the same (rule, subject) serialize.
type ThrottleStore struct {
	db *sql.DB
}

// NewThrottleStore constructs a throttle store.
func NewThrottleStore(db *sql.DB) *ThrottleStore {
	return &ThrottleStore{db: db}
}

// Reserve implements application.ThrottleStore. The key row is seeded
// before the locking read: a SELECT FOR UPDATE on a missing row locks
// nothing, which would let two first fires for a fresh (rule, subject)
// key both pass the cooldown check. With the seed in place every
// reserver blocks on the same row and the decision serializes.
func (t *ThrottleStore) Reserve(ctx context.Context, ruleID, subjectID string, now time.Time, cooldown time.Duration, maxPerDay int) (application.ThrottleDecision, error) {
	if t == nil || t.db == nil {
		return application.ThrottleDecision{}, errors.New("throttle store: nil db")
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return application.ThrottleDecision{}, err
	}
	defer tx.Rollback()

	dayKey := now.UTC().Format("2006-01-02")

	_, err = tx.ExecContext(ctx, `
INSERT INTO rule_throttle (rule_id, subject_id, last_fired_at, day_key, day_count)
VALUES ($1, $2, NULL, '', 0)
ON CONFLICT (rule_id, subject_id) DO NOTHING`, ruleID, subjectID)
	if err != nil {
		return application.ThrottleDecision{}, err
	}

	var lastFired sql.NullTime
	var storedDayKey string
	var dayCount int
	err = tx.QueryRowContext(ctx, `
SELECT last_fired_at, day_key, day_count
FROM rule_throttle
WHERE rule_id = $1 AND subject_id = $2
FOR UPDATE`, ruleID, subjectID).Scan(&lastFired, &storedDayKey, &dayCount)
	if err != nil {
		return application.ThrottleDecision{}, err
	}

	if storedDayKey != dayKey {
		dayCount = 0
	}
	if cooldown > 0 && lastFired.Valid && now.Sub(lastFired.Time) < cooldown {
		return application.ThrottleDecision{Reason: application.SuppressCooldown}, tx.Commit()
	}
	if maxPerDay > 0 && dayCount >= maxPerDay {
		return application.ThrottleDecision{Reason: application.SuppressDailyCap}, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
UPDATE rule_throttle
SET last_fired_at = $3,
	day_key = $4,
	day_count = CASE WHEN day_key = $4 THEN day_count + 1 ELSE 1 END
WHERE rule_id = $1 AND subject_id = $2`, ruleID, subjectID, now.UTC(), dayKey)
	if err != nil {
		return application.ThrottleDecision{}, err
	}
	if err := tx.Commit(); err != nil {
		return application.ThrottleDecision{}, fmt.Errorf("commit throttle reserve: %w", err)
	}
	return application.ThrottleDecision{Allowed: true}, nil
}
