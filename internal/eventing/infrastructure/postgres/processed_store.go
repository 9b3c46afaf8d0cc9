package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// ProcessedStore persists consumer idempotency markers.
//
// Schema:
//
//	CREATE TABLE processed_events (
//	    event_id     TEXT NOT NULL,
//	    consumer     TEXT NOT NULL,
//	    processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (event_id, consumer)
//	);
type ProcessedStore struct {
	db *sql.DB
}

// NewProcessedStore constructs a store.
func NewProcessedStore(db *sql.DB) (*ProcessedStore, error) {
	if db == nil {
		return nil, errors.New("processed store: nil db")
	}
	return &ProcessedStore{db: db}, nil
}

// HasProcessed reports whether the consumer already handled the event.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT 1 FROM processed_events
WHERE event_id = $1 AND consumer = $2
LIMIT 1`, eventID, consumerName)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkProcessed records the event as handled. Replays are harmless.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO processed_events (event_id, consumer)
VALUES ($1, $2)
ON CONFLICT (event_id, consumer) DO NOTHING`, eventID, consumerName)
	return err
}
