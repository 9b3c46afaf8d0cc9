package memory

import (
	"context"
	"sync"
	"time"

	"github.com/SergFTM/wealth-os-sub013/internal/rules/application"
)

type throttleState struct {
	lastFired time.Time
	dayKey    string
	dayCount  int
}

// ThrottleStore serializes cooldown and daily-cap reservations per
// (rule, subject) key under one mutex.
type ThrottleStore struct {
	mu    sync.Mutex
	state map[string]*throttleState
}

// NewThrottleStore constructs a throttle store.
func NewThrottleStore() *ThrottleStore {
	return &ThrottleStore{state: make(map[string]*throttleState)}
}

// Reserve implements application.ThrottleStore. The check and the
// update happen under the same lock, so two concurrent signals never
// both pass the cooldown gate.
func (t *ThrottleStore) Reserve(_ context.Context, ruleID, subjectID string, now time.Time, cooldown time.Duration, maxPerDay int) (application.ThrottleDecision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := ruleID + "|" + subjectID
	dayKey := now.UTC().Format("2006-01-02")

	entry, ok := t.state[key]
	if !ok {
		entry = &throttleState{}
		t.state[key] = entry
	}
	if entry.dayKey != dayKey {
		entry.dayKey = dayKey
		entry.dayCount = 0
	}

	if cooldown > 0 && !entry.lastFired.IsZero() && now.Sub(entry.lastFired) < cooldown {
		return application.ThrottleDecision{Reason: application.SuppressCooldown}, nil
	}
	if maxPerDay > 0 && entry.dayCount >= maxPerDay {
		return application.ThrottleDecision{Reason: application.SuppressDailyCap}, nil
	}

	entry.lastFired = now.UTC()
	entry.dayCount++
	return application.ThrottleDecision{Allowed: true}, nil
}
