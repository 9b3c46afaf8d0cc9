package memory

import (
	"context"
	"sync"
	"time"

	"github.com/SergFTM/wealth-os-sub013/internal/rules/application"
)

type digestKey struct {
	tenantID  string
	ruleID    string
	windowKey string
}

// DigestStore buffers digest drafts in memory keyed by rule and window.
type DigestStore struct {
	mu      sync.Mutex
	buffers map[digestKey]*application.DigestBuffer
	order   []digestKey
}

// NewDigestStore constructs a digest store.
func NewDigestStore() *DigestStore {
	return &DigestStore{buffers: make(map[digestKey]*application.DigestBuffer)}
}

// Append implements application.DigestStore.
func (d *DigestStore) Append(_ context.Context, entry application.DigestEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := digestKey{tenantID: entry.TenantID, ruleID: entry.RuleID, windowKey: entry.WindowKey}
	buf, ok := d.buffers[key]
	if !ok {
		buf = &application.DigestBuffer{
			TenantID:  entry.TenantID,
			RuleID:    entry.RuleID,
			WindowKey: entry.WindowKey,
			Frequency: entry.Frequency,
		}
		d.buffers[key] = buf
		d.order = append(d.order, key)
	}
	buf.Drafts = append(buf.Drafts, entry.Draft)
	return nil
}

// CollectDue implements application.DigestStore. A buffer is due once
// now falls into a later window than the one it was keyed under.
func (d *DigestStore) CollectDue(_ context.Context, now time.Time) ([]application.DigestBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var due []application.DigestBuffer
	var keep []digestKey
	for _, key := range d.order {
		buf := d.buffers[key]
		current := buf.Frequency.WindowKey(now)
		if buf.WindowKey != current {
			due = append(due, *buf)
			delete(d.buffers, key)
			continue
		}
		keep = append(keep, key)
	}
	d.order = keep
	return due, nil
}
