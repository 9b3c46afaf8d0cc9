package memory

import (
	"context"
	"sync"
	"time"

	escalations "github.com/SergFTM/wealth-os-sub013/internal/escalations/domain"
)

// EscalationRepository is an in-memory escalation store with
// compare-and-swap update semantics matching the Postgres variant.
type EscalationRepository struct {
	mu    sync.RWMutex
	data  map[string]escalations.Escalation
	order []string
}

// NewEscalationRepository constructs a repository.
func NewEscalationRepository() *EscalationRepository {
	return &EscalationRepository{data: make(map[string]escalations.Escalation)}
}

// Create persists a new escalation.
func (r *EscalationRepository) Create(_ context.Context, esc *escalations.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[esc.ID]; !exists {
		r.order = append(r.order, esc.ID)
	}
	r.data[esc.ID] = *esc
	return nil
}

// Get loads one escalation.
func (r *EscalationRepository) Get(_ context.Context, tenantID, id string) (*escalations.Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	esc, ok := r.data[id]
	if !ok || (tenantID != "" && esc.TenantID != tenantID) {
		return nil, escalations.ErrNotFound
	}
	copied := esc
	return &copied, nil
}

// List returns escalations in insertion order, optionally filtered by
// status.
func (r *EscalationRepository) List(_ context.Context, tenantID, status string) ([]escalations.Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []escalations.Escalation
	for _, id := range r.order {
		esc := r.data[id]
		if tenantID != "" && esc.TenantID != tenantID {
			continue
		}
		if status != "" && esc.Status != status {
			continue
		}
		out = append(out, esc)
	}
	return out, nil
}

// ListDue returns active escalations whose next deadline has passed.
func (r *EscalationRepository) ListDue(_ context.Context, now time.Time) ([]escalations.Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []escalations.Escalation
	for _, id := range r.order {
		esc := r.data[id]
		if esc.Due(now) {
			out = append(out, esc)
		}
	}
	return out, nil
}

// UpdateCAS writes esc only while the stored row still matches the
// expected status and level.
func (r *EscalationRepository) UpdateCAS(_ context.Context, esc *escalations.Escalation, expectStatus string, expectLevel int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.data[esc.ID]
	if !ok {
		return false, escalations.ErrNotFound
	}
	if stored.Status != expectStatus || stored.Level != expectLevel {
		return false, nil
	}
	r.data[esc.ID] = *esc
	return true, nil
}
