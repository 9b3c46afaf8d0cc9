package memory

import (
	"context"
	"sync"
	"time"

	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
)

// NotificationRepository is an in-memory notification store.
type NotificationRepository struct {
	mu    sync.RWMutex
	data  map[string]notifications.Notification
	order []string
}

// NewNotificationRepository constructs a repository.
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{data: make(map[string]notifications.Notification)}
}

// Create persists a notification.
func (r *NotificationRepository) Create(_ context.Context, n *notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[n.ID]; !exists {
		r.order = append(r.order, n.ID)
	}
	r.data[n.ID] = *n
	return nil
}

// Get loads one notification.
func (r *NotificationRepository) Get(_ context.Context, tenantID, id string) (*notifications.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.data[id]
	if !ok || (tenantID != "" && n.TenantID != tenantID) {
		return nil, notifications.ErrNotFound
	}
	copied := n
	return &copied, nil
}

// Update overwrites an existing notification.
func (r *NotificationRepository) Update(_ context.Context, n *notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[n.ID]; !ok {
		return notifications.ErrNotFound
	}
	r.data[n.ID] = *n
	return nil
}

// ListByUser returns a user's notifications in insertion order,
// optionally filtered by status.
func (r *NotificationRepository) ListByUser(_ context.Context, tenantID, userID, status string) ([]notifications.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []notifications.Notification
	for _, id := range r.order {
		n := r.data[id]
		if tenantID != "" && n.TenantID != tenantID {
			continue
		}
		if userID != "" && n.UserID != userID {
			continue
		}
		if status != "" && n.Status != status {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// ListSince returns notifications created at or after the cutoff.
func (r *NotificationRepository) ListSince(_ context.Context, tenantID string, cutoff time.Time) ([]notifications.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []notifications.Notification
	for _, id := range r.order {
		n := r.data[id]
		if tenantID != "" && n.TenantID != tenantID {
			continue
		}
		if n.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// ListUnreadWithSLA returns unread notifications tied to a rule, for
// the SLA-breach scan.
func (r *NotificationRepository) ListUnreadWithSLA(_ context.Context, tenantID string) ([]notifications.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []notifications.Notification
	for _, id := range r.order {
		n := r.data[id]
		if tenantID != "" && n.TenantID != tenantID {
			continue
		}
		if n.Status != notifications.StatusUnread || n.RuleID == "" {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
