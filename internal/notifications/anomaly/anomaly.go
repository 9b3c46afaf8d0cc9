// Package anomaly flags batch-level inbox patterns worth human
// attention. Detection is advisory: it never mutates state.
package anomaly

import (
	"fmt"
	"time"

	notifications "github.com/SergFTM/wealth-os-sub013/internal/notifications/domain"
)

const (
	TypeHighVolume      = "high_volume"
	TypeManyEscalations = "many_escalations"
	TypeIgnoredUrgent   = "ignored_urgent"

	highVolumeThreshold = 20
	highVolumeWindow    = time.Hour
	escalationThreshold = 5
	ignoredUrgentAfter  = 4 * time.Hour
)

// Anomaly is one detected pattern with its contributing records.
type Anomaly struct {
	Type            string   `json:"type"`
	Description     string   `json:"description"`
	NotificationIDs []string `json:"notification_ids"`
}

// Detect scans a window of notifications relative to now. The input
// order is preserved in the reported ids.
func Detect(batch []notifications.Notification, now time.Time) []Anomaly {
	var out []Anomaly

	var recent []string
	for _, n := range batch {
		if now.Sub(n.CreatedAt) < highVolumeWindow {
			recent = append(recent, n.ID)
		}
	}
	if len(recent) > highVolumeThreshold {
		out = append(out, Anomaly{
			Type:            TypeHighVolume,
			Description:     fmt.Sprintf("%d notifications created within the last hour", len(recent)),
			NotificationIDs: recent,
		})
	}

	var escalated []string
	for _, n := range batch {
		if n.Escalated() {
			escalated = append(escalated, n.ID)
		}
	}
	if len(escalated) > escalationThreshold {
		out = append(out, Anomaly{
			Type:            TypeManyEscalations,
			Description:     fmt.Sprintf("%d notifications are under escalation", len(escalated)),
			NotificationIDs: escalated,
		})
	}

	var ignored []string
	for _, n := range batch {
		if n.Status != notifications.StatusUnread {
			continue
		}
		if n.Priority != notifications.PriorityHigh && n.Priority != notifications.PriorityUrgent {
			continue
		}
		if now.Sub(n.CreatedAt) >= ignoredUrgentAfter {
			ignored = append(ignored, n.ID)
		}
	}
	if len(ignored) > 0 {
		out = append(out, Anomaly{
			Type:            TypeIgnoredUrgent,
			Description:     fmt.Sprintf("%d high priority notifications unread for over 4 hours", len(ignored)),
			NotificationIDs: ignored,
		})
	}

	return out
}
