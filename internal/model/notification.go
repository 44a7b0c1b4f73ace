package model

import "time"

// NotificationType classifies a notification for display.
type NotificationType string

const (
	NotificationMessage NotificationType = "message"
	NotificationOrder   NotificationType = "order"
	NotificationSystem  NotificationType = "system"
	NotificationSuccess NotificationType = "success"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMessage, NotificationOrder,
		NotificationSystem, NotificationSuccess:
		return true
	}
	return false
}

// Notification represents an alert surfaced to the user, either loaded
// from history or delivered over the push channel.
type Notification struct {
	// ID is the backend identifier; unique within a notification store.
	ID string `json:"id" db:"id"`

	// Type classifies the notification.
	Type NotificationType `json:"type" db:"type"`

	// Title and Message are the human-readable content.
	Title   string `json:"title" db:"title"`
	Message string `json:"message" db:"message"`

	// Link is an optional in-app route the notification points at.
	Link string `json:"link,omitempty" db:"link"`

	// IsRead indicates whether the user has seen this notification.
	IsRead bool `json:"is_read" db:"is_read"`

	// CreatedAt is when the backend generated the notification.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
