package store

import (
	"context"

	"github.com/nhle/agriassist/internal/model"
)

// Store is the local snapshot of a session's notifications and messages.
// Every row is scoped by the owning user id so several accounts can share
// one cache file. The backend stays the source of truth; the snapshot only
// warms the UI before the first history load completes.
type Store interface {
	// === Notifications ===

	ReplaceNotifications(ctx context.Context, userID string, ns []model.Notification) error
	UpsertNotification(ctx context.Context, userID string, n model.Notification) error
	MarkNotificationRead(ctx context.Context, userID, id string) error
	ClearNotifications(ctx context.Context, userID string) error
	GetNotifications(ctx context.Context, userID string) ([]model.Notification, error)

	// === Messages ===

	UpsertMessages(ctx context.Context, userID string, msgs []model.Message) error
	GetMessages(ctx context.Context, userID string) ([]model.Message, error)

	// === Housekeeping ===

	PurgeUser(ctx context.Context, userID string) error
	Close() error
}
