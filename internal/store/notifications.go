package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/agriassist/internal/model"
)

type notificationRow struct {
	ID        string    `db:"id"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Link      string    `db:"link"`
	IsRead    int       `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) toModel() model.Notification {
	return model.Notification{
		ID:        r.ID,
		Type:      model.NotificationType(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		Link:      r.Link,
		IsRead:    r.IsRead != 0,
		CreatedAt: r.CreatedAt,
	}
}

const insertNotification = `
	INSERT OR REPLACE INTO notifications (
		user_id, id, type, title, message, link, is_read, created_at, position
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ReplaceNotifications overwrites the user's snapshot with ns, keeping the
// given order.
func (s *SQLiteStore) ReplaceNotifications(
	ctx context.Context,
	userID string,
	ns []model.Notification,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clearing notification snapshot: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, insertNotification)
	if err != nil {
		return fmt.Errorf("preparing notification insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range ns {
		_, err := stmt.ExecContext(ctx,
			userID, n.ID, string(n.Type), n.Title, n.Message, n.Link,
			boolToInt(n.IsRead), n.CreatedAt.UTC(), i,
		)
		if err != nil {
			return fmt.Errorf("inserting notification %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// UpsertNotification stores n at the top of the user's snapshot.
func (s *SQLiteStore) UpsertNotification(
	ctx context.Context,
	userID string,
	n model.Notification,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var top int
	err = tx.GetContext(ctx, &top,
		"SELECT COALESCE(MIN(position), 0) FROM notifications WHERE user_id = ? AND id != ?",
		userID, n.ID,
	)
	if err != nil {
		return fmt.Errorf("reading notification position: %w", err)
	}

	_, err = tx.ExecContext(ctx, insertNotification,
		userID, n.ID, string(n.Type), n.Title, n.Message, n.Link,
		boolToInt(n.IsRead), n.CreatedAt.UTC(), top-1,
	)
	if err != nil {
		return fmt.Errorf("upserting notification %s: %w", n.ID, err)
	}

	return tx.Commit()
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(
	ctx context.Context,
	userID, id string,
) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1 WHERE user_id = ? AND id = ?", userID, id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return nil
}

// ClearNotifications removes the user's notifications.
func (s *SQLiteStore) ClearNotifications(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}

// GetNotifications returns the user's snapshot, newest first.
func (s *SQLiteStore) GetNotifications(
	ctx context.Context,
	userID string,
) ([]model.Notification, error) {
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, type, title, message, link, is_read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY position ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	out := make([]model.Notification, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// PurgeUser drops everything cached for userID.
func (s *SQLiteStore) PurgeUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"notifications", "messages"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("purging %s: %w", table, err)
		}
	}

	return tx.Commit()
}
