package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/agriassist/internal/model"
)

type messageRow struct {
	ID            string    `db:"id"`
	SenderID      string    `db:"sender_id"`
	SenderName    string    `db:"sender_name"`
	SenderEmail   string    `db:"sender_email"`
	ReceiverID    string    `db:"receiver_id"`
	ReceiverName  string    `db:"receiver_name"`
	ReceiverEmail string    `db:"receiver_email"`
	ProductID     string    `db:"product_id"`
	ProductName   string    `db:"product_name"`
	Text          string    `db:"text"`
	IsRead        int       `db:"is_read"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r messageRow) toModel() model.Message {
	m := model.Message{
		ID:        r.ID,
		Sender:    model.Participant{ID: r.SenderID, Name: r.SenderName, Email: r.SenderEmail},
		Receiver:  model.Participant{ID: r.ReceiverID, Name: r.ReceiverName, Email: r.ReceiverEmail},
		Text:      r.Text,
		IsRead:    r.IsRead != 0,
		CreatedAt: r.CreatedAt,
	}
	if r.ProductID != "" {
		m.Product = &model.ProductRef{ID: r.ProductID, Name: r.ProductName}
	}
	return m
}

// UpsertMessages inserts or replaces a batch of messages.
func (s *SQLiteStore) UpsertMessages(
	ctx context.Context,
	userID string,
	msgs []model.Message,
) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO messages (
			user_id, id,
			sender_id, sender_name, sender_email,
			receiver_id, receiver_name, receiver_email,
			product_id, product_name,
			text, is_read, created_at
		) VALUES (
			?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?,
			?, ?, ?
		)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		var productName string
		if m.Product != nil {
			productName = m.Product.Name
		}

		_, err = stmt.ExecContext(ctx,
			userID, m.ID,
			m.Sender.ID, m.Sender.Name, m.Sender.Email,
			m.Receiver.ID, m.Receiver.Name, m.Receiver.Email,
			m.ProductID(), productName,
			m.Text, boolToInt(m.IsRead), m.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("upserting message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// GetMessages returns the user's cached messages, oldest first.
func (s *SQLiteStore) GetMessages(ctx context.Context, userID string) ([]model.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, sender_id, sender_name, sender_email,
			receiver_id, receiver_name, receiver_email,
			product_id, product_name, text, is_read, created_at
		FROM messages
		WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}

	out := make([]model.Message, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}
