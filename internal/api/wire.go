package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/agriassist/internal/model"
)

// The backend is a document store: identities arrive as `_id`, relations
// are either populated objects or bare id strings depending on the query.
// Everything below validates the shape and fails closed with ErrMalformed.

type rawUser struct {
	ID    string `json:"_id"`
	AltID string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u rawUser) id() string {
	if u.ID != "" {
		return u.ID
	}
	return u.AltID
}

type rawMessage struct {
	ID        string          `json:"_id"`
	AltID     string          `json:"id"`
	Sender    json.RawMessage `json:"sender"`
	Receiver  json.RawMessage `json:"receiver"`
	Product   json.RawMessage `json:"product"`
	Text      string          `json:"text"`
	CreatedAt time.Time       `json:"createdAt"`
	IsRead    bool            `json:"isRead"`
}

type rawNotification struct {
	ID        string    `json:"_id"`
	AltID     string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type rawStockUpdate struct {
	ProductID string `json:"productId"`
	NewStock  *int   `json:"newStock"`
}

// DecodeMessage parses a RawMessage whose sender and receiver must be
// populated user objects.
func DecodeMessage(data []byte) (model.Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Message{}, fmt.Errorf("%w: message: %v", ErrMalformed, err)
	}
	return raw.toModel()
}

// DecodeMessages parses a list of RawMessages. Records that fail validation
// are skipped and reported through skipped.
func DecodeMessages(data []byte) (msgs []model.Message, skipped []error, err error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("%w: message list: %v", ErrMalformed, err)
	}

	msgs = make([]model.Message, 0, len(raws))
	for _, r := range raws {
		m, err := DecodeMessage(r)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, skipped, nil
}

// DecodeSentMessage parses the reply to a send. Only the id and creation
// time are required: the caller already knows both participants, so they
// may arrive as bare ids or be missing altogether.
func DecodeSentMessage(data []byte) (model.Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Message{}, fmt.Errorf("%w: message: %v", ErrMalformed, err)
	}
	if raw.CreatedAt.IsZero() {
		return model.Message{}, fmt.Errorf("%w: sent message without createdAt", ErrMalformed)
	}
	return raw.decode(decodeParticipantRef)
}

func (r rawMessage) toModel() (model.Message, error) {
	return r.decode(decodeParticipant)
}

func (r rawMessage) decode(participant func(json.RawMessage) (model.Participant, error)) (model.Message, error) {
	id := r.ID
	if id == "" {
		id = r.AltID
	}
	if id == "" {
		return model.Message{}, fmt.Errorf("%w: message without id", ErrMalformed)
	}

	sender, err := participant(r.Sender)
	if err != nil {
		return model.Message{}, fmt.Errorf("message %s sender: %w", id, err)
	}
	receiver, err := participant(r.Receiver)
	if err != nil {
		return model.Message{}, fmt.Errorf("message %s receiver: %w", id, err)
	}
	product, err := decodeProduct(r.Product)
	if err != nil {
		return model.Message{}, fmt.Errorf("message %s product: %w", id, err)
	}

	return model.Message{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Product:   product,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
		IsRead:    r.IsRead,
	}, nil
}

// decodeParticipant requires a populated user object; a bare id string is
// rejected because the thread needs the counterparty's profile.
func decodeParticipant(data json.RawMessage) (model.Participant, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return model.Participant{}, fmt.Errorf("%w: expected populated user object", ErrMalformed)
	}

	var u rawUser
	if err := json.Unmarshal(data, &u); err != nil {
		return model.Participant{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if u.id() == "" {
		return model.Participant{}, fmt.Errorf("%w: user without id", ErrMalformed)
	}

	return model.Participant{ID: u.id(), Name: u.Name, Email: u.Email}, nil
}

// decodeParticipantRef accepts a populated user, a bare id string or
// nothing at all. Unknown fields are left empty for the caller to fill.
func decodeParticipantRef(data json.RawMessage) (model.Participant, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return model.Participant{}, nil
	}

	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return model.Participant{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return model.Participant{ID: id}, nil
	case '{':
		return decodeParticipant(data)
	}

	return model.Participant{}, fmt.Errorf("%w: unexpected user value", ErrMalformed)
}

// decodeProduct accepts null, a bare id string, or a populated object.
func decodeProduct(data json.RawMessage) (*model.ProductRef, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if id == "" {
			return nil, nil
		}
		return &model.ProductRef{ID: id}, nil

	case '{':
		var p struct {
			ID    string `json:"_id"`
			AltID string `json:"id"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		id := p.ID
		if id == "" {
			id = p.AltID
		}
		if id == "" {
			return nil, fmt.Errorf("%w: product without id", ErrMalformed)
		}
		return &model.ProductRef{ID: id, Name: p.Name}, nil
	}

	return nil, fmt.Errorf("%w: unexpected product value", ErrMalformed)
}

// DecodeNotification parses a NotificationRecord.
func DecodeNotification(data []byte) (model.Notification, error) {
	var raw rawNotification
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Notification{}, fmt.Errorf("%w: notification: %v", ErrMalformed, err)
	}
	return raw.toModel()
}

// DecodeNotifications parses a list of NotificationRecords, skipping
// records that fail validation.
func DecodeNotifications(data []byte) (ns []model.Notification, skipped []error, err error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("%w: notification list: %v", ErrMalformed, err)
	}

	ns = make([]model.Notification, 0, len(raws))
	for _, r := range raws {
		n, err := DecodeNotification(r)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		ns = append(ns, n)
	}
	return ns, skipped, nil
}

func (r rawNotification) toModel() (model.Notification, error) {
	id := r.ID
	if id == "" {
		id = r.AltID
	}
	if id == "" {
		return model.Notification{}, fmt.Errorf("%w: notification without id", ErrMalformed)
	}

	typ := model.NotificationType(strings.ToLower(r.Type))
	if !typ.Valid() {
		typ = model.NotificationSystem
	}

	return model.Notification{
		ID:        id,
		Type:      typ,
		Title:     r.Title,
		Message:   r.Message,
		Link:      r.Link,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}, nil
}

// DecodeStockUpdate parses a `{ productId, newStock }` payload.
func DecodeStockUpdate(data []byte) (model.StockUpdate, error) {
	var raw rawStockUpdate
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.StockUpdate{}, fmt.Errorf("%w: stock update: %v", ErrMalformed, err)
	}
	if raw.ProductID == "" || raw.NewStock == nil {
		return model.StockUpdate{}, fmt.Errorf("%w: stock update missing fields", ErrMalformed)
	}
	return model.StockUpdate{ProductID: raw.ProductID, NewStock: *raw.NewStock}, nil
}
