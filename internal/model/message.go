package model

import "time"

// Participant is the populated user profile embedded on each side of
// a message.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ProductRef is the optional product a message is about.
type ProductRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Message is a single chat message. Messages are immutable once created;
// ID is the identity used to reconcile local and pushed copies.
type Message struct {
	ID        string      `json:"id"`
	Sender    Participant `json:"sender"`
	Receiver  Participant `json:"receiver"`
	Product   *ProductRef `json:"product,omitempty"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"created_at"`
	IsRead    bool        `json:"is_read"`
}

// SenderID returns the id of the sending user.
func (m Message) SenderID() string { return m.Sender.ID }

// ReceiverID returns the id of the receiving user.
func (m Message) ReceiverID() string { return m.Receiver.ID }

// ProductID returns the id of the product context, or "" when the
// message is not about a product.
func (m Message) ProductID() string {
	if m.Product == nil {
		return ""
	}
	return m.Product.ID
}

// Involves reports whether userID is the sender or the receiver.
func (m Message) Involves(userID string) bool {
	return m.Sender.ID == userID || m.Receiver.ID == userID
}

// Counterparty returns the participant on the other side of the message
// relative to userID. The boolean is false when userID is not involved.
func (m Message) Counterparty(userID string) (Participant, bool) {
	switch userID {
	case m.Sender.ID:
		return m.Receiver, true
	case m.Receiver.ID:
		return m.Sender, true
	}
	return Participant{}, false
}
