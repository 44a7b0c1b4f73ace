package model

import "time"

// Thread is the derived conversation between the session user and one
// counterparty. It is never persisted on its own.
type Thread struct {
	// Counterparty is the other participant's profile.
	Counterparty Participant `json:"counterparty"`

	// LastMessage and LastMessageTime summarise the newest message.
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`

	// UnreadCount counts inbound messages that are not yet read.
	UnreadCount int `json:"unread_count"`

	// Messages are ordered oldest-first by CreatedAt.
	Messages []Message `json:"messages"`

	// Product is the most recent product context mentioned in the thread.
	Product *ProductRef `json:"product,omitempty"`
}

// CounterpartyID is a shorthand for t.Counterparty.ID.
func (t Thread) CounterpartyID() string { return t.Counterparty.ID }
