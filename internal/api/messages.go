package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nhle/agriassist/internal/model"
)

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
	Product  string `json:"product,omitempty"`
}

// ListMessages fetches every message the caller sent or received.
// Records without populated participants are logged and skipped.
func (c *Client) ListMessages(ctx context.Context) ([]model.Message, error) {
	var data json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/messages", nil, &data); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	msgs, skipped, err := DecodeMessages(data)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	for _, e := range skipped {
		c.log.Warn().Err(e).Msg("skipping message")
	}
	return msgs, nil
}

// SendMessage creates a message and returns the server's canonical record.
// A reply that names the receiver only by id is completed from req; the
// sender is left for the caller when the reply does not populate it.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (model.Message, error) {
	var data json.RawMessage
	if err := c.call(ctx, http.MethodPost, "/messages", req, &data); err != nil {
		return model.Message{}, fmt.Errorf("sending message to %s: %w", req.Receiver, err)
	}

	msg, err := DecodeSentMessage(data)
	if err != nil {
		return model.Message{}, fmt.Errorf("sending message to %s: %w", req.Receiver, err)
	}
	if msg.Receiver.ID == "" {
		msg.Receiver.ID = req.Receiver
	}
	return msg, nil
}
