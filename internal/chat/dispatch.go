package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/agriassist/internal/api"
	"github.com/nhle/agriassist/internal/logging"
	"github.com/nhle/agriassist/internal/model"
)

var (
	// ErrEmptyMessage is returned for blank message text; no request is made.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrNoReceiver is returned when no counterparty is given.
	ErrNoReceiver = errors.New("message has no receiver")
)

// Sender is the subset of the REST client used to send messages.
type Sender interface {
	SendMessage(ctx context.Context, req api.SendMessageRequest) (model.Message, error)
}

// Dispatcher sends messages and surfaces the server's record in the
// aggregator without waiting for the push echo.
type Dispatcher struct {
	api Sender
	agg *Aggregator
	log zerolog.Logger
}

// NewDispatcher creates a Dispatcher that applies sent messages to agg.
func NewDispatcher(api Sender, agg *Aggregator, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		api: api,
		agg: agg,
		log: logging.For(log, "dispatch"),
	}
}

// Send posts text to receiverID, optionally about productID. On failure
// the error is logged and returned so callers can keep their draft.
func (d *Dispatcher) Send(ctx context.Context, receiverID, text, productID string) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, ErrEmptyMessage
	}
	if receiverID == "" {
		return model.Message{}, ErrNoReceiver
	}

	log := d.log.With().
		Str("request_id", uuid.NewString()).
		Str("receiver", receiverID).
		Logger()

	msg, err := d.api.SendMessage(ctx, api.SendMessageRequest{
		Receiver: receiverID,
		Text:     text,
		Product:  productID,
	})
	if err != nil {
		log.Error().Err(err).Msg("sending message")
		return model.Message{}, fmt.Errorf("sending message: %w", err)
	}

	d.complete(&msg, receiverID)
	d.agg.Apply(msg)
	log.Debug().Str(logging.ID, msg.ID).Msg("message sent")

	return msg, nil
}

// complete fills participants the send reply left as bare ids. The sender
// is the session user; the receiver's profile comes from its thread.
func (d *Dispatcher) complete(msg *model.Message, receiverID string) {
	if msg.Sender.ID == "" {
		msg.Sender.ID = d.agg.UserID()
	}
	if msg.Receiver.ID == "" {
		msg.Receiver.ID = receiverID
	}
	if msg.Receiver.Name == "" {
		if t, ok := d.agg.Thread(msg.Receiver.ID); ok {
			msg.Receiver = t.Counterparty
		}
	}
}
