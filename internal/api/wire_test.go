package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agriassist/internal/model"
)

func TestDecodeMessagePopulated(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{
		"_id": "m1",
		"sender": {"_id": "U2", "name": "Sita", "email": "sita@example.com"},
		"receiver": {"_id": "U1", "name": "Ram", "email": "ram@example.com"},
		"product": {"_id": "p9", "name": "Tomato seeds"},
		"text": "Hi",
		"createdAt": "2025-03-01T10:00:00Z",
		"isRead": false
	}`))
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "U2", msg.SenderID())
	assert.Equal(t, "sita@example.com", msg.Sender.Email)
	assert.Equal(t, "p9", msg.ProductID())
	assert.Equal(t, "Tomato seeds", msg.Product.Name)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), msg.CreatedAt.UTC())
}

func TestDecodeMessageProductAsID(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{
		"_id": "m1", "text": "x", "product": "p1",
		"sender": {"_id": "U2"}, "receiver": {"_id": "U1"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, &model.ProductRef{ID: "p1"}, msg.Product)
}

func TestDecodeMessageFailsClosed(t *testing.T) {
	tests := map[string]string{
		"bare sender id":   `{"_id":"m1","sender":"U2","receiver":{"_id":"U1"}}`,
		"missing receiver": `{"_id":"m1","sender":{"_id":"U2"}}`,
		"receiver no id":   `{"_id":"m1","sender":{"_id":"U2"},"receiver":{"name":"x"}}`,
		"no id":            `{"sender":{"_id":"U2"},"receiver":{"_id":"U1"}}`,
		"product number":   `{"_id":"m1","sender":{"_id":"U2"},"receiver":{"_id":"U1"},"product":7}`,
		"not json":         `[`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(body))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeSentMessageAcceptsBareParticipants(t *testing.T) {
	m, err := DecodeSentMessage([]byte(`{"_id":"m3","sender":"U1","receiver":"U2","text":"ok","createdAt":"2026-03-01T10:05:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, model.Participant{ID: "U1"}, m.Sender)
	assert.Equal(t, model.Participant{ID: "U2"}, m.Receiver)

	m, err = DecodeSentMessage([]byte(`{"_id":"m4","createdAt":"2026-03-01T10:05:00Z"}`))
	require.NoError(t, err)
	assert.Empty(t, m.Sender.ID)
	assert.Empty(t, m.Receiver.ID)
}

func TestDecodeSentMessageRequiresIDAndTime(t *testing.T) {
	tests := map[string]string{
		"no id":         `{"sender":"U1","receiver":"U2","createdAt":"2026-03-01T10:05:00Z"}`,
		"no createdAt":  `{"_id":"m3","sender":"U1","receiver":"U2"}`,
		"sender number": `{"_id":"m3","sender":7,"createdAt":"2026-03-01T10:05:00Z"}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSentMessage([]byte(body))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeMessagesSkipsBadRecords(t *testing.T) {
	msgs, skipped, err := DecodeMessages([]byte(`[
		{"_id":"m1","sender":{"_id":"U2"},"receiver":{"_id":"U1"},"text":"ok"},
		{"_id":"m2","sender":"U2","receiver":"U1","text":"bad"}
	]`))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Len(t, skipped, 1)
}

func TestDecodeNotification(t *testing.T) {
	n, err := DecodeNotification([]byte(`{
		"_id": "n1", "type": "order", "title": "Order shipped",
		"message": "Your order is on its way", "link": "/orders/1",
		"isRead": true, "createdAt": "2025-03-01T10:00:00Z"
	}`))
	require.NoError(t, err)
	assert.Equal(t, model.NotificationOrder, n.Type)
	assert.True(t, n.IsRead)
	assert.Equal(t, "/orders/1", n.Link)

	n, err = DecodeNotification([]byte(`{"_id":"n2","type":"promo"}`))
	require.NoError(t, err)
	assert.Equal(t, model.NotificationSystem, n.Type)

	_, err = DecodeNotification([]byte(`{"title":"no id"}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeStockUpdate(t *testing.T) {
	u, err := DecodeStockUpdate([]byte(`{"productId":"p1","newStock":0}`))
	require.NoError(t, err)
	assert.Equal(t, model.StockUpdate{ProductID: "p1", NewStock: 0}, u)

	_, err = DecodeStockUpdate([]byte(`{"productId":"p1"}`))
	require.ErrorIs(t, err, ErrMalformed)
}
