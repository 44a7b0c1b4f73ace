package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/agriassist/internal/conn"
	"github.com/nhle/agriassist/internal/model"
	appsync "github.com/nhle/agriassist/internal/sync"
)

func TestDescribe(t *testing.T) {
	n := model.Notification{ID: "n1", Type: model.NotificationOrder, Title: "Order placed", Message: "#42"}
	m := model.Message{ID: "m1", Sender: model.Participant{ID: "u2"}, Text: "hi"}

	tests := []struct {
		name string
		in   appsync.ResultMsg
		want string
	}{
		{"notification", appsync.ResultMsg{Kind: appsync.NotificationPushed, Notification: &n}, "notification n1 [order] Order placed: #42"},
		{"message falls back to sender id", appsync.ResultMsg{Kind: appsync.MessagePushed, Message: &m}, "message m1 from u2: hi"},
		{"connection", appsync.ResultMsg{Kind: appsync.ConnectionChanged, State: conn.Connecting}, "connection connecting"},
		{"history ok", appsync.ResultMsg{Kind: appsync.HistoryLoaded, Trigger: appsync.TriggerReconnect}, "history (reconnect) loaded"},
		{"history failed", appsync.ResultMsg{Kind: appsync.HistoryLoaded, Trigger: appsync.TriggerPoll, Error: errors.New("boom")}, "history (poll) failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.in))
		})
	}
}
