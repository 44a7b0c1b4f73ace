package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/agriassist/internal/ui/chatview"
)

// requestTimeout bounds blocking REST calls issued from the UI.
const requestTimeout = 30 * time.Second

type sendResultMsg struct {
	err error
}

type clearResultMsg struct {
	err error
}

// sendMessage returns a command that posts the draft.
func (m Model) sendMessage(msg chatview.SendMsg) tea.Cmd {
	d := m.dispatcher
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		_, err := d.Send(ctx, msg.ReceiverID, msg.Text, msg.ProductID)
		return sendResultMsg{err: err}
	}
}

// clearNotifications returns a command that deletes every notification.
func (m Model) clearNotifications() tea.Cmd {
	notes := m.notes
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		return clearResultMsg{err: notes.ClearAll(ctx)}
	}
}
