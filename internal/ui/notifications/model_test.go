package notifications

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agriassist/internal/keys"
	"github.com/nhle/agriassist/internal/model"
)

func fixture() []model.Notification {
	now := time.Now()
	return []model.Notification{
		{ID: "n2", Type: model.NotificationOrder, Title: "Order shipped", CreatedAt: now},
		{ID: "n1", Type: model.NotificationMessage, Title: "New message", IsRead: true, CreatedAt: now.Add(-time.Hour)},
	}
}

func newView(t *testing.T) Model {
	t.Helper()
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetNotifications(fixture())
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMarkReadEmitsSelectedID(t *testing.T) {
	m := newView(t)

	_, cmd := m.Update(runes("m"))
	require.NotNil(t, cmd)
	assert.Equal(t, MarkReadMsg{ID: "n2"}, cmd())
}

func TestMarkAllRead(t *testing.T) {
	m := newView(t)

	_, cmd := m.Update(runes("M"))
	require.NotNil(t, cmd)
	assert.Equal(t, MarkAllReadMsg{}, cmd())
}

func TestSelectionSurvivesReload(t *testing.T) {
	m := newView(t)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	id, _ := m.Selected()
	require.Equal(t, "n1", id)

	pushed := append([]model.Notification{{ID: "n3", Title: "Stock low", Type: model.NotificationSystem}}, fixture()...)
	m.SetNotifications(pushed)

	id, _ = m.Selected()
	assert.Equal(t, "n1", id)
	assert.Equal(t, 3, m.Len())
}

func TestClearAllAsksFirst(t *testing.T) {
	m := newView(t)

	m, _ = m.Update(runes("D"))
	require.True(t, m.Confirming())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.Confirming())
}

func TestConfirmedClearEmitsClearAll(t *testing.T) {
	m := newView(t)
	m, _ = m.Update(runes("D"))
	require.True(t, m.Confirming())

	*m.clearConfirm = true
	m, cmd := m.finishConfirm()

	assert.False(t, m.Confirming())
	require.NotNil(t, cmd)
	assert.Equal(t, ClearAllMsg{}, cmd())
}

func TestDeclinedClearDoesNothing(t *testing.T) {
	m := newView(t)
	m, _ = m.Update(runes("D"))

	*m.clearConfirm = false
	m, cmd := m.finishConfirm()

	assert.False(t, m.Confirming())
	assert.Nil(t, cmd)
}

func TestEmptyListIgnoresActions(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)

	_, cmd := m.Update(runes("M"))
	assert.Nil(t, cmd)
	m, _ = m.Update(runes("D"))
	assert.False(t, m.Confirming())
	assert.Contains(t, m.View(), "all caught up")
}

func TestErrorShown(t *testing.T) {
	m := newView(t)
	m.SetError(errors.New("clearing notifications: boom"))
	assert.Contains(t, m.View(), "boom")
}
