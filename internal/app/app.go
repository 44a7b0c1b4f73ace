// Package app is the root Bubble Tea model of the terminal client.
package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/agriassist/internal/chat"
	"github.com/nhle/agriassist/internal/conn"
	"github.com/nhle/agriassist/internal/keys"
	"github.com/nhle/agriassist/internal/logging"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/notify"
	appsync "github.com/nhle/agriassist/internal/sync"
	"github.com/nhle/agriassist/internal/theme"
	"github.com/nhle/agriassist/internal/ui"
	"github.com/nhle/agriassist/internal/ui/chatview"
	helpview "github.com/nhle/agriassist/internal/ui/help"
	"github.com/nhle/agriassist/internal/ui/notifications"
	"github.com/nhle/agriassist/internal/ui/threads"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewThreads ViewState = iota
	ViewChat
	ViewNotifications
	ViewHelp
)

// Deps are the per-session components the UI drives.
type Deps struct {
	Session    model.Session
	Notes      *notify.Store
	Chat       *chat.Aggregator
	Dispatcher *chat.Dispatcher
	Syncer     *appsync.Syncer
	Log        zerolog.Logger
}

// Model is the root Bubble Tea model that manages view routing and
// layout and forwards user actions to the session components.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	session    model.Session
	notes      *notify.Store
	agg        *chat.Aggregator
	dispatcher *chat.Dispatcher
	syncer     *appsync.Syncer
	log        zerolog.Logger

	threads       threads.Model
	chat          chatview.Model
	notifications notifications.Model
	helpView      helpview.Model

	ready            bool
	connState        conn.State
	authErrorMessage string
	syncError        string
}

// New creates the root model for one session.
func New(d Deps) Model {
	k := keys.DefaultKeyMap()

	h := helpview.New(k, 80, 24)
	h.SetSession(d.Session)
	h.SetConnection(conn.Disconnected.String())

	return Model{
		currentView:   ViewThreads,
		keys:          k,
		session:       d.Session,
		notes:         d.Notes,
		agg:           d.Chat,
		dispatcher:    d.Dispatcher,
		syncer:        d.Syncer,
		log:           logging.For(d.Log, "tui"),
		threads:       threads.New(k, 80, 24),
		chat:          chatview.New(d.Session.UserID, k, 80, 24),
		notifications: notifications.New(k, 80, 24),
		helpView:      h,
	}
}

// Init starts synchronisation.
func (m Model) Init() tea.Cmd {
	return m.syncer.Start()
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.threads.SetSize(w, h)
		m.chat.SetSize(w, h)
		m.notifications.SetSize(w, h)
		m.helpView.SetSize(w, h)
		return m, nil

	case appsync.ResultMsg:
		return m.handleResult(msg)

	case threads.SelectedMsg:
		return m, m.openThread(msg.CounterpartyID)

	case chatview.BackMsg:
		m.agg.SetActive("")
		m.currentView = ViewThreads
		return m, m.refreshViews()

	case chatview.SendMsg:
		return m, m.sendMessage(msg)

	case sendResultMsg:
		m.chat.SendFinished(msg.err)
		return m, m.refreshViews()

	case notifications.MarkReadMsg:
		m.notes.MarkRead(context.Background(), msg.ID)
		return m, m.refreshViews()

	case notifications.MarkAllReadMsg:
		m.notes.MarkAllRead(context.Background())
		return m, m.refreshViews()

	case notifications.ClearAllMsg:
		return m, m.clearNotifications()

	case clearResultMsg:
		m.notifications.SetError(msg.err)
		return m, m.refreshViews()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}

		// The chat input owns the keyboard; only esc leaves it.
		if m.currentView == ViewChat || m.notifications.Confirming() {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, m.quit()

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Back) && m.currentView == ViewHelp:
			m.currentView = m.previousView
			return m, nil

		case key.Matches(msg, m.keys.Conversations):
			m.currentView = ViewThreads
			return m, nil

		case key.Matches(msg, m.keys.Notifications):
			m.currentView = ViewNotifications
			return m, nil

		case key.Matches(msg, m.keys.Refresh):
			return m, m.syncer.Refresh()
		}
	}

	return m.updateActiveView(msg)
}

// handleResult refreshes the views after synced state changed and waits
// for the next result.
func (m Model) handleResult(msg appsync.ResultMsg) (tea.Model, tea.Cmd) {
	switch msg.Kind {
	case appsync.ConnectionChanged:
		m.connState = msg.State
		m.helpView.SetConnection(msg.State.String())

	case appsync.HistoryLoaded:
		switch {
		case msg.AuthError:
			m.authErrorMessage = "Session expired, run `agriassist login` again"
			m.syncError = ""
		case msg.Error != nil:
			m.syncError = "Sync failed: " + msg.Error.Error()
		default:
			m.authErrorMessage = ""
			m.syncError = ""
		}

	case appsync.MessagePushed:
		// An inbound message in the open conversation is read on arrival.
		if m.currentView == ViewChat && msg.Message != nil {
			if cp, ok := msg.Message.Counterparty(m.session.UserID); ok && cp.ID == m.chat.CounterpartyID() {
				m.agg.MarkThreadRead(cp.ID)
			}
		}
	}

	return m, tea.Batch(m.refreshViews(), m.syncer.WaitForNextResult())
}

// openThread switches to the chat view for counterpartyID.
func (m *Model) openThread(counterpartyID string) tea.Cmd {
	m.agg.SetActive(counterpartyID)
	m.agg.MarkThreadRead(counterpartyID)
	m.currentView = ViewChat
	return tea.Batch(m.refreshViews(), m.chat.Focus())
}

// refreshViews copies the current store state into the views.
func (m *Model) refreshViews() tea.Cmd {
	cmds := []tea.Cmd{
		m.threads.SetThreads(m.agg.Threads()),
		m.notifications.SetNotifications(m.notes.List()),
	}
	if t, ok := m.agg.Active(); ok {
		m.chat.SetThread(t)
	}
	return tea.Batch(cmds...)
}

func (m *Model) quit() tea.Cmd {
	m.syncer.Stop()
	return tea.Quit
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewThreads:
		m.threads, cmd = m.threads.Update(msg)
	case ViewChat:
		m.chat, cmd = m.chat.Update(msg)
	case ViewNotifications:
		m.notifications, cmd = m.notifications.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "AgriAssist"
	if m.session.Name != "" {
		title = fmt.Sprintf("AgriAssist · %s", m.session.Name)
	}
	state := m.connState.String()
	header := m.layout.RenderHeader(title, theme.ConnectionStyle(state).Render(state))

	tabs := m.layout.RenderTabs([]ui.Tab{
		{
			Label:  "1 Conversations",
			Badge:  m.agg.TotalUnread(),
			Active: m.currentView == ViewThreads || m.currentView == ViewChat,
		},
		{
			Label:  "2 Notifications",
			Badge:  m.notes.UnreadCount(),
			Active: m.currentView == ViewNotifications,
		},
	})

	return m.layout.RenderWithFrame(header, tabs, m.renderContent(), m.layout.RenderStatusBar(m.keyHints()))
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewThreads:
		return m.threads.View()
	case ViewChat:
		return m.chat.View()
	case ViewNotifications:
		return m.notifications.View()
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.authErrorMessage != "" {
		return m.authErrorMessage
	}
	if m.syncError != "" && m.currentView != ViewChat {
		return m.syncError
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewChat:
		return "enter send | pgup/pgdn scroll | esc back"
	case ViewNotifications:
		if m.notifications.Confirming() {
			return "enter confirm | esc cancel"
		}
		return "m mark read | M mark all | D clear all | 1 conversations | q quit"
	default:
		return "enter open | r reload | 2 notifications | ? help | q quit"
	}
}
