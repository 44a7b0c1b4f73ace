package chatview

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agriassist/internal/keys"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/theme"
	"github.com/nhle/agriassist/internal/ui"
)

// SendMsg asks the parent to send the current draft.
type SendMsg struct {
	ReceiverID string
	Text       string
	ProductID  string
}

// BackMsg signals the parent to return to the conversation list.
type BackMsg struct{}

// Model is the chat view for one conversation: a scrollable transcript
// and an input line. The draft survives failed sends.
type Model struct {
	userID   string
	keys     *keys.KeyMap
	viewport viewport.Model
	input    textinput.Model
	thread   model.Thread
	sending  bool
	err      error
	width    int
	height   int
}

// New creates a chat view for the session user.
func New(userID string, k *keys.KeyMap, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "Write a message..."
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Width = width - 8
	ti.Focus()

	vp := viewport.New(width-4, viewportHeight(height))

	return Model{
		userID:   userID,
		keys:     k,
		viewport: vp,
		input:    ti,
		width:    width,
		height:   height,
	}
}

func viewportHeight(height int) int {
	h := height - 7 // title, separator, input, error line, borders
	if h < 3 {
		h = 3
	}
	return h
}

// SetThread shows t. Switching to another counterparty clears any error
// and the draft.
func (m *Model) SetThread(t model.Thread) {
	if t.CounterpartyID() != m.thread.CounterpartyID() {
		m.err = nil
		m.sending = false
		m.input.Reset()
	}
	m.thread = t
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// CounterpartyID returns the counterparty of the shown thread.
func (m Model) CounterpartyID() string {
	return m.thread.CounterpartyID()
}

// SendFinished records the outcome of a send. On success the draft is
// cleared; on failure it is kept for retry.
func (m *Model) SendFinished(err error) {
	m.sending = false
	m.err = err
	if err == nil {
		m.input.Reset()
	}
}

// Draft returns the current input text.
func (m Model) Draft() string {
	return m.input.Value()
}

// Sending reports whether a send is in flight.
func (m Model) Sending() bool {
	return m.sending
}

// Err returns the last send failure.
func (m Model) Err() error {
	return m.err
}

// Focus gives keyboard focus to the input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}

// Update handles messages for the chat view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(msg, m.keys.Send):
			text := m.input.Value()
			if m.sending || strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.sending = true
			m.err = nil
			send := SendMsg{ReceiverID: m.thread.CounterpartyID(), Text: text}
			if m.thread.Product != nil {
				send.ProductID = m.thread.Product.ID
			}
			return m, func() tea.Msg { return send }

		case msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if _, isKey := msg.(tea.KeyMsg); !isKey {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) renderTranscript() string {
	if len(m.thread.Messages) == 0 {
		return theme.HelpStyle.Render("No messages yet. Say hello!")
	}

	now := time.Now()
	body := lipgloss.NewStyle().Width(m.viewport.Width - 2)

	var lines []string
	for _, msg := range m.thread.Messages {
		var label string
		if msg.SenderID() == m.userID {
			label = theme.OwnMessageStyle.Render("You")
		} else {
			name := msg.Sender.Name
			if name == "" {
				name = msg.SenderID()
			}
			label = theme.PeerMessageStyle.Render(name)
		}
		when := theme.DimmedStyle.Render(ui.RelativeTime(msg.CreatedAt, now))
		lines = append(lines, label+" "+when, body.Render(msg.Text), "")
	}
	return strings.Join(lines, "\n")
}

// View renders the chat view.
func (m Model) View() string {
	name := m.thread.Counterparty.Name
	if name == "" {
		name = m.thread.CounterpartyID()
	}
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render(name)
	if m.thread.Product != nil && m.thread.Product.Name != "" {
		title += theme.DimmedStyle.Render("  about " + m.thread.Product.Name)
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(m.width-8, 1)))

	status := ""
	switch {
	case m.sending:
		status = theme.HelpStyle.Render("sending...")
	case m.err != nil:
		status = theme.ErrorStyle.Render("Not sent: " + m.err.Error() + " (enter to retry)")
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		title,
		m.viewport.View(),
		sep,
		m.input.View(),
		status,
	)

	return theme.PanelStyle.
		Padding(0, 1).
		Width(m.width - 2).
		Render(content)
}

// SetSize updates the chat view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 8
	m.viewport.Width = width - 4
	m.viewport.Height = viewportHeight(height)
	m.viewport.SetContent(m.renderTranscript())
}
