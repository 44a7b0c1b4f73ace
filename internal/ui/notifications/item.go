package notifications

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/theme"
	"github.com/nhle/agriassist/internal/ui"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for filtering.
func (i Item) FilterValue() string { return i.Notification.Title }

// ItemDelegate implements list.ItemDelegate for notifications.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 1 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws the type tag, title and age on the first line and the
// message body on the second. Unread entries carry a dot and bold title.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}

	n := it.Notification
	width := m.Width() - 4

	marker := "  "
	title := n.Title
	if !n.IsRead {
		marker = theme.UnreadBadgeStyle.Render("●") + " "
		title = lipgloss.NewStyle().Bold(true).Render(title)
	}

	tag := theme.NotificationTypeStyle(string(n.Type)).
		Render("[" + strings.ToUpper(string(n.Type)) + "]")
	when := theme.DimmedStyle.Render(ui.RelativeTime(n.CreatedAt, time.Now()))

	left := marker + tag + " " + title
	gap := width - lipgloss.Width(left) - lipgloss.Width(when)
	if gap < 1 {
		gap = 1
	}
	first := left + strings.Repeat(" ", gap) + when

	body := "  " + ui.Truncate(n.Message, width-2)
	if n.IsRead {
		body = theme.DimmedStyle.Render(body)
	}

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}

	fmt.Fprint(w, style.Render(first+"\n"+body))
}
