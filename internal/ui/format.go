package ui

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// RelativeTime renders t relative to now: "Just now" under a minute,
// humanized ("5 minutes ago") within a week and a date beyond.
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute && d > -time.Minute:
		return "Just now"
	case d < 7*24*time.Hour:
		return humanize.RelTime(t, now, "ago", "from now")
	case t.Year() == now.Year():
		return t.Local().Format("Jan 02")
	default:
		return t.Local().Format("Jan 02 2006")
	}
}

// Count renders a badge count, capping large values.
func Count(n int) string {
	if n > 99 {
		return "99+"
	}
	return strconv.Itoa(n)
}

// Truncate shortens s to width cells on one line, adding an ellipsis.
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
