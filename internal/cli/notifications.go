package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/agriassist/internal/theme"
	"github.com/nhle/agriassist/internal/ui"
)

func newNotificationsCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif", "n"},
		Short:   "List and manage notifications",
	}

	cmd.AddCommand(
		newNotificationsListCmd(env),
		newNotificationsReadCmd(env),
		newNotificationsClearCmd(env),
	)
	return cmd
}

func newNotificationsListCmd(env *environment) *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := env.openSession(false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.notes.LoadHistory(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			list := s.notes.List()
			if len(list) == 0 {
				fmt.Fprintln(out, "No notifications.")
				return nil
			}

			now := time.Now()
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
				Headers("", "ID", "TYPE", "TITLE", "MESSAGE", "WHEN")
			for _, n := range list {
				if unreadOnly && n.IsRead {
					continue
				}
				mark := " "
				if !n.IsRead {
					mark = "●"
				}
				t.Row(
					mark,
					n.ID,
					strings.ToUpper(string(n.Type)),
					n.Title,
					ui.Truncate(n.Message, 48),
					ui.RelativeTime(n.CreatedAt, now),
				)
			}

			fmt.Fprintln(out, t.String())
			fmt.Fprintf(out, "%d unread of %d\n", s.notes.UnreadCount(), len(list))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&unreadOnly, "unread", "u", false, "only unread notifications")
	return cmd
}

func newNotificationsReadCmd(env *environment) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "read [id]",
		Short: "Mark a notification, or all of them, as read",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := env.openSession(false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.notes.LoadHistory(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if all {
				n := s.notes.MarkAllRead(cmd.Context())
				fmt.Fprintf(out, "Marked %d notification(s) as read.\n", n)
				return nil
			}

			id := args[0]
			if _, ok := s.notes.Get(id); !ok {
				return fmt.Errorf("notification %s not found", id)
			}
			if s.notes.MarkRead(cmd.Context(), id) {
				fmt.Fprintf(out, "Marked %s as read.\n", id)
			} else {
				fmt.Fprintf(out, "%s was already read.\n", id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "mark every notification as read")
	return cmd
}

func newNotificationsClearCmd(env *environment) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				err := huh.NewConfirm().
					Title("Clear all notifications?").
					Description("They are deleted on the server as well.").
					Affirmative("Yes, clear").
					Negative("Cancel").
					Value(&yes).
					Run()
				if err != nil {
					return fmt.Errorf("confirming clear: %w", err)
				}
				if !yes {
					return nil
				}
			}

			s, err := env.openSession(false)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.notes.ClearAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Notifications cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
