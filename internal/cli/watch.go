package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/agriassist/internal/logging"
	appsync "github.com/nhle/agriassist/internal/sync"
)

func newWatchCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream pushed notifications and messages as log lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := env.openSession(true)
			if err != nil {
				return err
			}
			defer s.Close()

			log := logging.For(env.log, "watch")
			out := cmd.OutOrStdout()

			s.syncer.Start()

			for {
				select {
				case <-cmd.Context().Done():
					return nil

				case r := <-s.syncer.Results():
					fmt.Fprintln(out, describe(r))
					if r.AuthError {
						return fmt.Errorf("session rejected: %w", ErrNotLoggedIn)
					}

				case u := <-s.syncer.StockUpdates():
					log.Info().Str("product", u.ProductID).Int("stock", u.NewStock).Msg("stock updated")
				}
			}
		},
	}
}

// describe renders a sync result as one line.
func describe(r appsync.ResultMsg) string {
	switch r.Kind {
	case appsync.NotificationPushed:
		if n := r.Notification; n != nil {
			return fmt.Sprintf("notification %s [%s] %s: %s", n.ID, n.Type, n.Title, n.Message)
		}
	case appsync.MessagePushed:
		if m := r.Message; m != nil {
			from := m.Sender.Name
			if from == "" {
				from = m.SenderID()
			}
			return fmt.Sprintf("message %s from %s: %s", m.ID, from, m.Text)
		}
	case appsync.ConnectionChanged:
		return "connection " + r.State.String()
	case appsync.HistoryLoaded:
		if r.Error != nil {
			return fmt.Sprintf("history (%s) failed: %v", r.Trigger, r.Error)
		}
		return fmt.Sprintf("history (%s) loaded", r.Trigger)
	}
	return r.Kind.String()
}
