package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSendCmd(env *environment) *cobra.Command {
	var productID string

	cmd := &cobra.Command{
		Use:   "send <receiver-id> <text>...",
		Short: "Send a chat message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := env.openSession(false)
			if err != nil {
				return err
			}
			defer s.Close()

			msg, err := s.dispatcher.Send(cmd.Context(), args[0], strings.Join(args[1:], " "), productID)
			if err != nil {
				return err
			}

			if s.cache != nil {
				if err := s.cache.UpsertMessages(cmd.Context(), s.sess.UserID, s.agg.Messages()); err != nil {
					env.log.Warn().Err(err).Msg("caching sent message")
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s.\n", msg.ID, args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&productID, "product", "", "product the message is about")
	return cmd
}
