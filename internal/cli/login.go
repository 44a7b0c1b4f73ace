package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/agriassist/internal/api"
	"github.com/nhle/agriassist/internal/ui/loginform"
)

func newLoginCmd(env *environment) *cobra.Command {
	var creds api.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session in the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Email == "" || creds.Password == "" {
				entered, err := loginform.Prompt(creds.Email)
				if err != nil {
					return err
				}
				creds = entered
			}
			return login(cmd.Context(), cmd, env, creds)
		},
	}

	cmd.Flags().StringVarP(&creds.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "account password (prompted when empty)")

	return cmd
}

func login(ctx context.Context, cmd *cobra.Command, env *environment, creds api.Credentials) error {
	sess, err := env.client("").Login(ctx, creds)
	if err != nil {
		return err
	}

	vault, err := env.openVault()
	if err != nil {
		return err
	}
	if err := vault.SaveSession(sess); err != nil {
		return err
	}

	env.log.Info().Str("user_id", sess.UserID).Str("role", string(sess.Role)).Msg("logged in")

	name := sess.Name
	if name == "" {
		name = sess.Email
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", name, sess.Role)
	return nil
}

func newLogoutCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session and its cached data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, sess, err := env.loadSession()
			if errors.Is(err, ErrNotLoggedIn) {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
				return nil
			}
			if err != nil {
				return err
			}

			if err := vault.DeleteSession(); err != nil {
				return err
			}

			if c := env.openCache(); c != nil {
				if err := c.PurgeUser(cmd.Context(), sess.UserID); err != nil {
					env.log.Warn().Err(err).Msg("purging cached data")
				}
				c.Close()
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
