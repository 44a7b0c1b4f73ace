// Package cli wires the session components into the agriassist command.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/agriassist/internal/credential"
	"github.com/nhle/agriassist/internal/model"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Execute runs the root command. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &environment{openVault: credential.Open, stderr: os.Stderr}
	err := newRootCmd(env).ExecuteContext(ctx)
	env.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(env *environment) *cobra.Command {
	root := &cobra.Command{
		Use:   "agriassist",
		Short: "AgriAssist messages and notifications in the terminal",
		Long: `agriassist keeps your AgriAssist conversations and notifications in
sync with the marketplace and lets you answer buyers and sellers from the
terminal. Run without a subcommand to open the interactive UI.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, env)
		},
	}

	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVarP(&env.opts.configPath, "config", "c", model.DefaultConfigPath(), "config file path")
	flags.StringVar(&env.opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flags.StringVar(&env.opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newLoginCmd(env),
		newLogoutCmd(env),
		newNotificationsCmd(env),
		newSendCmd(env),
		newWatchCmd(env),
		newTUICmd(env),
	)

	return root
}
