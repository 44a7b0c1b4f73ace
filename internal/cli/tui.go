package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/agriassist/internal/app"
)

func newTUICmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive terminal UI (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, env)
		},
	}
}

func runTUI(cmd *cobra.Command, env *environment) error {
	s, err := env.openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	m := app.New(app.Deps{
		Session:    *s.sess,
		Notes:      s.notes,
		Chat:       s.agg,
		Dispatcher: s.dispatcher,
		Syncer:     s.syncer,
		Log:        env.log,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}
