package main

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/yigit/coursereg/internal/app/services"
	"github.com/yigit/coursereg/internal/tui"
)

// tuiCmd starts the interactive registration view
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive registration view with live updates",
	Long: `Open the interactive view. Enrollment counts and registrations refresh
whenever the backend reports a change.

Logs are discarded unless --log-file is set.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	var program *tea.Program
	c, err := openClient(io.Discard, services.WithObserver(func(snap services.Snapshot) {
		program.Send(tui.SnapshotMsg(snap))
	}))
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	model := tui.New(ctx, c.session, c.session.Snapshot())
	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Observer callbacks block in Send until the program runs.
	go func() {
		if err := c.session.Start(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Live updates unavailable, loading once")
			_ = c.session.Load(ctx)
		}
	}()

	_, err = program.Run()
	return err
}
