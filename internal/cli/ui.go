package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/imkarma/laneboard/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive board",
	Long:  "Opens an interactive board of the team's four lanes. Cards can be moved between lanes, reordered, created and deleted.",
	RunE:  runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	s, cfg, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	fanout, cleanup, err := newFanout(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	model := tui.New(newEngine(s), s, fanout, flagTeam, actor())
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
