// Package tui implements the read-only terminal inspector: it polls
// the driver's per-tick snapshot channel and renders node state, never
// writing back to the Medium or to any node.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/adhocsim/macsim/sim"
)

// Run starts the inspector, reading snapshots from snapshots until the
// user quits or the channel closes.
func Run(scenarioName string, snapshots <-chan sim.Snapshot) error {
	model := New(scenarioName, snapshots)
	program := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run inspector: %w", err)
	}
	return nil
}
