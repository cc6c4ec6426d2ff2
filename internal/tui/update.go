package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages and advances the model.
//
//nolint:gocritic // Model must be a value receiver to implement tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case snapshotMsg:
		m.tick = msg.Tick
		rows := make([]table.Row, 0, len(msg.Nodes))
		for _, n := range msg.Nodes {
			rows = append(rows, table.Row{
				fmt.Sprintf("%d", n.ID),
				string(n.State),
				fmt.Sprintf("%d", n.CollisionCount),
				fmt.Sprintf("%d", n.RoutingTableSize),
			})
		}
		m.nodes.SetRows(rows)
		cmds = append(cmds, waitForSnapshot(m.snapshots))

	case snapshotsClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case errMsg:
		m.errorMessage = msg.Error()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.nodes, cmd = m.nodes.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}
