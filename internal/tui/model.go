package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/adhocsim/macsim/sim"
)

// Model is the inspector's state: the most recent snapshot the driver
// published, rendered as a bubbles table of per-node rows.
type Model struct {
	scenarioName string
	snapshots    <-chan sim.Snapshot

	spinner  spinner.Model
	nodes    table.Model
	ready    bool
	quitting bool

	tick         int
	width        int
	height       int
	errorMessage string
}

// New constructs an inspector model polling snapshots.
func New(scenarioName string, snapshots <-chan sim.Snapshot) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	columns := []table.Column{
		{Title: "Node", Width: 6},
		{Title: "State", Width: 20},
		{Title: "Collisions", Width: 10},
		{Title: "Routes", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(10),
	)
	t.SetStyles(tableStyles())

	return Model{
		scenarioName: scenarioName,
		snapshots:    snapshots,
		spinner:      s,
		nodes:        t,
	}
}

// Init starts the spinner and the first poll of the snapshot channel.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSnapshot(m.snapshots))
}

// snapshotMsg carries a published sim.Snapshot into Update.
type snapshotMsg sim.Snapshot

// snapshotsClosedMsg signals the driver finished and closed the
// channel (or never provided one), so the inspector should stop
// waiting on it.
type snapshotsClosedMsg struct{}

// errMsg surfaces an inspector-internal error to the view.
type errMsg error

func waitForSnapshot(snapshots <-chan sim.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-snapshots
		if !ok {
			return snapshotsClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}
