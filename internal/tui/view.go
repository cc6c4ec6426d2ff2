package tui

import (
	"fmt"
	"strings"
)

// View renders the current model.
//
//nolint:gocritic // Model must be a value receiver to implement tea.Model
func (m Model) View() string {
	if m.quitting {
		return "stopped watching.\n"
	}
	if !m.ready {
		return fmt.Sprintf("%s starting inspector...\n", m.spinner.View())
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("macsim inspector — %s", m.scenarioName)))
	b.WriteString("\n")
	b.WriteString(tickStyle.Render(fmt.Sprintf("tick %d", m.tick)))
	b.WriteString("\n")

	b.WriteString(boxStyle.Render(m.nodes.View()))
	b.WriteString("\n")

	if m.errorMessage != "" {
		b.WriteString(errorStyle.Render("error: " + m.errorMessage))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("q: quit"))
	return b.String()
}
