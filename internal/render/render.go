// Package render draws the stage cards and the Run All control for the
// terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vedasoham/dtdp/internal/core/orchestrator"
	"github.com/vedasoham/dtdp/internal/core/reconcile"
)

var (
	muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	card   = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(22)
	button = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

func stateColor(s reconcile.State) lipgloss.Color {
	switch s {
	case reconcile.StateCompleted:
		return lipgloss.Color("#22c55e")
	case reconcile.StateQueued, reconcile.StateRunning:
		return lipgloss.Color("#3b82f6")
	case reconcile.StateFailed, reconcile.StateCancelled:
		return lipgloss.Color("#ef4444")
	case reconcile.StateNotStarted:
		return lipgloss.Color("244")
	}
	return lipgloss.Color("244")
}

// Card renders one stage.
func Card(s reconcile.StageStatus) string {
	color := stateColor(s.State)
	title := lipgloss.NewStyle().Bold(true).Foreground(color).Render(s.Stage.Label())

	lines := []string{title, string(s.State.Display())}
	switch {
	case s.State == reconcile.StateRunning:
		line := fmt.Sprintf("%d%%", s.Progress)
		if s.CurrentStep != "" {
			line += " " + s.CurrentStep
		}
		lines = append(lines, line)
	case s.State.Failed():
		lines = append(lines, lipgloss.NewStyle().Foreground(color).Render(s.State.String()))
	case s.Output != nil:
		lines = append(lines, fmt.Sprintf("%d sequences", *s.Output))
	}
	if s.JobID != "" {
		lines = append(lines, muted.Render(s.JobID))
	} else if s.Origin == reconcile.OriginHistory {
		lines = append(lines, muted.Render("previous run"))
	}
	return card.BorderForeground(color).Render(strings.Join(lines, "\n"))
}

// Control renders the Run All button.
func Control(c orchestrator.Control) string {
	style := button.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62"))
	if !c.Enabled {
		style = button.Foreground(lipgloss.Color("244"))
	}
	return style.Render(c.Label)
}

// Pipeline renders the project header, the cards side by side and the
// control.
func Pipeline(project string, stages []reconcile.StageStatus, c orchestrator.Control) string {
	cards := make([]string, len(stages))
	for i, s := range stages {
		cards[i] = Card(s)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header.Render("Project: "+project),
		lipgloss.JoinHorizontal(lipgloss.Top, cards...),
		Control(c),
	)
}
