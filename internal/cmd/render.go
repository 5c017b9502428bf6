package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/overseerhq/overseer/internal/state"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	stageStyle = lipgloss.NewStyle().
			Bold(true).
			PaddingLeft(1)

	leafStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	statusColors = map[state.Status]lipgloss.Color{
		state.StatusPending:    lipgloss.Color("245"),
		state.StatusInProgress: lipgloss.Color("220"),
		state.StatusCompleted:  lipgloss.Color("42"),
		state.StatusFailed:     lipgloss.Color("196"),
	}
)

// statusDot renders the colored marker for a status.
func statusDot(s state.Status) string {
	color, ok := statusColors[s]
	if !ok {
		color = lipgloss.Color("245")
	}
	return lipgloss.NewStyle().Foreground(color).Render("●")
}

// renderState renders the workflow tree: run header, each stage with its
// phases or sessions, and the registered artifacts.
func renderState(ws *state.WorkflowState) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("Run %s", ws.SessionID)))
	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render(fmt.Sprintf("template %s · current stage %d · updated %s",
		ws.Version, ws.CurrentStage, ws.UpdatedAt.Format("2006-01-02 15:04:05"))))
	sb.WriteString("\n\n")

	stageIDs := make([]int, 0, len(ws.Stages))
	for id := range ws.Stages {
		stageIDs = append(stageIDs, id)
	}
	sort.Ints(stageIDs)

	for _, id := range stageIDs {
		stage := ws.Stages[id]
		marker := " "
		if id == ws.CurrentStage {
			marker = "▶"
		}
		sb.WriteString(stageStyle.Render(fmt.Sprintf("%s %s Stage %d: %s (%s)",
			marker, statusDot(stage.Status), id, stage.Name, stage.Status)))
		sb.WriteString("\n")

		switch {
		case len(stage.Phases) > 0:
			for _, name := range state.PlanningPhases {
				phase := stage.Phases[name]
				if phase == nil {
					continue
				}
				line := fmt.Sprintf("%s %s (%s)", statusDot(phase.Status), name, phase.Status)
				if phase.Attempts > 1 {
					line += dimStyle.Render(fmt.Sprintf(" attempts=%d", phase.Attempts))
				}
				if phase.Note != "" {
					line += dimStyle.Render(" " + phase.Note)
				}
				sb.WriteString(leafStyle.Render(line))
				sb.WriteString("\n")
			}
		case len(stage.Sessions) > 0:
			ids := make([]string, 0, len(stage.Sessions))
			for sid := range stage.Sessions {
				ids = append(ids, sid)
			}
			sort.Strings(ids)
			for _, sid := range ids {
				session := stage.Sessions[sid]
				line := fmt.Sprintf("%s %s (%s)", statusDot(session.Status), sid, session.Status)
				if session.FeaturesCompleted > 0 {
					line += dimStyle.Render(fmt.Sprintf(" features=%d", session.FeaturesCompleted))
				}
				sb.WriteString(leafStyle.Render(line))
				sb.WriteString("\n")
			}
		}
	}

	if len(ws.Artifacts) > 0 {
		sb.WriteString("\n")
		sb.WriteString(stageStyle.Render("Artifacts"))
		sb.WriteString("\n")
		names := make([]string, 0, len(ws.Artifacts))
		for name := range ws.Artifacts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sb.WriteString(leafStyle.Render(fmt.Sprintf("%s → %s", name, ws.Artifacts[name])))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
