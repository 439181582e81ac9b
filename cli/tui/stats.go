package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/canv/lode"
)

func renderStats(data any) string {
	rec, ok := data.(*lode.RunSummaryRecord)
	if !ok {
		return "Invalid data type for stats"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Registration Run"))
	b.WriteString("\n\n")

	boxes := []string{
		renderStatBox("Written", rec.FramesWritten, highlightColor),
		renderStatBox("Registered", rec.FramesRegistered, successColor),
		renderStatBox("Failed", rec.FramesFailed, errorColor),
		renderStatBox("Unsubmitted", rec.EncodingFailures, warningColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	var details strings.Builder
	details.WriteString(row("Run ID", rec.RunID))
	details.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Status:"), StateStyle(rec.Status).Render(rec.Status)))
	if rec.Error != "" {
		details.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Error:"), ErrorStyle.Render(rec.Error)))
	}
	details.WriteString(row("Input", rec.Input))
	details.WriteString(row("Output", rec.Output))
	details.WriteString(row("Server", rec.ServerMode))
	details.WriteString(row("Duration", (time.Duration(rec.DurationMs) * time.Millisecond).String()))
	details.WriteString(row("Window", fmt.Sprintf("%d (max in flight %d)", rec.Window, rec.MaxInFlight)))
	details.WriteString(row("Timeouts", fmt.Sprintf("%d", rec.ReceiveTimeouts)))
	details.WriteString(row("Unknown", fmt.Sprintf("%d replies", rec.UnknownReplies)))
	details.WriteString(row("Completed", rec.CompletedAt))
	b.WriteString(BoxStyle.Render(details.String()))

	return b.String()
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}
