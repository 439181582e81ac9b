package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/canv/container"
	"github.com/justapithecus/canv/types"
)

func renderProbe(data any) string {
	report, ok := data.(*container.ProbeReport)
	if !ok {
		return "Invalid data type for probe"
	}

	var canv strings.Builder
	canv.WriteString(TitleStyle.Render("Canv"))
	canv.WriteString("\n")
	canv.WriteString(row("Path", report.Canv.Path))
	canv.WriteString(row("Version", fmt.Sprintf("%d", report.Canv.Version)))
	canv.WriteString(frameCountRow(report.Canv.FrameCount, report.Ims.FrameCount))
	canv.WriteString(row("Image Size", fmt.Sprintf("%dx%d", report.Canv.Width, report.Canv.Height)))
	canv.WriteString(renderHistory(report.Canv.History))

	var ims strings.Builder
	ims.WriteString(TitleStyle.Render("Ims"))
	ims.WriteString("\n")
	ims.WriteString(row("Path", report.Ims.Path))
	ims.WriteString(row("Version", fmt.Sprintf("%d", report.Ims.Version)))
	ims.WriteString(frameCountRow(report.Ims.FrameCount, report.Canv.FrameCount))
	size := "unreadable"
	if report.Ims.Width > 0 {
		size = fmt.Sprintf("%dx%d", report.Ims.Width, report.Ims.Height)
	}
	ims.WriteString(row("First Frame", size))
	ims.WriteString(renderHistory(report.Ims.History))

	return lipgloss.JoinHorizontal(lipgloss.Top,
		BoxStyle.Render(canv.String()),
		BoxStyle.Render(ims.String()),
	)
}

// frameCountRow highlights a count that disagrees with the companion's.
func frameCountRow(count, companion int) string {
	value := ValueStyle.Render(fmt.Sprintf("%d", count))
	if count != companion {
		value = ErrorStyle.Render(fmt.Sprintf("%d (companion has %d)", count, companion))
	}
	return fmt.Sprintf("%s %s\n", LabelStyle.Render("Frames:"), value)
}

func renderHistory(h types.History) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("History:"))
	b.WriteString("\n")
	if len(h) == 0 {
		b.WriteString("  (empty)\n")
	}
	for _, rec := range h {
		b.WriteString(fmt.Sprintf("  %s\n", TagStyle.Render(rec.Pwin)))
		for _, cmd := range rec.Cmds {
			b.WriteString(fmt.Sprintf("    • %s\n", ValueStyle.Render(cmd)))
		}
	}
	return b.String()
}
