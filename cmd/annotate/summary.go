package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"poem-annotator/internal/annotate"
)

var (
	headerColor  = lipgloss.Color("#F780FF") // Bright pink
	labelColor   = lipgloss.Color("#8BE9FD") // Cyan
	valueColor   = lipgloss.Color("#E9E9F4") // Light purple/white
	borderColor  = lipgloss.Color("#6272A4") // Muted purple
	warnColor    = lipgloss.Color("#FFB86C") // Orange
	errorColor   = lipgloss.Color("#FF5555") // Red
	successColor = lipgloss.Color("#50FA7B") // Green
)

func printSummary(w io.Writer, r annotate.Report, output string) {
	const labelWidth = 12

	headerStyle := lipgloss.NewStyle().Foreground(headerColor).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(labelColor).Width(labelWidth)
	valueStyle := lipgloss.NewStyle().Foreground(valueColor)
	borderStyle := lipgloss.NewStyle().Foreground(borderColor)

	row := func(label string, value any, style lipgloss.Style) {
		fmt.Fprintln(w, labelStyle.Render(label)+style.Render(fmt.Sprint(value)))
	}

	fmt.Fprintln(w, headerStyle.Render("Annotation summary"))
	fmt.Fprintln(w, borderStyle.Render(strings.Repeat("─", 32)))

	modeStyle := valueStyle
	if r.Mode == annotate.ModeMock {
		modeStyle = lipgloss.NewStyle().Foreground(warnColor).Bold(true)
	}
	row("Mode", r.Mode, modeStyle)
	row("Poems", r.Total, valueStyle)
	row("Generated", r.Succeeded, lipgloss.NewStyle().Foreground(successColor))
	if r.Mocked > 0 {
		row("Mocked", r.Mocked, modeStyle)
	}
	if r.Cached > 0 {
		row("Cached", r.Cached, valueStyle)
	}
	if r.Skipped > 0 {
		row("Skipped", r.Skipped, valueStyle)
	}
	if r.Degraded > 0 {
		row("Incomplete", r.Degraded, lipgloss.NewStyle().Foreground(warnColor))
	}
	if r.Failed > 0 {
		failStyle := lipgloss.NewStyle().Foreground(errorColor)
		row("Failed", r.Failed, failStyle)
		for _, f := range r.Failures {
			fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("  #%d %s: %s", f.Index+1, f.Title, f.Error)))
		}
	}
	fmt.Fprintln(w, borderStyle.Render(strings.Repeat("─", 32)))
	row("Output", output, valueStyle)
}
