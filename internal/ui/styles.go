// Package ui renders styled terminal output for the myday CLI.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/magicmac/myday/internal/schema"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	doneStyle   = mutedStyle.Strikethrough(true)
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Init picks the color profile for f. Colors are off when NO_COLOR is set or
// f is not a terminal.
func Init(f *os.File) {
	lipgloss.SetColorProfile(Profile(f))
}

// Profile returns the color profile to use for f.
func Profile(f *os.File) termenv.Profile {
	if _, ok := os.LookupEnv("NO_COLOR"); ok || !IsTerminal(f) {
		return termenv.Ascii
	}
	return termenv.NewOutput(f).EnvColorProfile()
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// RenderAccent highlights headings and markers.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass renders a success marker.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders a warning marker.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders an error marker.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted renders secondary text.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderTitle renders a section title.
func RenderTitle(s string) string { return titleStyle.Render(s) }

// RenderTask renders one numbered task line.
func RenderTask(n int, t schema.Task) string {
	box := "[ ]"
	text := t.Text
	if t.Completed {
		box = RenderPass("[x]")
		text = doneStyle.Render(text)
	}
	line := fmt.Sprintf("%3d. %s %s", n, box, text)
	if t.IsTemporary() {
		line += " " + RenderMuted("(saving)")
	}
	return line
}

// RenderQuote renders the daily quote.
func RenderQuote(q schema.Quote) string {
	return mutedStyle.Italic(true).Render(fmt.Sprintf("%q  %s", q.Text, q.Author))
}

// RenderBar renders a percentage as a fixed-width bar.
func RenderBar(label string, pct int) string {
	const width = 20
	filled := min(max(pct, 0), 100) * width / 100
	bar := passStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%-12s %s %3d%%", label, bar, pct)
}
