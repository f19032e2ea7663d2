// Package cliui provides reusable terminal styling for reel commands: marks,
// labels, durations and glamour markdown rendering.
package cliui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// DefaultWrap is the markdown word-wrap width used when none is given.
const DefaultWrap = 80

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	CurrentMark = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Render("●")

	StepStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	DimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	KeyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	NameStyle      = lipgloss.NewStyle().Bold(true)
	ValueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	WarnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	ErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	UserLabel      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	ReasoningStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
)

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders markdown for terminal display, wrapped at width
// columns (DefaultWrap when width is not positive). On failure the input is
// returned unchanged alongside the error.
func RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		width = DefaultWrap
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}
