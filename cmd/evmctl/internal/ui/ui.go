// Package ui renders evmctl output with lipgloss styles.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette
var (
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorTitle   = lipgloss.Color("#20B9B4")
	colorMuted   = lipgloss.Color("#6C7A80")
)

// Icon marks the outcome of a message.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
)

type styles struct {
	title   lipgloss.Style
	bold    lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	error   lipgloss.Style
}

// Printer writes formatted output to one writer.
type Printer struct {
	w io.Writer
	s styles
}

// New creates a Printer writing to w. With color false every style
// renders as plain text; otherwise the color profile is detected from w.
func New(w io.Writer, color bool) *Printer {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return newWithRenderer(w, r)
}

func newWithProfile(w io.Writer, profile termenv.Profile) *Printer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)
	return newWithRenderer(w, r)
}

func newWithRenderer(w io.Writer, r *lipgloss.Renderer) *Printer {
	return &Printer{
		w: w,
		s: styles{
			title:   r.NewStyle().Bold(true).Foreground(colorTitle),
			bold:    r.NewStyle().Bold(true),
			muted:   r.NewStyle().Foreground(colorMuted),
			success: r.NewStyle().Foreground(colorSuccess),
			warning: r.NewStyle().Foreground(colorWarning),
			error:   r.NewStyle().Foreground(colorError),
		},
	}
}

func (p *Printer) icon(i Icon) string {
	switch i {
	case IconSuccess:
		return p.s.success.Render(string(i))
	case IconWarning:
		return p.s.warning.Render(string(i))
	case IconError:
		return p.s.error.Render(string(i))
	default:
		return string(i)
	}
}

// Header prints a section header
func (p *Printer) Header(title string) {
	line := strings.Repeat("=", lipgloss.Width(title)+4)
	fmt.Fprintf(p.w, "\n%s\n", p.s.title.Render(line))
	fmt.Fprintf(p.w, "%s\n", p.s.title.Render("  "+title+"  "))
	fmt.Fprintf(p.w, "%s\n\n", p.s.title.Render(line))
}

// Success prints a success message
func (p *Printer) Success(message string) {
	fmt.Fprintf(p.w, "%s %s\n", p.icon(IconSuccess), message)
}

// Error prints an error message
func (p *Printer) Error(message string) {
	fmt.Fprintf(p.w, "%s %s\n", p.icon(IconError), message)
}

// Warning prints a warning message
func (p *Printer) Warning(message string) {
	fmt.Fprintf(p.w, "%s %s\n", p.icon(IconWarning), message)
}

// Info prints an informational message
func (p *Printer) Info(message string) {
	fmt.Fprintf(p.w, "  %s\n", message)
}

// Muted prints low-priority detail.
func (p *Printer) Muted(message string) {
	fmt.Fprintf(p.w, "  %s\n", p.s.muted.Render(message))
}

// Table prints a simple table
func (p *Printer) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	for i, h := range headers {
		fmt.Fprint(p.w, p.s.bold.Render(pad(h, widths[i])), "  ")
	}
	fmt.Fprintln(p.w)

	for _, w := range widths {
		fmt.Fprint(p.w, strings.Repeat("-", w), "  ")
	}
	fmt.Fprintln(p.w)

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprint(p.w, pad(cell, widths[i]), "  ")
			}
		}
		fmt.Fprintln(p.w)
	}
}

// pad right-fills s to width display cells.
func pad(s string, width int) string {
	if n := width - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}
