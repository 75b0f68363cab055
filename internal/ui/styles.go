// Package ui renders colored status lines for the sgc command.
package ui

import "fmt"

// ANSI256 color codes.
const (
	colorOK    = 71  // green
	colorWarn  = 179 // amber
	colorError = 167 // red
	colorPath  = 74  // blue
	colorMuted = 245 // medium gray
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

func RenderOK(s string) string    { return paint(colorOK, s) }
func RenderWarn(s string) string  { return paint(colorWarn, s) }
func RenderError(s string) string { return paint(colorError, s) }

// RenderPath returns s styled as a file, URL or sample name.
func RenderPath(s string) string { return paint(colorPath, s) }

// RenderMuted returns s in the muted (gray) color, for timings and counts.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// Status formats a one-line progress message: a colored marker, the subject
// and an optional muted detail.
func Status(ok bool, subject, detail string) string {
	mark := RenderOK("✓")
	if !ok {
		mark = RenderError("✗")
	}
	if detail == "" {
		return mark + " " + subject
	}
	return mark + " " + subject + " " + RenderMuted("("+detail+")")
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// SetColor enables or disables color output globally.
func SetColor(enabled bool) {
	noColor = !enabled
}
