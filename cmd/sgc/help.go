package main

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/sgcache/internal/ui"
)

// Patterns used to colorize Cobra's default help output.
var (
	// Section headers: unindented line ending with ":" (e.g. "Data:", "Flags:").
	reGroupHeader = regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`)

	// Command names: two-space indent, then a word, then two-or-more spaces
	// before the description.
	reCommand = regexp.MustCompile(`(?m)^(  )(\S+)(  )`)

	// Flag type annotations: e.g. "--source string", "--limit int".
	reFlagType = regexp.MustCompile(`(--?\S+\s+)(string|int|duration|strings|stringArray)`)

	// Default values, e.g. (default "samples").
	reDefault = regexp.MustCompile(`\(default "[^"]*"\)`)
)

// colorizedHelpFunc returns a Cobra help function that post-processes the
// default help text with ANSI colors when the terminal supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if noColor || !ui.ShouldUseColor(os.Stdout) {
			writeHelp(cmd)
			return
		}

		orig := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		writeHelp(cmd)
		cmd.SetOut(orig)

		fmt.Fprint(orig, colorizeHelpOutput(buf.String()))
	}
}

// writeHelp prints the long (or short) description, then the usage.
func writeHelp(cmd *cobra.Command) {
	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	if desc != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", strings.TrimSpace(desc))
	}
	_ = cmd.Usage()
}

// colorizeHelpOutput applies ANSI styling to Cobra's plain-text help.
func colorizeHelpOutput(s string) string {
	s = reGroupHeader.ReplaceAllStringFunc(s, func(match string) string {
		return ui.RenderPath(strings.TrimSpace(match))
	})

	s = reCommand.ReplaceAllStringFunc(s, func(match string) string {
		parts := reCommand.FindStringSubmatch(match)
		if len(parts) == 4 {
			return parts[1] + ui.RenderOK(parts[2]) + parts[3]
		}
		return match
	})

	s = reFlagType.ReplaceAllStringFunc(s, func(match string) string {
		parts := reFlagType.FindStringSubmatch(match)
		if len(parts) == 3 {
			return parts[1] + ui.RenderMuted(parts[2])
		}
		return match
	})

	return reDefault.ReplaceAllStringFunc(s, ui.RenderMuted)
}
