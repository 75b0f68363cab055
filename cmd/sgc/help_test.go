package main

import (
	"strings"
	"testing"

	"github.com/alfredjeanlab/sgcache/internal/ui"
)

func TestColorizeHelpOutput(t *testing.T) {
	ui.SetColor(true)
	t.Cleanup(func() { ui.SetColor(false) })

	in := "Data:\n  find        Query records of a type\n\nFlags:\n  -s, --source string   read from a sample (default \"x\")\n"
	got := colorizeHelpOutput(in)

	for _, want := range []string{
		ui.RenderPath("Data:"),
		ui.RenderOK("find"),
		ui.RenderMuted("string"),
		ui.RenderMuted(`(default "x")`),
	} {
		if !strings.Contains(got, want) {
			t.Errorf("colorized help missing %q:\n%q", want, got)
		}
	}
	if plain := strings.NewReplacer("\x1b[0m", "").Replace(got); !strings.Contains(plain, "Query records of a type") {
		t.Errorf("descriptions should stay readable, got %q", got)
	}
}

func TestHelpIncludesLongDescription(t *testing.T) {
	out, err := run(t, "dataset", "build", "--help")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "String values are scrambled") || !strings.Contains(out, "--no-scrambling") {
		t.Errorf("help output:\n%s", out)
	}
}
