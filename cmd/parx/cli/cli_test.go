// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestDispatchToSubcommand(t *testing.T) {
	var ran []string
	root := &Command{
		Name: "parx",
		Subcommands: []*Command{
			{Name: "create", Run: func(args []string) error {
				ran = append(ran, "create")
				ran = append(ran, args...)
				return nil
			}},
			{Name: "verify", Run: func(args []string) error {
				ran = append(ran, "verify")
				return nil
			}},
		},
	}

	if err := root.Execute([]string{"create", "some/root"}); err != nil {
		t.Fatal(err)
	}
	if len(ran) != 2 || ran[0] != "create" || ran[1] != "some/root" {
		t.Errorf("dispatch: %v", ran)
	}
}

func TestUnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name: "parx",
		Subcommands: []*Command{
			{Name: "repair", Run: func([]string) error { return nil }},
		},
	}
	err := root.Execute([]string{"repiar"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "repair"`) {
		t.Errorf("suggestion missing: %v", err)
	}
}

func TestFlagParsing(t *testing.T) {
	type params struct {
		JSONOutput
		Threads int      `flag:"threads" desc:"worker pool size" default:"4"`
		Output  string   `flag:"output" desc:"output dir" default:".parx"`
		Deep    bool     `flag:"deep" desc:"hash shards too"`
		Include []string `flag:"include" desc:"include patterns"`
	}

	var p params
	command := &Command{
		Name:  "test",
		Flags: func() *pflag.FlagSet { return FlagsFromParams("test", &p) },
		Run:   func(args []string) error { return nil },
	}
	err := command.Execute([]string{"--threads", "8", "--deep", "--include", "*.bin", "--include", "*.dat", "--json", "positional"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Threads != 8 || !p.Deep || p.Output != ".parx" {
		t.Errorf("parsed params: %+v", p)
	}
	if len(p.Include) != 2 {
		t.Errorf("include slice: %v", p.Include)
	}
	if !p.Enabled() {
		t.Error("--json not bound through the embedded struct")
	}
}

func TestExitError(t *testing.T) {
	err := Exit(69)
	coder, ok := any(err).(interface{ ExitCode() int })
	if !ok || coder.ExitCode() != 69 {
		t.Errorf("ExitError: %v", err)
	}
}

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"repair", "repair", 0},
		{"repiar", "repair", 2},
		{"crate", "create", 1},
		{"", "abc", 3},
	}
	for _, c := range cases {
		if got := editDistance(c.a, c.b); got != c.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
