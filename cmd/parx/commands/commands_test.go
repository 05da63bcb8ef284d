// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"testing"

	"github.com/bureau-foundation/parx/lib/parxerr"
)

func TestRootCommandSurface(t *testing.T) {
	root := Root()
	want := []string{
		"create", "verify", "audit", "repair",
		"quickcheck", "paritycheck", "outer-decode", "split", "hashcat",
	}
	if len(root.Subcommands) != len(want) {
		t.Fatalf("command count %d, want %d", len(root.Subcommands), len(want))
	}
	for i, name := range want {
		if root.Subcommands[i].Name != name {
			t.Errorf("command %d: %s, want %s", i, root.Subcommands[i].Name, name)
		}
		if root.Subcommands[i].Summary == "" {
			t.Errorf("command %s has no summary", name)
		}
	}
}

func TestOuterDecodeIsReserved(t *testing.T) {
	err := Root().Execute([]string{"outer-decode", "somewhere"})
	if parxerr.KindOf(err) != parxerr.KindUnavailable {
		t.Fatalf("outer-decode: %v", err)
	}
	if parxerr.ExitCode(err) != parxerr.ExitUnavailable {
		t.Errorf("exit code %d, want %d", parxerr.ExitCode(err), parxerr.ExitUnavailable)
	}
}

func TestArgumentCountErrors(t *testing.T) {
	cases := [][]string{
		{"create"},
		{"verify", "only-one"},
		{"repair"},
		{"quickcheck"},
		{"paritycheck", "a", "b"},
		{"hashcat"},
		{"split"},
	}
	for _, args := range cases {
		if err := Root().Execute(args); err == nil {
			t.Errorf("%v: accepted wrong argument count", args)
		}
	}
}

func TestParityDirDefaultsToManifestDir(t *testing.T) {
	if got := parityDirFor("", "/data/.parx/manifest.json"); got != "/data/.parx" {
		t.Errorf("default parity dir: %s", got)
	}
	if got := parityDirFor("/elsewhere", "/data/.parx/manifest.json"); got != "/elsewhere" {
		t.Errorf("explicit parity dir: %s", got)
	}
}
