// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the parx CLI command tree. Each subcommand
// is a thin adapter: parse flags, call the engine operation, format
// the typed result as text or JSON, and translate the error kind to
// the documented exit code.
package commands

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/parx/cmd/parx/cli"
	"github.com/bureau-foundation/parx/lib/parxerr"
)

// Root returns the top-level parx command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "parx",
		Summary: "parity protection for directory trees",
		Description: `parx protects a directory tree against corruption and loss.
It writes Reed-Solomon parity volumes and a manifest; given the
parity set and any surviving portion of the dataset it detects every
corrupt chunk and reconstructs the original bytes when damage stays
within the parity budget.`,
		Subcommands: []*cli.Command{
			createCommand(),
			verifyCommand(),
			auditCommand(),
			repairCommand(),
			quickcheckCommand(),
			paritycheckCommand(),
			outerDecodeCommand(),
			splitCommand(),
			hashcatCommand(),
		},
	}
}

// fail reports an engine error: structured JSON when requested, then
// the matching exit code. The human-readable line is printed by main
// for non-JSON mode.
func fail(err error, jsonMode bool) error {
	if jsonMode {
		cli.EmitError(err, true)
		return cli.Exit(parxerr.ExitCode(err))
	}
	return err
}

// warnf prints a non-fatal notice to stderr.
func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
