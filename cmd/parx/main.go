// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/parx/cmd/parx/commands"
	"github.com/bureau-foundation/parx/lib/parxerr"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (verify reporting
		// FAIL, quickcheck reporting a broken volume) return an
		// ExitError with the desired code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		// Engine errors carry a kind with a documented exit code.
		// Anything unclassified at this point came from argument
		// parsing or dispatch: a usage error.
		var classified *parxerr.Error
		if errors.As(err, &classified) {
			os.Exit(parxerr.ExitCode(err))
		}
		os.Exit(parxerr.ExitUsage)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
