// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parx/cmd/parx/cli"
	"github.com/bureau-foundation/parx/lib/parxerr"
)

type outerDecodeParams struct {
	cli.JSONOutput
}

func outerDecodeCommand() *cli.Command {
	var params outerDecodeParams
	return &cli.Command{
		Name:    "outer-decode",
		Summary: "recover volumes from outer parity (reserved)",
		Usage:   "parx outer-decode <parity-dir>",
		Description: `Reserved for the outer Reed-Solomon layer (parity-of-parity).
This build does not implement it; the command exists so scripts can
probe for the capability and exits 69 (feature unavailable).`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("outer-decode", &params)
		},
		Run: func(args []string) error {
			err := parxerr.Errorf(parxerr.KindUnavailable,
				"outer-decode is reserved and not implemented in this build").WithOp("outer-decode")
			return fail(err, params.Enabled())
		},
	}
}
