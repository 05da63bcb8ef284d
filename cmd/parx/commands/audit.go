// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parx/cmd/parx/cli"
	"github.com/bureau-foundation/parx/lib/audit"
	"github.com/bureau-foundation/parx/lib/manifest"
	"github.com/bureau-foundation/parx/lib/parxerr"
)

type auditParams struct {
	cli.JSONOutput
	Parity  string `flag:"parity" desc:"parity directory (default: alongside the manifest)"`
	Threads int    `flag:"threads" desc:"worker pool size (0 = logical CPUs)"`
	Follow  bool   `flag:"follow-symlinks" desc:"follow symlinks that stay inside the dataset"`
}

func auditCommand() *cli.Command {
	var params auditParams
	return &cli.Command{
		Name:    "audit",
		Summary: "report per-stripe health and recoverability",
		Usage:   "parx audit [flags] <manifest> <root>",
		Description: `Combines the verifier's chunk map with the parity volume indexes
into per-stripe shard accounting. Exits 0 when every damaged stripe
is repairable, 65 when any stripe is beyond the parity budget.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("audit", &params)
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("audit takes <manifest> <root>, got %d args", len(args))
			}
			m, err := manifest.Load(args[0])
			if err != nil {
				return fail(err, params.Enabled())
			}
			parityDir := parityDirFor(params.Parity, args[0])

			report, _, err := audit.Run(context.Background(), m, args[1], parityDir, audit.Options{
				Threads:        params.Threads,
				FollowSymlinks: params.Follow,
			})
			if err != nil {
				return fail(err, params.Enabled())
			}

			if done, err := params.EmitJSON(report); done {
				if err != nil {
					return err
				}
				if !report.Recoverable {
					return cli.Exit(parxerr.ExitData)
				}
				return nil
			}

			for _, s := range report.Stripes {
				if s.DataBad == 0 {
					continue
				}
				state := "repairable"
				if !s.Repairable {
					state = "UNRECOVERABLE"
				}
				fmt.Printf("stripe %d: %d/%d data ok, %d/%d parity ok: %s\n",
					s.Stripe, s.DataOK, s.DataOK+s.DataBad, s.ParityOK, s.ParityOK+s.ParityMissing, state)
			}
			if len(report.Damaged) == 0 {
				fmt.Println("all stripes healthy")
				return nil
			}
			if report.Recoverable {
				fmt.Printf("%d damaged stripes, all repairable\n", len(report.Damaged))
				return nil
			}
			fmt.Printf("%d damaged stripes, %d unrecoverable\n", len(report.Damaged), len(report.Unrecoverable))
			return cli.Exit(parxerr.ExitData)
		},
	}
}
