// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parx/cmd/parx/cli"
	"github.com/bureau-foundation/parx/lib/manifest"
	"github.com/bureau-foundation/parx/lib/parxerr"
	"github.com/bureau-foundation/parx/lib/repair"
)

type repairParams struct {
	cli.JSONOutput
	Parity   string `flag:"parity" desc:"parity directory (default: alongside the manifest)"`
	Threads  int    `flag:"threads" desc:"worker pool size (0 = logical CPUs)"`
	Follow   bool   `flag:"follow-symlinks" desc:"follow symlinks that stay inside the dataset"`
	NoBackup bool   `flag:"no-backup" desc:"skip the .parx.bak sibling before replacing a file"`
}

// parityDirFor defaults the parity directory to the manifest's own
// directory.
func parityDirFor(flagValue, manifestPath string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Dir(manifestPath)
}

func repairCommand() *cli.Command {
	var params repairParams
	return &cli.Command{
		Name:    "repair",
		Summary: "reconstruct damaged or missing chunks",
		Usage:   "parx repair [flags] <manifest> <root>",
		Description: `Verifies the dataset, reconstructs every repairable stripe from
surviving shards, and atomically replaces affected files (originals
are kept as .parx.bak siblings). Unrecoverable stripes are reported
and left untouched; exits 65 when any remain.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("repair", &params)
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("repair takes <manifest> <root>, got %d args", len(args))
			}
			m, err := manifest.Load(args[0])
			if err != nil {
				return fail(err, params.Enabled())
			}

			report, err := repair.Run(context.Background(), m, args[1], repair.Options{
				ParityDir:      parityDirFor(params.Parity, args[0]),
				Threads:        params.Threads,
				FollowSymlinks: params.Follow,
				NoBackup:       params.NoBackup,
			})
			if err != nil {
				return fail(err, params.Enabled())
			}

			if done, err := params.EmitJSON(report); done {
				if err != nil {
					return err
				}
				if report.Partial {
					return cli.Exit(parxerr.ExitData)
				}
				return nil
			}

			fmt.Printf("repaired %d chunks\n", report.RepairedChunks)
			if len(report.UnrepairedStripes) > 0 {
				fmt.Printf("unrecoverable stripes: %v\n", report.UnrepairedStripes)
			}
			for _, path := range report.FailedFiles {
				warnf("write-back failed: %s", path)
			}
			if report.Partial {
				fmt.Printf("partial: %d chunks not restored\n", report.FailedChunks)
				return cli.Exit(parxerr.ExitData)
			}
			return nil
		},
	}
}
