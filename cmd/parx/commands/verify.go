// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parx/cmd/parx/cli"
	"github.com/bureau-foundation/parx/lib/manifest"
	"github.com/bureau-foundation/parx/lib/parxerr"
	"github.com/bureau-foundation/parx/lib/verify"
)

type verifyParams struct {
	cli.JSONOutput
	Threads int  `flag:"threads" desc:"worker pool size (0 = logical CPUs)"`
	Follow  bool `flag:"follow-symlinks" desc:"follow symlinks that stay inside the dataset"`
}

func verifyCommand() *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "re-hash a dataset against its manifest",
		Usage:   "parx verify [flags] <manifest> <root>",
		Description: `Re-hashes every chunk and compares against the manifest. Exits 0
when the dataset is fully intact (including the Merkle root), 65
when any chunk is corrupt or missing.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("verify takes <manifest> <root>, got %d args", len(args))
			}
			m, err := manifest.Load(args[0])
			if err != nil {
				return fail(err, params.Enabled())
			}

			report, err := verify.Run(context.Background(), m, args[1], verify.Options{
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
				if !report.Clean() {
					return cli.Exit(parxerr.ExitData)
				}
				return nil
			}

			for _, fr := range report.Files {
				status := "OK"
				if fr.Corrupt > 0 || fr.Missing > 0 {
					status = fmt.Sprintf("FAIL (%d corrupt, %d missing)", fr.Corrupt, fr.Missing)
				}
				fmt.Printf("%-40s %s\n", fr.Path, status)
			}
			if report.Clean() {
				fmt.Printf("OK: %d chunks, merkle root matches\n", report.ChunksOK)
				return nil
			}
			fmt.Printf("FAIL: %d ok, %d corrupt, %d missing\n",
				report.ChunksOK, report.ChunksCorrupt, report.ChunksMissing)
			return cli.Exit(parxerr.ExitData)
		},
	}
}
