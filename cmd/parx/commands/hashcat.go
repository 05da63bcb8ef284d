// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/parx/cmd/parx/cli"
	"github.com/bureau-foundation/parx/lib/dataset"
	"github.com/bureau-foundation/parx/lib/integrity"
	"github.com/bureau-foundation/parx/lib/parxerr"
)

type hashcatParams struct {
	cli.JSONOutput
	Follow  bool     `flag:"follow-symlinks" desc:"follow symlinks that stay inside the dataset"`
	Include []string `flag:"include" desc:"only list matching paths"`
	Exclude []string `flag:"exclude" desc:"skip matching paths"`
}

// hashcatEntry is one catalogue row.
type hashcatEntry struct {
	Path   string `json:"path"`
	Length int64  `json:"length"`
	Blake3 string `json:"blake3"`
}

func hashcatCommand() *cli.Command {
	var params hashcatParams
	return &cli.Command{
		Name:    "hashcat",
		Summary: "print a per-file BLAKE3 catalogue of a dataset",
		Usage:   "parx hashcat [flags] <root>",
		Description: `Walks the dataset and prints each file's whole-file BLAKE3 hash:
the catalogue consumed by external tooling to track dataset
revisions independently of any parity set.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("hashcat", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("hashcat takes exactly one dataset root, got %d args", len(args))
			}
			root := args[0]

			// Chunk size is irrelevant to whole-file hashing; the
			// walk just needs a positive value.
			files, err := dataset.Walk(root, 1<<20, dataset.WalkOptions{
				FollowSymlinks: params.Follow,
				Include:        params.Include,
				Exclude:        params.Exclude,
			})
			if err != nil {
				return fail(err, params.Enabled())
			}

			entries := make([]hashcatEntry, 0, len(files))
			for _, file := range files {
				h, err := hashWholeFile(root, file.Path, params.Follow)
				if err != nil {
					return fail(err, params.Enabled())
				}
				entries = append(entries, hashcatEntry{
					Path:   file.Path,
					Length: file.Length,
					Blake3: h,
				})
			}

			if done, err := params.EmitJSON(entries); done {
				return err
			}
			for _, entry := range entries {
				fmt.Printf("%s  %12d  %s\n", entry.Blake3, entry.Length, entry.Path)
			}
			return nil
		},
	}
}

func hashWholeFile(root, rel string, follow bool) (string, error) {
	absolute, err := dataset.ValidatePath(root, rel, follow)
	if err != nil {
		return "", err
	}
	f, err := os.Open(absolute)
	if err != nil {
		return "", parxerr.E(parxerr.KindInput, err).WithPath(rel)
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", parxerr.E(parxerr.KindIO, err).WithPath(rel)
	}
	var h integrity.Hash
	copy(h[:], hasher.Sum(nil))
	return integrity.Format(h), nil
}
