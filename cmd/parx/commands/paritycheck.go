// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parx/cmd/parx/cli"
	"github.com/bureau-foundation/parx/lib/parxerr"
	"github.com/bureau-foundation/parx/lib/volume"
)

type quickcheckParams struct {
	cli.JSONOutput
}

// volumeCheck is one volume's quickcheck row.
type volumeCheck struct {
	Path    string `json:"path"`
	Status  string `json:"status"` // "ok" or "error"
	Entries int    `json:"entries,omitempty"`
	Error   string `json:"error,omitempty"`
}

func quickcheckCommand() *cli.Command {
	var params quickcheckParams
	return &cli.Command{
		Name:    "quickcheck",
		Summary: "validate volume headers, trailers, and index CRCs",
		Usage:   "parx quickcheck [flags] <parity-dir>",
		Description: `Opens every volume in the parity directory and validates its
header magic, trailer magic, index CRC, and entry bounds, without
reading any parity payload. Exits 65 if any volume fails.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("quickcheck", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("quickcheck takes <parity-dir>, got %d args", len(args))
			}
			checks, failed, err := checkVolumes(args[0])
			if err != nil {
				return fail(err, params.Enabled())
			}

			if done, err := params.EmitJSON(checks); done {
				if err != nil {
					return err
				}
				if failed {
					return cli.Exit(parxerr.ExitData)
				}
				return nil
			}

			for _, check := range checks {
				if check.Status == "ok" {
					fmt.Printf("%s: index OK (%d entries)\n", check.Path, check.Entries)
				} else {
					fmt.Printf("%s: index ERROR: %s\n", check.Path, check.Error)
				}
			}
			if failed {
				return cli.Exit(parxerr.ExitData)
			}
			return nil
		},
	}
}

func checkVolumes(parityDir string) ([]volumeCheck, bool, error) {
	paths, err := volume.List(parityDir)
	if err != nil {
		return nil, false, err
	}
	if len(paths) == 0 {
		return nil, false, parxerr.Errorf(parxerr.KindInput, "no volumes found").WithPath(parityDir)
	}

	var checks []volumeCheck
	failed := false
	for _, path := range paths {
		v, err := volume.Open(path)
		if err != nil {
			checks = append(checks, volumeCheck{Path: path, Status: "error", Error: err.Error()})
			failed = true
			continue
		}
		checks = append(checks, volumeCheck{Path: path, Status: "ok", Entries: len(v.Entries)})
		v.Close()
	}
	return checks, failed, nil
}

type paritycheckParams struct {
	cli.JSONOutput
	Hash bool `flag:"hash" desc:"also read and hash every parity shard"`
}

// paritySummary is the paritycheck report.
type paritySummary struct {
	Volumes        []volumeCheck   `json:"volumes"`
	StripeParity   map[int64]int   `json:"stripe_parity_counts"`
	ManifestBackup bool            `json:"manifest_backup"`
	BadShards      []string        `json:"bad_shards,omitempty"`
}

func paritycheckCommand() *cli.Command {
	var params paritycheckParams
	return &cli.Command{
		Name:    "paritycheck",
		Summary: "summarize parity presence per stripe",
		Usage:   "parx paritycheck [flags] <parity-dir>",
		Description: `Scans every readable volume and counts the parity shards available
per stripe, reporting whether a manifest backup copy is present.
With --hash, every shard is read and verified against its index
entry. Exits 65 on any broken volume or shard.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("paritycheck", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("paritycheck takes <parity-dir>, got %d args", len(args))
			}

			checks, failed, err := checkVolumes(args[0])
			if err != nil {
				return fail(err, params.Enabled())
			}

			summary := paritySummary{
				Volumes:      checks,
				StripeParity: make(map[int64]int),
			}
			paths, err := volume.List(args[0])
			if err != nil {
				return fail(err, params.Enabled())
			}
			for _, path := range paths {
				v, err := volume.Open(path)
				if err != nil {
					continue
				}
				if v.HasManifestBackup() {
					summary.ManifestBackup = true
				}
				for _, entry := range v.Entries {
					summary.StripeParity[entry.Stripe]++
					if params.Hash {
						if _, err := v.ReadParity(entry.Stripe, entry.ParityIndex); err != nil {
							summary.BadShards = append(summary.BadShards,
								fmt.Sprintf("%s stripe %d parity %d", path, entry.Stripe, entry.ParityIndex))
							failed = true
						}
					}
				}
				v.Close()
			}

			if done, err := params.EmitJSON(summary); done {
				if err != nil {
					return err
				}
				if failed {
					return cli.Exit(parxerr.ExitData)
				}
				return nil
			}

			fmt.Printf("%d volumes, %d stripes with parity\n", len(summary.Volumes), len(summary.StripeParity))
			if summary.ManifestBackup {
				fmt.Println("manifest backup: present")
			}
			for _, bad := range summary.BadShards {
				fmt.Printf("bad shard: %s\n", bad)
			}
			if failed {
				return cli.Exit(parxerr.ExitData)
			}
			return nil
		},
	}
}
