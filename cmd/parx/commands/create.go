// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parx/cmd/parx/cli"
	"github.com/bureau-foundation/parx/lib/config"
	"github.com/bureau-foundation/parx/lib/encode"
)

type createParams struct {
	cli.JSONOutput
	Output      string   `flag:"output" desc:"parity output directory" default:".parx"`
	Parity      int      `flag:"parity" desc:"parity percentage per stripe" default:"35"`
	StripeK     int      `flag:"stripe-k" desc:"data chunks per stripe" default:"64"`
	ChunkSize   string   `flag:"chunk-size" desc:"chunk size (bytes, accepts 64K/1MiB forms)" default:"1MiB"`
	Volumes     int      `flag:"volumes" desc:"parity volume count" default:"1"`
	VolumeSizes []string `flag:"volume-sizes" desc:"per-volume payload size targets (e.g. 32M,32M,1G)"`
	Interleave  bool     `flag:"interleave-files" desc:"spread each stripe across files"`
	Follow      bool     `flag:"follow-symlinks" desc:"follow symlinks that stay inside the dataset"`
	Threads     int      `flag:"threads" desc:"worker pool size (0 = logical CPUs)"`
	Include     []string `flag:"include" desc:"only protect matching paths"`
	Exclude     []string `flag:"exclude" desc:"skip matching paths"`
}

func createCommand() *cli.Command {
	var params createParams
	var flags *pflag.FlagSet
	return &cli.Command{
		Name:    "create",
		Summary: "create a parity set for a dataset",
		Usage:   "parx create [flags] <root>",
		Description: `Walks the dataset under <root>, computes per-chunk BLAKE3 hashes
and Reed-Solomon parity, and writes the parity volumes plus
manifest.json into the output directory. Defaults may be supplied by
a parx.yml in the dataset root; flags win.`,
		Flags: func() *pflag.FlagSet {
			flags = cli.FlagsFromParams("create", &params)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("create takes exactly one dataset root, got %d args", len(args))
			}
			root := args[0]

			// Layering: built-in defaults, then parx.yml from the
			// dataset root, then only the flags the user actually
			// set.
			cfg := config.Default()
			if err := config.LoadDefaults(root, &cfg); err != nil {
				return fail(err, params.Enabled())
			}
			if flags.Changed("chunk-size") {
				chunkSize, err := config.ParseSize(params.ChunkSize)
				if err != nil {
					return fail(err, params.Enabled())
				}
				cfg.ChunkSize = int(chunkSize)
			}
			if flags.Changed("stripe-k") {
				cfg.StripeK = params.StripeK
			}
			if flags.Changed("parity") {
				cfg.ParityPct = params.Parity
			}
			if flags.Changed("volumes") {
				cfg.Volumes = params.Volumes
			}
			if flags.Changed("threads") {
				cfg.Threads = params.Threads
			}
			cfg.Interleave = cfg.Interleave || params.Interleave
			cfg.FollowSymlinks = cfg.FollowSymlinks || params.Follow
			if len(params.VolumeSizes) > 0 {
				cfg.VolumeSizeSpecs = params.VolumeSizes
			}
			if len(params.Include) > 0 {
				cfg.Include = params.Include
			}
			if len(params.Exclude) > 0 {
				cfg.Exclude = params.Exclude
			}

			result, err := encode.Create(context.Background(), root, params.Output, cfg)
			if err != nil {
				return fail(err, params.Enabled())
			}

			if done, err := params.EmitJSON(map[string]any{
				"manifest":      result.ManifestPath,
				"volumes":       result.VolumePaths,
				"total_chunks":  result.Manifest.TotalChunks,
				"parity_chunks": result.ParityChunks,
				"parity_bytes":  result.ParityBytes,
				"merkle_root":   result.Manifest.MerkleRoot,
			}); done {
				return err
			}

			fmt.Printf("protected %d chunks across %d files\n",
				result.Manifest.TotalChunks, len(result.Manifest.Files))
			fmt.Printf("parity: %d chunks (%d bytes) in %d volumes under %s\n",
				result.ParityChunks, result.ParityBytes, len(result.VolumePaths), params.Output)
			fmt.Printf("merkle root: %s\n", result.Manifest.MerkleRoot)
			return nil
		},
	}
}
