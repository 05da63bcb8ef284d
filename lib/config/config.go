// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the encode settings and their validation.
//
// Settings come from three layers, strongest last: built-in
// defaults, an optional parx.yml in the dataset root, and explicit
// CLI flags. Byte sizes accept human-readable strings ("64K",
// "32MiB", "1G") wherever a count of bytes is expected.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/parx/lib/parxerr"
	"github.com/bureau-foundation/parx/lib/rscodec"
)

// Defaults.
const (
	// DefaultChunkSize is 1 MiB, matching the trade-off between
	// repair granularity and per-chunk overhead for typical
	// datasets.
	DefaultChunkSize = 1 << 20

	// DefaultStripeK is the default data shard count per stripe.
	DefaultStripeK = 64

	// DefaultParityPct is the default parity percentage.
	DefaultParityPct = 35

	// DefaultVolumes is the default volume count when no sizes are
	// given.
	DefaultVolumes = 1

	// FileName is the optional defaults file looked up in the
	// dataset root.
	FileName = "parx.yml"

	// MaxParityPct bounds the parity percentage. Parity outgrowing
	// data usually signals a mistyped flag.
	MaxParityPct = 120
)

// Encode is the validated configuration for parity creation.
type Encode struct {
	// ChunkSize is the protection unit in bytes.
	ChunkSize int `yaml:"chunk_size"`

	// StripeK is the data shard count per stripe.
	StripeK int `yaml:"stripe_k"`

	// ParityPct sets M = ceil(StripeK * ParityPct / 100).
	ParityPct int `yaml:"parity"`

	// Volumes is the volume count. Ignored when VolumeSizeSpecs is
	// set (the size list determines the count).
	Volumes int `yaml:"volumes"`

	// VolumeSizes are per-volume payload size targets in bytes,
	// resolved from VolumeSizeSpecs by Validate. Targets are upper
	// bounds; the last volume absorbs overflow.
	VolumeSizes []int64 `yaml:"-"`

	// VolumeSizeSpecs is the yaml/flag form of VolumeSizes
	// ("32M", "32M", "1G").
	VolumeSizeSpecs []string `yaml:"volume_sizes"`

	// Interleave draws stripes round-robin across files.
	Interleave bool `yaml:"interleave"`

	// FollowSymlinks admits symlinks whose targets stay inside the
	// dataset root.
	FollowSymlinks bool `yaml:"follow_symlinks"`

	// Threads bounds the worker pool; zero means the CPU count.
	Threads int `yaml:"threads"`

	// Include and Exclude filter the dataset walk.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Default returns the built-in configuration.
func Default() Encode {
	return Encode{
		ChunkSize: DefaultChunkSize,
		StripeK:   DefaultStripeK,
		ParityPct: DefaultParityPct,
		Volumes:   DefaultVolumes,
	}
}

// LoadDefaults overlays root/parx.yml onto cfg when the file exists.
// A missing file is not an error; a malformed one is.
func LoadDefaults(root string, cfg *Encode) error {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return parxerr.E(parxerr.KindIO, err).WithPath(path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return parxerr.E(parxerr.KindConfig, err).WithPath(path)
	}
	return nil
}

// ParseSize parses a human byte-size string ("65536", "64K",
// "32MiB", "1G").
func ParseSize(spec string) (int64, error) {
	n, err := humanize.ParseBytes(spec)
	if err != nil {
		return 0, parxerr.Errorf(parxerr.KindConfig, "bad size %q: %v", spec, err)
	}
	if n > uint64(1)<<62 {
		return 0, parxerr.Errorf(parxerr.KindConfig, "size %q too large", spec)
	}
	return int64(n), nil
}

// ParseSizeList parses a list of size specs.
func ParseSizeList(specs []string) ([]int64, error) {
	var sizes []int64
	for _, spec := range specs {
		n, err := ParseSize(spec)
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

// Validate resolves VolumeSizeSpecs and checks every bound the
// engine relies on. It is the single gate: the encoder assumes a
// validated config.
func (c *Encode) Validate() error {
	if c.ChunkSize < 1 {
		return parxerr.Errorf(parxerr.KindConfig, "chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.StripeK < 1 || c.StripeK > rscodec.MaxShards {
		return parxerr.Errorf(parxerr.KindConfig,
			"stripe k must be in [1, %d], got %d", rscodec.MaxShards, c.StripeK)
	}
	if c.ParityPct < 0 || c.ParityPct > MaxParityPct {
		return parxerr.Errorf(parxerr.KindConfig,
			"parity must be in [0, %d]%%, got %d", MaxParityPct, c.ParityPct)
	}
	m := rscodec.ParityCount(c.StripeK, c.ParityPct)
	if c.StripeK+m > rscodec.MaxShards {
		return parxerr.Errorf(parxerr.KindConfig,
			"k=%d with parity %d%% exceeds %d shards per stripe", c.StripeK, c.ParityPct, rscodec.MaxShards)
	}

	if len(c.VolumeSizeSpecs) > 0 {
		sizes, err := ParseSizeList(c.VolumeSizeSpecs)
		if err != nil {
			return err
		}
		for _, size := range sizes {
			if size < int64(c.ChunkSize) {
				return parxerr.Errorf(parxerr.KindConfig,
					"volume size target %d is smaller than one chunk (%d)", size, c.ChunkSize)
			}
		}
		c.VolumeSizes = sizes
		c.Volumes = len(sizes)
	}
	if c.Volumes < 1 || c.Volumes > 256 {
		return parxerr.Errorf(parxerr.KindConfig, "volume count must be in [1, 256], got %d", c.Volumes)
	}
	if c.Threads < 0 {
		return parxerr.Errorf(parxerr.KindConfig, "threads must be >= 0, got %d", c.Threads)
	}
	return nil
}
