// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/parx/lib/parxerr"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ChunkSize != 1<<20 || cfg.StripeK != 64 || cfg.ParityPct != 35 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Encode)
	}{
		{"zero-chunk", func(c *Encode) { c.ChunkSize = 0 }},
		{"zero-k", func(c *Encode) { c.StripeK = 0 }},
		{"huge-k", func(c *Encode) { c.StripeK = 300 }},
		{"negative-parity", func(c *Encode) { c.ParityPct = -1 }},
		{"huge-parity", func(c *Encode) { c.ParityPct = 121 }},
		{"shard-overflow", func(c *Encode) { c.StripeK = 230; c.ParityPct = 20 }},
		{"zero-volumes", func(c *Encode) { c.Volumes = 0 }},
		{"many-volumes", func(c *Encode) { c.Volumes = 1000 }},
		{"negative-threads", func(c *Encode) { c.Threads = -2 }},
		{"bad-size-spec", func(c *Encode) { c.VolumeSizeSpecs = []string{"twelve"} }},
		{"tiny-volume", func(c *Encode) { c.VolumeSizeSpecs = []string{"1K"} }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); parxerr.KindOf(err) != parxerr.KindConfig {
			t.Errorf("%s: expected config error, got %v", tc.name, err)
		}
	}
}

func TestVolumeSizesDetermineCount(t *testing.T) {
	cfg := Default()
	cfg.VolumeSizeSpecs = []string{"32M", "32MiB", "1G"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Volumes != 3 {
		t.Errorf("volumes = %d, want 3", cfg.Volumes)
	}
	if cfg.VolumeSizes[0] != 32_000_000 || cfg.VolumeSizes[1] != 32*1024*1024 {
		t.Errorf("sizes: %v", cfg.VolumeSizes)
	}
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		spec string
		want int64
	}{
		{"65536", 65536},
		{"64KiB", 64 * 1024},
		{"1MiB", 1 << 20},
		{"1GB", 1_000_000_000},
	}
	for _, tc := range cases {
		got, err := ParseSize(tc.spec)
		if err != nil {
			t.Errorf("ParseSize(%q): %v", tc.spec, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tc.spec, got, tc.want)
		}
	}
	if _, err := ParseSize("not-a-size"); parxerr.KindOf(err) != parxerr.KindConfig {
		t.Error("garbage size accepted")
	}
}

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	yml := []byte("stripe_k: 16\nparity: 50\ninterleave: true\n")
	if err := os.WriteFile(filepath.Join(root, FileName), yml, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := LoadDefaults(root, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.StripeK != 16 || cfg.ParityPct != 50 || !cfg.Interleave {
		t.Errorf("yaml overlay lost: %+v", cfg)
	}
	// Untouched fields keep their defaults.
	if cfg.ChunkSize != DefaultChunkSize {
		t.Error("chunk size clobbered by partial yaml")
	}

	// Missing file: no error, no change.
	other := Default()
	if err := LoadDefaults(t.TempDir(), &other); err != nil {
		t.Fatal(err)
	}

	// Malformed file: config error.
	bad := t.TempDir()
	if err := os.WriteFile(filepath.Join(bad, FileName), []byte(":\t:"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := LoadDefaults(bad, &cfg); parxerr.KindOf(err) != parxerr.KindConfig {
		t.Errorf("malformed yaml: %v", err)
	}
}
