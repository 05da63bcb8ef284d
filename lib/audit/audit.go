// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit combines the verifier's chunk presence map with the
// parity volumes' indexes into per-stripe health: how many shards of
// each stripe survive, and whether the stripe can be rebuilt.
//
// A stripe is repairable when at least K of its K+M shards are
// usable. Empty data slots in the final stripe count as usable (they
// are known to be all-zero), so short stripes are never penalized.
package audit

import (
	"context"

	"github.com/bureau-foundation/parx/lib/manifest"
	"github.com/bureau-foundation/parx/lib/verify"
	"github.com/bureau-foundation/parx/lib/volume"
)

// StripeHealth is one stripe's shard accounting. Counts cover real
// chunks only; the Repairable flag additionally credits the final
// stripe's implicit zero slots.
type StripeHealth struct {
	Stripe        int64 `json:"stripe"`
	DataOK        int   `json:"data_ok"`
	DataBad       int   `json:"data_bad"`
	ParityOK      int   `json:"parity_ok"`
	ParityMissing int   `json:"parity_missing"`
	Repairable    bool  `json:"repairable"`
}

// VolumeStatus records one volume file's usability.
type VolumeStatus struct {
	Path  string `json:"path"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Report is the full audit result.
type Report struct {
	Stripes []StripeHealth `json:"stripes"`

	// Damaged lists stripes with at least one bad data chunk.
	Damaged []int64 `json:"damaged"`

	// Unrecoverable lists damaged stripes that cannot be rebuilt.
	Unrecoverable []int64 `json:"unrecoverable"`

	Volumes []VolumeStatus `json:"volumes"`

	// Recoverable is false when any stripe is unrecoverable.
	Recoverable bool `json:"recoverable"`
}

// Options tune an audit run.
type Options struct {
	Threads        int
	FollowSymlinks bool
}

// Run verifies the dataset and audits stripe health against the
// volumes found in parityDir. Unreadable volumes are reported, not
// fatal: their parity simply counts as missing.
func Run(ctx context.Context, m *manifest.Manifest, root, parityDir string, opts Options) (*Report, *verify.Report, error) {
	verifyReport, err := verify.Run(ctx, m, root, verify.Options{
		Threads:        opts.Threads,
		FollowSymlinks: opts.FollowSymlinks,
	})
	if err != nil {
		return nil, nil, err
	}

	report, err := Stripes(m, verifyReport, parityDir)
	if err != nil {
		return nil, nil, err
	}
	return report, verifyReport, nil
}

// Stripes computes stripe health from an existing presence map.
func Stripes(m *manifest.Manifest, verifyReport *verify.Report, parityDir string) (*Report, error) {
	available, volumes, err := parityAvailability(parityDir)
	if err != nil {
		return nil, err
	}

	layout, err := m.Layout()
	if err != nil {
		return nil, err
	}

	report := &Report{
		Volumes:     volumes,
		Recoverable: true,
	}
	report.Stripes = make([]StripeHealth, len(m.Stripes))
	for s := range m.Stripes {
		stripeID := int64(s)
		health := StripeHealth{Stripe: stripeID}

		for _, global := range layout.DataChunks(stripeID) {
			if verifyReport.Present[global] == verify.OK {
				health.DataOK++
			} else {
				health.DataBad++
			}
		}

		for j := 0; j < m.Stripes[s].Parity; j++ {
			if available[parityKey{stripeID, j}] {
				health.ParityOK++
			} else {
				health.ParityMissing++
			}
		}

		virtual := layout.K - m.Stripes[s].Slots
		health.Repairable = health.DataOK+virtual+health.ParityOK >= layout.K
		report.Stripes[s] = health

		if health.DataBad > 0 {
			report.Damaged = append(report.Damaged, stripeID)
			if !health.Repairable {
				report.Unrecoverable = append(report.Unrecoverable, stripeID)
				report.Recoverable = false
			}
		}
	}
	return report, nil
}

type parityKey struct {
	stripe      int64
	parityIndex int
}

// parityAvailability opens every volume in parityDir and collects
// the set of parity chunks an intact index claims. Volumes that fail
// to open contribute nothing.
func parityAvailability(parityDir string) (map[parityKey]bool, []VolumeStatus, error) {
	paths, err := volume.List(parityDir)
	if err != nil {
		return nil, nil, err
	}

	available := make(map[parityKey]bool)
	statuses := make([]VolumeStatus, 0, len(paths))
	for _, path := range paths {
		v, err := volume.Open(path)
		if err != nil {
			statuses = append(statuses, VolumeStatus{Path: path, Error: err.Error()})
			continue
		}
		for _, entry := range v.Entries {
			available[parityKey{entry.Stripe, entry.ParityIndex}] = true
		}
		v.Close()
		statuses = append(statuses, VolumeStatus{Path: path, OK: true})
	}
	return available, statuses, nil
}
