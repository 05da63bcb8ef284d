// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit_test

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/parx/lib/audit"
	"github.com/bureau-foundation/parx/lib/config"
	"github.com/bureau-foundation/parx/lib/encode"
)

// fixture encodes one 128 KiB file: chunk 4096, K=4, 50% parity
// (M=2), 2 volumes → 8 stripes.
func fixture(t *testing.T) (string, string, *encode.Result) {
	t.Helper()
	root := t.TempDir()
	data := make([]byte, 128*1024)
	rand.New(rand.NewSource(42)).Read(data)
	if err := os.WriteFile(filepath.Join(root, "d.bin"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.ChunkSize = 4096
	cfg.StripeK = 4
	cfg.ParityPct = 50
	cfg.Volumes = 2
	parityDir := filepath.Join(root, ".parx")
	result, err := encode.Create(context.Background(), root, parityDir, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return root, parityDir, result
}

func corrupt(t *testing.T, path string, offset int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteAt([]byte{0xBA, 0xD0}, offset); err != nil {
		t.Fatal(err)
	}
}

func TestCleanAudit(t *testing.T) {
	root, parityDir, result := fixture(t)
	report, _, err := audit.Run(context.Background(), result.Manifest, root, parityDir, audit.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !report.Recoverable || len(report.Damaged) != 0 {
		t.Errorf("clean audit: %+v", report)
	}
	for _, v := range report.Volumes {
		if !v.OK {
			t.Errorf("volume unhealthy: %+v", v)
		}
	}
	for _, s := range report.Stripes {
		if s.ParityOK != 2 || s.ParityMissing != 0 {
			t.Errorf("stripe %d parity: %+v", s.Stripe, s)
		}
	}
}

func TestDamagedButRepairable(t *testing.T) {
	root, parityDir, result := fixture(t)
	// One bad chunk in stripe 0 (chunk 1).
	corrupt(t, filepath.Join(root, "d.bin"), 4096+50)

	report, _, err := audit.Run(context.Background(), result.Manifest, root, parityDir, audit.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Damaged) != 1 || report.Damaged[0] != 0 {
		t.Fatalf("damaged: %v", report.Damaged)
	}
	s := report.Stripes[0]
	if s.DataOK != 3 || s.DataBad != 1 || !s.Repairable {
		t.Errorf("stripe 0 health: %+v", s)
	}
	if !report.Recoverable {
		t.Error("one bad chunk with M=2 must be recoverable")
	}
}

func TestOverBudgetStripeUnrecoverable(t *testing.T) {
	root, parityDir, result := fixture(t)
	// Three bad chunks in stripe 0: exceeds M=2.
	corrupt(t, filepath.Join(root, "d.bin"), 0)
	corrupt(t, filepath.Join(root, "d.bin"), 4096)
	corrupt(t, filepath.Join(root, "d.bin"), 2*4096)
	// And one repairable hit in stripe 4.
	corrupt(t, filepath.Join(root, "d.bin"), 16*4096)

	report, _, err := audit.Run(context.Background(), result.Manifest, root, parityDir, audit.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Recoverable {
		t.Error("over-budget stripe reported recoverable")
	}
	if len(report.Unrecoverable) != 1 || report.Unrecoverable[0] != 0 {
		t.Errorf("unrecoverable: %v", report.Unrecoverable)
	}
	if report.Stripes[4].Repairable != true || report.Stripes[4].DataBad != 1 {
		t.Errorf("stripe 4: %+v", report.Stripes[4])
	}
}

func TestMissingVolumeCountsParityMissing(t *testing.T) {
	root, parityDir, result := fixture(t)
	if err := os.Remove(result.VolumePaths[1]); err != nil {
		t.Fatal(err)
	}
	corrupt(t, filepath.Join(root, "d.bin"), 100)

	report, _, err := audit.Run(context.Background(), result.Manifest, root, parityDir, audit.Options{})
	if err != nil {
		t.Fatal(err)
	}
	// Round-robin (s*2+j) mod 2 puts one parity chunk of every
	// stripe in each volume: each stripe now misses exactly one.
	for _, s := range report.Stripes {
		if s.ParityOK != 1 || s.ParityMissing != 1 {
			t.Errorf("stripe %d parity after volume loss: %+v", s.Stripe, s)
		}
	}
	// One bad chunk, one surviving parity: still repairable.
	if !report.Recoverable {
		t.Error("single loss with one surviving parity must be recoverable")
	}
}

func TestCorruptVolumeReportedNotFatal(t *testing.T) {
	root, parityDir, result := fixture(t)
	// Destroy volume 1's trailer.
	f, err := os.OpenFile(result.VolumePaths[1], os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	info, _ := f.Stat()
	if _, err := f.WriteAt([]byte{0x00}, info.Size()-1); err != nil {
		t.Fatal(err)
	}
	f.Close()

	report, _, err := audit.Run(context.Background(), result.Manifest, root, parityDir, audit.Options{})
	if err != nil {
		t.Fatal(err)
	}
	var sawBroken bool
	for _, v := range report.Volumes {
		if !v.OK && v.Error != "" {
			sawBroken = true
		}
	}
	if !sawBroken {
		t.Error("corrupt volume not surfaced in report")
	}
}
