// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package parxerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfClassifiedError(t *testing.T) {
	err := Errorf(KindVolume, "index CRC mismatch")
	if KindOf(err) != KindVolume {
		t.Errorf("expected kind volume, got %s", KindOf(err))
	}
}

func TestKindOfWrappedError(t *testing.T) {
	// The kind survives fmt.Errorf %w wrapping.
	inner := Errorf(KindInput, "symlink not allowed")
	wrapped := fmt.Errorf("walking dataset: %w", inner)
	if KindOf(wrapped) != KindInput {
		t.Errorf("expected kind input through wrap, got %s", KindOf(wrapped))
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("unclassified errors must map to internal")
	}
	if KindOf(nil) != "" {
		t.Error("nil error must have empty kind")
	}
}

func TestExitCodeTable(t *testing.T) {
	cases := []struct {
		kind Kind
		code int
	}{
		{KindConfig, ExitConfig},
		{KindInput, ExitNoInput},
		{KindData, ExitData},
		{KindVolume, ExitData},
		{KindCodec, ExitData},
		{KindIO, ExitIO},
		{KindLock, ExitOSErr},
		{KindUnavailable, ExitUnavailable},
		{KindInternal, ExitSoftware},
	}
	for _, c := range cases {
		got := ExitCode(Errorf(c.kind, "x"))
		if got != c.code {
			t.Errorf("kind %s: exit code %d, want %d", c.kind, got, c.code)
		}
	}
	if ExitCode(nil) != ExitOK {
		t.Error("nil error must exit 0")
	}
}

func TestErrorStringIncludesOpAndPath(t *testing.T) {
	err := Errorf(KindIO, "short write").WithOp("write-volume").WithPath("vol-000.parxv")
	want := "write-volume vol-000.parxv: short write"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := E(KindCodec, fmt.Errorf("stripe 7: %w", ErrInsufficientShards))
	if !errors.Is(err, ErrInsufficientShards) {
		t.Error("ErrInsufficientShards not found through wrapping")
	}
	lockErr := E(KindLock, ErrLockHeld).WithPath(".parx.lock")
	if !errors.Is(lockErr, ErrLockHeld) {
		t.Error("ErrLockHeld not found through wrapping")
	}
}

func TestShape(t *testing.T) {
	err := Errorf(KindVolume, "bad trailer magic").WithOp("quickcheck").WithPath("vol-001.parxv")
	shape := Shape(err)
	if shape.Code != ExitData || shape.Kind != "volume" {
		t.Errorf("unexpected shape: %+v", shape)
	}
	if shape.Path != "vol-001.parxv" || shape.Op != "quickcheck" {
		t.Errorf("path/op not carried: %+v", shape)
	}
}
