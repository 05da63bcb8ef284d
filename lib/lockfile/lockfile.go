// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lockfile provides advisory file locks for repair
// serialization: a global lock under the parity directory stops two
// repair processes, and per-file locks serialize write-back within
// one. Locks are flock(2)-based and vanish with the process, so a
// crash never leaves the dataset locked.
package lockfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/parx/lib/parxerr"
)

// Lock is a held advisory lock.
type Lock struct {
	file *os.File
	path string
}

// TryAcquire takes an exclusive non-blocking lock on path, creating
// the lock file if needed. Returns a lock-kind error wrapping
// parxerr.ErrLockHeld when another process holds it.
func TryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("open-lock").WithPath(path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, parxerr.E(parxerr.KindLock,
				fmt.Errorf("%s: %w", path, parxerr.ErrLockHeld)).WithPath(path)
		}
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("flock").WithPath(path)
	}
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock. The lock file itself is left in place;
// flock state is what matters.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return parxerr.E(parxerr.KindIO, err).WithOp("release-lock").WithPath(l.path)
	}
	return nil
}
