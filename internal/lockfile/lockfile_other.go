// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package lockfile

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrUnsupported is returned on platforms without flock support.
var ErrUnsupported = errors.New("file locking is not supported on this platform")

// Lock is a stub on platforms without flock support.
type Lock struct {
	path string
}

// Acquire always fails on platforms without flock support.
func Acquire(path string) (*Lock, error) {
	return nil, ErrUnsupported
}

// Release is a no-op on platforms without flock support.
func (l *Lock) Release() {}

// Path returns the path of the backing lock file.
func (l *Lock) Path() string { return l.path }

// DefaultDir returns the directory for lock files.
func DefaultDir() string { return os.TempDir() }

// In joins a lock file name onto DefaultDir.
func In(name string) string {
	return filepath.Join(DefaultDir(), name)
}
