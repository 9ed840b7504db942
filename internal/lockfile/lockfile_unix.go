// SPDX-License-Identifier: MPL-2.0

//go:build unix

package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// Lock holds a blocking exclusive flock on a file path.
type Lock struct {
	path string
	file *os.File
}

// Acquire opens (or creates) the lock file and takes a blocking exclusive
// flock. The call blocks until the lock is available.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	log.Debug("acquired lock", "path", path)
	return &Lock{path: path, file: f}, nil
}

// Release unlocks the flock, closes the file descriptor and removes the
// backing file. It is safe to call multiple times, and it tolerates another
// process having removed the file already.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	log.Debug("releasing lock", "path", l.path)

	// LOCK_UN before Close for explicitness; Close also releases the flock.
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		log.Debug("flock unlock failed", "path", l.path, "error", err)
	}
	if err := l.file.Close(); err != nil {
		log.Debug("lock file close failed", "path", l.path, "error", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		log.Warn("could not remove lock file", "path", l.path, "error", err)
	}
	l.file = nil
}

// Path returns the path of the backing lock file.
func (l *Lock) Path() string { return l.path }

// DefaultDir returns the directory for lock files that are not tied to a
// caller-supplied root: $XDG_RUNTIME_DIR (per-user tmpfs, auto-cleaned) with
// a fallback to os.TempDir().
func DefaultDir() string {
	return defaultDirWith(os.Getenv)
}

// defaultDirWith resolves the lock directory using the provided getenv
// function. This enables testing without mutating process environment state.
func defaultDirWith(getenv func(string) string) string {
	if dir := getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// In joins a lock file name onto DefaultDir.
func In(name string) string {
	return filepath.Join(DefaultDir(), name)
}
