// SPDX-License-Identifier: MPL-2.0

// Package lockfile provides cross-process advisory file locks.
//
// The locks coordinate unrelated OS processes (parallel test runners), not
// just goroutines, so they are backed by flock on a well-known path. A
// crashed holder is harmless: the kernel releases the flock when the file
// descriptor is closed, and releasing also unlinks the backing file while
// tolerating that another process already removed it.
package lockfile
