// SPDX-License-Identifier: MPL-2.0

// Package engine abstracts the two supported container engine families
// (podman and docker) behind one interface.
//
// Both engines are driven through their CLI binaries; the package normalizes
// the differences (build command, version banner, inspect JSON shape, pod
// support) so that the rest of the harness never branches on the engine
// family. Engine selection honors the user's preference and is cached
// per-process, keyed by the raw preference string.
package engine
