// SPDX-License-Identifier: MPL-2.0

// Package issue defines the error taxonomy of the harness.
//
// Every fatal error carries the identifier of the resource involved (the
// spec's string form, a container id, a pod name) so that a failing run is
// diagnosable without re-running. Each error type wraps a sentinel for
// programmatic detection via errors.Is. Cleanup problems are never modelled
// here: teardown tolerates and logs them instead of failing.
package issue
