// SPDX-License-Identifier: MPL-2.0

// Package container declares container specifications and drives their
// lifecycle.
//
// A specification is either a plain image reference or a derived image
// built from a base plus Containerfile instructions. The launcher walks a
// fixed state machine: prepare the image under the spec's file lock,
// acquire storage and ports, start the container, wait for its health
// check, and guarantee an idempotent teardown of everything it acquired,
// on success and failure alike.
package container
