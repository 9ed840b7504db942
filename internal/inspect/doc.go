// SPDX-License-Identifier: MPL-2.0

// Package inspect contains the normalized schema for the output of
// "podman inspect" and "docker inspect". Both engines emit slightly
// different JSON; the engine package decodes either shape into the common
// subset defined here.
package inspect
