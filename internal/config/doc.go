// SPDX-License-Identifier: MPL-2.0

// Package config loads the process-wide harness settings from the
// environment.
//
// All knobs are plain environment variables read through viper with the
// OCIBOX prefix; the engine preference additionally honors the
// CONTAINER_RUNTIME variable established by other container tooling. Extra
// engine arguments are given as single shell-quoted strings and split with
// POSIX word splitting rules.
package config
