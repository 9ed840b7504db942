// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration is the sentinel error wrapped by ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrPreparation is the sentinel error wrapped by PreparationError.
	ErrPreparation = errors.New("image preparation failed")

	// ErrLaunch is the sentinel error wrapped by LaunchError.
	ErrLaunch = errors.New("container launch failed")

	// ErrHealthTimeout is the sentinel error wrapped by HealthTimeoutError.
	ErrHealthTimeout = errors.New("container did not become healthy")
)

type (
	// ConfigurationError reports an invalid declarative input: an unknown
	// engine preference, mutually exclusive mount flags, a pod requested on an
	// engine without pod support, or a derived spec without a base. It is
	// always fatal, surfaced before any engine call, and never retried.
	ConfigurationError struct {
		// Resource identifies the offending value (spec string, flag pair,
		// engine name).
		Resource string
		// Reason describes what is wrong with it.
		Reason string
	}

	// PreparationError reports a failed pull or build for a spec. The spec's
	// preparation lock is released before this error propagates, so other
	// callers are not blocked behind a dead spec.
	PreparationError struct {
		Spec  string
		Cause error
	}

	// LaunchError reports a failed run invocation or a missing cidfile. The
	// launcher tears down every partially acquired resource before returning
	// it.
	LaunchError struct {
		Spec  string
		Cause error
	}

	// HealthTimeoutError reports that a container was observed unhealthy, not
	// running, or still pending when the health deadline elapsed.
	HealthTimeoutError struct {
		ContainerID string
		// Elapsed is the time spent waiting, Deadline the resolved maximum.
		Elapsed  time.Duration
		Deadline time.Duration
		// LastStatus is the last observed state or health status.
		LastStatus string
	}
)

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %s", e.Resource, e.Reason)
}

// Unwrap returns ErrConfiguration for errors.Is() compatibility.
func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Error implements the error interface.
func (e *PreparationError) Error() string {
	return fmt.Sprintf("failed to prepare %s: %v", e.Spec, e.Cause)
}

// Unwrap returns the sentinel and the underlying cause.
func (e *PreparationError) Unwrap() []error { return []error{ErrPreparation, e.Cause} }

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Spec, e.Cause)
}

// Unwrap returns the sentinel and the underlying cause.
func (e *LaunchError) Unwrap() []error { return []error{ErrLaunch, e.Cause} }

// Error implements the error interface.
func (e *HealthTimeoutError) Error() string {
	return fmt.Sprintf(
		"container %s did not become healthy within %s, took %s and state is %q",
		e.ContainerID, e.Deadline, e.Elapsed, e.LastStatus)
}

// Unwrap returns ErrHealthTimeout for errors.Is() compatibility.
func (e *HealthTimeoutError) Unwrap() error { return ErrHealthTimeout }
