// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSentinelUnwrapping(t *testing.T) {
	cause := errors.New("exit status 125")
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{name: "configuration", err: &ConfigurationError{Resource: "engine", Reason: "unknown"}, sentinel: ErrConfiguration},
		{name: "preparation", err: &PreparationError{Spec: "nginx:latest", Cause: cause}, sentinel: ErrPreparation},
		{name: "launch", err: &LaunchError{Spec: "nginx:latest", Cause: cause}, sentinel: ErrLaunch},
		{name: "health timeout", err: &HealthTimeoutError{ContainerID: "abc"}, sentinel: ErrHealthTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, sentinel) = false", tt.err)
			}
			if wrapped := fmt.Errorf("outer: %w", tt.err); !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("sentinel lost through wrapping: %v", wrapped)
			}
		})
	}
}

func TestCausesSurviveUnwrapping(t *testing.T) {
	cause := errors.New("registry unreachable")

	if err := (&PreparationError{Spec: "nginx", Cause: cause}); !errors.Is(err, cause) {
		t.Errorf("PreparationError lost its cause: %v", err)
	}
	if err := (&LaunchError{Spec: "nginx", Cause: cause}); !errors.Is(err, cause) {
		t.Errorf("LaunchError lost its cause: %v", err)
	}
}

func TestMessagesNameTheResource(t *testing.T) {
	cfg := &ConfigurationError{Resource: "volume /data", Reason: "flags \"ro\" and \"rw\" conflict"}
	if msg := cfg.Error(); !strings.Contains(msg, "volume /data") || !strings.Contains(msg, "conflict") {
		t.Errorf("message %q lacks resource or reason", msg)
	}

	health := &HealthTimeoutError{
		ContainerID: "abc123",
		Elapsed:     12 * time.Second,
		Deadline:    10 * time.Second,
		LastStatus:  "starting",
	}
	msg := health.Error()
	for _, want := range []string{"abc123", "10s", "12s", "starting"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q lacks %q", msg, want)
		}
	}
}
