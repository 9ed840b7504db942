// SPDX-License-Identifier: MPL-2.0

package inspect

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestHealthCheckMaxWaitTime(t *testing.T) {
	tests := []struct {
		name     string
		hc       HealthCheck
		expected time.Duration
	}{
		{
			name: "retries interval and timeout",
			hc: HealthCheck{
				Interval: 2 * time.Second,
				Timeout:  time.Second,
				Retries:  3,
			},
			expected: 7 * time.Second,
		},
		{
			name: "start period added",
			hc: HealthCheck{
				StartPeriod: 10 * time.Second,
				Interval:    time.Second,
				Timeout:     time.Second,
				Retries:     2,
			},
			expected: 13 * time.Second,
		},
		{
			name:     "all zero",
			hc:       HealthCheck{},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hc.MaxWaitTime(); got != tt.expected {
				t.Errorf("MaxWaitTime() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestHealthCheckUnmarshalDefaults(t *testing.T) {
	var hc HealthCheck
	if err := json.Unmarshal([]byte(`{"Test": ["CMD", "true"]}`), &hc); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	if hc.Interval != 30*time.Second || hc.Timeout != 30*time.Second || hc.Retries != 3 {
		t.Errorf("defaults not applied: %+v", hc)
	}
	if hc.StartPeriod != 0 {
		t.Errorf("StartPeriod = %v, want 0", hc.StartPeriod)
	}
}

func TestHealthCheckUnmarshalKeepsExplicitZero(t *testing.T) {
	var hc HealthCheck
	data := `{"Test": ["CMD", "true"], "Interval": 0, "Timeout": 0, "Retries": 0}`
	if err := json.Unmarshal([]byte(data), &hc); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	if hc.Interval != 0 || hc.Timeout != 0 || hc.Retries != 0 {
		t.Errorf("explicit zeroes overridden by defaults: %+v", hc)
	}
}

func TestHealthCheckUnmarshalNanoseconds(t *testing.T) {
	var hc HealthCheck
	data := `{"Interval": 5000000000, "Timeout": 1000000000, "StartPeriod": 2000000000}`
	if err := json.Unmarshal([]byte(data), &hc); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	if hc.Interval != 5*time.Second || hc.Timeout != time.Second || hc.StartPeriod != 2*time.Second {
		t.Errorf("durations not decoded as nanoseconds: %+v", hc)
	}
}

func TestProtocolValidate(t *testing.T) {
	for _, valid := range []Protocol{TCP, UDP, ""} {
		if err := valid.Validate(); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", valid, err)
		}
	}

	err := Protocol("sctp").Validate()
	if !errors.Is(err, ErrInvalidProtocol) {
		t.Errorf("Validate(sctp) = %v, want ErrInvalidProtocol", err)
	}
}

func TestPortForwardingCLIArgs(t *testing.T) {
	tests := []struct {
		name     string
		fwd      PortForwarding
		expected string
	}{
		{
			name:     "unresolved",
			fwd:      PortForwarding{ContainerPort: 80},
			expected: "80/tcp",
		},
		{
			name:     "resolved",
			fwd:      PortForwarding{ContainerPort: 80, HostPort: 8080},
			expected: "8080:80/tcp",
		},
		{
			name:     "udp with bind address",
			fwd:      PortForwarding{ContainerPort: 53, Protocol: UDP, HostPort: 5353, BindIP: "127.0.0.1"},
			expected: "127.0.0.1:5353:53/udp",
		},
		{
			name:     "ipv6 bind address is bracketed",
			fwd:      PortForwarding{ContainerPort: 80, HostPort: 8080, BindIP: "::1"},
			expected: "[::1]:8080:80/tcp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.fwd.CLIArgs()
			if len(args) != 2 || args[0] != "-p" || args[1] != tt.expected {
				t.Errorf("CLIArgs() = %v, want [-p %s]", args, tt.expected)
			}
		})
	}
}
