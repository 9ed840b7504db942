// SPDX-License-Identifier: MPL-2.0

package inspect

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TCP is the Transmission Control Protocol.
	TCP Protocol = "tcp"
	// UDP is the User Datagram Protocol.
	UDP Protocol = "udp"
)

// ErrInvalidProtocol is the sentinel error wrapped by InvalidProtocolError.
var ErrInvalidProtocol = errors.New("invalid network protocol")

type (
	// Protocol is a network transport protocol for port forwardings. The zero
	// value ("") is valid and means "default to tcp".
	Protocol string

	// InvalidProtocolError is returned when a Protocol is not a recognized
	// transport protocol.
	InvalidProtocolError struct {
		Value Protocol
	}

	// PortForwarding is one port forwarded from a container to the host.
	//
	// To expose a container port, declare the ContainerPort (and optionally
	// the Protocol and BindIP) on the spec; the launcher fills in HostPort
	// with an OS-assigned free port. A fixed HostPort is honored as-is.
	PortForwarding struct {
		// ContainerPort is the port exposed by the container.
		ContainerPort int

		// Protocol of the exposed port. Empty means tcp.
		Protocol Protocol

		// HostPort is the port under which ContainerPort is reachable on the
		// host. Zero means "not resolved yet"; the port allocator assigns it.
		HostPort int

		// BindIP is the address the host port binds to. Empty binds all
		// addresses.
		BindIP string

		// ReadyTimeout optionally bounds how long a caller waits for this
		// port to accept connections after the container reports healthy.
		// Zero means no per-port wait.
		ReadyTimeout time.Duration
	}
)

// Error implements the error interface.
func (e *InvalidProtocolError) Error() string {
	return fmt.Sprintf("invalid network protocol %q (valid: tcp, udp)", e.Value)
}

// Unwrap returns ErrInvalidProtocol so callers can use errors.Is for
// programmatic detection.
func (e *InvalidProtocolError) Unwrap() error { return ErrInvalidProtocol }

// Validate returns an error if the Protocol is not one of the defined
// protocols. The zero value is valid and treated as tcp.
func (p Protocol) Validate() error {
	switch p {
	case TCP, UDP, "":
		return nil
	default:
		return &InvalidProtocolError{Value: p}
	}
}

// OrDefault resolves the empty protocol to tcp.
func (p Protocol) OrDefault() Protocol {
	if p == "" {
		return TCP
	}
	return p
}

// String returns the string representation of the Protocol.
func (p Protocol) String() string { return string(p.OrDefault()) }

// Resolved reports whether a host port has been assigned.
func (p PortForwarding) Resolved() bool { return p.HostPort > 0 }

// CLIArgs returns the run/pod-create arguments exposing this forwarding,
// e.g. ["-p", "127.0.0.1:8080:80/tcp"]. IPv6 bind addresses are bracketed.
func (p PortForwarding) CLIArgs() []string {
	var sb strings.Builder
	if p.BindIP != "" {
		if strings.Contains(p.BindIP, ":") {
			sb.WriteString("[" + p.BindIP + "]:")
		} else {
			sb.WriteString(p.BindIP + ":")
		}
	}
	if p.Resolved() {
		fmt.Fprintf(&sb, "%d:", p.HostPort)
	}
	fmt.Fprintf(&sb, "%d/%s", p.ContainerPort, p.Protocol)

	return []string{"-p", sb.String()}
}

// String renders the forwarding in the CLI argument form.
func (p PortForwarding) String() string {
	return strings.Join(p.CLIArgs(), " ")
}
