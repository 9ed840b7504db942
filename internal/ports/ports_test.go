// SPDX-License-Identifier: MPL-2.0

package ports

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"ocibox/internal/inspect"
)

func TestReserveAssignsAllPorts(t *testing.T) {
	requested := []inspect.PortForwarding{
		{ContainerPort: 80},
		{ContainerPort: 443, Protocol: inspect.TCP},
		{ContainerPort: 53, Protocol: inspect.UDP},
	}

	resolved, err := Reserve(requested)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if len(resolved) != len(requested) {
		t.Fatalf("Reserve returned %d entries, want %d", len(resolved), len(requested))
	}

	for i, fwd := range resolved {
		if !fwd.Resolved() {
			t.Errorf("entry %d has no host port assigned", i)
		}
		if fwd.ContainerPort != requested[i].ContainerPort {
			t.Errorf("entry %d container port = %d, want %d",
				i, fwd.ContainerPort, requested[i].ContainerPort)
		}
	}
}

func TestReservePortsArePairwiseDistinct(t *testing.T) {
	const batch = 16
	requested := make([]inspect.PortForwarding, batch)
	for i := range requested {
		requested[i] = inspect.PortForwarding{ContainerPort: 8000 + i}
	}

	resolved, err := Reserve(requested)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}

	seen := make(map[int]int, batch)
	for i, fwd := range resolved {
		if prev, dup := seen[fwd.HostPort]; dup {
			t.Errorf("entries %d and %d share host port %d", prev, i, fwd.HostPort)
		}
		seen[fwd.HostPort] = i
	}
}

func TestReservePortsAreBindable(t *testing.T) {
	resolved, err := Reserve([]inspect.PortForwarding{
		{ContainerPort: 80},
		{ContainerPort: 81},
	})
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}

	for _, fwd := range resolved {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", fwd.HostPort))
		if err != nil {
			t.Errorf("reserved port %d is not bindable: %v", fwd.HostPort, err)
			continue
		}
		l.Close()
	}
}

func TestReserveHonorsFixedHostPort(t *testing.T) {
	// grab a known free port first, then request exactly that one
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("could not find a free port: %v", err)
	}
	fixed := l.Addr().(*net.TCPAddr).Port
	l.Close()

	resolved, err := Reserve([]inspect.PortForwarding{
		{ContainerPort: 80, HostPort: fixed},
	})
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if resolved[0].HostPort != fixed {
		t.Errorf("host port = %d, want fixed %d", resolved[0].HostPort, fixed)
	}
}

func TestReserveRejectsInvalidProtocol(t *testing.T) {
	_, err := Reserve([]inspect.PortForwarding{
		{ContainerPort: 80, Protocol: "sctp"},
	})
	if !errors.Is(err, inspect.ErrInvalidProtocol) {
		t.Errorf("Reserve error = %v, want ErrInvalidProtocol", err)
	}
}

func TestReserveUnderLockPassesResolvedToLaunch(t *testing.T) {
	var observed []inspect.PortForwarding
	resolved, err := ReserveUnderLock(
		[]inspect.PortForwarding{{ContainerPort: 80}},
		func(fwds []inspect.PortForwarding) error {
			observed = fwds
			return nil
		})
	if err != nil {
		t.Fatalf("ReserveUnderLock returned error: %v", err)
	}
	if len(observed) != 1 || !observed[0].Resolved() {
		t.Fatalf("launch callback saw unresolved forwardings: %+v", observed)
	}
	if resolved[0].HostPort != observed[0].HostPort {
		t.Errorf("returned host port %d differs from launched %d",
			resolved[0].HostPort, observed[0].HostPort)
	}
}

func TestReserveUnderLockPropagatesLaunchError(t *testing.T) {
	boom := errors.New("run failed")
	_, err := ReserveUnderLock(
		[]inspect.PortForwarding{{ContainerPort: 80}},
		func([]inspect.PortForwarding) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("ReserveUnderLock error = %v, want launch error", err)
	}
}
