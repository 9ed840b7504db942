// SPDX-License-Identifier: MPL-2.0

package ports

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/charmbracelet/log"

	"ocibox/internal/inspect"
	"ocibox/internal/lockfile"
)

// searchLockName is the well-known name of the lock guarding the
// reserve-sockets-then-release window across all processes.
const searchLockName = "ocibox-port-search.lock"

// SearchLockPath returns the path of the global port search lock.
func SearchLockPath() string {
	return lockfile.In(searchLockName)
}

// Reserve assigns a free host port to every entry of forwards and returns a
// new slice of the same length and order with HostPort filled in. Entries
// that already carry a fixed HostPort are bound to exactly that port to
// verify it is free.
//
// Callers must hold the port search lock (see ReserveUnderLock); Reserve
// itself only implements the batch protocol.
func Reserve(forwards []inspect.PortForwarding) ([]inspect.PortForwarding, error) {
	resolved := make([]inspect.PortForwarding, 0, len(forwards))

	// The sockets are closed only after every entry got its port. Closing
	// each one right away would let the OS reissue the same port to the next
	// bind in this very batch.
	var held []io.Closer
	defer func() {
		for _, c := range held {
			if err := c.Close(); err != nil {
				log.Warn("could not close reservation socket", "error", err)
			}
		}
	}()

	for _, fwd := range forwards {
		if err := fwd.Protocol.Validate(); err != nil {
			return nil, err
		}

		requested := 0
		if fwd.HostPort > 0 {
			requested = fwd.HostPort
		}
		addr := net.JoinHostPort(fwd.BindIP, strconv.Itoa(requested))

		var (
			port   int
			closer io.Closer
		)
		switch fwd.Protocol.OrDefault() {
		case inspect.TCP:
			l, err := net.Listen("tcp", addr)
			if err != nil {
				return nil, fmt.Errorf("reserve tcp port on %s: %w", addr, err)
			}
			port = l.Addr().(*net.TCPAddr).Port
			closer = l
		case inspect.UDP:
			c, err := net.ListenPacket("udp", addr)
			if err != nil {
				return nil, fmt.Errorf("reserve udp port on %s: %w", addr, err)
			}
			port = c.LocalAddr().(*net.UDPAddr).Port
			closer = c
		}
		held = append(held, closer)

		fwd.HostPort = port
		resolved = append(resolved, fwd)
		log.Debug("reserved host port",
			"host_port", port, "container_port", fwd.ContainerPort,
			"protocol", fwd.Protocol.String())
	}

	return resolved, nil
}

// ReserveUnderLock acquires the global port search lock, runs the batch
// reservation and, while still holding the lock, hands the resolved
// forwardings to launch. The engine must bind the ports inside launch;
// afterwards the lock is released.
func ReserveUnderLock(
	forwards []inspect.PortForwarding,
	launch func(resolved []inspect.PortForwarding) error,
) ([]inspect.PortForwarding, error) {
	lock, err := lockfile.Acquire(SearchLockPath())
	if err != nil {
		return nil, fmt.Errorf("acquire port search lock: %w", err)
	}
	defer lock.Release()

	resolved, err := Reserve(forwards)
	if err != nil {
		return nil, err
	}
	if err := launch(resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}
