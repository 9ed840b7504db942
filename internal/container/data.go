// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"

	"ocibox/internal/inspect"
)

// ErrReleased is returned by handle operations after the container was
// torn down. Using a stale handle is an error, not undefined behavior.
var ErrReleased = errors.New("container handle has been released")

// ContainerData is the live handle of a launched container. It exists if
// and only if the engine process is known to be started and is invalidated
// by teardown.
type ContainerData struct {
	// ImageRef is the resolved image the container runs.
	ImageRef string
	// ID is the engine-assigned container id.
	ID string
	// Ports are the forwardings with their assigned host ports.
	Ports []inspect.PortForwarding
	// VolumeIDs are the engine-assigned ids of the spec's named volumes, in
	// declaration order.
	VolumeIDs []string
	// BindMountDirs are the resolved host directories of the spec's bind
	// mounts, in declaration order.
	BindMountDirs []string
	// Spec is the specification this container was launched from.
	Spec Spec

	launcher *Launcher
	released bool
}

func (d *ContainerData) invalidate() { d.released = true }

// Released reports whether the underlying container was torn down.
func (d *ContainerData) Released() bool { return d.released }

// Inspect returns the live state of the container.
func (d *ContainerData) Inspect(ctx context.Context) (*inspect.ContainerInspect, error) {
	if d.released {
		return nil, ErrReleased
	}
	return d.launcher.Engine.InspectContainer(ctx, d.ID)
}

// Health returns the container's current health status.
func (d *ContainerData) Health(ctx context.Context) (inspect.Health, error) {
	if d.released {
		return inspect.HealthNone, ErrReleased
	}
	return d.launcher.Engine.ContainerHealth(ctx, d.ID)
}

// Logs returns the container's output so far. After teardown the output
// captured during teardown remains available through the launcher.
func (d *ContainerData) Logs(ctx context.Context) (string, error) {
	if d.released {
		return "", ErrReleased
	}
	return d.launcher.Engine.Logs(ctx, d.ID)
}

// Exec runs a command inside the container and returns its output. This is
// the remote execution surface of the handle.
func (d *ContainerData) Exec(ctx context.Context, command []string) (string, error) {
	if d.released {
		return "", ErrReleased
	}
	return d.launcher.Engine.Exec(ctx, d.ID, command)
}
