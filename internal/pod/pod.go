// SPDX-License-Identifier: MPL-2.0

package pod

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"ocibox/internal/container"
	"ocibox/internal/engine"
	"ocibox/internal/inspect"
	"ocibox/internal/issue"
	"ocibox/internal/ports"
)

// Pod declares a group of container specs sharing one network namespace.
type Pod struct {
	// Name optionally names the pod; the engine assigns one otherwise.
	Name string
	// Containers are the member specs, launched in order.
	Containers []container.Spec
	// Ports are the pod-level forwardings. Member-declared ports are not
	// forwarded; the pod owns the port space.
	Ports []inspect.PortForwarding
}

// ErrReleased is returned by handle operations after the pod was torn down.
var ErrReleased = errors.New("pod handle has been released")

// PodData is the live handle of a launched pod.
type PodData struct {
	// ID is the engine-assigned pod id.
	ID string
	// InfraContainerID is the container owning the pod's network namespace.
	InfraContainerID string
	// Members are the handles of the member containers, in launch order.
	Members []*container.ContainerData
	// Ports are the pod-level forwardings with assigned host ports.
	Ports []inspect.PortForwarding

	released bool
}

// Released reports whether the pod was torn down.
func (d *PodData) Released() bool { return d.released }

// Launcher drives one pod through launch and teardown. Like the container
// launcher it is single-use and its teardown is idempotent.
type Launcher struct {
	Engine engine.Engine
	Pod    Pod

	// PullAlways, ExtraBuildArgs and ExtraRunArgs parameterize the member
	// launches; ExtraPodCreateArgs the pod creation.
	PullAlways         bool
	ExtraBuildArgs     []string
	ExtraRunArgs       []string
	ExtraPodCreateArgs []string

	podID   string
	members []*container.Launcher
	data    *PodData
	torn    bool
}

// Launch creates the pod with its ports, then launches every member into
// it. On any failure everything launched so far is torn down.
func (l *Launcher) Launch(ctx context.Context) (*PodData, error) {
	if !l.Engine.SupportsPods() {
		return nil, &issue.ConfigurationError{
			Resource: "pod " + l.Pod.Name,
			Reason:   fmt.Sprintf("engine %q does not support pods", l.Engine.Name()),
		}
	}
	if len(l.Pod.Containers) == 0 {
		return nil, &issue.ConfigurationError{
			Resource: "pod " + l.Pod.Name,
			Reason:   "a pod needs at least one container",
		}
	}

	resolved, err := l.createPod(ctx)
	if err != nil {
		return nil, err
	}

	infra, err := l.Engine.InspectPod(ctx, l.podID)
	if err != nil {
		l.Teardown(ctx)
		return nil, &issue.LaunchError{Spec: "pod " + l.podID, Cause: err}
	}

	memberData := make([]*container.ContainerData, 0, len(l.Pod.Containers))
	for _, spec := range l.Pod.Containers {
		member := &container.Launcher{
			Engine:         l.Engine,
			Spec:           spec,
			PullAlways:     l.PullAlways,
			ExtraBuildArgs: l.ExtraBuildArgs,
			ExtraRunArgs:   l.ExtraRunArgs,
			PodID:          l.podID,
		}
		l.members = append(l.members, member)

		data, err := member.Launch(ctx)
		if err != nil {
			l.Teardown(ctx)
			return nil, err
		}
		memberData = append(memberData, data)
	}

	l.data = &PodData{
		ID:               l.podID,
		InfraContainerID: infra.InfraContainerID,
		Members:          memberData,
		Ports:            resolved,
	}
	log.Info("pod ready", "id", l.podID, "members", len(memberData))
	return l.data, nil
}

// createPod issues the pod create call, reserving the pod-level ports
// under the global port lock so the engine binds them while the lock is
// still held.
func (l *Launcher) createPod(ctx context.Context) ([]inspect.PortForwarding, error) {
	create := func(resolved []inspect.PortForwarding) error {
		opts := engine.PodOptions{Name: l.Pod.Name, ExtraArgs: l.ExtraPodCreateArgs}
		for _, fwd := range resolved {
			opts.PortArgs = append(opts.PortArgs, fwd.CLIArgs()...)
		}
		id, err := l.Engine.CreatePod(ctx, opts)
		if err != nil {
			return &issue.LaunchError{Spec: "pod " + l.Pod.Name, Cause: err}
		}
		l.podID = id
		return nil
	}

	if len(l.Pod.Ports) == 0 {
		return nil, create(nil)
	}
	return ports.ReserveUnderLock(l.Pod.Ports, create)
}

// Teardown removes the pod first, which implicitly removes the infra
// container and all members, then releases the members' scoped resources.
// It is idempotent; removal failures are logged, never escalated.
func (l *Launcher) Teardown(ctx context.Context) {
	if l.torn {
		return
	}
	l.torn = true

	if l.podID != "" {
		if err := l.Engine.RemovePod(ctx, l.podID, true); err != nil {
			log.Warn("could not remove pod", "id", l.podID, "error", err)
		}
	}

	// member containers are already gone with the pod; their teardown only
	// releases volumes, bind mount directories and locks
	for i := len(l.members) - 1; i >= 0; i-- {
		l.members[i].Teardown(ctx)
	}
	l.members = nil

	if l.data != nil {
		l.data.released = true
	}
	l.podID = ""
}
