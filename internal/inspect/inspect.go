// SPDX-License-Identifier: MPL-2.0

package inspect

import (
	"encoding/json"
	"time"
)

// Health is the health status of a container derived from the HEALTHCHECK
// directive of its image.
type Health string

const (
	// HealthNone means the container image defines no health check.
	HealthNone Health = ""
	// Healthy means the last health check probe succeeded.
	Healthy Health = "healthy"
	// Starting means the health check did not complete yet or did not fail
	// often enough to count as unhealthy.
	Starting Health = "starting"
	// Unhealthy means the health check failed.
	Unhealthy Health = "unhealthy"
)

// ContainerState is the State object of a container inspect.
type ContainerState struct {
	// Status is the engine's textual state, e.g. "running" or "exited".
	Status string
	// Running reports whether the container process is alive.
	Running    bool
	Paused     bool
	Restarting bool
	// OOMKilled reports whether the container was killed by an out of memory
	// condition.
	OOMKilled bool
	Dead      bool
	// Pid is the process id of the main container process.
	Pid int
	// Health is the status of the last health check run.
	Health Health
}

const (
	defaultStartPeriod = 0
	defaultInterval    = 30 * time.Second
	defaultTimeout     = 30 * time.Second
	defaultRetries     = 3
)

// HealthCheck is the HEALTHCHECK of a container image.
type HealthCheck struct {
	// Test is the probe command, e.g. ["CMD-SHELL", "curl -f localhost"].
	Test []string
	// StartPeriod is the startup window during which probe failures do not
	// count towards the failure count.
	StartPeriod time.Duration
	// Interval is the pause between two probe runs.
	Interval time.Duration
	// Timeout is the per-probe timeout after which the probe counts as failed.
	Timeout time.Duration
	// Retries is the number of failed probes after which the container is
	// unhealthy.
	Retries int
}

// MaxWaitTime is the maximum time until a container with this health check
// can become healthy: start period + retries * interval + timeout.
func (h HealthCheck) MaxWaitTime() time.Duration {
	return h.StartPeriod + time.Duration(h.Retries)*h.Interval + h.Timeout
}

// UnmarshalJSON decodes the engine's Healthcheck object. Durations are
// nanosecond integers; absent fields fall back to the engine defaults
// (interval and timeout 30s, 3 retries), while explicit zeroes are kept.
func (h *HealthCheck) UnmarshalJSON(data []byte) error {
	var raw struct {
		Test        []string
		StartPeriod *int64
		Interval    *int64
		Timeout     *int64
		Retries     *int
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*h = HealthCheck{
		Test:        raw.Test,
		StartPeriod: defaultStartPeriod,
		Interval:    defaultInterval,
		Timeout:     defaultTimeout,
		Retries:     defaultRetries,
	}
	if raw.StartPeriod != nil {
		h.StartPeriod = time.Duration(*raw.StartPeriod)
	}
	if raw.Interval != nil {
		h.Interval = time.Duration(*raw.Interval)
	}
	if raw.Timeout != nil {
		h.Timeout = time.Duration(*raw.Timeout)
	}
	if raw.Retries != nil {
		h.Retries = *raw.Retries
	}
	return nil
}

// Config is the image-derived configuration of a container.
type Config struct {
	User       string
	Tty        bool
	Cmd        []string
	Entrypoint []string
	Env        map[string]string
	Image      string
	Labels     map[string]string
	WorkingDir string
	// StopSignal is the signal sent to the container on stop; SIGKILL follows
	// if the container does not terminate.
	StopSignal string
	// Healthcheck is the health check of the underlying image, if any.
	Healthcheck *HealthCheck
}

// NetworkSettings are the network specific settings of a container.
type NetworkSettings struct {
	// Ports are the ports forwarded from the container to the host.
	Ports []PortForwarding
	// IPAddress is the container's address, if it has one.
	IPAddress string
}

// MountKind discriminates the two mount variants an engine reports.
type MountKind string

const (
	// MountBind is a host directory bind mounted into the container.
	MountBind MountKind = "bind"
	// MountVolume is an engine-managed named volume.
	MountVolume MountKind = "volume"
)

// Mount is one entry of the Mounts array of a container inspect.
type Mount struct {
	Kind MountKind
	// Source is the backing directory on the host, if present.
	Source string
	// Destination is the mount point inside the container.
	Destination string
	// RW reports whether the mount is writable.
	RW bool
	// Name and Driver are only set for MountVolume entries.
	Name   string
	Driver string
}

// ContainerInspect is the common subset of the information exposed by
// "podman inspect" and "docker inspect".
type ContainerInspect struct {
	// ID is the container's id.
	ID string
	// Name is the container's name (docker's leading slash stripped).
	Name string
	// Path is the program launched inside the container, Args its arguments.
	Path string
	Args []string
	// State is the current state of the container.
	State ContainerState
	// ImageHash is the digest of the container's image.
	ImageHash string
	Config    Config
	Network   NetworkSettings
	Mounts    []Mount
}

// PodInspect is the subset of "podman pod inspect" the harness consumes.
type PodInspect struct {
	ID   string
	Name string
	// InfraContainerID is the id of the container owning the pod's network
	// namespace.
	InfraContainerID string
}
