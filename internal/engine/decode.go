// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ocibox/internal/inspect"
)

// rawContainerInspect mirrors the union of the inspect JSON emitted by
// podman and docker. Fields present in only one family stay pointers so
// their absence is detectable.
type rawContainerInspect struct {
	Id    string
	Name  string
	Path  string
	Args  []string
	Image string
	State struct {
		Status     string
		Running    bool
		Paused     bool
		Restarting bool
		OOMKilled  bool
		Dead       bool
		Pid        int
		// podman reports the health under "Health", docker under the image
		// key "Healthcheck" in older releases.
		Health      *struct{ Status string }
		Healthcheck *struct{ Status string }
	}
	Config struct {
		User        string
		Tty         bool
		Cmd         []string
		Entrypoint  jsonStringList
		Env         []string
		Image       string
		Labels      map[string]string
		WorkingDir  string
		StopSignal  string
		Healthcheck *inspect.HealthCheck
	}
	NetworkSettings struct {
		Ports     map[string][]rawPortBinding
		IPAddress string
	}
	Mounts []struct {
		Type        string
		Source      string
		Destination string
		RW          bool
		Name        string
		Driver      string
	}
}

type rawPortBinding struct {
	HostIp   string
	HostPort string
}

// jsonStringList tolerates docker's habit of reporting the entrypoint as a
// plain string instead of an array.
type jsonStringList []string

func (l *jsonStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single == "" {
		*l = nil
		return nil
	}
	*l = strings.Fields(single)
	return nil
}

// decodeContainerInspect normalizes the output of "<engine> inspect <id>".
// Both engines wrap the result in a one-element array.
func decodeContainerInspect(data []byte) (*inspect.ContainerInspect, error) {
	var raws []rawContainerInspect
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode container inspect: %w", err)
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("container inspect returned no entries")
	}
	raw := raws[0]

	insp := &inspect.ContainerInspect{
		ID:   raw.Id,
		Name: strings.TrimPrefix(raw.Name, "/"),
		Path: raw.Path,
		Args: raw.Args,
		State: inspect.ContainerState{
			Status:     raw.State.Status,
			Running:    raw.State.Running,
			Paused:     raw.State.Paused,
			Restarting: raw.State.Restarting,
			OOMKilled:  raw.State.OOMKilled,
			Dead:       raw.State.Dead,
			Pid:        raw.State.Pid,
		},
		ImageHash: strings.TrimPrefix(raw.Image, "sha256:"),
		Config: inspect.Config{
			User:        raw.Config.User,
			Tty:         raw.Config.Tty,
			Cmd:         raw.Config.Cmd,
			Entrypoint:  []string(raw.Config.Entrypoint),
			Env:         splitEnv(raw.Config.Env),
			Image:       raw.Config.Image,
			Labels:      raw.Config.Labels,
			WorkingDir:  raw.Config.WorkingDir,
			StopSignal:  raw.Config.StopSignal,
			Healthcheck: raw.Config.Healthcheck,
		},
		Network: inspect.NetworkSettings{
			IPAddress: raw.NetworkSettings.IPAddress,
		},
	}

	switch {
	case raw.State.Health != nil:
		insp.State.Health = inspect.Health(raw.State.Health.Status)
	case raw.State.Healthcheck != nil:
		insp.State.Health = inspect.Health(raw.State.Healthcheck.Status)
	}

	ports, err := decodePortMap(raw.NetworkSettings.Ports)
	if err != nil {
		return nil, err
	}
	insp.Network.Ports = ports

	for _, m := range raw.Mounts {
		kind := inspect.MountBind
		if m.Type == "volume" {
			kind = inspect.MountVolume
		}
		insp.Mounts = append(insp.Mounts, inspect.Mount{
			Kind:        kind,
			Source:      m.Source,
			Destination: m.Destination,
			RW:          m.RW,
			Name:        m.Name,
			Driver:      m.Driver,
		})
	}

	return insp, nil
}

// splitEnv turns the engine's "KEY=VALUE" list into a map. Entries without
// an equals sign map to the empty string.
func splitEnv(env []string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	vars := make(map[string]string, len(env))
	for _, entry := range env {
		key, value, _ := strings.Cut(entry, "=")
		vars[key] = value
	}
	return vars
}

// decodePortMap turns the NetworkSettings.Ports map ("80/tcp" keyed, bound
// entries carry host ip and port) into resolved forwardings. Exposed but
// unpublished ports have a null binding list and are skipped.
func decodePortMap(raw map[string][]rawPortBinding) ([]inspect.PortForwarding, error) {
	var ports []inspect.PortForwarding
	for key, bindings := range raw {
		if len(bindings) == 0 {
			continue
		}

		portStr, protoStr, _ := strings.Cut(key, "/")
		containerPort, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("container port %q: %w", key, err)
		}
		proto := inspect.Protocol(protoStr)
		if err := proto.Validate(); err != nil {
			return nil, err
		}

		hostPort, err := strconv.Atoi(bindings[0].HostPort)
		if err != nil {
			return nil, fmt.Errorf("host port of %q: %w", key, err)
		}
		ports = append(ports, inspect.PortForwarding{
			ContainerPort: containerPort,
			Protocol:      proto,
			HostPort:      hostPort,
			BindIP:        bindings[0].HostIp,
		})
	}
	return ports, nil
}

// rawImageInspect is the subset of "<engine> image inspect" the harness
// consumes. Podman duplicates the healthcheck at the top level; docker only
// has the Config copy.
type rawImageInspect struct {
	Healthcheck *inspect.HealthCheck
	Config      struct {
		Healthcheck *inspect.HealthCheck
	}
}

func decodeImageInspect(data []byte) (*rawImageInspect, error) {
	var raws []rawImageInspect
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode image inspect: %w", err)
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("image inspect returned no entries")
	}
	return &raws[0], nil
}

func decodeImageHealthcheck(data []byte) (*inspect.HealthCheck, error) {
	raw, err := decodeImageInspect(data)
	if err != nil {
		return nil, err
	}
	if raw.Healthcheck != nil {
		return raw.Healthcheck, nil
	}
	return raw.Config.Healthcheck, nil
}

// rawPodInspect tolerates both the lower-case keys of old podman releases
// and the capitalized ones of current ones.
type rawPodInspect struct {
	Id         string
	Name       string
	Containers []struct {
		Id   string
		Name string
	}
	InfraContainerID string
}

// decodePodInspect normalizes "podman pod inspect" output, which is a bare
// object before podman 5 and a one-element array from 5 on.
func decodePodInspect(data []byte) (*inspect.PodInspect, error) {
	var raw rawPodInspect
	if err := json.Unmarshal(data, &raw); err != nil {
		var raws []rawPodInspect
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("decode pod inspect: %w", err)
		}
		if len(raws) == 0 {
			return nil, fmt.Errorf("pod inspect returned no entries")
		}
		raw = raws[0]
	}

	pod := &inspect.PodInspect{
		ID:               raw.Id,
		Name:             raw.Name,
		InfraContainerID: raw.InfraContainerID,
	}
	// The infra container is the first member; older releases do not report
	// InfraContainerID directly.
	if pod.InfraContainerID == "" && len(raw.Containers) > 0 {
		pod.InfraContainerID = raw.Containers[0].Id
	}
	return pod, nil
}
