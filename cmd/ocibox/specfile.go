// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"

	"ocibox/internal/container"
	"ocibox/internal/engine"
	"ocibox/internal/inspect"
	"ocibox/internal/issue"
	"ocibox/internal/pod"
	"ocibox/internal/volume"
)

// specFile is the TOML surface of a launchable unit. It describes either a
// single container (top-level fields) or a pod ([pod] plus [[container]]
// tables); mixing both shapes is rejected.
//
// Durations are TOML strings in Go syntax ("30s", "1m30s").
type specFile struct {
	containerFile

	Pod        *podFile        `toml:"pod"`
	Containers []containerFile `toml:"container"`
}

// containerFile carries the launch settings shared by standalone containers
// and pod members.
type containerFile struct {
	Image   string       `toml:"image"`
	Derived *derivedFile `toml:"derived"`

	Entrypoint          string            `toml:"entrypoint"`
	CustomEntrypoint    string            `toml:"custom-entrypoint"`
	ExtraEntrypointArgs []string          `toml:"extra-entrypoint-args"`
	ExtraLaunchArgs     []string          `toml:"extra-launch-args"`
	Env                 map[string]string `toml:"env"`
	HealthcheckTimeout  string            `toml:"healthcheck-timeout"`
	Singleton           bool              `toml:"singleton"`

	Ports      []portFile  `toml:"port"`
	Volumes    []mountFile `toml:"volume"`
	BindMounts []mountFile `toml:"bind-mount"`
}

type derivedFile struct {
	Base          string   `toml:"base"`
	Containerfile string   `toml:"containerfile"`
	Format        string   `toml:"format"`
	Tags          []string `toml:"tags"`
}

type podFile struct {
	Name  string     `toml:"name"`
	Ports []portFile `toml:"port"`
}

type portFile struct {
	Container    int    `toml:"container"`
	Host         int    `toml:"host"`
	Protocol     string `toml:"protocol"`
	BindIP       string `toml:"bind-ip"`
	ReadyTimeout string `toml:"ready-timeout"`
}

// mountFile is a [[volume]] or [[bind-mount]] table. Volumes use "path"
// for the container path; bind mounts use "host" and "container".
type mountFile struct {
	Path      string   `toml:"path"`
	Host      string   `toml:"host"`
	Container string   `toml:"container"`
	Shared    bool     `toml:"shared"`
	Flags     []string `toml:"flags"`
}

// loaded is the decoded spec file, exactly one of Container and Pod set.
type loaded struct {
	Container container.Spec
	Pod       *pod.Pod
}

// decodeSpecFile parses and validates a TOML spec file.
func decodeSpecFile(name string, data []byte) (*loaded, error) {
	var file specFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, &issue.ConfigurationError{Resource: name, Reason: err.Error()}
	}

	isPod := file.Pod != nil || len(file.Containers) > 0
	isContainer := file.Image != "" || file.Derived != nil
	switch {
	case isPod && isContainer:
		return nil, &issue.ConfigurationError{
			Resource: name,
			Reason:   "a file declares either one container or a pod, not both",
		}
	case isPod:
		p, err := buildPod(name, &file)
		if err != nil {
			return nil, err
		}
		return &loaded{Pod: p}, nil
	case isContainer:
		spec, err := buildSpec(name, &file.containerFile)
		if err != nil {
			return nil, err
		}
		return &loaded{Container: spec}, nil
	default:
		return nil, &issue.ConfigurationError{
			Resource: name,
			Reason:   "no image, derived section or pod declared",
		}
	}
}

func buildPod(name string, file *specFile) (*pod.Pod, error) {
	if len(file.Containers) == 0 {
		return nil, &issue.ConfigurationError{
			Resource: name,
			Reason:   "a pod needs at least one [[container]] table",
		}
	}

	p := &pod.Pod{}
	if file.Pod != nil {
		p.Name = file.Pod.Name
		ports, err := buildPorts(name, file.Pod.Ports)
		if err != nil {
			return nil, err
		}
		p.Ports = ports
	}
	for i := range file.Containers {
		spec, err := buildSpec(fmt.Sprintf("%s container %d", name, i+1), &file.Containers[i])
		if err != nil {
			return nil, err
		}
		p.Containers = append(p.Containers, spec)
	}
	return p, nil
}

func buildSpec(resource string, file *containerFile) (container.Spec, error) {
	common, err := buildCommon(resource, file)
	if err != nil {
		return nil, err
	}

	if file.Derived != nil {
		if file.Image != "" {
			return nil, &issue.ConfigurationError{
				Resource: resource,
				Reason:   "image and derived are mutually exclusive",
			}
		}
		format := engine.ImageFormat(file.Derived.Format)
		switch format {
		case "", engine.FormatDocker, engine.FormatOCI:
		default:
			return nil, &issue.ConfigurationError{
				Resource: resource,
				Reason:   fmt.Sprintf("unknown image format %q", file.Derived.Format),
			}
		}
		spec := &container.DerivedContainer{
			BaseURL:           file.Derived.Base,
			Containerfile:     file.Derived.Containerfile,
			ImageFormat:       format,
			ExtraBuildTags:    file.Derived.Tags,
			ContainerSettings: *common,
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		return spec, nil
	}

	spec := &container.Container{URL: file.Image, ContainerSettings: *common}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func buildCommon(resource string, file *containerFile) (*container.Common, error) {
	common := &container.Common{
		Entrypoint:          container.EntrypointSelection(file.Entrypoint),
		CustomEntrypoint:    file.CustomEntrypoint,
		ExtraEntrypointArgs: file.ExtraEntrypointArgs,
		ExtraLaunchArgs:     file.ExtraLaunchArgs,
		Env:                 file.Env,
		Singleton:           file.Singleton,
	}

	if file.HealthcheckTimeout != "" {
		d, err := parseDuration(resource, "healthcheck-timeout", file.HealthcheckTimeout)
		if err != nil {
			return nil, err
		}
		common.HealthcheckTimeout = &d
	}

	ports, err := buildPorts(resource, file.Ports)
	if err != nil {
		return nil, err
	}
	common.Ports = ports

	for _, m := range file.Volumes {
		vol, err := volume.NewVolume(m.Path, m.Shared, toFlags(m.Flags)...)
		if err != nil {
			return nil, err
		}
		common.Volumes = append(common.Volumes, vol)
	}
	for _, m := range file.BindMounts {
		mount, err := volume.NewBindMount(m.Host, m.Container, m.Shared, toFlags(m.Flags)...)
		if err != nil {
			return nil, err
		}
		common.BindMounts = append(common.BindMounts, mount)
	}

	return common, nil
}

func buildPorts(resource string, files []portFile) ([]inspect.PortForwarding, error) {
	var out []inspect.PortForwarding
	for _, f := range files {
		fwd := inspect.PortForwarding{
			ContainerPort: f.Container,
			HostPort:      f.Host,
			Protocol:      inspect.Protocol(f.Protocol),
			BindIP:        f.BindIP,
		}
		if f.ReadyTimeout != "" {
			d, err := parseDuration(resource, "ready-timeout", f.ReadyTimeout)
			if err != nil {
				return nil, err
			}
			fwd.ReadyTimeout = d
		}
		out = append(out, fwd)
	}
	return out, nil
}

func parseDuration(resource, field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &issue.ConfigurationError{
			Resource: resource,
			Reason:   fmt.Sprintf("%s %q is not a duration", field, value),
		}
	}
	return d, nil
}

func toFlags(raw []string) []volume.Flag {
	flags := make([]volume.Flag, len(raw))
	for i, f := range raw {
		flags[i] = volume.Flag(f)
	}
	return flags
}
