// SPDX-License-Identifier: MPL-2.0

// Package enginetest provides a scriptable in-memory Engine for tests of
// the packages driving container engines.
package enginetest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"ocibox/internal/engine"
	"ocibox/internal/inspect"
	"ocibox/pkg/version"
)

// Fake implements engine.Engine without spawning processes. Zero value
// behavior is a healthy podman-like engine; individual operations are
// overridden through the function fields. Every operation is recorded in
// call order.
type Fake struct {
	mu    sync.Mutex
	calls []string

	// EngineName defaults to "podman".
	EngineName string
	// EngineVersion defaults to 5.0.0.
	EngineVersion version.Version

	PodsSupported          bool
	FormatsSupported       bool
	HealthcheckInheritance bool

	PullFn                func(ref string) error
	ImageExistsFn         func(ref string) bool
	BuildFn               func(opts engine.BuildOptions) (string, error)
	TagFn                 func(id, tag string) error
	ImageHealthcheckFn    func(ref string) (*inspect.HealthCheck, error)
	ImageDefinesCommandFn func(ref string) (bool, error)
	RunFn                 func(opts engine.RunOptions) error
	StopFn                func(id string) error
	RemoveContainerFn     func(id string, force bool) error
	LogsFn                func(id string) (string, error)
	ExecFn                func(id string, command []string) (string, error)
	InspectContainerFn    func(id string) (*inspect.ContainerInspect, error)
	ContainerHealthFn     func(id string) (inspect.Health, error)
	CreateVolumeFn        func() (string, error)
	RemoveVolumeFn        func(id string, force bool) error
	CreatePodFn           func(opts engine.PodOptions) (string, error)
	InspectPodFn          func(id string) (*inspect.PodInspect, error)
	RemovePodFn           func(id string, force bool) error
}

var _ engine.Engine = (*Fake)(nil)

// NewPodmanLike returns a fake reporting full podman capabilities.
func NewPodmanLike() *Fake {
	return &Fake{
		PodsSupported:          true,
		FormatsSupported:       true,
		HealthcheckInheritance: true,
	}
}

// NewDockerLike returns a fake reporting docker capabilities.
func NewDockerLike() *Fake {
	return &Fake{
		EngineName:             "docker",
		HealthcheckInheritance: true,
	}
}

func (f *Fake) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Calls returns every recorded operation in invocation order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsWithPrefix returns the recorded operations starting with prefix.
func (f *Fake) CallsWithPrefix(prefix string) []string {
	var matched []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			matched = append(matched, c)
		}
	}
	return matched
}

func (f *Fake) Name() string {
	if f.EngineName != "" {
		return f.EngineName
	}
	return "podman"
}

func (f *Fake) RunnerBinary() string { return f.Name() }

func (f *Fake) BuildCommand() []string {
	return []string{f.Name(), "build"}
}

func (f *Fake) Version(context.Context) (version.Version, error) {
	if f.EngineVersion.Major != 0 {
		return f.EngineVersion, nil
	}
	return version.MustParse("5.0.0"), nil
}

func (f *Fake) SupportsPods() bool         { return f.PodsSupported }
func (f *Fake) SupportsImageFormats() bool { return f.FormatsSupported }

func (f *Fake) SupportsHealthcheckInheritance(context.Context) bool {
	f.record("healthcheck inheritance")
	return f.HealthcheckInheritance
}

func (f *Fake) Pull(_ context.Context, ref string) error {
	f.record("pull %s", ref)
	if f.PullFn != nil {
		return f.PullFn(ref)
	}
	return nil
}

func (f *Fake) ImageExists(_ context.Context, ref string) bool {
	f.record("image exists %s", ref)
	if f.ImageExistsFn != nil {
		return f.ImageExistsFn(ref)
	}
	return true
}

func (f *Fake) Build(_ context.Context, opts engine.BuildOptions) (string, error) {
	f.record("build %s", opts.ContainerfilePath)
	if f.BuildFn != nil {
		return f.BuildFn(opts)
	}
	return "builtimageid", nil
}

func (f *Fake) Tag(_ context.Context, id, tag string) error {
	f.record("tag %s %s", id, tag)
	if f.TagFn != nil {
		return f.TagFn(id, tag)
	}
	return nil
}

func (f *Fake) ImageHealthcheck(_ context.Context, ref string) (*inspect.HealthCheck, error) {
	f.record("image healthcheck %s", ref)
	if f.ImageHealthcheckFn != nil {
		return f.ImageHealthcheckFn(ref)
	}
	return nil, nil
}

func (f *Fake) ImageDefinesCommand(_ context.Context, ref string) (bool, error) {
	f.record("image defines command %s", ref)
	if f.ImageDefinesCommandFn != nil {
		return f.ImageDefinesCommandFn(ref)
	}
	return true, nil
}

// Run records the launch and honors the cidfile protocol: unless
// overridden, the id "fakecontainer" is written to the requested cidfile.
func (f *Fake) Run(_ context.Context, opts engine.RunOptions) error {
	f.record("run %s", strings.Join(opts.Args, " "))
	if f.RunFn != nil {
		return f.RunFn(opts)
	}
	if opts.CIDFile != "" {
		return os.WriteFile(opts.CIDFile, []byte("fakecontainer\n"), 0o600)
	}
	return nil
}

func (f *Fake) Stop(_ context.Context, id string) error {
	f.record("stop %s", id)
	if f.StopFn != nil {
		return f.StopFn(id)
	}
	return nil
}

func (f *Fake) RemoveContainer(_ context.Context, id string, force bool) error {
	f.record("rm force=%v %s", force, id)
	if f.RemoveContainerFn != nil {
		return f.RemoveContainerFn(id, force)
	}
	return nil
}

func (f *Fake) Logs(_ context.Context, id string) (string, error) {
	f.record("logs %s", id)
	if f.LogsFn != nil {
		return f.LogsFn(id)
	}
	return "", nil
}

func (f *Fake) Exec(_ context.Context, id string, command []string) (string, error) {
	f.record("exec %s %s", id, strings.Join(command, " "))
	if f.ExecFn != nil {
		return f.ExecFn(id, command)
	}
	return "", nil
}

func (f *Fake) InspectContainer(_ context.Context, id string) (*inspect.ContainerInspect, error) {
	f.record("inspect %s", id)
	if f.InspectContainerFn != nil {
		return f.InspectContainerFn(id)
	}
	return &inspect.ContainerInspect{
		ID:    id,
		State: inspect.ContainerState{Status: "running", Running: true},
	}, nil
}

func (f *Fake) ContainerHealth(_ context.Context, id string) (inspect.Health, error) {
	f.record("health %s", id)
	if f.ContainerHealthFn != nil {
		return f.ContainerHealthFn(id)
	}
	return inspect.HealthNone, nil
}

func (f *Fake) CreateVolume(context.Context) (string, error) {
	f.record("volume create")
	if f.CreateVolumeFn != nil {
		return f.CreateVolumeFn()
	}
	return "fakevolume", nil
}

func (f *Fake) RemoveVolume(_ context.Context, id string, force bool) error {
	f.record("volume rm force=%v %s", force, id)
	if f.RemoveVolumeFn != nil {
		return f.RemoveVolumeFn(id, force)
	}
	return nil
}

func (f *Fake) CreatePod(_ context.Context, opts engine.PodOptions) (string, error) {
	f.record("pod create %s %s", opts.Name, strings.Join(opts.PortArgs, " "))
	if f.CreatePodFn != nil {
		return f.CreatePodFn(opts)
	}
	return "fakepod", nil
}

func (f *Fake) InspectPod(_ context.Context, id string) (*inspect.PodInspect, error) {
	f.record("pod inspect %s", id)
	if f.InspectPodFn != nil {
		return f.InspectPodFn(id)
	}
	return &inspect.PodInspect{ID: id, InfraContainerID: "fakeinfra"}, nil
}

func (f *Fake) RemovePod(_ context.Context, id string, force bool) error {
	f.record("pod rm force=%v %s", force, id)
	if f.RemovePodFn != nil {
		return f.RemovePodFn(id, force)
	}
	return nil
}
