// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"ocibox/internal/inspect"
	"ocibox/pkg/version"
)

// Type identifies a container engine family.
type Type string

const (
	TypePodman Type = "podman"
	TypeDocker Type = "docker"
)

// ErrEngineNotAvailable is the sentinel wrapped by EngineNotAvailableError.
var ErrEngineNotAvailable = errors.New("container engine not available")

// EngineNotAvailableError reports that an engine binary is missing from PATH
// or that its daemon/service did not answer the liveness probe.
type EngineNotAvailableError struct {
	Engine Type
	Reason string
}

func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("engine %q is not available: %s", e.Engine, e.Reason)
}

func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// BuildOptions carries everything a single image build needs.
type BuildOptions struct {
	// ContainerfilePath is the rendered Containerfile fed to the builder.
	ContainerfilePath string
	// ContextDir is the build context directory.
	ContextDir string
	// IIDFile receives the image ID written by the builder.
	IIDFile string
	// Format selects the target image format; empty means builder default.
	// Ignored by engines that do not support multiple formats.
	Format ImageFormat
	// ExtraArgs are appended verbatim after the build command.
	ExtraArgs []string
}

// ImageFormat is the on-disk format of a built image.
type ImageFormat string

const (
	// FormatDocker is required for images whose base declares a HEALTHCHECK,
	// since the OCIv1 format cannot represent healthchecks.
	FormatDocker ImageFormat = "docker"
	FormatOCI    ImageFormat = "oci"
)

// RunOptions carries everything a detached container launch needs. Args is
// the complete argument list following "run -d": flags, image reference and
// command, in the order the engine expects.
type RunOptions struct {
	CIDFile string
	Args    []string
}

// PodOptions carries the arguments of a pod creation.
type PodOptions struct {
	Name string
	// PortArgs are the pod-level published-port flags; individual members of
	// a pod must not publish ports themselves.
	PortArgs []string
	// ExtraArgs are appended verbatim after the create command.
	ExtraArgs []string
}

// Engine is the interface every supported container engine implements. All
// blocking operations take a context; cancelling it kills the underlying
// engine process.
type Engine interface {
	// Name returns the engine family name ("podman" or "docker").
	Name() string
	// RunnerBinary is the binary used for run, inspect and teardown calls.
	RunnerBinary() string
	// BuildCommand is the full command prefix used for image builds, e.g.
	// ["buildah", "bud", "--layers", "--force-rm"].
	BuildCommand() []string
	// Version reports the engine version, parsed from its version banner.
	Version(ctx context.Context) (version.Version, error)

	// SupportsPods reports whether the engine can create pods.
	SupportsPods() bool
	// SupportsImageFormats reports whether builds accept a --format flag.
	SupportsImageFormats() bool
	// SupportsHealthcheckInheritance reports whether images built on top of a
	// base with a HEALTHCHECK inherit that healthcheck.
	SupportsHealthcheckInheritance(ctx context.Context) bool

	Pull(ctx context.Context, ref string) error
	ImageExists(ctx context.Context, ref string) bool
	Build(ctx context.Context, opts BuildOptions) (string, error)
	// Tag applies a tag to a built image. Builds do not tag themselves; the
	// build tool may differ from the runner binary, so tags always go through
	// the runner.
	Tag(ctx context.Context, id, tag string) error
	ImageHealthcheck(ctx context.Context, ref string) (*inspect.HealthCheck, error)
	ImageDefinesCommand(ctx context.Context, ref string) (bool, error)

	Run(ctx context.Context, opts RunOptions) error
	Stop(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	Logs(ctx context.Context, id string) (string, error)
	Exec(ctx context.Context, id string, command []string) (string, error)
	InspectContainer(ctx context.Context, id string) (*inspect.ContainerInspect, error)
	ContainerHealth(ctx context.Context, id string) (inspect.Health, error)

	CreateVolume(ctx context.Context) (string, error)
	RemoveVolume(ctx context.Context, id string, force bool) error

	CreatePod(ctx context.Context, opts PodOptions) (string, error)
	InspectPod(ctx context.Context, id string) (*inspect.PodInspect, error)
	RemovePod(ctx context.Context, id string, force bool) error
}
