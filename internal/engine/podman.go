// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"ocibox/pkg/version"
)

// Option tweaks engine construction; used by tests to substitute the
// process execution and PATH lookup.
type Option func(*engineOptions)

type engineOptions struct {
	execCommand ExecCommandFunc
	lookPath    LookPathFunc
}

// WithExecCommand substitutes the function used to spawn engine processes.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(o *engineOptions) { o.execCommand = fn }
}

// WithLookPath substitutes the PATH resolution of engine binaries.
func WithLookPath(fn LookPathFunc) Option {
	return func(o *engineOptions) { o.lookPath = fn }
}

func applyOptions(opts []Option) engineOptions {
	o := engineOptions{lookPath: defaultLookPath}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// minimum versions from which images built on top of a base with a
// HEALTHCHECK inherit that healthcheck
var (
	podmanHealthcheckInheritance  = version.MustParse("4.1.0")
	buildahHealthcheckInheritance = version.MustParse("1.25.0")
)

// PodmanEngine drives podman, preferring buildah for image builds when it
// is installed.
type PodmanEngine struct {
	*BaseCLIEngine

	// buildahVersion is set when builds go through buildah.
	buildahVersion *version.Version
}

// NewPodmanEngine locates podman, probes it with a "ps" call and detects
// whether buildah is available for builds. A missing binary or a failing
// probe yields an EngineNotAvailableError.
func NewPodmanEngine(ctx context.Context, opts ...Option) (*PodmanEngine, error) {
	o := applyOptions(opts)

	if _, err := o.lookPath("podman"); err != nil {
		return nil, &EngineNotAvailableError{Engine: TypePodman, Reason: "podman not found in PATH"}
	}

	buildCommand := []string{"podman", "build", "--layers", "--force-rm"}
	var buildahVersion *version.Version
	if _, err := o.lookPath("buildah"); err == nil {
		buildCommand = []string{"buildah", "bud", "--layers", "--force-rm"}
	}

	e := &PodmanEngine{
		BaseCLIEngine: newBaseCLIEngine("podman", "podman", buildCommand, o.execCommand),
	}
	e.formatFlag = "--format"
	e.parseVersion = parsePodmanVersion

	if err := probeEngine(ctx, e.BaseCLIEngine, TypePodman); err != nil {
		return nil, err
	}

	if buildCommand[0] == "buildah" {
		v, err := e.buildahVersionFromBanner(ctx)
		if err != nil {
			log.Warn("could not determine buildah version, falling back to podman build", "error", err)
			e.buildCommand = []string{"podman", "build", "--layers", "--force-rm"}
		} else {
			buildahVersion = &v
		}
	}
	e.buildahVersion = buildahVersion

	return e, nil
}

func (e *PodmanEngine) buildahVersionFromBanner(ctx context.Context) (version.Version, error) {
	cmd := e.execCommand(ctx, "buildah", "--version")
	out, err := cmd.Output()
	if err != nil {
		return version.Version{}, fmt.Errorf("buildah --version: %w", err)
	}
	return parseBuildahVersion(strings.TrimSpace(string(out)))
}

func (e *PodmanEngine) SupportsPods() bool { return true }

func (e *PodmanEngine) SupportsImageFormats() bool { return true }

// SupportsHealthcheckInheritance reports whether derived images keep the
// healthcheck of their base. Requires podman 4.1 and, when buildah performs
// the builds, buildah 1.25.
func (e *PodmanEngine) SupportsHealthcheckInheritance(ctx context.Context) bool {
	v, err := e.Version(ctx)
	if err != nil {
		log.Warn("could not determine podman version", "error", err)
		return false
	}
	if !v.AtLeast(podmanHealthcheckInheritance) {
		return false
	}
	if e.buildahVersion != nil && !e.buildahVersion.AtLeast(buildahHealthcheckInheritance) {
		return false
	}
	return true
}

// ImageExists uses podman's dedicated existence check.
func (e *PodmanEngine) ImageExists(ctx context.Context, ref string) bool {
	_, err := e.runOutput(ctx, "image", "exists", ref)
	return err == nil
}

// probeEngine verifies the engine actually answers by listing containers.
// The stderr of a failing probe usually names the real problem (no daemon,
// missing user namespace setup), so it is carried into the error.
func probeEngine(ctx context.Context, e *BaseCLIEngine, typ Type) error {
	if _, err := e.runOutput(ctx, "ps"); err != nil {
		return &EngineNotAvailableError{Engine: typ, Reason: err.Error()}
	}
	return nil
}

// parsePodmanVersion parses banners like "podman version 4.9.3".
func parsePodmanVersion(banner string) (version.Version, error) {
	rest, ok := cutPrefixFold(banner, "podman version ")
	if !ok {
		return version.Version{}, fmt.Errorf("unexpected podman version banner %q", banner)
	}
	return version.Parse(rest)
}

// parseBuildahVersion parses banners like
// "buildah version 1.29.1 (image-spec 1.0.2, runtime-spec 1.0.2)".
func parseBuildahVersion(banner string) (version.Version, error) {
	rest, ok := cutPrefixFold(banner, "buildah version ")
	if !ok {
		return version.Version{}, fmt.Errorf("unexpected buildah version banner %q", banner)
	}
	if fields := strings.Fields(rest); len(fields) > 0 {
		rest = fields[0]
	}
	return version.Parse(rest)
}

// cutPrefixFold is strings.CutPrefix with ASCII case folding on the prefix.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
