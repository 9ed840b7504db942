// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"fmt"
	"strings"

	"ocibox/pkg/version"
)

// DockerEngine drives the docker CLI against a running daemon.
type DockerEngine struct {
	*BaseCLIEngine
}

// NewDockerEngine locates docker and probes the daemon with a "ps" call. A
// missing binary or an unreachable daemon yields an EngineNotAvailableError.
func NewDockerEngine(ctx context.Context, opts ...Option) (*DockerEngine, error) {
	o := applyOptions(opts)

	if _, err := o.lookPath("docker"); err != nil {
		return nil, &EngineNotAvailableError{Engine: TypeDocker, Reason: "docker not found in PATH"}
	}

	e := &DockerEngine{
		BaseCLIEngine: newBaseCLIEngine(
			"docker", "docker",
			[]string{"docker", "build", "--force-rm"},
			o.execCommand),
	}
	e.parseVersion = parseDockerVersion

	if err := probeEngine(ctx, e.BaseCLIEngine, TypeDocker); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *DockerEngine) SupportsPods() bool { return false }

func (e *DockerEngine) SupportsImageFormats() bool { return false }

// SupportsHealthcheckInheritance always holds for docker, which only knows
// the docker image format.
func (e *DockerEngine) SupportsHealthcheckInheritance(context.Context) bool { return true }

// ImageExists probes the image via inspect; docker has no dedicated
// existence subcommand.
func (e *DockerEngine) ImageExists(ctx context.Context, ref string) bool {
	_, err := e.runOutput(ctx, "image", "inspect", "-f", "{{.Id}}", ref)
	return err == nil
}

// parseDockerVersion parses banners like
// "Docker version 20.10.16, build aa7e414".
func parseDockerVersion(banner string) (version.Version, error) {
	rest, ok := cutPrefixFold(banner, "docker version ")
	if !ok {
		return version.Version{}, fmt.Errorf("unexpected docker version banner %q", banner)
	}
	rest, _, _ = strings.Cut(rest, ",")
	return version.Parse(rest)
}
