// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"ocibox/internal/engine"
	"ocibox/internal/issue"
)

// Preparer resolves a spec to a runnable image reference, pulling or
// building as needed. Callers must hold the spec's preparation lock; the
// preparer itself performs no locking.
type Preparer struct {
	Engine engine.Engine
	// PullAlways forces a pull even when the reference resolves locally.
	PullAlways bool
	// ExtraBuildArgs are appended to every build invocation.
	ExtraBuildArgs []string
}

// Prepare returns the reference the launcher can hand to the engine's run
// command. Pull and build failures are preparation errors carrying the
// spec's string form.
func (p *Preparer) Prepare(ctx context.Context, spec Spec) (string, error) {
	switch s := spec.(type) {
	case *Container:
		return p.prepareImage(ctx, s)
	case *DerivedContainer:
		return p.prepareDerived(ctx, s)
	default:
		return "", &issue.ConfigurationError{
			Resource: spec.String(),
			Reason:   fmt.Sprintf("unknown spec variant %T", spec),
		}
	}
}

func (p *Preparer) prepareImage(ctx context.Context, c *Container) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	ref := c.Ref()

	if c.Local() {
		log.Debug("image is local, skipping pull", "ref", ref)
		return ref, nil
	}
	if !p.PullAlways && p.Engine.ImageExists(ctx, ref) {
		log.Debug("image present, skipping pull", "ref", ref)
		return ref, nil
	}

	log.Info("pulling image", "ref", ref)
	if err := p.Engine.Pull(ctx, ref); err != nil {
		return "", &issue.PreparationError{Spec: c.String(), Cause: err}
	}
	return ref, nil
}

func (p *Preparer) prepareDerived(ctx context.Context, c *DerivedContainer) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	baseRef, err := p.Prepare(ctx, c.base())
	if err != nil {
		return "", err
	}
	if c.skipsBuild() {
		log.Debug("derived spec has no instructions, resolving to base", "base", baseRef)
		return baseRef, nil
	}

	contextDir, err := os.MkdirTemp("", "ocibox-build-*")
	if err != nil {
		return "", &issue.PreparationError{Spec: c.String(), Cause: err}
	}
	defer func() {
		if err := os.RemoveAll(contextDir); err != nil {
			log.Warn("could not remove build context", "dir", contextDir, "error", err)
		}
	}()

	containerfile := filepath.Join(contextDir, "Containerfile")
	content := fmt.Sprintf("FROM %s\n%s", baseRef, c.Containerfile)
	if err := os.WriteFile(containerfile, []byte(content), 0o600); err != nil {
		return "", &issue.PreparationError{Spec: c.String(), Cause: err}
	}

	opts := engine.BuildOptions{
		ContainerfilePath: containerfile,
		ContextDir:        contextDir,
		IIDFile:           filepath.Join(contextDir, uuid.NewString()+".iid"),
		Format:            p.imageFormat(ctx, c, baseRef),
		ExtraArgs:         p.ExtraBuildArgs,
	}

	log.Info("building derived image", "base", baseRef)
	id, err := p.Engine.Build(ctx, opts)
	if err != nil {
		return "", &issue.PreparationError{Spec: c.String(), Cause: err}
	}

	// tags go through the runner, not the build command: the build may run
	// through a separate build tool whose tags the runner would not see
	tags := append([]string{"ocibox:" + c.IdentityHash()}, c.ExtraBuildTags...)
	for _, tag := range tags {
		if err := p.Engine.Tag(ctx, id, tag); err != nil {
			return "", &issue.PreparationError{Spec: c.String(), Cause: err}
		}
	}
	log.Debug("tagged derived image", "id", id, "tags", tags)
	return id, nil
}

// imageFormat picks the format of the built image. An explicit override
// wins; otherwise, on engines offering multiple formats, a base with a
// health check forces the docker format since OCIv1 cannot carry
// healthcheck metadata.
func (p *Preparer) imageFormat(ctx context.Context, c *DerivedContainer, baseRef string) engine.ImageFormat {
	if c.ImageFormat != "" {
		return c.ImageFormat
	}
	if !p.Engine.SupportsImageFormats() {
		return ""
	}

	hc, err := p.Engine.ImageHealthcheck(ctx, baseRef)
	if err != nil {
		log.Warn("could not inspect base image for a health check", "base", baseRef, "error", err)
		return ""
	}
	if hc != nil {
		if !p.Engine.SupportsHealthcheckInheritance(ctx) {
			log.Warn("engine cannot inherit the base image's health check, the built image will not carry it",
				"engine", p.Engine.Name(), "base", baseRef)
		}
		log.Debug("base declares a health check, building in docker format", "base", baseRef)
		return engine.FormatDocker
	}
	return ""
}
