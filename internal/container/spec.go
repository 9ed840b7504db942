// SPDX-License-Identifier: MPL-2.0

package container

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"ocibox/internal/engine"
	"ocibox/internal/inspect"
	"ocibox/internal/issue"
	"ocibox/internal/lockfile"
	"ocibox/internal/volume"
)

// LocalImagePrefix marks a reference that only exists in the engine's local
// store and must never be pulled.
const LocalImagePrefix = "containers-storage:"

// EntrypointSelection picks the process started inside the container.
type EntrypointSelection string

const (
	// EntrypointAuto uses the image's entrypoint when the image defines one
	// and falls back to a bash shell otherwise.
	EntrypointAuto EntrypointSelection = "auto"
	// EntrypointBash always launches a bash shell.
	EntrypointBash EntrypointSelection = "bash"
	// EntrypointImage always uses the image's own entrypoint.
	EntrypointImage EntrypointSelection = "image"
)

// Common are the launch-relevant fields shared by all spec variants.
type Common struct {
	// Entrypoint selects the container's main process; empty means auto.
	Entrypoint EntrypointSelection
	// CustomEntrypoint replaces the image entrypoint with an explicit
	// command when set.
	CustomEntrypoint string
	// ExtraEntrypointArgs are appended after the entrypoint.
	ExtraEntrypointArgs []string
	// ExtraLaunchArgs are inserted into the run command before the image.
	ExtraLaunchArgs []string
	// Env is added to the container environment.
	Env map[string]string
	// Ports are forwarded from the container to host ports assigned at
	// launch.
	Ports []inspect.PortForwarding
	// Volumes and BindMounts are provisioned before the launch and released
	// on teardown.
	Volumes    []volume.Volume
	BindMounts []volume.BindMount
	// HealthcheckTimeout overrides the wait derived from the image's health
	// check. Nil follows the image; zero or negative disables waiting.
	HealthcheckTimeout *time.Duration
	// Singleton holds the spec's lock from preparation through teardown so
	// that at most one instance is alive system-wide.
	Singleton bool
}

// Spec is a container specification, either a plain image reference
// (Container) or an image derived from a base (DerivedContainer).
type Spec interface {
	fmt.Stringer

	// Common returns the shared launch fields.
	Common() *Common
	// IdentityHash is a deterministic digest over all identity-relevant
	// fields; resolved image and container ids are excluded so the same
	// logical spec always maps to the same lock.
	IdentityHash() string

	sealed()
}

// LockPath returns the path of the preparation lock of spec.
func LockPath(spec Spec) string {
	return lockfile.In("ocibox-" + spec.IdentityHash() + ".lock")
}

// Container is a plain image reference, pulled from a registry unless it
// carries the local store prefix.
type Container struct {
	// URL is the image reference, e.g. "registry.example.com/nginx:latest"
	// or "containers-storage:localimage".
	URL string

	ContainerSettings Common
}

func (c *Container) Common() *Common { return &c.ContainerSettings }

func (c *Container) String() string { return c.URL }

// Local reports whether the reference lives in the local store only.
func (c *Container) Local() bool {
	return strings.HasPrefix(c.URL, LocalImagePrefix)
}

// Ref is the reference passed to the engine, with the local store prefix
// stripped.
func (c *Container) Ref() string {
	return strings.TrimPrefix(c.URL, LocalImagePrefix)
}

// Validate rejects specs the engine could never resolve.
func (c *Container) Validate() error {
	if c.Ref() == "" {
		return &issue.ConfigurationError{
			Resource: "container",
			Reason:   "image url must not be empty",
		}
	}
	return validateCommon(c.URL, &c.ContainerSettings)
}

func (c *Container) IdentityHash() string {
	h := sha256.New()
	writeField(h, "container")
	writeField(h, c.URL)
	writeCommon(h, &c.ContainerSettings)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Container) sealed() {}

// DerivedContainer is an image built on top of a base, which is either
// another spec or a bare reference.
type DerivedContainer struct {
	// Base is the spec this image builds on. Exactly one of Base and
	// BaseURL must be set.
	Base Spec
	// BaseURL names the base as a plain reference without declaring a full
	// spec for it.
	BaseURL string
	// Containerfile holds the instructions appended after the FROM line.
	// A derived container without instructions and extra tags resolves to
	// its base image and skips the build.
	Containerfile string
	// ImageFormat forces the built image's format; empty lets the engine
	// decide based on the base's health check.
	ImageFormat engine.ImageFormat
	// ExtraBuildTags are applied to the built image in addition to the
	// identity tag.
	ExtraBuildTags []string

	ContainerSettings Common
}

func (c *DerivedContainer) Common() *Common { return &c.ContainerSettings }

func (c *DerivedContainer) String() string {
	if c.Base != nil {
		return "derived from " + c.Base.String()
	}
	return "derived from " + c.BaseURL
}

// Validate rejects derived specs without a usable base.
func (c *DerivedContainer) Validate() error {
	if c.Base == nil && c.BaseURL == "" {
		return &issue.ConfigurationError{
			Resource: "derived container",
			Reason:   "a base spec or base url is required",
		}
	}
	if c.Base != nil && c.BaseURL != "" {
		return &issue.ConfigurationError{
			Resource: c.String(),
			Reason:   "base spec and base url are mutually exclusive",
		}
	}
	return validateCommon(c.String(), &c.ContainerSettings)
}

// base returns the base as a spec, wrapping a bare BaseURL on the fly.
func (c *DerivedContainer) base() Spec {
	if c.Base != nil {
		return c.Base
	}
	return &Container{URL: c.BaseURL}
}

// skipsBuild reports whether the spec resolves to its base image without
// building anything.
func (c *DerivedContainer) skipsBuild() bool {
	return strings.TrimSpace(c.Containerfile) == "" && len(c.ExtraBuildTags) == 0
}

func (c *DerivedContainer) IdentityHash() string {
	h := sha256.New()
	writeField(h, "derived")
	if c.Base != nil {
		writeField(h, c.Base.IdentityHash())
	} else {
		writeField(h, c.BaseURL)
	}
	writeField(h, c.Containerfile)
	writeField(h, string(c.ImageFormat))
	for _, tag := range c.ExtraBuildTags {
		writeField(h, tag)
	}
	writeCommon(h, &c.ContainerSettings)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *DerivedContainer) sealed() {}

func validateCommon(resource string, common *Common) error {
	switch common.Entrypoint {
	case "", EntrypointAuto, EntrypointBash, EntrypointImage:
	default:
		return &issue.ConfigurationError{
			Resource: resource,
			Reason:   fmt.Sprintf("unknown entrypoint selection %q", common.Entrypoint),
		}
	}
	for _, fwd := range common.Ports {
		if err := fwd.Protocol.Validate(); err != nil {
			return &issue.ConfigurationError{
				Resource: resource,
				Reason:   err.Error(),
			}
		}
	}
	return nil
}

// writeField writes one identity field with a separator so that adjacent
// fields cannot collide.
func writeField(w io.Writer, field string) {
	io.WriteString(w, field)
	w.Write([]byte{0})
}

func writeCommon(w io.Writer, common *Common) {
	writeField(w, string(common.Entrypoint))
	writeField(w, common.CustomEntrypoint)
	for _, arg := range common.ExtraEntrypointArgs {
		writeField(w, arg)
	}
	for _, arg := range common.ExtraLaunchArgs {
		writeField(w, arg)
	}

	keys := make([]string, 0, len(common.Env))
	for k := range common.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(w, k+"="+common.Env[k])
	}

	for _, fwd := range common.Ports {
		writeField(w, fwd.String())
	}
	for _, v := range common.Volumes {
		writeField(w, fmt.Sprintf("volume %s %v", v.ContainerPath, v.Flags))
	}
	for _, m := range common.BindMounts {
		writeField(w, fmt.Sprintf("bind %s %s %v", m.HostPath, m.ContainerPath, m.Flags))
	}
	if common.HealthcheckTimeout != nil {
		writeField(w, common.HealthcheckTimeout.String())
	}
	writeField(w, fmt.Sprintf("singleton=%v", common.Singleton))
}
