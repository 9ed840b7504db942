// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"ocibox/internal/engine"
	"ocibox/internal/issue"
)

// Provisioner binds a declared storage source to a live backing resource.
// Acquire must run before the container launch, Release after its removal.
// Release is idempotent and never fails the teardown; problems are logged.
type Provisioner interface {
	Acquire(ctx context.Context, eng engine.Engine) error
	Release(ctx context.Context, eng engine.Engine)
	// CLIArgs returns the -v argument pair of the launch command. Only valid
	// after a successful Acquire.
	CLIArgs() []string
}

// Provisioners returns one provisioner per declaration, volumes first, in
// declaration order.
func Provisioners(volumes []Volume, mounts []BindMount) []Provisioner {
	provs := make([]Provisioner, 0, len(volumes)+len(mounts))
	for _, v := range volumes {
		provs = append(provs, &VolumeProvisioner{Volume: v})
	}
	for _, m := range mounts {
		provs = append(provs, &BindMountProvisioner{BindMount: m})
	}
	return provs
}

// VolumeProvisioner creates and removes the named volume backing a Volume
// declaration.
type VolumeProvisioner struct {
	Volume

	// ID is the engine-assigned volume id, set by Acquire.
	ID string
}

func (p *VolumeProvisioner) Acquire(ctx context.Context, eng engine.Engine) error {
	id, err := eng.CreateVolume(ctx)
	if err != nil {
		return fmt.Errorf("create volume for %s: %w", p.ContainerPath, err)
	}
	p.ID = id
	log.Debug("created volume", "id", id, "container_path", p.ContainerPath)
	return nil
}

func (p *VolumeProvisioner) Release(ctx context.Context, eng engine.Engine) {
	if p.ID == "" {
		return
	}
	if err := eng.RemoveVolume(ctx, p.ID, true); err != nil {
		log.Warn("could not remove volume", "id", p.ID, "error", err)
	}
	p.ID = ""
}

func (p *VolumeProvisioner) CLIArgs() []string {
	return []string{"-v", fmt.Sprintf("%s:%s:%s", p.ID, p.ContainerPath, flagSuffix(p.Flags))}
}

// BindMountProvisioner resolves the host directory backing a BindMount
// declaration. Declarations without a host path get a temporary directory
// owned by the provisioner.
type BindMountProvisioner struct {
	BindMount

	// hostDir is the resolved absolute host directory, set by Acquire.
	hostDir string
	// owned marks temporary directories created by Acquire.
	owned bool
}

func (p *BindMountProvisioner) Acquire(ctx context.Context, eng engine.Engine) error {
	if p.HostPath == "" {
		dir, err := os.MkdirTemp("", "ocibox-bind-*")
		if err != nil {
			return fmt.Errorf("create bind mount directory for %s: %w", p.ContainerPath, err)
		}
		p.hostDir = dir
		p.owned = true
		log.Debug("created bind mount directory", "host_path", dir, "container_path", p.ContainerPath)
		return nil
	}

	abs, err := filepath.Abs(p.HostPath)
	if err != nil {
		return fmt.Errorf("resolve bind mount path %s: %w", p.HostPath, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return &issue.ConfigurationError{
			Resource: "bind mount " + p.ContainerPath,
			Reason:   fmt.Sprintf("host path %s does not exist", abs),
		}
	}
	p.hostDir = abs
	return nil
}

func (p *BindMountProvisioner) Release(ctx context.Context, eng engine.Engine) {
	if p.hostDir == "" {
		return
	}
	if p.owned {
		if err := os.RemoveAll(p.hostDir); err != nil {
			log.Warn("could not remove bind mount directory", "host_path", p.hostDir, "error", err)
		}
	}
	p.hostDir = ""
	p.owned = false
}

// HostDir returns the resolved host directory; empty before Acquire.
func (p *BindMountProvisioner) HostDir() string { return p.hostDir }

func (p *BindMountProvisioner) CLIArgs() []string {
	return []string{"-v", fmt.Sprintf("%s:%s:%s", p.hostDir, p.ContainerPath, flagSuffix(p.Flags))}
}
