// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"fmt"
	"strings"

	"ocibox/internal/issue"
)

// Flag is a mount flag appended to the -v argument of a container launch.
type Flag string

const (
	// ReadOnly mounts the source read-only.
	ReadOnly Flag = "ro"
	// ReadWrite mounts the source writable; this is the engine default and
	// conflicts with ReadOnly.
	ReadWrite Flag = "rw"
	// SELinuxShared relabels the source so multiple containers can share it.
	SELinuxShared Flag = "z"
	// SELinuxPrivate relabels the source for exclusive use by one container.
	SELinuxPrivate Flag = "Z"
	// ChownUser changes the owner of the source to the container user.
	ChownUser Flag = "U"
	// NoExec forbids executing binaries from the mount.
	NoExec Flag = "noexec"
	// Overlay mounts the source as a temporary writable overlay.
	Overlay Flag = "O"
)

var knownFlags = map[Flag]struct{}{
	ReadOnly: {}, ReadWrite: {}, SELinuxShared: {}, SELinuxPrivate: {},
	ChownUser: {}, NoExec: {}, Overlay: {},
}

// mutually exclusive flag pairs; declaring both is rejected before any
// engine call happens
var conflictingFlags = [][2]Flag{
	{ReadOnly, ReadWrite},
	{SELinuxShared, SELinuxPrivate},
}

// validateFlags rejects unknown flags and conflicting pairs. The resource
// name only serves the error message.
func validateFlags(resource string, flags []Flag) error {
	set := make(map[Flag]struct{}, len(flags))
	for _, f := range flags {
		if _, ok := knownFlags[f]; !ok {
			return &issue.ConfigurationError{
				Resource: resource,
				Reason:   fmt.Sprintf("unknown mount flag %q", f),
			}
		}
		if _, dup := set[f]; dup {
			return &issue.ConfigurationError{
				Resource: resource,
				Reason:   fmt.Sprintf("mount flag %q given twice", f),
			}
		}
		set[f] = struct{}{}
	}
	for _, pair := range conflictingFlags {
		if _, a := set[pair[0]]; !a {
			continue
		}
		if _, b := set[pair[1]]; b {
			return &issue.ConfigurationError{
				Resource: resource,
				Reason:   fmt.Sprintf("mount flags %q and %q are mutually exclusive", pair[0], pair[1]),
			}
		}
	}
	return nil
}

// defaultFlags returns the SELinux labeling applied when a declaration
// carries no flags at all.
func defaultFlags(shared bool) []Flag {
	if shared {
		return []Flag{SELinuxShared}
	}
	return []Flag{SELinuxPrivate}
}

func flagSuffix(flags []Flag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

// Volume declares an engine-managed named volume mounted at ContainerPath.
// The volume itself is created during launch and removed on teardown.
type Volume struct {
	ContainerPath string
	Flags         []Flag
}

// NewVolume validates and returns a named volume declaration. Without
// explicit flags the volume is labeled for exclusive use; pass shared to
// label it for sharing between containers instead.
func NewVolume(containerPath string, shared bool, flags ...Flag) (Volume, error) {
	if containerPath == "" {
		return Volume{}, &issue.ConfigurationError{
			Resource: "volume",
			Reason:   "container path must not be empty",
		}
	}
	if err := validateFlags("volume "+containerPath, flags); err != nil {
		return Volume{}, err
	}
	if len(flags) == 0 {
		flags = defaultFlags(shared)
	}
	return Volume{ContainerPath: containerPath, Flags: flags}, nil
}

// BindMount declares a host directory mounted at ContainerPath. An empty
// HostPath requests a temporary directory owned by the provisioner.
type BindMount struct {
	HostPath      string
	ContainerPath string
	Flags         []Flag
}

// NewBindMount validates and returns a bind mount declaration. hostPath may
// be empty, in which case a temporary host directory is created at launch
// and removed on teardown.
func NewBindMount(hostPath, containerPath string, shared bool, flags ...Flag) (BindMount, error) {
	if containerPath == "" {
		return BindMount{}, &issue.ConfigurationError{
			Resource: "bind mount",
			Reason:   "container path must not be empty",
		}
	}
	if err := validateFlags("bind mount "+containerPath, flags); err != nil {
		return BindMount{}, err
	}
	if len(flags) == 0 {
		flags = defaultFlags(shared)
	}
	return BindMount{HostPath: hostPath, ContainerPath: containerPath, Flags: flags}, nil
}
