// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"ocibox/internal/engine"
	"ocibox/internal/inspect"
	"ocibox/internal/issue"
	"ocibox/internal/lockfile"
	"ocibox/internal/ports"
	"ocibox/internal/volume"
)

// minimum cadence of the health check poll loop
const minHealthPollInterval = 500 * time.Millisecond

// Launcher drives one container through its lifecycle. A launcher is used
// once: Launch, then Teardown. Teardown is idempotent and runs on every
// failure path inside Launch, so callers never inherit partial resources.
type Launcher struct {
	Engine engine.Engine
	Spec   Spec

	// PullAlways and ExtraBuildArgs parameterize the image preparation.
	PullAlways     bool
	ExtraBuildArgs []string
	// ExtraRunArgs are inserted into the run command before the spec's own
	// launch args.
	ExtraRunArgs []string
	// PodID joins the container to an existing pod; implies suppressed port
	// exposure since the pod owns the port space.
	PodID string

	state        State
	lock         *lockfile.Lock
	provisioners []volume.Provisioner
	// cleanup holds release callbacks, run in reverse order on teardown.
	cleanup []func(ctx context.Context)
	// ownVolumes are the ids of volumes created for the spec's own
	// declarations, as opposed to ones leaked by the image.
	ownVolumes map[string]struct{}

	imageRef string
	id       string
	resolved []inspect.PortForwarding
	logs     string
	torn     bool
	data     *ContainerData
}

// State returns the launcher's current lifecycle state.
func (l *Launcher) State() State { return l.state }

// Launch runs the full state machine up to Ready and returns the live
// handle. On any failure the already-acquired resources are torn down
// before the error is returned.
func (l *Launcher) Launch(ctx context.Context) (*ContainerData, error) {
	common := l.Spec.Common()

	l.state = StatePreparing
	lock, err := lockfile.Acquire(LockPath(l.Spec))
	if err != nil {
		l.state = StateFailed
		return nil, fmt.Errorf("acquire preparation lock: %w", err)
	}
	l.lock = lock

	prep := &Preparer{Engine: l.Engine, PullAlways: l.PullAlways, ExtraBuildArgs: l.ExtraBuildArgs}
	imageRef, err := prep.Prepare(ctx, l.Spec)
	if err != nil {
		// release before propagating so other callers are not blocked by a
		// dead spec
		l.lock.Release()
		l.lock = nil
		l.state = StateFailed
		return nil, err
	}
	l.imageRef = imageRef

	// non-singleton specs release the lock right after preparation;
	// parallel launches are safe once the image exists. Singleton specs
	// hold it until teardown.
	if !common.Singleton {
		l.lock.Release()
		l.lock = nil
	}

	l.state = StateLaunching
	if err := l.launch(ctx, common); err != nil {
		l.fail(ctx)
		return nil, err
	}

	l.state = StateStarting
	if err := l.waitForHealth(ctx, common); err != nil {
		l.fail(ctx)
		return nil, err
	}

	l.state = StateReady
	l.data = &ContainerData{
		ImageRef: l.imageRef,
		ID:       l.id,
		Ports:    l.resolved,
		Spec:     l.Spec,
		launcher: l,
	}
	for _, prov := range l.provisioners {
		switch p := prov.(type) {
		case *volume.VolumeProvisioner:
			l.data.VolumeIDs = append(l.data.VolumeIDs, p.ID)
		case *volume.BindMountProvisioner:
			l.data.BindMountDirs = append(l.data.BindMountDirs, p.HostDir())
		}
	}
	log.Info("container ready", "id", l.id, "image", l.imageRef)
	return l.data, nil
}

// launch acquires volumes and ports and issues the run command.
func (l *Launcher) launch(ctx context.Context, common *Common) error {
	l.ownVolumes = make(map[string]struct{})
	l.provisioners = volume.Provisioners(common.Volumes, common.BindMounts)
	for _, prov := range l.provisioners {
		prov := prov
		if err := prov.Acquire(ctx, l.Engine); err != nil {
			return err
		}
		l.cleanup = append(l.cleanup, func(ctx context.Context) {
			prov.Release(ctx, l.Engine)
		})
		if vp, ok := prov.(*volume.VolumeProvisioner); ok {
			l.ownVolumes[vp.ID] = struct{}{}
		}
	}

	cidDir, err := os.MkdirTemp("", "ocibox-cid-*")
	if err != nil {
		return &issue.LaunchError{Spec: l.Spec.String(), Cause: err}
	}
	l.cleanup = append(l.cleanup, func(context.Context) {
		if err := os.RemoveAll(cidDir); err != nil {
			log.Warn("could not remove cidfile directory", "dir", cidDir, "error", err)
		}
	})
	cidfile := filepath.Join(cidDir, "cid")

	args, err := l.runArgs(ctx, common)
	if err != nil {
		return err
	}

	runOnce := func(resolved []inspect.PortForwarding) error {
		full := make([]string, 0, len(args)+2*len(resolved))
		for _, fwd := range resolved {
			full = append(full, fwd.CLIArgs()...)
		}
		full = append(full, args...)
		if err := l.Engine.Run(ctx, engine.RunOptions{CIDFile: cidfile, Args: full}); err != nil {
			return &issue.LaunchError{Spec: l.Spec.String(), Cause: err}
		}
		return nil
	}

	// pod members do not publish ports, the pod owns the port space
	if len(common.Ports) > 0 && l.PodID == "" {
		resolved, err := ports.ReserveUnderLock(common.Ports, runOnce)
		if err != nil {
			return err
		}
		l.resolved = resolved
	} else {
		if err := runOnce(nil); err != nil {
			return err
		}
	}

	raw, err := os.ReadFile(cidfile)
	if err != nil {
		return &issue.LaunchError{
			Spec:  l.Spec.String(),
			Cause: fmt.Errorf("read cidfile: %w", err),
		}
	}
	id := strings.TrimSpace(string(raw))
	if id == "" {
		return &issue.LaunchError{
			Spec:  l.Spec.String(),
			Cause: fmt.Errorf("engine did not write a container id to %s", cidfile),
		}
	}
	l.id = id
	log.Debug("container started", "id", id, "image", l.imageRef)
	return nil
}

// runArgs assembles the run command after "run -d --cidfile=...": flags,
// image reference, entrypoint and its arguments.
func (l *Launcher) runArgs(ctx context.Context, common *Common) ([]string, error) {
	var args []string
	if l.PodID != "" {
		args = append(args, "--pod", l.PodID)
	}
	args = append(args, l.ExtraRunArgs...)
	args = append(args, common.ExtraLaunchArgs...)

	keys := make([]string, 0, len(common.Env))
	for k := range common.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+common.Env[k])
	}

	for _, prov := range l.provisioners {
		args = append(args, prov.CLIArgs()...)
	}

	entrypoint, flags, err := l.resolveEntrypoint(ctx, common)
	if err != nil {
		return nil, err
	}
	args = append(args, flags...)
	args = append(args, l.imageRef)
	args = append(args, entrypoint...)
	args = append(args, common.ExtraEntrypointArgs...)
	return args, nil
}

// resolveEntrypoint returns the command appended after the image reference
// and any extra run flags it requires. A bash entrypoint forces SIGTERM as
// the stop signal so the shell terminates on stop instead of being killed.
func (l *Launcher) resolveEntrypoint(ctx context.Context, common *Common) (entrypoint, flags []string, err error) {
	if common.CustomEntrypoint != "" {
		return []string{common.CustomEntrypoint}, nil, nil
	}

	bash := func() ([]string, []string, error) {
		return []string{"/bin/bash"}, []string{"--stop-signal", "SIGTERM"}, nil
	}

	switch common.Entrypoint {
	case EntrypointBash:
		return bash()
	case EntrypointImage:
		return nil, nil, nil
	default: // EntrypointAuto
		defines, err := l.Engine.ImageDefinesCommand(ctx, l.imageRef)
		if err != nil {
			return nil, nil, &issue.LaunchError{Spec: l.Spec.String(), Cause: err}
		}
		if defines {
			return nil, nil, nil
		}
		return bash()
	}
}

// waitForHealth blocks until the container is healthy or the effective
// timeout elapses. The timeout is the spec override when set, otherwise
// the max-wait derived from the image's health check; without a health
// check the container is ready immediately.
func (l *Launcher) waitForHealth(ctx context.Context, common *Common) error {
	timeout, err := l.effectiveTimeout(ctx, common)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		return nil
	}

	interval := timeout / 10
	if interval < minHealthPollInterval {
		interval = minHealthPollInterval
	}
	start := time.Now()
	deadline := start.Add(timeout)
	log.Debug("waiting for container health",
		"id", l.id, "timeout", timeout, "interval", interval)

	for {
		insp, err := l.Engine.InspectContainer(ctx, l.id)
		if err != nil {
			return &issue.LaunchError{Spec: l.Spec.String(), Cause: err}
		}
		// a dead container can never become healthy
		if !insp.State.Running {
			return &issue.LaunchError{
				Spec: l.Spec.String(),
				Cause: fmt.Errorf("container %s stopped running while waiting for health, state is %q",
					l.id, insp.State.Status),
			}
		}

		switch insp.State.Health {
		case inspect.Healthy, inspect.HealthNone:
			return nil
		}

		// an unhealthy status is not final: the engine flips it once retries
		// are exhausted, and a flapping probe may still recover before the
		// deadline, so keep polling until the full wait has elapsed
		if time.Now().After(deadline) {
			return &issue.HealthTimeoutError{
				ContainerID: l.id,
				Elapsed:     time.Since(start),
				Deadline:    timeout,
				LastStatus:  string(insp.State.Health),
			}
		}

		select {
		case <-ctx.Done():
			return &issue.LaunchError{Spec: l.Spec.String(), Cause: ctx.Err()}
		case <-time.After(interval):
		}
	}
}

func (l *Launcher) effectiveTimeout(ctx context.Context, common *Common) (time.Duration, error) {
	if common.HealthcheckTimeout != nil {
		return *common.HealthcheckTimeout, nil
	}

	insp, err := l.Engine.InspectContainer(ctx, l.id)
	if err != nil {
		return 0, &issue.LaunchError{Spec: l.Spec.String(), Cause: err}
	}
	if insp.Config.Healthcheck == nil {
		return 0, nil
	}
	return insp.Config.Healthcheck.MaxWaitTime(), nil
}

// fail captures logs and tears everything down after a launch or health
// failure.
func (l *Launcher) fail(ctx context.Context) {
	l.captureLogs(ctx)
	l.Teardown(ctx)
	l.state = StateFailed
}

func (l *Launcher) captureLogs(ctx context.Context) {
	if l.id == "" {
		return
	}
	logs, err := l.Engine.Logs(ctx, l.id)
	if err != nil {
		log.Warn("could not capture container logs", "id", l.id, "error", err)
		return
	}
	l.logs = logs
}

// Logs returns the last captured container output. Populated on failure
// paths and during teardown; empty if the container never started.
func (l *Launcher) Logs() string { return l.logs }

// Teardown removes the container and everything acquired for it. It is
// idempotent: a second call performs no engine call at all. Individual
// removal failures are logged, never escalated, so a partially cleaned up
// environment does not abort the rest of the teardown.
func (l *Launcher) Teardown(ctx context.Context) {
	if l.torn {
		return
	}
	l.torn = true
	l.state = StateStopping

	// capture the mount list before removal so leaked image volumes can be
	// cleaned up afterwards
	var mounts []inspect.Mount
	if l.id != "" {
		if insp, err := l.Engine.InspectContainer(ctx, l.id); err == nil {
			mounts = insp.Mounts
		} else {
			log.Warn("could not inspect container before removal", "id", l.id, "error", err)
		}
		l.captureLogs(ctx)

		if err := l.Engine.Stop(ctx, l.id); err != nil {
			log.Warn("could not stop container", "id", l.id, "error", err)
		}
		if err := l.Engine.RemoveContainer(ctx, l.id, true); err != nil {
			log.Warn("could not remove container", "id", l.id, "error", err)
		}
	}

	for i := len(l.cleanup) - 1; i >= 0; i-- {
		l.cleanup[i](ctx)
	}
	l.cleanup = nil

	if l.lock != nil {
		l.lock.Release()
		l.lock = nil
	}

	l.removeLeakedVolumes(ctx, mounts)

	if l.data != nil {
		l.data.invalidate()
	}
	l.id = ""
	l.state = StateRemoved
}

// removeLeakedVolumes removes volumes the image declared on its own, which
// the engine created implicitly and "rm -f" of the container does not
// clean up. Another teardown may have raced us here, so a missing volume
// is fine.
func (l *Launcher) removeLeakedVolumes(ctx context.Context, mounts []inspect.Mount) {
	for _, m := range mounts {
		if m.Kind != inspect.MountVolume || m.Name == "" {
			continue
		}
		if _, ours := l.ownVolumes[m.Name]; ours {
			continue
		}
		if err := l.Engine.RemoveVolume(ctx, m.Name, true); err != nil {
			log.Debug("could not remove image-declared volume", "volume", m.Name, "error", err)
		}
	}
}
