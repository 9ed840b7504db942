// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"ocibox/internal/inspect"
	"ocibox/pkg/version"
)

// ExecCommandFunc builds the command used to talk to the engine binary.
// Production code uses exec.CommandContext; tests substitute a helper
// process.
type ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// LookPathFunc resolves a binary on PATH. Tests substitute a fake.
type LookPathFunc func(file string) (string, error)

// BaseCLIEngine implements the CLI protocol shared by podman and docker.
// The concrete engines embed it and only fill in the family-specific
// pieces: liveness probing, version banner parsing, capabilities and image
// existence checks.
type BaseCLIEngine struct {
	name         string
	runnerBinary string
	buildCommand []string
	// formatFlag is injected into build args when the caller requests an
	// image format; empty means formats are unsupported.
	formatFlag string

	execCommand ExecCommandFunc

	versionOnce sync.Once
	version     version.Version
	versionErr  error
	// parseVersion turns the raw banner into a Version.
	parseVersion func(banner string) (version.Version, error)
}

func newBaseCLIEngine(name, runnerBinary string, buildCommand []string, execCommand ExecCommandFunc) *BaseCLIEngine {
	if execCommand == nil {
		execCommand = exec.CommandContext
	}
	return &BaseCLIEngine{
		name:         name,
		runnerBinary: runnerBinary,
		buildCommand: buildCommand,
		execCommand:  execCommand,
	}
}

func (e *BaseCLIEngine) Name() string { return e.name }

func (e *BaseCLIEngine) RunnerBinary() string { return e.runnerBinary }

func (e *BaseCLIEngine) BuildCommand() []string {
	return append([]string(nil), e.buildCommand...)
}

// runOutput runs the runner binary with args and returns trimmed stdout.
// Stderr is folded into the error message on failure.
func (e *BaseCLIEngine) runOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.execCommand(ctx, e.runnerBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("running engine command", "binary", e.runnerBinary, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s",
			e.runnerBinary, strings.Join(args, " "), err,
			strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// runCombined runs the runner binary with args and returns combined
// stdout and stderr, regardless of exit status.
func (e *BaseCLIEngine) runCombined(ctx context.Context, args ...string) (string, error) {
	cmd := e.execCommand(ctx, e.runnerBinary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s",
			e.runnerBinary, strings.Join(args, " "), err,
			strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func (e *BaseCLIEngine) Version(ctx context.Context) (version.Version, error) {
	e.versionOnce.Do(func() {
		banner, err := e.runOutput(ctx, "--version")
		if err != nil {
			e.versionErr = err
			return
		}
		e.version, e.versionErr = e.parseVersion(banner)
	})
	return e.version, e.versionErr
}

func (e *BaseCLIEngine) Pull(ctx context.Context, ref string) error {
	_, err := e.runOutput(ctx, "pull", ref)
	return err
}

// buildArgs assembles the full argument list of a build invocation,
// excluding the leading binary name.
func (e *BaseCLIEngine) buildArgs(opts BuildOptions) []string {
	args := append([]string(nil), e.buildCommand[1:]...)
	if opts.Format != "" && e.formatFlag != "" {
		args = append(args, e.formatFlag, string(opts.Format))
	}
	args = append(args, opts.ExtraArgs...)
	if opts.IIDFile != "" {
		args = append(args, "--iidfile="+opts.IIDFile)
	}
	args = append(args, "-f", opts.ContainerfilePath, opts.ContextDir)
	return args
}

// Build runs the image build and returns the ID of the produced image as
// recovered from the iidfile.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) (string, error) {
	args := e.buildArgs(opts)
	cmd := e.execCommand(ctx, e.buildCommand[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w: %s",
			e.buildCommand[0], strings.Join(args, " "), err,
			strings.TrimSpace(string(out)))
	}

	raw, err := os.ReadFile(opts.IIDFile)
	if err != nil {
		return "", fmt.Errorf("read iidfile: %w", err)
	}
	return ImageIDFromIIDFile(string(raw))
}

func (e *BaseCLIEngine) Tag(ctx context.Context, id, tag string) error {
	_, err := e.runOutput(ctx, "tag", id, tag)
	return err
}

func (e *BaseCLIEngine) ImageHealthcheck(ctx context.Context, ref string) (*inspect.HealthCheck, error) {
	out, err := e.runOutput(ctx, "image", "inspect", ref)
	if err != nil {
		return nil, err
	}
	return decodeImageHealthcheck([]byte(out))
}

// ImageDefinesCommand reports whether the image carries an entrypoint or a
// default command. Containers of images without either need an explicit
// command to stay alive.
func (e *BaseCLIEngine) ImageDefinesCommand(ctx context.Context, ref string) (bool, error) {
	for _, field := range []string{"{{.Config.Entrypoint}}", "{{.Config.Cmd}}"} {
		out, err := e.runOutput(ctx, "inspect", "-f", field, ref)
		if err != nil {
			return false, err
		}
		if out != "" && out != "[]" && out != "<nil>" {
			return true, nil
		}
	}
	return false, nil
}

func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) error {
	args := []string{"run", "-d"}
	if opts.CIDFile != "" {
		args = append(args, "--cidfile="+opts.CIDFile)
	}
	args = append(args, opts.Args...)
	_, err := e.runOutput(ctx, args...)
	return err
}

func (e *BaseCLIEngine) Stop(ctx context.Context, id string) error {
	_, err := e.runOutput(ctx, "stop", id)
	return err
}

func (e *BaseCLIEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, id)
	_, err := e.runOutput(ctx, args...)
	return err
}

// Logs returns everything the container wrote to both streams; engines send
// container output to stderr as well.
func (e *BaseCLIEngine) Logs(ctx context.Context, id string) (string, error) {
	return e.runCombined(ctx, "logs", id)
}

func (e *BaseCLIEngine) Exec(ctx context.Context, id string, command []string) (string, error) {
	args := append([]string{"exec", id}, command...)
	return e.runOutput(ctx, args...)
}

func (e *BaseCLIEngine) InspectContainer(ctx context.Context, id string) (*inspect.ContainerInspect, error) {
	out, err := e.runOutput(ctx, "inspect", id)
	if err != nil {
		return nil, err
	}
	return decodeContainerInspect([]byte(out))
}

func (e *BaseCLIEngine) ContainerHealth(ctx context.Context, id string) (inspect.Health, error) {
	insp, err := e.InspectContainer(ctx, id)
	if err != nil {
		return inspect.HealthNone, err
	}
	return insp.State.Health, nil
}

// CreateVolume creates an anonymous named volume and returns its ID.
func (e *BaseCLIEngine) CreateVolume(ctx context.Context) (string, error) {
	return e.runOutput(ctx, "volume", "create")
}

func (e *BaseCLIEngine) RemoveVolume(ctx context.Context, id string, force bool) error {
	args := []string{"volume", "rm"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, id)
	_, err := e.runOutput(ctx, args...)
	return err
}

func (e *BaseCLIEngine) CreatePod(ctx context.Context, opts PodOptions) (string, error) {
	args := []string{"pod", "create"}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	args = append(args, opts.PortArgs...)
	args = append(args, opts.ExtraArgs...)
	return e.runOutput(ctx, args...)
}

func (e *BaseCLIEngine) InspectPod(ctx context.Context, id string) (*inspect.PodInspect, error) {
	out, err := e.runOutput(ctx, "pod", "inspect", id)
	if err != nil {
		return nil, err
	}
	return decodePodInspect([]byte(out))
}

func (e *BaseCLIEngine) RemovePod(ctx context.Context, id string, force bool) error {
	args := []string{"pod", "rm"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, id)
	_, err := e.runOutput(ctx, args...)
	return err
}

// ImageIDFromIIDFile extracts the image ID from iidfile content, which is
// either "sha256:<digest>" or a bare digest.
func ImageIDFromIIDFile(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("iidfile is empty")
	}
	if algo, digest, found := strings.Cut(content, ":"); found {
		if algo != "sha256" {
			return "", fmt.Errorf("unsupported digest algorithm %q in iidfile", algo)
		}
		return digest, nil
	}
	return content, nil
}
