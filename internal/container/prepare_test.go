// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"ocibox/internal/engine"
	"ocibox/internal/engine/enginetest"
	"ocibox/internal/inspect"
	"ocibox/internal/issue"
)

func TestPrepareLocalImageSkipsPull(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	p := &Preparer{Engine: fake, PullAlways: true}

	ref, err := p.Prepare(context.Background(), &Container{URL: "containers-storage:myimage"})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if ref != "myimage" {
		t.Errorf("ref = %q, want myimage", ref)
	}
	if len(fake.CallsWithPrefix("pull")) != 0 {
		t.Errorf("local image was pulled: %v", fake.Calls())
	}
}

func TestPreparePullsByDefault(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	p := &Preparer{Engine: fake, PullAlways: true}

	ref, err := p.Prepare(context.Background(), &Container{URL: "nginx:latest"})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if ref != "nginx:latest" {
		t.Errorf("ref = %q, want nginx:latest", ref)
	}
	if calls := fake.CallsWithPrefix("pull"); len(calls) != 1 {
		t.Errorf("pull calls = %v, want exactly one", calls)
	}
}

func TestPrepareTrustsLocalCacheWhenAllowed(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	fake.ImageExistsFn = func(string) bool { return true }
	p := &Preparer{Engine: fake, PullAlways: false}

	if _, err := p.Prepare(context.Background(), &Container{URL: "nginx:latest"}); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if len(fake.CallsWithPrefix("pull")) != 0 {
		t.Errorf("present image was pulled: %v", fake.Calls())
	}

	// absent image still pulls
	fake.ImageExistsFn = func(string) bool { return false }
	if _, err := p.Prepare(context.Background(), &Container{URL: "httpd:latest"}); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if len(fake.CallsWithPrefix("pull")) != 1 {
		t.Errorf("absent image was not pulled: %v", fake.Calls())
	}
}

func TestPreparePullFailure(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	fake.PullFn = func(string) error { return errors.New("manifest unknown") }
	p := &Preparer{Engine: fake, PullAlways: true}

	_, err := p.Prepare(context.Background(), &Container{URL: "nginx:nosuchtag"})
	if !errors.Is(err, issue.ErrPreparation) {
		t.Errorf("error = %v, want ErrPreparation", err)
	}
	if !strings.Contains(err.Error(), "nginx:nosuchtag") {
		t.Errorf("error %q does not name the spec", err)
	}
}

func TestPrepareDerivedWithoutInstructionsResolvesToBase(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	p := &Preparer{Engine: fake, PullAlways: true}

	spec := &DerivedContainer{Base: &Container{URL: "nginx:latest"}}
	ref, err := p.Prepare(context.Background(), spec)
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if ref != "nginx:latest" {
		t.Errorf("ref = %q, want the base reference", ref)
	}
	if len(fake.CallsWithPrefix("build")) != 0 {
		t.Errorf("no-op derived spec triggered a build: %v", fake.Calls())
	}
}

func TestPrepareDerivedBuildsWithRenderedContainerfile(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	var captured engine.BuildOptions
	var containerfile string
	fake.BuildFn = func(opts engine.BuildOptions) (string, error) {
		captured = opts
		raw, err := os.ReadFile(opts.ContainerfilePath)
		if err != nil {
			t.Fatalf("could not read rendered containerfile: %v", err)
		}
		containerfile = string(raw)
		return "builtid123", nil
	}

	spec := &DerivedContainer{
		Base:           &Container{URL: "nginx:latest"},
		Containerfile:  "RUN echo hello\nEXPOSE 80",
		ExtraBuildTags: []string{"myapp:latest"},
	}
	p := &Preparer{Engine: fake, PullAlways: true, ExtraBuildArgs: []string{"--pull=never"}}

	ref, err := p.Prepare(context.Background(), spec)
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if ref != "builtid123" {
		t.Errorf("ref = %q, want the built image id", ref)
	}

	if !strings.HasPrefix(containerfile, "FROM nginx:latest\n") {
		t.Errorf("containerfile does not start with the base FROM line:\n%s", containerfile)
	}
	if !strings.Contains(containerfile, "RUN echo hello") {
		t.Errorf("containerfile lacks the instructions:\n%s", containerfile)
	}

	// tags are applied through the runner after the build, not via -t
	wantTags := []string{
		"tag builtid123 ocibox:" + spec.IdentityHash(),
		"tag builtid123 myapp:latest",
	}
	tagCalls := fake.CallsWithPrefix("tag")
	if len(tagCalls) != 2 || tagCalls[0] != wantTags[0] || tagCalls[1] != wantTags[1] {
		t.Errorf("tag calls = %v, want %v", tagCalls, wantTags)
	}
	if captured.IIDFile == "" {
		t.Error("build ran without an iidfile")
	}
	if len(captured.ExtraArgs) != 1 || captured.ExtraArgs[0] != "--pull=never" {
		t.Errorf("ExtraArgs = %v", captured.ExtraArgs)
	}

	// the temp build context is removed after the build
	if _, err := os.Stat(captured.ContextDir); !os.IsNotExist(err) {
		t.Errorf("build context %s survived preparation", captured.ContextDir)
	}
}

func TestPrepareDerivedTagFailure(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	fake.TagFn = func(string, string) error { return errors.New("no such image") }

	spec := &DerivedContainer{
		Base:          &Container{URL: "nginx:latest"},
		Containerfile: "RUN true",
	}
	p := &Preparer{Engine: fake, PullAlways: true}

	_, err := p.Prepare(context.Background(), spec)
	if !errors.Is(err, issue.ErrPreparation) {
		t.Errorf("error = %v, want ErrPreparation", err)
	}
}

func TestPrepareDerivedFormatAutoDetection(t *testing.T) {
	tests := []struct {
		name     string
		fake     *enginetest.Fake
		healthy  bool
		override engine.ImageFormat
		expected engine.ImageFormat
	}{
		{name: "base with healthcheck forces docker format", fake: enginetest.NewPodmanLike(), healthy: true, expected: engine.FormatDocker},
		{name: "base without healthcheck keeps default", fake: enginetest.NewPodmanLike(), expected: ""},
		{name: "explicit override wins", fake: enginetest.NewPodmanLike(), healthy: true, override: engine.FormatOCI, expected: engine.FormatOCI},
		{name: "docker engine never sets a format", fake: enginetest.NewDockerLike(), healthy: true, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.healthy {
				tt.fake.ImageHealthcheckFn = func(string) (*inspect.HealthCheck, error) {
					return &inspect.HealthCheck{Test: []string{"CMD", "true"}}, nil
				}
			}
			var captured engine.BuildOptions
			tt.fake.BuildFn = func(opts engine.BuildOptions) (string, error) {
				captured = opts
				return "builtid", nil
			}

			spec := &DerivedContainer{
				Base:          &Container{URL: "nginx:latest"},
				Containerfile: "RUN true",
				ImageFormat:   tt.override,
			}
			p := &Preparer{Engine: tt.fake, PullAlways: true}
			if _, err := p.Prepare(context.Background(), spec); err != nil {
				t.Fatalf("Prepare returned error: %v", err)
			}
			if captured.Format != tt.expected {
				t.Errorf("Format = %q, want %q", captured.Format, tt.expected)
			}

			// the explicit override and the docker engine skip the extra
			// inspect call
			inspects := len(tt.fake.CallsWithPrefix("image healthcheck"))
			wantInspect := tt.override == "" && tt.fake.SupportsImageFormats()
			if wantInspect && inspects != 1 {
				t.Errorf("image healthcheck calls = %d, want 1", inspects)
			}
			if !wantInspect && inspects != 0 {
				t.Errorf("image healthcheck calls = %d, want 0", inspects)
			}
		})
	}
}

func TestFormatDetectionConsultsHealthcheckInheritance(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	// an old engine that drops the base's HEALTHCHECK from built images
	fake.HealthcheckInheritance = false
	fake.ImageHealthcheckFn = func(string) (*inspect.HealthCheck, error) {
		return &inspect.HealthCheck{Test: []string{"CMD", "true"}}, nil
	}
	var captured engine.BuildOptions
	fake.BuildFn = func(opts engine.BuildOptions) (string, error) {
		captured = opts
		return "builtid", nil
	}

	spec := &DerivedContainer{
		Base:          &Container{URL: "nginx:latest"},
		Containerfile: "RUN true",
	}
	p := &Preparer{Engine: fake, PullAlways: true}
	if _, err := p.Prepare(context.Background(), spec); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}

	// missing inheritance warns but never fails or changes the format choice
	if captured.Format != engine.FormatDocker {
		t.Errorf("Format = %q, want docker despite missing inheritance", captured.Format)
	}
	if len(fake.CallsWithPrefix("healthcheck inheritance")) != 1 {
		t.Errorf("inheritance capability was not consulted: %v", fake.Calls())
	}
}

func TestPrepareDerivedRecursesThroughBases(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	builds := 0
	fake.BuildFn = func(opts engine.BuildOptions) (string, error) {
		builds++
		return "built" + string(rune('0'+builds)), nil
	}

	inner := &DerivedContainer{
		Base:          &Container{URL: "nginx:latest"},
		Containerfile: "RUN echo inner",
	}
	outer := &DerivedContainer{
		Base:          inner,
		Containerfile: "RUN echo outer",
	}

	p := &Preparer{Engine: fake, PullAlways: true}
	ref, err := p.Prepare(context.Background(), outer)
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if builds != 2 {
		t.Errorf("builds = %d, want 2", builds)
	}
	if ref != "built2" {
		t.Errorf("ref = %q, want the outer build's id", ref)
	}
	if calls := fake.CallsWithPrefix("pull"); len(calls) != 1 {
		t.Errorf("pull calls = %v, want one for the innermost base", calls)
	}
}

func TestPrepareDerivedWithoutBase(t *testing.T) {
	p := &Preparer{Engine: enginetest.NewPodmanLike(), PullAlways: true}
	_, err := p.Prepare(context.Background(), &DerivedContainer{Containerfile: "RUN true"})
	if !errors.Is(err, issue.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}
