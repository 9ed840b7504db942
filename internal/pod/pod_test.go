// SPDX-License-Identifier: MPL-2.0

package pod

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"ocibox/internal/container"
	"ocibox/internal/engine"
	"ocibox/internal/engine/enginetest"
	"ocibox/internal/inspect"
	"ocibox/internal/issue"
)

func noHealthWait() *time.Duration {
	d := time.Duration(0)
	return &d
}

func memberSpec(url string) container.Spec {
	return &container.Container{
		URL: url,
		ContainerSettings: container.Common{
			HealthcheckTimeout: noHealthWait(),
		},
	}
}

func twoMemberPod() Pod {
	return Pod{
		Name:       "web-pod",
		Containers: []container.Spec{memberSpec("nginx:latest"), memberSpec("redis:latest")},
		Ports:      []inspect.PortForwarding{{ContainerPort: 80}},
	}
}

func TestLaunchRequiresPodSupport(t *testing.T) {
	l := &Launcher{Engine: enginetest.NewDockerLike(), Pod: twoMemberPod(), PullAlways: true}

	_, err := l.Launch(context.Background())
	if !errors.Is(err, issue.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
	if !strings.Contains(err.Error(), "docker") {
		t.Errorf("error %q does not name the engine", err)
	}
}

func TestLaunchRequiresMembers(t *testing.T) {
	l := &Launcher{Engine: enginetest.NewPodmanLike(), Pod: Pod{Name: "empty"}}

	_, err := l.Launch(context.Background())
	if !errors.Is(err, issue.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}

func TestLaunchPodOwnsThePortSpace(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	pod := twoMemberPod()
	// a member declaring its own port must not publish it
	pod.Containers[0].Common().Ports = []inspect.PortForwarding{{ContainerPort: 8080}}

	l := &Launcher{Engine: fake, Pod: pod, PullAlways: true}
	data, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	defer l.Teardown(context.Background())

	if len(data.Ports) != 1 || !data.Ports[0].Resolved() {
		t.Fatalf("Ports = %+v, want exactly one resolved forwarding", data.Ports)
	}
	if data.Ports[0].ContainerPort != 80 {
		t.Errorf("ContainerPort = %d, want 80", data.Ports[0].ContainerPort)
	}

	creates := fake.CallsWithPrefix("pod create")
	if len(creates) != 1 || !strings.Contains(creates[0], ":80/tcp") {
		t.Errorf("pod create calls = %v, want one carrying the port", creates)
	}

	for _, run := range fake.CallsWithPrefix("run") {
		if !strings.Contains(run, "--pod fakepod") {
			t.Errorf("member did not join the pod: %s", run)
		}
		if strings.Contains(run, "-p ") {
			t.Errorf("member published its own port: %s", run)
		}
	}

	// member handles have no independent forwardings
	for i, member := range data.Members {
		if len(member.Ports) != 0 {
			t.Errorf("member %d has forwardings %+v, want none", i, member.Ports)
		}
	}
}

func TestLaunchResolvesInfraContainer(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	fake.InspectPodFn = func(id string) (*inspect.PodInspect, error) {
		return &inspect.PodInspect{ID: id, InfraContainerID: "infra42"}, nil
	}

	l := &Launcher{Engine: fake, Pod: twoMemberPod(), PullAlways: true}
	data, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	defer l.Teardown(context.Background())

	if data.ID != "fakepod" {
		t.Errorf("ID = %q", data.ID)
	}
	if data.InfraContainerID != "infra42" {
		t.Errorf("InfraContainerID = %q, want infra42", data.InfraContainerID)
	}
	if len(data.Members) != 2 {
		t.Errorf("Members = %d, want 2", len(data.Members))
	}
}

func TestMemberFailureTearsDownPod(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	runs := 0
	fake.RunFn = func(opts engine.RunOptions) error {
		runs++
		if runs == 2 {
			return errors.New("member image broken")
		}
		return os.WriteFile(opts.CIDFile, []byte("member1\n"), 0o600)
	}

	l := &Launcher{Engine: fake, Pod: twoMemberPod(), PullAlways: true}
	_, err := l.Launch(context.Background())
	if !errors.Is(err, issue.ErrLaunch) {
		t.Fatalf("error = %v, want ErrLaunch", err)
	}

	if len(fake.CallsWithPrefix("pod rm")) != 1 {
		t.Errorf("pod not removed after member failure: %v", fake.Calls())
	}
}

func TestTeardownRemovesPodFirstAndIsIdempotent(t *testing.T) {
	fake := enginetest.NewPodmanLike()
	l := &Launcher{Engine: fake, Pod: twoMemberPod(), PullAlways: true}

	data, err := l.Launch(context.Background())
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}

	l.Teardown(context.Background())

	if !data.Released() {
		t.Error("handle not marked released after teardown")
	}
	calls := fake.Calls()
	podRm := -1
	for i, call := range calls {
		if strings.HasPrefix(call, "pod rm") {
			podRm = i
			break
		}
	}
	if podRm < 0 {
		t.Fatalf("pod was never removed: %v", calls)
	}
	// member teardown calls may only follow the pod removal
	for i, call := range calls[:podRm] {
		if strings.HasPrefix(call, "rm ") || strings.HasPrefix(call, "stop ") {
			t.Errorf("member teardown call %d (%s) before pod removal", i, call)
		}
	}
	callsAfterFirst := len(calls)
	l.Teardown(context.Background())
	if len(fake.Calls()) != callsAfterFirst {
		t.Errorf("second teardown performed engine calls: %v", fake.Calls()[callsAfterFirst:])
	}
}
