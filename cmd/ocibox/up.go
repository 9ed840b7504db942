// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"ocibox/internal/config"
	"ocibox/internal/container"
	"ocibox/internal/engine"
	"ocibox/internal/inspect"
	"ocibox/internal/pod"
)

// portDialInterval is the retry cadence while waiting for a forwarded port
// to accept connections.
const portDialInterval = 250 * time.Millisecond

var upCmd = &cobra.Command{
	Use:   "up <spec.toml>",
	Short: "Launch a container or pod spec and keep it running",
	Long: `Launch the container or pod described by a TOML spec file, wait
until it is healthy and its forwarded ports accept connections, then keep
it running until interrupted. Teardown removes the container together with
its volumes, bind mount directories and locks.`,
	Args: cobra.ExactArgs(1),
	RunE: runUp,
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read spec file: %w", err)
	}
	spec, err := decodeSpecFile(args[0], data)
	if err != nil {
		return err
	}

	eng, err := engine.NewSelector().Select(ctx, cfg.Engine)
	if err != nil {
		return err
	}
	log.Debug("engine resolved", "engine", eng.Name())

	if spec.Pod != nil {
		return runPod(ctx, cfg, eng, spec.Pod)
	}
	return runContainer(ctx, cfg, eng, spec.Container)
}

func runContainer(ctx context.Context, cfg *config.Config, eng engine.Engine, spec container.Spec) error {
	launcher := &container.Launcher{
		Engine:         eng,
		Spec:           spec,
		PullAlways:     cfg.PullAlways,
		ExtraBuildArgs: cfg.ExtraBuildArgs,
		ExtraRunArgs:   cfg.ExtraRunArgs,
	}

	data, err := launcher.Launch(ctx)
	if err != nil {
		return err
	}
	defer launcher.Teardown(context.WithoutCancel(ctx))

	if err := waitForPorts(ctx, data.Ports); err != nil {
		return err
	}

	fmt.Println(SuccessStyle.Render("container ready"))
	fmt.Println(SubtitleStyle.Render("  id:    ") + ValueStyle.Render(data.ID))
	fmt.Println(SubtitleStyle.Render("  image: ") + ValueStyle.Render(data.ImageRef))
	for _, fwd := range data.Ports {
		fmt.Println(SubtitleStyle.Render("  port:  ") + ValueStyle.Render(fwd.String()))
	}
	fmt.Println(SubtitleStyle.Render("press ctrl-c to tear down"))

	<-ctx.Done()
	return nil
}

func runPod(ctx context.Context, cfg *config.Config, eng engine.Engine, p *pod.Pod) error {
	launcher := &pod.Launcher{
		Engine:             eng,
		Pod:                *p,
		PullAlways:         cfg.PullAlways,
		ExtraBuildArgs:     cfg.ExtraBuildArgs,
		ExtraRunArgs:       cfg.ExtraRunArgs,
		ExtraPodCreateArgs: cfg.ExtraPodCreateArgs,
	}

	data, err := launcher.Launch(ctx)
	if err != nil {
		return err
	}
	defer launcher.Teardown(context.WithoutCancel(ctx))

	if err := waitForPorts(ctx, data.Ports); err != nil {
		return err
	}

	fmt.Println(SuccessStyle.Render("pod ready"))
	fmt.Println(SubtitleStyle.Render("  id:      ") + ValueStyle.Render(data.ID))
	for _, member := range data.Members {
		fmt.Println(SubtitleStyle.Render("  member:  ") + ValueStyle.Render(member.ID))
	}
	for _, fwd := range data.Ports {
		fmt.Println(SubtitleStyle.Render("  port:    ") + ValueStyle.Render(fwd.String()))
	}
	fmt.Println(SubtitleStyle.Render("press ctrl-c to tear down"))

	<-ctx.Done()
	return nil
}

// waitForPorts blocks until every forwarding with a ready timeout accepts a
// TCP connection on the host side. UDP forwardings cannot be probed by
// connecting and are skipped.
func waitForPorts(ctx context.Context, fwds []inspect.PortForwarding) error {
	for _, fwd := range fwds {
		if fwd.ReadyTimeout <= 0 || fwd.Protocol.OrDefault() != inspect.TCP {
			continue
		}

		host := fwd.BindIP
		if host == "" {
			host = "127.0.0.1"
		}
		addr := net.JoinHostPort(host, strconv.Itoa(fwd.HostPort))

		deadline := time.Now().Add(fwd.ReadyTimeout)
		for {
			conn, err := net.DialTimeout("tcp", addr, portDialInterval)
			if err == nil {
				conn.Close()
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("port %s not ready after %s: %w", addr, fwd.ReadyTimeout, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(portDialInterval):
			}
		}
		log.Debug("port ready", "address", addr)
	}
	return nil
}
