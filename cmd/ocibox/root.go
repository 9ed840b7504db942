// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"ocibox/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"

	// verbose raises the log level to debug.
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "ocibox",
		Short: "Launch and tear down containers for test runs",
		Long: TitleStyle.Render("ocibox") + SubtitleStyle.Render(" - container lifecycle harness") + `

ocibox turns a declarative TOML description of a container image into a
running, health-checked instance on podman or docker, and removes the
instance together with all of its side resources (volumes, bind mount
directories, forwarded ports, locks) when you are done.

` + SubtitleStyle.Render("Examples:") + `
  ocibox up web.toml        Launch the spec and wait for an interrupt
  ocibox engine             Show the resolved engine and its capabilities`,
	}
)

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(engineCmd)
}

func initLogging() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+err.Error())
		return
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	if parsed, err := log.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// Execute runs the root command with fang's styling and signal handling.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
