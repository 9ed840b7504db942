// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ocibox/internal/config"
	"ocibox/internal/engine"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Show the resolved engine and its capabilities",
	Long: `Resolve the engine preference (OCIBOX_ENGINE or CONTAINER_RUNTIME,
default "auto") against the binaries on PATH and print the chosen engine
with its version and capabilities.`,
	Args: cobra.NoArgs,
	RunE: runEngine,
}

func runEngine(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	eng, err := engine.NewSelector().Select(ctx, cfg.Engine)
	if err != nil {
		return err
	}

	fmt.Println(TitleStyle.Render(eng.Name()))

	if ver, err := eng.Version(ctx); err == nil {
		fmt.Println(SubtitleStyle.Render("  version:        ") + ValueStyle.Render(ver.String()))
	} else {
		fmt.Println(SubtitleStyle.Render("  version:        ") + WarningStyle.Render(err.Error()))
	}
	fmt.Println(SubtitleStyle.Render("  build command:  ") + ValueStyle.Render(strings.Join(eng.BuildCommand(), " ")))
	fmt.Println(SubtitleStyle.Render("  pods:           ") + yesNo(eng.SupportsPods()))
	fmt.Println(SubtitleStyle.Render("  image formats:  ") + yesNo(eng.SupportsImageFormats()))
	fmt.Println(SubtitleStyle.Render("  healthcheck inheritance: ") + yesNo(eng.SupportsHealthcheckInheritance(ctx)))

	return nil
}

func yesNo(b bool) string {
	if b {
		return SuccessStyle.Render("yes")
	}
	return WarningStyle.Render("no")
}
