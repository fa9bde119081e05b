// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pakload/pakload/internal/config"
	"github.com/pakload/pakload/internal/issue"
	"github.com/pakload/pakload/pkg/types"
)

// newConfigCommand creates the `pakload config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the pakload configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var asCUE bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := envFromContext(cmd.Context()).cfg
			if asCUE {
				_, err := io.WriteString(app.stdout, config.GenerateCUE(cfg))
				return err
			}
			showConfig(app.stdout, cfg)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&asCUE, "cue", false, "print as CUE instead of a summary")

	var dir string
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a default config.cue unless one exists",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipEnvAnnotation: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := config.CreateDefaultConfig(types.FilesystemPath(dir))
			if err != nil {
				return newServiceError(
					issue.NewErrorContext().
						WithOperation("create configuration").
						WithResource(dir).
						WithSuggestion("Pass --dir to write somewhere else").
						Wrap(err).
						BuildError(),
					issue.PermissionDeniedId)
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("config:"), path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&dir, "dir", "", "directory to write config.cue into (default is the user config dir)")

	pathCmd := &cobra.Command{
		Use:         "path",
		Short:       "Print where pakload looks for config.cue",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipEnvAnnotation: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt))
			return nil
		},
	}

	configCmd.AddCommand(showCmd, initCmd, pathCmd)
	return configCmd
}

func showConfig(w io.Writer, cfg *config.Config) {
	source := cfg.Source
	if source == "" {
		source = "(defaults)"
	}

	fmt.Fprintln(w, TitleStyle.Render("Configuration"))
	rows := []struct {
		key, value string
	}{
		{"source", source},
		{"manifest", cfg.Manifest.String()},
		{"packages_dir", cfg.PackagesDir.String()},
		{"blob_extension", cfg.BlobExtension},
		{"tick_interval", cfg.TickInterval.String()},
		{"topological_enqueue", fmt.Sprint(cfg.TopologicalEnqueue)},
		{"log.level", cfg.Log.Level.String()},
		{"log.format", cfg.Log.Format.String()},
		{"metrics.enabled", fmt.Sprint(cfg.Metrics.Enabled)},
		{"metrics.listen", cfg.Metrics.Listen.String()},
		{"watch.debounce", cfg.Watch.Debounce.String()},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s\n", SubtitleStyle.Render(fmt.Sprintf("%-20s", r.key)), r.value)
	}
}
