// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/pakload/pakload/internal/issue"
)

// skipEnvAnnotation marks commands that must work without a loadable config.
const skipEnvAnnotation = "pakload/skip-env"

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}

	rootCmd := &cobra.Command{
		Use:   "pakload",
		Short: "Load content packages and their dependencies",
		Long: TitleStyle.Render("pakload") + SubtitleStyle.Render(" - content package loader") + `

pakload reads a dependency catalog, packs content directories into
compressed blobs, and loads packages together with their transitive
dependencies through a single-flight loader.

` + SubtitleStyle.Render("Examples:") + `
  pakload catalog show               List packages and their dependencies
  pakload catalog deps level-1       Show the load order for a package
  pakload pack content/* --out-dir packages
  pakload load level-1 --asset intro.txt
  pakload watch                      Reload packages as blobs change`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipEnvAnnotation] == "true" {
				return nil
			}
			e, err := app.newEnv(cmd.Context(), flags)
			if err != nil {
				return err
			}
			cmd.SetContext(contextWithEnv(cmd.Context(), e))
			return nil
		},
	}
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/pakload/config.cue)")
	pf.StringVar(&flags.manifest, "manifest", "", "catalog manifest path (overrides config)")
	pf.StringVar(&flags.packagesDir, "packages-dir", "", "directory holding package blobs (overrides config)")

	rootCmd.AddCommand(
		newCatalogCommand(app),
		newPackCommand(app),
		newLoadCommand(app),
		newWatchCommand(app),
		newConfigCommand(app),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	app.installLogger = true

	if err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			renderServiceError(app.stderr, svcErr, issueStyle())
		}
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// formatErrorForDisplay formats an error for user display. ActionableErrors
// use their own formatting; verbose mode shows the full chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
