// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/pakload/pakload/internal/watch"
	"github.com/pakload/pakload/pkg/manager"
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/types"
)

// reloader keeps a target set loaded across catalog and blob changes.
type reloader struct {
	env     *env
	session *session
	out     io.Writer
	targets []types.PackageID
	// explicit is set when targets came from the command line.
	explicit bool
}

// newWatchCommand creates `pakload watch`.
func newWatchCommand(app *App) *cobra.Command {
	var ignore []string

	watchCmd := &cobra.Command{
		Use:   "watch [id]...",
		Short: "Keep packages loaded while the manifest and blobs change",
		Long: `Keep packages loaded while the manifest and blobs change.

Without ids every local package is kept loaded. When the manifest changes the
catalog is re-read and the manager re-initialized; when a blob changes the
package is unloaded and loaded again together with its dependencies.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]types.PackageID, len(args))
			for i, a := range args {
				ids[i] = types.PackageID(a)
			}
			return runWatch(cmd.Context(), app, envFromContext(cmd.Context()), ids, ignore)
		},
	}
	watchCmd.Flags().StringSliceVar(&ignore, "ignore", nil, "extra doublestar patterns under the packages dir to ignore")

	return watchCmd
}

func runWatch(ctx context.Context, app *App, e *env, ids []types.PackageID, ignore []string) error {
	c, err := e.openCatalog()
	if err != nil {
		return err
	}

	s := startSession(ctx, app, e, c, nil)
	defer s.stop()

	rl := &reloader{env: e, session: s, out: app.stderr, targets: ids, explicit: len(ids) > 0}
	if !rl.explicit {
		rl.targets = c.LocalIDs()
	}
	rl.load(ctx, rl.targets)

	w, err := watch.New(watch.Config{
		Manifest:      e.cfg.Manifest,
		PackagesDir:   e.cfg.PackagesDir,
		BlobExtension: e.cfg.BlobExtension,
		Ignore:        ignore,
		Debounce:      e.cfg.Watch.Debounce,
		OnChange:      rl.onChange,
		Logger:        e.logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stderr, "%s %s and %s\n", TitleStyle.Render("watching"), e.cfg.Manifest, e.cfg.PackagesDir)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// onChange runs on the watcher goroutine; manager access goes through the
// session runner. Failures are reported and the watch continues.
func (rl *reloader) onChange(ctx context.Context, change watch.Change) error {
	if change.ManifestChanged {
		if err := rl.reinitialize(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(rl.out, ErrorStyle.Render("manifest reload failed: ")+formatErrorForDisplay(err, rl.env.verbose))
			return nil
		}
	}

	reload, err := rl.unloadChanged(ctx, change.Packages)
	if err != nil {
		return err
	}
	if change.ManifestChanged {
		reload = rl.targets
	} else {
		reload = mergeIDs(reload, rl.targets)
	}
	rl.load(ctx, reload)
	return nil
}

func (rl *reloader) reinitialize(ctx context.Context) error {
	c, err := rl.env.openCatalog()
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		rl.env.logger.Warn("catalog has problems", "error", err)
	}
	if err := rl.session.runner.Do(ctx, func(m *manager.Manager) {
		rl.env.initialize(m, c)
	}); err != nil {
		return err
	}
	if !rl.explicit {
		rl.targets = c.LocalIDs()
	}
	fmt.Fprintf(rl.out, "%s %d packages\n", SuccessStyle.Render("catalog reloaded:"), len(c.AllPackageIDs()))
	return nil
}

// unloadChanged unloads every changed package that holds content and
// returns the ids that need loading again.
func (rl *reloader) unloadChanged(ctx context.Context, ids []types.PackageID) ([]types.PackageID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var reload []types.PackageID
	err := rl.session.runner.Do(ctx, func(m *manager.Manager) {
		for _, id := range ids {
			if !m.IsValid(id) {
				rl.env.logger.Debug("blob changed for unknown package", "package", id)
				continue
			}
			if res := m.UnloadPackage(id); res == op.Success {
				fmt.Fprintf(rl.out, "%s %s\n", WarningStyle.Render("unloaded"), IDStyle.Render(id.String()))
				reload = append(reload, id)
			}
		}
	})
	return reload, err
}

func (rl *reloader) load(ctx context.Context, ids []types.PackageID) {
	if len(ids) == 0 {
		return
	}
	res, err := rl.session.runner.LoadAndWait(ctx, ids...)
	if err != nil {
		if ctx.Err() == nil {
			fmt.Fprintln(rl.out, ErrorStyle.Render("load failed: ")+formatErrorForDisplay(loadError(res, err, ids), rl.env.verbose))
		}
		return
	}
	fmt.Fprintf(rl.out, "%s %s\n", SuccessStyle.Render("loaded"), joinIDs(ids))
}

// mergeIDs appends the ids of b missing from a, keeping order.
func mergeIDs(a, b []types.PackageID) []types.PackageID {
	out := slices.Clone(a)
	for _, id := range b {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
