// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pakload/pakload/internal/issue"
	"github.com/pakload/pakload/internal/metrics"
	"github.com/pakload/pakload/pkg/catalog"
	"github.com/pakload/pakload/pkg/content"
	"github.com/pakload/pakload/pkg/handle"
	"github.com/pakload/pakload/pkg/manager"
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/runner"
	"github.com/pakload/pakload/pkg/scene"
	"github.com/pakload/pakload/pkg/types"
)

const progressWidth = 24

type (
	loadFlagValues struct {
		asset       string
		out         string
		scene       string
		metricsAddr string
	}

	// session is a running manager owned by a runner goroutine.
	session struct {
		runner *runner.Runner
		host   *scene.MemoryHost
		cancel context.CancelFunc
		done   chan error
	}

	// stateReporter prints one line per observed handle state change.
	stateReporter struct {
		w    io.Writer
		ids  []types.PackageID
		seen map[types.PackageID]handle.State
	}
)

// newLoadCommand creates `pakload load`.
func newLoadCommand(app *App) *cobra.Command {
	flags := &loadFlagValues{}

	loadCmd := &cobra.Command{
		Use:   "load <id>...",
		Short: "Load packages with their dependencies",
		Long: `Load packages with their dependencies.

Every id is expanded to its dependency closure and loaded one blob at a time.
Progress is reported per package on stderr. With --asset the named asset of
the first id is written to stdout (or --out); with --scene the named scene is
activated on an in-memory scene host.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]types.PackageID, len(args))
			for i, a := range args {
				ids[i] = types.PackageID(a)
			}
			return runLoad(cmd.Context(), app, envFromContext(cmd.Context()), ids, flags)
		},
	}
	loadCmd.Flags().StringVar(&flags.asset, "asset", "", "extract this asset from the first package")
	loadCmd.Flags().StringVarP(&flags.out, "out", "o", "", "write the extracted asset to a file instead of stdout")
	loadCmd.Flags().StringVar(&flags.scene, "scene", "", "activate this scene from the first package")
	loadCmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while loading")

	return loadCmd
}

func runLoad(ctx context.Context, app *App, e *env, ids []types.PackageID, flags *loadFlagValues) error {
	c, err := e.openCatalog()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var opts []manager.Option
	if addr := metricsAddr(e, flags.metricsAddr); addr != "" {
		collector := metrics.New()
		opts = append(opts, manager.WithMetrics(collector))
		go func() {
			if err := collector.Serve(ctx, addr); err != nil {
				e.logger.Error("metrics endpoint failed", "addr", addr, "error", err)
			}
		}()
	}

	reporter := newStateReporter(app.stderr, c, ids)
	s := startSession(ctx, app, e, c, reporter.observe, opts...)
	defer s.stop()

	res, err := s.runner.LoadAndWait(ctx, ids...)
	var summaryErr error
	if doErr := s.runner.Do(ctx, func(m *manager.Manager) {
		summaryErr = printLoadSummary(app.stderr, m, ids)
	}); doErr != nil {
		return doErr
	}
	if summaryErr != nil {
		return summaryErr
	}
	if err != nil {
		return loadError(res, err, ids)
	}

	if flags.scene != "" {
		if err := activateScene(ctx, s, ids[0], flags.scene); err != nil {
			return err
		}
		fmt.Fprintf(app.stderr, "%s scene %s active (%d scene(s) on host)\n",
			SuccessStyle.Render("✓"), scene.Ref{Package: ids[0], Name: flags.scene}, len(s.host.Active()))
	}

	if flags.asset != "" {
		data, err := s.runner.LoadAssetAndWait(ctx, ids[0], flags.asset)
		if err != nil {
			return newServiceError(
				issue.NewErrorContext().
					WithOperation("extract asset").
					WithResource(ids[0].String()+"/"+flags.asset).
					Wrap(err).
					BuildError(),
				issue.AssetNotFoundId)
		}
		return writeAsset(app.stdout, flags.out, data)
	}
	return nil
}

func metricsAddr(e *env, flag string) string {
	if flag != "" {
		return flag
	}
	if e.cfg.Metrics.Enabled {
		return e.cfg.Metrics.Listen.String()
	}
	return ""
}

// startSession builds a manager over the app's store and starts its runner.
func startSession(ctx context.Context, app *App, e *env, c *catalog.Catalog, onTick func(*manager.Manager), opts ...manager.Option) *session {
	host := scene.NewMemoryHost(0)
	opts = append(opts, manager.WithSceneHost(host))
	mgr := e.newManager(c, app.NewStore(e.logger), opts...)

	runCtx, cancel := context.WithCancel(ctx)
	r := runner.New(mgr,
		runner.WithTickInterval(e.cfg.TickInterval),
		runner.WithLogger(e.logger),
		runner.WithTickHook(onTick),
	)
	s := &session{runner: r, host: host, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- r.Run(runCtx) }()
	return s
}

// stop cancels the runner and waits for it to return.
func (s *session) stop() {
	s.cancel()
	<-s.done
}

func activateScene(ctx context.Context, s *session, pkg types.PackageID, name string) error {
	var req *op.Request[scene.Ref]
	if err := s.runner.Do(ctx, func(m *manager.Manager) {
		req = m.LoadSceneAsync(pkg, name, scene.Additive, nil, true)
	}); err != nil {
		return err
	}
	res, _, err := req.Wait(ctx)
	if err != nil {
		return err
	}
	switch res {
	case op.Success:
		return nil
	case op.ErrorAssetNotFound:
		return newServiceError(
			issue.NewErrorContext().
				WithOperation("load scene").
				WithResource(scene.Ref{Package: pkg, Name: name}.String()).
				WithSuggestion("Scenes live under "+content.ScenesDir+"/ in the packed directory").
				Wrap(res.Err()).
				BuildError(),
			issue.AssetNotFoundId)
	default:
		return loadError(res, res.Err(), []types.PackageID{pkg})
	}
}

func writeAsset(stdout io.Writer, out string, data []byte) error {
	if out == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return newServiceError(err, issue.PermissionDeniedId)
	}
	return nil
}

// loadError maps a failed load result to an issue-backed error.
func loadError(res op.Result, err error, ids []types.PackageID) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	ae := issue.NewErrorContext().
		WithOperation("load packages").
		WithResource(joinIDs(ids)).
		Wrap(err)
	switch res {
	case op.ErrorPackageNotFound:
		return newServiceError(ae.WithSuggestion("Run 'pakload catalog show' to list known ids").BuildError(), issue.PackageNotFoundId)
	case op.ErrorCyclicDependency:
		return newServiceError(ae.WithSuggestion("Run 'pakload catalog check' to see every cycle").BuildError(), issue.DependencyCycleId)
	default:
		return newServiceError(ae.WithSuggestion("Re-run with --verbose to see the failing blob").BuildError(), issue.PackageLoadFailedId)
	}
}

func newStateReporter(w io.Writer, c *catalog.Catalog, ids []types.PackageID) *stateReporter {
	seen := make(map[types.PackageID]bool)
	var all []types.PackageID
	for _, id := range ids {
		deps, err := c.GetAllDependencies(id)
		if err != nil {
			deps = nil
		}
		for _, dep := range append(deps, id) {
			if !seen[dep] {
				seen[dep] = true
				all = append(all, dep)
			}
		}
	}
	return &stateReporter{w: w, ids: all, seen: make(map[types.PackageID]handle.State)}
}

// observe runs on the runner goroutine after every tick.
func (r *stateReporter) observe(m *manager.Manager) {
	for _, id := range r.ids {
		st, ok := m.State(id)
		if !ok {
			continue
		}
		if prev, seen := r.seen[id]; seen && prev == st {
			continue
		}
		r.seen[id] = st
		if st == handle.None {
			continue
		}
		fmt.Fprintf(r.w, "%s %-10s %s\n", progressBar(m.GetLoadProgress(id), progressWidth), st, IDStyle.Render(id.String()))
	}
}

// printLoadSummary runs on the runner goroutine.
func printLoadSummary(w io.Writer, m *manager.Manager, ids []types.PackageID) error {
	progress := m.GetLoadProgress(ids...)
	fmt.Fprintf(w, "%s %3.0f%%\n", progressBar(progress, progressWidth), 100*progress)

	snaps := make(map[types.PackageID]handle.Snapshot)
	for _, snap := range m.Handles() {
		snaps[snap.ID] = snap
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tSTATE\tSOURCE\tBLOB")
	listed := make(map[types.PackageID]bool)
	for _, id := range ids {
		deps, ok := m.GetDependenciesIncludingSelf(id)
		if !ok {
			deps = []types.PackageID{id}
		}
		for _, dep := range deps {
			if listed[dep] {
				continue
			}
			listed[dep] = true
			snap, ok := snaps[dep]
			if !ok {
				fmt.Fprintf(tw, "%s\t%s\t-\t-\n", dep, WarningStyle.Render("unknown"))
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", dep, stateLabel(snap.State), sourceLabel(snap), blobLabel(snap))
		}
	}
	return tw.Flush()
}

func stateLabel(st handle.State) string {
	switch st {
	case handle.Loaded:
		return SuccessStyle.Render(st.String())
	case handle.Error:
		return ErrorStyle.Render(st.String())
	default:
		return WarningStyle.Render(st.String())
	}
}

func sourceLabel(snap handle.Snapshot) string {
	if snap.Remote {
		return "remote"
	}
	return "local"
}

func blobLabel(snap handle.Snapshot) string {
	if info, err := os.Stat(snap.Path.String()); err == nil {
		return humanize.Bytes(uint64(info.Size())) //nolint:gosec // file sizes are non-negative
	}
	return "missing"
}
