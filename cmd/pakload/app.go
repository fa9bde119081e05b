// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/pakload/pakload/internal/config"
	"github.com/pakload/pakload/internal/issue"
	"github.com/pakload/pakload/internal/logging"
	"github.com/pakload/pakload/pkg/catalog"
	"github.com/pakload/pakload/pkg/manager"
	"github.com/pakload/pakload/pkg/storage"
	"github.com/pakload/pakload/pkg/types"
)

type (
	envContextKey struct{}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// StoreFactory builds the physical blob loader for one command run.
	StoreFactory func(logger *slog.Logger) storage.BlobLoader

	// App wires CLI services and shared dependencies.
	App struct {
		Config   ConfigProvider
		NewStore StoreFactory
		stdout   io.Writer
		stderr   io.Writer
		// installLogger makes the per-run logger the slog default.
		installLogger bool
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config   ConfigProvider
		NewStore StoreFactory
		Stdout   io.Writer
		Stderr   io.Writer
	}

	// rootFlagValues holds the persistent flags shared by all commands.
	rootFlagValues struct {
		configPath  string
		manifest    string
		packagesDir string
		verbose     bool
	}

	// env is the resolved per-run state attached to the command context.
	env struct {
		cfg     *config.Config
		logger  *slog.Logger
		verbose bool
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.NewStore == nil {
		deps.NewStore = func(logger *slog.Logger) storage.BlobLoader {
			return storage.NewFileStore(storage.WithLogger(logger))
		}
	}
	return &App{
		Config:   deps.Config,
		NewStore: deps.NewStore,
		stdout:   deps.Stdout,
		stderr:   deps.Stderr,
	}
}

// newEnv loads configuration, applies flag overrides and builds the logger.
func (a *App) newEnv(ctx context.Context, flags *rootFlagValues) (*env, error) {
	opts := config.LoadOptions{ConfigFilePath: types.FilesystemPath(flags.configPath)}
	if wd, err := os.Getwd(); err == nil {
		opts.WorkDir = types.FilesystemPath(wd)
	}

	cfg, err := a.Config.Load(ctx, opts)
	if err != nil {
		return nil, newServiceError(err, issue.ConfigLoadFailedId)
	}
	if flags.manifest != "" {
		cfg.Manifest = types.FilesystemPath(flags.manifest)
	}
	if flags.packagesDir != "" {
		cfg.PackagesDir = types.FilesystemPath(flags.packagesDir)
	}

	logCfg := cfg.Log
	if flags.verbose {
		logCfg.Level = config.LogLevelDebug
	}
	logger := logging.New(a.stderr, logCfg, logging.WithPrefix(config.AppName))
	if a.installLogger {
		slog.SetDefault(logger)
	}

	return &env{cfg: cfg, logger: logger, verbose: flags.verbose}, nil
}

func contextWithEnv(ctx context.Context, e *env) context.Context {
	return context.WithValue(ctx, envContextKey{}, e)
}

// envFromContext returns the env attached by the root command. Commands
// that skip env resolution get defaults and a discarding logger.
func envFromContext(ctx context.Context) *env {
	if e, ok := ctx.Value(envContextKey{}).(*env); ok {
		return e
	}
	return &env{cfg: config.DefaultConfig(), logger: slog.New(slog.DiscardHandler)}
}

// openCatalog reads the configured manifest into a Catalog.
func (e *env) openCatalog() (*catalog.Catalog, error) {
	path := e.cfg.Manifest.String()
	m, err := catalog.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newServiceError(
				issue.NewErrorContext().
					WithOperation("read manifest").
					WithResource(path).
					WithSuggestion("Pass --manifest or set 'manifest' in config.cue").
					Wrap(err).
					BuildError(),
				issue.ManifestNotFoundId)
		}
		return nil, newServiceError(
			issue.NewErrorContext().
				WithOperation("parse manifest").
				WithResource(path).
				WithSuggestion("Supported formats: .cue, .json, .toml, .yaml").
				Wrap(err).
				BuildError(),
			issue.ManifestParseErrorId)
	}
	return catalog.Load(m, catalog.WithLogger(e.logger)), nil
}

// newManager builds a Manager over store using the configured options and
// registers every local and remote package from c.
func (e *env) newManager(c *catalog.Catalog, store storage.BlobLoader, extra ...manager.Option) *manager.Manager {
	opts := []manager.Option{
		manager.WithLogger(e.logger),
		manager.WithTopologicalEnqueue(e.cfg.TopologicalEnqueue),
		manager.WithBlobExtension(e.cfg.BlobExtension),
	}
	opts = append(opts, extra...)
	m := manager.New(store, opts...)
	e.initialize(m, c)
	return m
}

// initialize (re)registers c's packages on m and logs ids that were skipped.
func (e *env) initialize(m *manager.Manager, c *catalog.Catalog) {
	for id, res := range m.Initialize(c.LocalIDs(), e.cfg.PackagesDir, c) {
		e.logger.Warn("package skipped", "package", id, "result", res)
	}
	for id, res := range m.RegisterRemote(c.RemoteIDs(), e.cfg.PackagesDir) {
		e.logger.Warn("remote package skipped", "package", id, "result", res)
	}
}
