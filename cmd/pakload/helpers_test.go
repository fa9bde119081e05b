// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pakload/pakload/internal/config"
	"github.com/pakload/pakload/internal/testutil"
	"github.com/pakload/pakload/pkg/types"
)

const testManifest = `local:
  - level-1
dependencies:
  core: []
  ui: [core]
  level-1: [core, ui]
  dlc: [core]
`

type (
	// staticConfig hands out copies of a fixed configuration.
	staticConfig struct {
		cfg *config.Config
	}

	// cliFixture is a temporary project: a manifest, a packages dir and a
	// configuration pointing at both.
	cliFixture struct {
		dir string
		cfg *config.Config
	}
)

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	c := *s.cfg
	return &c, nil
}

func newCLIFixture(t *testing.T, manifest string) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "catalog.yaml"), []byte(manifest))
	testutil.MustMkdirAll(t, filepath.Join(dir, "packages"))

	cfg := config.DefaultConfig()
	cfg.Manifest = types.FilesystemPath(filepath.Join(dir, "catalog.yaml"))
	cfg.PackagesDir = types.FilesystemPath(filepath.Join(dir, "packages"))
	cfg.TickInterval = time.Millisecond
	return &cliFixture{dir: dir, cfg: cfg}
}

// blob packs a package into the fixture's packages dir.
func (f *cliFixture) blob(t *testing.T, id types.PackageID, assets, scenes map[string]string) {
	t.Helper()
	testutil.WriteBlob(t, f.cfg.PackagesDir.String(), id, assets, scenes)
}

// run executes the command tree and returns what it wrote.
func (f *cliFixture) run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(Dependencies{
		Config: staticConfig{cfg: f.cfg},
		Stdout: &out,
		Stderr: &errOut,
	})
	root := newRootCommand(app)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// failingConfig always fails to load.
type failingConfig struct{}

func (failingConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	return nil, errors.New("config is unreadable")
}
