// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pakload/pakload/pkg/types"
)

type fixture struct {
	manifest    string
	packagesDir string
	changes     chan Change
	errCh       chan error
}

// startWatcher creates a manifest file and packages dir under a temp dir
// and runs a watcher over them until the test ends.
func startWatcher(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	root := t.TempDir()
	f := &fixture{
		manifest:    filepath.Join(root, "catalog.cue"),
		packagesDir: filepath.Join(root, "packages"),
		changes:     make(chan Change, 16),
		errCh:       make(chan error, 1),
	}
	if err := os.WriteFile(f.manifest, []byte("local: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(f.packagesDir, "levels"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		Manifest:    types.FilesystemPath(f.manifest),
		PackagesDir: types.FilesystemPath(f.packagesDir),
		Debounce:    50 * time.Millisecond,
		Logger:      slog.New(slog.DiscardHandler),
		OnChange: func(_ context.Context, c Change) error {
			f.changes <- c
			return nil
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { f.errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-f.errCh; err != nil {
			t.Errorf("Run() error: %v", err)
		}
	})
	return f
}

func (f *fixture) write(t *testing.T, rel string) {
	t.Helper()
	path := filepath.Join(f.packagesDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("blob"), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func (f *fixture) next(t *testing.T) Change {
	t.Helper()
	select {
	case c := <-f.changes:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func (f *fixture) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case c := <-f.changes:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(d):
	}
}

func TestWatcher_CoalescesBlobWrites(t *testing.T) {
	t.Parallel()

	f := startWatcher(t, nil)
	for _, rel := range []string{"core.pak", "ui.pak", "levels/one.pak"} {
		f.write(t, rel)
		time.Sleep(10 * time.Millisecond)
	}

	got := f.next(t)
	want := Change{Packages: []types.PackageID{"core", "levels/one", "ui"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Change mismatch (-want +got):\n%s", diff)
	}
	f.expectQuiet(t, 200*time.Millisecond)
}

func TestWatcher_ManifestChange(t *testing.T) {
	t.Parallel()

	f := startWatcher(t, nil)
	if err := os.WriteFile(f.manifest, []byte("local: [\"core\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := f.next(t)
	if !got.ManifestChanged {
		t.Errorf("ManifestChanged = false, want true")
	}
	if len(got.Packages) != 0 {
		t.Errorf("Packages = %v, want none", got.Packages)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	f := startWatcher(t, func(c *Config) { c.Ignore = []string{"scratch/**"} })
	f.write(t, "notes.txt")
	f.write(t, "core.pak.swp")
	f.write(t, "scratch/tmp.pak")
	if err := os.WriteFile(filepath.Join(filepath.Dir(f.manifest), "other.cue"), []byte("x: 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	f.expectQuiet(t, 300*time.Millisecond)
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	t.Parallel()

	f := startWatcher(t, nil)
	if err := os.MkdirAll(filepath.Join(f.packagesDir, "dlc"), 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the event loop time to register the new directory.
	time.Sleep(100 * time.Millisecond)
	f.write(t, "dlc/bonus.pak")

	got := f.next(t)
	if diff := cmp.Diff([]types.PackageID{"dlc/bonus"}, got.Packages); diff != "" {
		t.Errorf("Packages mismatch (-want +got):\n%s", diff)
	}
}

func TestWatcher_CustomExtension(t *testing.T) {
	t.Parallel()

	f := startWatcher(t, func(c *Config) { c.BlobExtension = ".bin" })
	f.write(t, "core.pak")
	f.write(t, "core.bin")

	got := f.next(t)
	if diff := cmp.Diff([]types.PackageID{"core"}, got.Packages); diff != "" {
		t.Errorf("Packages mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Error("New() with nothing to watch should fail")
	}
	if _, err := New(Config{PackagesDir: types.FilesystemPath(t.TempDir()), Ignore: []string{"[unclosed"}}); err == nil {
		t.Error("New() with a bad ignore pattern should fail")
	}
	if _, err := New(Config{PackagesDir: types.FilesystemPath(filepath.Join(t.TempDir(), "missing"))}); err == nil {
		t.Error("New() with a missing packages dir should fail")
	}
}

func TestRun_Twice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{PackagesDir: types.FilesystemPath(t.TempDir()), Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Wait until the first Run has claimed the watcher.
	for !w.started.Load() {
		time.Sleep(time.Millisecond)
	}
	if err := w.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run() error: %v", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	w := &Watcher{
		manifest:    filepath.FromSlash("/game/catalog.cue"),
		packagesDir: filepath.FromSlash("/game/packages"),
		blobPattern: "**/*.pak",
		ignores:     DefaultIgnores(),
	}

	tests := []struct {
		path     string
		manifest bool
		id       types.PackageID
		blob     bool
	}{
		{"/game/catalog.cue", true, "", false},
		{"/game/packages/core.pak", false, "core", true},
		{"/game/packages/levels/one.pak", false, "levels/one", true},
		{"/game/packages/core.txt", false, "", false},
		{"/game/packages/.git/x.pak", false, "", false},
		{"/game/other.pak", false, "", false},
		{"/game/packages", false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			m, id, blob := w.classify(filepath.FromSlash(tt.path))
			if m != tt.manifest || id != tt.id || blob != tt.blob {
				t.Errorf("classify(%q) = (%v, %q, %v), want (%v, %q, %v)", tt.path, m, id, blob, tt.manifest, tt.id, tt.blob)
			}
		})
	}
}
