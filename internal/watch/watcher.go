// SPDX-License-Identifier: MPL-2.0

// Package watch monitors a catalog manifest and a packages directory and
// reports debounced changes.
//
// Events within the debounce window are coalesced so the callback fires once
// with a Change describing whether the manifest was touched and which package
// blobs were written, renamed or removed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/pakload/pakload/pkg/storage"
	"github.com/pakload/pakload/pkg/types"
)

// defaultDebounce is the quiet period used when Config.Debounce is unset.
const defaultDebounce = 250 * time.Millisecond

var (
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("watch: Run called more than once")

	// defaultIgnores are editor and OS artifacts that never name a blob.
	defaultIgnores = []string{
		"**/.git/**",
		"**/*.swp",
		"**/*.swo",
		"**/*~",
		"**/.DS_Store",
		"**/*.tmp",
	}
)

type (
	// Change is the coalesced result of one debounce window.
	Change struct {
		// ManifestChanged is set when the manifest file was written,
		// created, renamed or removed.
		ManifestChanged bool
		// Packages lists ids whose blob files changed, sorted.
		Packages []types.PackageID
	}

	// Config holds the parameters for a Watcher.
	Config struct {
		// Manifest is the catalog manifest file. Its parent directory is
		// watched non-recursively. Empty disables manifest tracking.
		Manifest types.FilesystemPath

		// PackagesDir is walked recursively; blob files below it map back
		// to package ids. Empty disables blob tracking.
		PackagesDir types.FilesystemPath

		// BlobExtension selects blob files; defaults to storage.DefaultBlobExtension.
		BlobExtension string

		// Ignore are additional doublestar patterns, relative to PackagesDir,
		// that never produce a change.
		Ignore []string

		// Debounce is the quiet period after the last event before the
		// callback fires.
		Debounce time.Duration

		// OnChange receives each coalesced Change. A nil callback is a no-op.
		OnChange func(ctx context.Context, c Change) error

		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Watcher monitors the manifest and package blobs. Run must be called
	// exactly once.
	Watcher struct {
		cfg         Config
		fsw         *fsnotify.Watcher
		logger      *slog.Logger
		ignores     []string
		blobPattern string
		debounce    time.Duration
		manifest    string
		packagesDir string
		started     atomic.Bool
	}
)

// New validates cfg, resolves paths to absolute form, and registers the
// manifest directory and every non-ignored directory under PackagesDir.
func New(cfg Config) (*Watcher, error) {
	if cfg.Manifest == "" && cfg.PackagesDir == "" {
		return nil, errors.New("watch: nothing to watch: manifest and packages dir are both empty")
	}

	if err := validatePatterns(cfg.Ignore); err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:      cfg,
		logger:   cfg.Logger,
		debounce: cfg.Debounce,
		ignores:  slices.Concat(defaultIgnores, cfg.Ignore),
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	ext := cfg.BlobExtension
	if ext == "" {
		ext = storage.DefaultBlobExtension
	}
	w.blobPattern = "**/*" + ext

	if cfg.Manifest != "" {
		abs, err := filepath.Abs(cfg.Manifest.String())
		if err != nil {
			return nil, fmt.Errorf("watch: resolve manifest: %w", err)
		}
		w.manifest = abs
	}
	if cfg.PackagesDir != "" {
		abs, err := filepath.Abs(cfg.PackagesDir.String())
		if err != nil {
			return nil, fmt.Errorf("watch: resolve packages dir: %w", err)
		}
		w.packagesDir = abs
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.register(); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			w.logger.Warn("watch: close after init failure", "error", closeErr)
		}
		return nil, err
	}

	return w, nil
}

// Run blocks until ctx is canceled, dispatching debounced changes. It
// returns nil on cancellation and an error when fsnotify fails fatally.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending Change
		ids     = make(map[types.PackageID]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire may run after ctx is canceled because it is scheduled by
	// time.AfterFunc; it also skips while a previous callback is running
	// and re-arms so accumulated events are not lost.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.logger.Debug("watch: previous change still being handled, deferring")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if !pending.ManifestChanged && len(ids) == 0 {
			mu.Unlock()
			return
		}
		change := Change{ManifestChanged: pending.ManifestChanged}
		for id := range ids {
			change.Packages = append(change.Packages, id)
		}
		slices.Sort(change.Packages)
		pending = Change{}
		clear(ids)
		mu.Unlock()

		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, change); err != nil {
				w.logger.Error("watch: change handler failed", "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if closeErr := w.fsw.Close(); closeErr != nil {
			w.logger.Warn("watch: close fsnotify", "error", closeErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write) {
				continue
			}

			manifestHit, id, isBlob := w.classify(evt.Name)
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}
			if !manifestHit && !isBlob {
				continue
			}

			mu.Lock()
			if manifestHit {
				pending.ManifestChanged = true
			}
			if isBlob {
				ids[id] = struct{}{}
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("watch: fsnotify error", "error", err)
		}
	}
}

// classify maps an absolute event path to the manifest or a package id.
func (w *Watcher) classify(name string) (manifest bool, id types.PackageID, blob bool) {
	if w.manifest != "" && filepath.Clean(name) == w.manifest {
		return true, "", false
	}
	if w.packagesDir == "" {
		return false, "", false
	}
	rel, err := filepath.Rel(w.packagesDir, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false, "", false
	}
	rel = filepath.ToSlash(rel)
	if w.isIgnored(rel) {
		return false, "", false
	}
	if matched, matchErr := doublestar.Match(w.blobPattern, rel); matchErr != nil || !matched {
		return false, "", false
	}
	return false, types.PackageID(strings.TrimSuffix(rel, filepath.Ext(rel))), true
}

// register adds the manifest's directory and the packages tree.
func (w *Watcher) register() error {
	if w.manifest != "" {
		dir := filepath.Dir(w.manifest)
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch: add manifest directory %q: %w", dir, err)
		}
	}
	if w.packagesDir == "" {
		return nil
	}

	walkErr := filepath.WalkDir(w.packagesDir, func(path string, d os.DirEntry, walkDirErr error) error {
		if walkDirErr != nil {
			if path == w.packagesDir {
				return walkDirErr
			}
			w.logger.Warn("watch: skipping inaccessible path", "path", path, "error", walkDirErr)
			return nil //nolint:nilerr // inaccessible subdirectories are skipped
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.packagesDir, path)
		if relErr != nil {
			return nil //nolint:nilerr // skip paths that cannot be made relative
		}
		if rel != "." && w.isIgnored(filepath.ToSlash(rel)+"/") {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, addErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk packages dir: %w", walkErr)
	}
	return nil
}

// maybeAddDir extends the recursive watch to directories created under
// PackagesDir after startup.
func (w *Watcher) maybeAddDir(path string) {
	if w.packagesDir == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	rel, err := filepath.Rel(w.packagesDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	if w.isIgnored(filepath.ToSlash(rel) + "/") {
		return
	}
	if addErr := w.fsw.Add(path); addErr != nil {
		w.logger.Warn("watch: add new directory", "path", path, "error", addErr)
	}
}

// isIgnored reports whether rel (slash-separated, relative to PackagesDir)
// matches an ignore pattern.
func (w *Watcher) isIgnored(rel string) bool {
	for _, pat := range w.ignores {
		if matched, matchErr := doublestar.Match(pat, rel); matchErr == nil && matched {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

func validatePatterns(patterns []string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid ignore pattern %q: %w", pat, doublestar.ErrBadPattern)
		}
	}
	return nil
}
