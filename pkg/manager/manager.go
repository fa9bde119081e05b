// SPDX-License-Identifier: MPL-2.0

// Package manager is the package-loading façade. A Manager owns the
// handle registry, drives the single-flight loader and every active op
// on Tick, and is the only component that mutates load state.
//
// A Manager is not safe for concurrent use. Drive it from one goroutine;
// runner.Runner does that for programs with several goroutines.
package manager

import (
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/pakload/pakload/pkg/catalog"
	"github.com/pakload/pakload/pkg/handle"
	"github.com/pakload/pakload/pkg/loader"
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/scene"
	"github.com/pakload/pakload/pkg/storage"
	"github.com/pakload/pakload/pkg/types"
)

type (
	// Metrics observes manager and loader activity.
	Metrics interface {
		loader.Metrics
		OpFinished(kind string, r op.Result)
		ActiveOps(n int)
	}

	// Option configures a Manager.
	Option func(*Manager)

	// Manager owns package handles and load orchestration.
	Manager struct {
		store     storage.BlobLoader
		scenes    scene.Host
		logger    *slog.Logger
		metrics   Metrics
		topo      bool
		extension string

		index    catalog.Index
		basePath types.FilesystemPath
		handles  map[types.PackageID]*handle.Handle
		localIDs []types.PackageID
		skipped  map[types.PackageID]op.Result
		loader   *loader.Loader
		ops      []trackedOp
	}

	trackedOp struct {
		kind string
		o    op.Op
	}

	// orderer is implemented by indexes that can sort ids
	// dependencies-first, such as *catalog.Catalog.
	orderer interface {
		TopologicalOrder(ids []types.PackageID) ([]types.PackageID, error)
	}
)

// Op kinds reported to Metrics.
const (
	KindPackageList = "package_list"
	KindAsset       = "asset"
	KindSceneLoad   = "scene_load"
	KindSceneUnload = "scene_unload"
)

// WithSceneHost sets the host used by the scene API.
func WithSceneHost(h scene.Host) Option {
	return func(m *Manager) { m.scenes = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithTopologicalEnqueue makes list loads enqueue dependencies before
// their dependents when the index can order them.
func WithTopologicalEnqueue(enabled bool) Option {
	return func(m *Manager) { m.topo = enabled }
}

// WithBlobExtension sets the blob file extension.
func WithBlobExtension(ext string) Option {
	return func(m *Manager) { m.extension = ext }
}

// New creates a Manager that loads blobs from store.
func New(store storage.BlobLoader, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		topo:      true,
		extension: storage.DefaultBlobExtension,
		handles:   make(map[types.PackageID]*handle.Handle),
		skipped:   make(map[types.PackageID]op.Result),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	lopts := []loader.Option{loader.WithLogger(m.logger)}
	if m.metrics != nil {
		lopts = append(lopts, loader.WithMetrics(m.metrics))
	}
	m.loader = loader.New(store, m.lookup, lopts...)
	return m
}

func (m *Manager) lookup(id types.PackageID) (*handle.Handle, bool) {
	h, ok := m.handles[id]
	return h, ok
}

// Initialize registers a handle for every local id and each package in
// its dependency closure, resolved through index. Local ids that are
// unknown to the index or have a cyclic closure are logged and skipped;
// the returned map holds their result codes. Calling Initialize again
// first unloads and forgets every local handle.
func (m *Manager) Initialize(localIDs []types.PackageID, basePath types.FilesystemPath, index catalog.Index) map[types.PackageID]op.Result {
	for id, h := range m.handles {
		if h.IsRemote() {
			continue
		}
		if !h.Unload() {
			h.Reset()
		}
		delete(m.handles, id)
	}
	clear(m.skipped)
	m.index = index
	m.basePath = basePath
	m.localIDs = m.localIDs[:0]

	for _, id := range localIDs {
		if r := m.register(id, basePath, false); r != op.Success {
			m.skipped[id] = r
			continue
		}
		m.localIDs = append(m.localIDs, id)
	}
	m.logger.Debug("package manager initialized", "local", len(m.localIDs), "handles", len(m.handles), "skipped", len(m.skipped))
	return maps.Clone(m.skipped)
}

// RegisterRemote registers remote handles for ids and their closures,
// with blobs under cacheDir. Ids that already have a handle are kept.
func (m *Manager) RegisterRemote(ids []types.PackageID, cacheDir types.FilesystemPath) map[types.PackageID]op.Result {
	failed := make(map[types.PackageID]op.Result)
	if m.index == nil {
		for _, id := range ids {
			failed[id] = op.ErrorPackageNotFound
		}
		return failed
	}
	for _, id := range ids {
		if r := m.register(id, cacheDir, true); r != op.Success {
			failed[id] = r
		}
	}
	return failed
}

// register creates handles for id and its dependency closure.
func (m *Manager) register(id types.PackageID, base types.FilesystemPath, remote bool) op.Result {
	closure, r := m.closure(id)
	if r != op.Success {
		return r
	}
	for _, dep := range closure {
		if _, ok := m.handles[dep]; ok {
			continue
		}
		depClosure, r := m.closure(dep)
		if r != op.Success {
			m.logger.Warn("dependency has no package entry", "package", id, "dependency", dep, "result", r)
			continue
		}
		m.addHandle(dep, base, remote, depClosure)
	}
	if _, ok := m.handles[id]; !ok {
		m.addHandle(id, base, remote, closure)
	}
	return op.Success
}

func (m *Manager) closure(id types.PackageID) ([]types.PackageID, op.Result) {
	closure, err := catalog.Closure(m.index, id)
	if err == nil {
		return closure, op.Success
	}
	r := op.ErrorInternal
	switch {
	case errors.Is(err, catalog.ErrUnknownPackage):
		r = op.ErrorPackageNotFound
	case errors.Is(err, catalog.ErrCyclicDependency):
		r = op.ErrorCyclicDependency
	}
	m.logger.Error("cannot resolve package dependencies", "package", id, "result", r, "error", err)
	return nil, r
}

func (m *Manager) addHandle(id types.PackageID, base types.FilesystemPath, remote bool, deps []types.PackageID) {
	m.handles[id] = handle.New(id, storage.BlobPath(base, id, m.extension), remote, deps)
}

// IsValid reports whether id has a handle.
func (m *Manager) IsValid(id types.PackageID) bool {
	_, ok := m.handles[id]
	return ok
}

// IsValidList reports whether every id has a handle.
func (m *Manager) IsValidList(ids []types.PackageID) bool {
	for _, id := range ids {
		if !m.IsValid(id) {
			return false
		}
	}
	return true
}

// IsLoaded reports whether id is loaded.
func (m *Manager) IsLoaded(id types.PackageID) bool {
	h, ok := m.handles[id]
	return ok && h.IsLoaded()
}

// IsLoadedList reports whether every id is valid and loaded.
func (m *Manager) IsLoadedList(ids []types.PackageID) bool {
	for _, id := range ids {
		if !m.IsLoaded(id) {
			return false
		}
	}
	return true
}

// State returns the handle state of id.
func (m *Manager) State(id types.PackageID) (handle.State, bool) {
	h, ok := m.handles[id]
	if !ok {
		return handle.None, false
	}
	return h.State(), true
}

// GetDependenciesIncludingSelf returns id's dependencies followed by id.
func (m *Manager) GetDependenciesIncludingSelf(id types.PackageID) ([]types.PackageID, bool) {
	h, ok := m.handles[id]
	if !ok {
		return nil, false
	}
	return h.Dependencies(), true
}

// Handles returns snapshots of every handle ordered by id.
func (m *Manager) Handles() []handle.Snapshot {
	out := make([]handle.Snapshot, 0, len(m.handles))
	for _, id := range slices.Sorted(maps.Keys(m.handles)) {
		out = append(out, m.handles[id].Snapshot())
	}
	return out
}

// LocalIDs returns the local ids registered by the last Initialize.
func (m *Manager) LocalIDs() []types.PackageID { return slices.Clone(m.localIDs) }

// ActiveOps returns the number of unfinished ops.
func (m *Manager) ActiveOps() int { return len(m.ops) }

// QueueLen returns the number of packages waiting to load.
func (m *Manager) QueueLen() int { return m.loader.QueueLen() }

// IsBusy reports whether loads or ops are outstanding.
func (m *Manager) IsBusy() bool { return m.loader.IsBusy() || len(m.ops) > 0 }

// GetLoadProgress returns the mean load progress of ids.
func (m *Manager) GetLoadProgress(ids ...types.PackageID) float64 {
	if len(ids) == 0 {
		return 1
	}
	var sum float64
	for _, id := range ids {
		sum += m.loader.GetProgress(id)
	}
	return sum / float64(len(ids))
}

// Tick advances the loader and then every active op, dropping the ops
// that finished.
func (m *Manager) Tick() {
	m.loader.Tick()
	m.updateOps()
	if m.metrics != nil {
		m.metrics.ActiveOps(len(m.ops))
	}
}

func (m *Manager) updateOps() {
	ops := m.ops
	m.ops = nil
	keep := ops[:0]
	for _, t := range ops {
		t.o.Update()
		if t.o.IsDone() {
			m.observe(t.kind, t.o.Result())
			continue
		}
		keep = append(keep, t)
	}
	// callbacks may have started new ops
	m.ops = append(keep, m.ops...)
}

func (m *Manager) observe(kind string, r op.Result) {
	if m.metrics != nil {
		m.metrics.OpFinished(kind, r)
	}
	if r != op.Success {
		m.logger.Debug("operation failed", "kind", kind, "result", r)
	}
}

// Reset unloads and forgets every handle, drops the load queue, and
// fails the ops that were waiting on packages. A physical load already in
// flight drains on later ticks and its content is released.
func (m *Manager) Reset() {
	for _, h := range m.handles {
		h.Reset()
	}
	clear(m.handles)
	clear(m.skipped)
	m.localIDs = nil
	m.index = nil
	m.loader.Reset()
	m.updateOps()
	m.ops = nil
}

// track performs o and keeps it for ticking when it did not complete
// immediately.
func track[T any](m *Manager, kind string, o op.Typed[T], buildRequest bool) *op.Request[T] {
	o.Perform()
	if o.IsDone() {
		m.observe(kind, o.Result())
	} else {
		m.ops = append(m.ops, trackedOp{kind: kind, o: o})
	}
	if !buildRequest {
		return nil
	}
	return op.NewRequest(o)
}
