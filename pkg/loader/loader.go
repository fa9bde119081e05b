// SPDX-License-Identifier: MPL-2.0

// Package loader serializes physical package loads: ids wait in a FIFO
// queue and at most one load is in flight at any time.
package loader

import (
	"log/slog"
	"slices"
	"time"

	"github.com/pakload/pakload/pkg/content"
	"github.com/pakload/pakload/pkg/handle"
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/storage"
	"github.com/pakload/pakload/pkg/types"
)

type (
	// Lookup resolves a package id to its handle.
	Lookup func(types.PackageID) (*handle.Handle, bool)

	// Metrics observes loader activity.
	Metrics interface {
		LoadQueued(id types.PackageID, queueLen int)
		LoadStarted(id types.PackageID)
		LoadFinished(id types.PackageID, state handle.State, elapsed time.Duration)
	}

	// Option configures a Loader.
	Option func(*Loader)

	// Loader is the single-flight executor. It is driven by Tick and is
	// not safe for concurrent use.
	Loader struct {
		store   storage.BlobLoader
		lookup  Lookup
		logger  *slog.Logger
		metrics Metrics
		now     func() time.Time

		queue  []types.PackageID
		queued map[types.PackageID]struct{}
		active *loadOp
	}

	// loadOp is one physical load.
	loadOp struct {
		op.Base[content.Content]
		h       *handle.Handle
		store   storage.BlobLoader
		gen     uint64
		pending storage.Pending
		started time.Time
	}
)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(ld *Loader) { ld.metrics = m }
}

// WithNow sets the time source used for load durations.
func WithNow(now func() time.Time) Option {
	return func(ld *Loader) { ld.now = now }
}

// New creates a Loader that loads blobs from store and resolves handles
// through lookup.
func New(store storage.BlobLoader, lookup Lookup, opts ...Option) *Loader {
	ld := &Loader{
		store:  store,
		lookup: lookup,
		queued: make(map[types.PackageID]struct{}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ld)
	}
	if ld.logger == nil {
		ld.logger = slog.Default()
	}
	return ld
}

// RequestLoad queues id. It is a no-op when id is already queued, is
// unknown, or does not need loading.
func (ld *Loader) RequestLoad(id types.PackageID) bool {
	h, ok := ld.lookup(id)
	if !ok {
		return false
	}
	_, queued := ld.queued[id]
	if queued && h.State() == handle.PendingToRequest {
		return false
	}
	if !h.NeedsToRequestToLoad() {
		return false
	}
	h.OnPendingToRequestToLoad()
	// a queue entry left by a replaced or reset handle keeps its position
	if !queued {
		ld.queue = append(ld.queue, id)
		ld.queued[id] = struct{}{}
	}
	if ld.metrics != nil {
		ld.metrics.LoadQueued(id, len(ld.queue))
	}
	return true
}

// Tick polls the active load, or starts the next queued one when idle.
func (ld *Loader) Tick() {
	if ld.active != nil && ld.active.IsPerforming() {
		ld.active.Update()
		if ld.active.IsDone() {
			ld.complete(ld.active)
			ld.active = nil
		}
		return
	}
	ld.active = nil

	for len(ld.queue) > 0 {
		id := ld.queue[0]
		ld.queue = ld.queue[1:]
		delete(ld.queued, id)

		h, ok := ld.lookup(id)
		if !ok || h.State() != handle.PendingToRequest {
			ld.logger.Debug("skipping dequeued package", "package", id)
			continue
		}
		lo := &loadOp{Base: op.NewBase[content.Content](nil), h: h, store: ld.store, started: ld.now()}
		lo.Perform()
		if ld.metrics != nil {
			ld.metrics.LoadStarted(id)
		}
		ld.logger.Debug("package load started", "package", id, "path", h.Path(), "queued", len(ld.queue))
		if lo.IsDone() {
			ld.complete(lo)
			continue
		}
		ld.active = lo
		return
	}
}

func (ld *Loader) complete(lo *loadOp) {
	elapsed := ld.now().Sub(lo.started)
	id := lo.h.ID()
	switch lo.h.State() {
	case handle.Loaded:
		ld.logger.Debug("package loaded", "package", id, "elapsed", elapsed)
	case handle.Error:
		ld.logger.Error("package load failed", "package", id, "path", lo.h.Path(), "error", lo.h.Err())
	default:
		ld.logger.Debug("package load discarded", "package", id, "state", lo.h.State())
	}
	if ld.metrics != nil {
		ld.metrics.LoadFinished(id, lo.h.State(), elapsed)
	}
}

// GetProgress is 1 for loaded packages, the in-flight fraction for the
// package being loaded, and 0 otherwise.
func (ld *Loader) GetProgress(id types.PackageID) float64 {
	h, ok := ld.lookup(id)
	if !ok {
		return 0
	}
	if h.IsLoaded() {
		return 1
	}
	// a load left over from a replaced handle does not count for its successor
	if ld.active != nil && ld.active.h == h && ld.active.IsPerforming() {
		return ld.active.Progress()
	}
	return 0
}

// QueueLen returns the number of ids waiting to load.
func (ld *Loader) QueueLen() int { return len(ld.queue) }

// Queue returns the waiting ids in order.
func (ld *Loader) Queue() []types.PackageID { return slices.Clone(ld.queue) }

// IsQueued reports whether id is waiting to load.
func (ld *Loader) IsQueued(id types.PackageID) bool {
	_, ok := ld.queued[id]
	return ok
}

// Active returns the id of the physical load in flight.
func (ld *Loader) Active() (types.PackageID, bool) {
	if ld.active == nil || !ld.active.IsPerforming() {
		return "", false
	}
	return ld.active.h.ID(), true
}

// IsBusy reports whether a load is in flight or queued.
func (ld *Loader) IsBusy() bool {
	_, active := ld.Active()
	return active || len(ld.queue) > 0
}

// Reset drops the queue. Handles are not touched, and an in-flight load
// keeps draining on later ticks before anything new starts. Callers that
// reset its handle get the completion discarded by generation.
func (ld *Loader) Reset() {
	ld.queue = nil
	clear(ld.queued)
}

func (lo *loadOp) Perform() {
	if !lo.Begin() {
		return
	}
	gen, ok := lo.h.OnLoadRequested()
	if !ok {
		lo.Finish(op.ErrorInternal, nil)
		return
	}
	lo.gen = gen
	lo.pending = lo.store.LoadPackageBlob(lo.h.ID(), lo.h.Path())
	lo.Update()
}

func (lo *loadOp) Update() {
	if !lo.IsPerforming() || !lo.pending.IsDone() {
		return
	}
	c, err := lo.pending.Result()
	lo.h.OnLoaded(lo.gen, c, err)
	if lo.h.State() == handle.Loaded {
		lo.Finish(op.Success, c)
		return
	}
	lo.Finish(op.ErrorInternal, nil)
}

func (lo *loadOp) Progress() float64 {
	if lo.IsDone() {
		return 1
	}
	if lo.pending == nil {
		return 0
	}
	return lo.pending.Progress()
}
