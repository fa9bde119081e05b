// SPDX-License-Identifier: MPL-2.0

// Package runner owns a manager.Manager on a single goroutine. The
// goroutine ticks the manager at a fixed interval and runs closures
// submitted by other goroutines between ticks, so manager state is never
// touched concurrently.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pakload/pakload/pkg/manager"
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/types"
)

// DefaultTickInterval is roughly one frame at 60Hz.
const DefaultTickInterval = 16 * time.Millisecond

// ErrNotRunning is returned when a call is submitted after Run returned.
var ErrNotRunning = errors.New("runner is not running")

type (
	// Clock is the time source used for ticking.
	Clock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
	}

	// RealClock uses the system clock.
	RealClock struct{}

	// Option configures a Runner.
	Option func(*Runner)

	// Runner is the single owner of a Manager.
	Runner struct {
		mgr      *manager.Manager
		clock    Clock
		interval time.Duration
		logger   *slog.Logger
		onTick   func(*manager.Manager)

		calls   chan call
		stopped chan struct{}
	}

	call struct {
		fn   func(*manager.Manager)
		done chan struct{}
	}
)

// Now returns time.Now.
func (RealClock) Now() time.Time { return time.Now() }

// After returns time.After.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// WithClock sets the clock.
func WithClock(c Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithTickInterval sets the tick interval.
func WithTickInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithTickHook runs fn on the owner goroutine after every tick.
func WithTickHook(fn func(*manager.Manager)) Option {
	return func(r *Runner) { r.onTick = fn }
}

// New creates a Runner for mgr. mgr must not be used directly once Run
// has started.
func New(mgr *manager.Manager, opts ...Option) *Runner {
	r := &Runner{
		mgr:      mgr,
		clock:    RealClock{},
		interval: DefaultTickInterval,
		calls:    make(chan call),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run ticks the manager until ctx is done. It must be called once.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)
	r.logger.Debug("runner started", "interval", r.interval)

	next := r.clock.After(r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("runner stopped", "reason", ctx.Err())
			return ctx.Err()
		case c := <-r.calls:
			c.fn(r.mgr)
			close(c.done)
		case <-next:
			r.mgr.Tick()
			if r.onTick != nil {
				r.onTick(r.mgr)
			}
			next = r.clock.After(r.interval)
		}
	}
}

// Do runs fn on the owner goroutine and waits for it to return.
func (r *Runner) Do(ctx context.Context, fn func(*manager.Manager)) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case r.calls <- c:
	case <-r.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	// a call accepted by Run always completes before Run can return
	<-c.done
	return nil
}

// LoadAndWait loads ids with their dependencies and blocks until every
// load finished. The returned error wraps the first failure's sentinel.
func (r *Runner) LoadAndWait(ctx context.Context, ids ...types.PackageID) (op.Result, error) {
	reqs := make([]*op.Request[[]types.PackageID], 0, len(ids))
	err := r.Do(ctx, func(m *manager.Manager) {
		for _, id := range ids {
			reqs = append(reqs, m.LoadPackageAndDependencies(id, nil, true))
		}
	})
	if err != nil {
		return op.ErrorInternal, err
	}

	result := op.Success
	for _, req := range reqs {
		res, _, err := req.Wait(ctx)
		if err != nil {
			return op.ErrorInternal, err
		}
		if res != op.Success && result == op.Success {
			result = res
		}
	}
	return result, result.Err()
}

// LoadAssetAndWait loads pkg and returns one of its assets.
func (r *Runner) LoadAssetAndWait(ctx context.Context, pkg types.PackageID, name string) ([]byte, error) {
	var req *op.Request[[]byte]
	if err := r.Do(ctx, func(m *manager.Manager) {
		req = m.LoadAssetAsync(pkg, name, nil, true)
	}); err != nil {
		return nil, err
	}
	res, data, err := req.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return data, res.Err()
}
