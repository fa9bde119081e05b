// SPDX-License-Identifier: MPL-2.0

// Package metrics exports loader and manager activity as Prometheus
// collectors.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pakload/pakload/pkg/handle"
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/types"
)

const namespace = "pakload"

// shutdownTimeout bounds how long Serve waits for in-flight scrapes.
const shutdownTimeout = 5 * time.Second

// Collector implements manager.Metrics on top of a private registry.
type Collector struct {
	registry *prometheus.Registry

	queued       prometheus.Counter
	queueLength  prometheus.Gauge
	started      prometheus.Counter
	finished     *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
	loading      *prometheus.GaugeVec
	opsFinished  *prometheus.CounterVec
	activeOps    prometheus.Gauge
}

// New registers the pakload collectors on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		queued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_queued_total",
			Help:      "Package ids appended to the loader queue.",
		}),
		queueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loader_queue_length",
			Help:      "Package ids waiting for a physical load.",
		}),
		started: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_started_total",
			Help:      "Physical loads started.",
		}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_finished_total",
			Help:      "Physical loads finished, by resulting handle state.",
		}, []string{"state"}),
		loadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Physical load duration in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"state"}),
		loading: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "package_loading",
			Help:      "1 while the package is the loader's active physical load.",
		}, []string{"package"}),
		opsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_finished_total",
			Help:      "Tracked operations finished, by kind and result.",
		}, []string{"kind", "result"}),
		activeOps: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_ops",
			Help:      "Tracked operations still pending.",
		}),
	}
}

// Registry exposes the underlying registry for custom gatherers.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// LoadQueued records an id appended to the loader queue.
func (c *Collector) LoadQueued(_ types.PackageID, queueLen int) {
	c.queued.Inc()
	c.queueLength.Set(float64(queueLen))
}

// LoadStarted marks id as the active physical load.
func (c *Collector) LoadStarted(id types.PackageID) {
	c.started.Inc()
	c.queueLength.Dec()
	c.loading.WithLabelValues(id.String()).Set(1)
}

// LoadFinished records the outcome and duration of a physical load.
func (c *Collector) LoadFinished(id types.PackageID, state handle.State, elapsed time.Duration) {
	c.finished.WithLabelValues(state.String()).Inc()
	c.loadDuration.WithLabelValues(state.String()).Observe(elapsed.Seconds())
	c.loading.DeleteLabelValues(id.String())
}

// OpFinished counts a completed tracked operation.
func (c *Collector) OpFinished(kind string, r op.Result) {
	c.opsFinished.WithLabelValues(kind, r.String()).Inc()
}

// ActiveOps sets the number of pending tracked operations.
func (c *Collector) ActiveOps(n int) {
	c.activeOps.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes Handler on addr under /metrics until ctx is canceled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}
