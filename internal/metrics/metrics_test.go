// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pakload/pakload/pkg/handle"
	"github.com/pakload/pakload/pkg/manager"
	"github.com/pakload/pakload/pkg/op"
)

var _ manager.Metrics = (*Collector)(nil)

func TestCollector_LoadLifecycle(t *testing.T) {
	t.Parallel()

	c := New()
	c.LoadQueued("core", 1)
	c.LoadQueued("ui", 2)
	c.LoadStarted("core")

	if got := testutil.ToFloat64(c.queued); got != 2 {
		t.Errorf("queued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.queueLength); got != 1 {
		t.Errorf("queue length = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.loading.WithLabelValues("core")); got != 1 {
		t.Errorf("loading{core} = %v, want 1", got)
	}

	c.LoadFinished("core", handle.Loaded, 20*time.Millisecond)
	c.LoadStarted("ui")
	c.LoadFinished("ui", handle.Error, time.Millisecond)

	if got := testutil.ToFloat64(c.finished.WithLabelValues("loaded")); got != 1 {
		t.Errorf("finished{loaded} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.finished.WithLabelValues("error")); got != 1 {
		t.Errorf("finished{error} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.loading); got != 0 {
		t.Errorf("loading series = %d, want 0 after completion", got)
	}
	if got := testutil.CollectAndCount(c.loadDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestCollector_Ops(t *testing.T) {
	t.Parallel()

	c := New()
	c.OpFinished(manager.KindPackageList, op.Success)
	c.OpFinished(manager.KindPackageList, op.Success)
	c.OpFinished(manager.KindAsset, op.ErrorAssetNotFound)
	c.ActiveOps(3)

	if got := testutil.ToFloat64(c.opsFinished.WithLabelValues(manager.KindPackageList, op.Success.String())); got != 2 {
		t.Errorf("ops{package_list,success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.opsFinished.WithLabelValues(manager.KindAsset, op.ErrorAssetNotFound.String())); got != 1 {
		t.Errorf("ops{asset,asset_not_found} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.activeOps); got != 3 {
		t.Errorf("active ops = %v, want 3", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	t.Parallel()

	c := New()
	c.LoadQueued("core", 1)

	srv := httptest.NewServer(c.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"pakload_loads_queued_total 1", "pakload_loader_queue_length 1"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("exposition missing %q", name)
		}
	}
}
