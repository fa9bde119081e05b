// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"context"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/pakload/pakload/internal/testutil"
	"github.com/pakload/pakload/pkg/catalog"
	"github.com/pakload/pakload/pkg/handle"
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/types"
)

type fixture struct {
	mgr   *Manager
	store *testutil.ScriptedStore
	host  *testutil.RecordingSceneHost
	cat   *catalog.Catalog
}

type listResult struct {
	calls int
	r     op.Result
	ids   []types.PackageID
}

func (l *listResult) cb(r op.Result, ids []types.PackageID) {
	l.calls++
	l.r = r
	l.ids = ids
}

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newFixture(t *testing.T, polls int, m *catalog.Manifest, opts ...Option) *fixture {
	t.Helper()
	cat := catalog.Load(m, catalog.WithLogger(quietLogger()))
	store := testutil.NewScriptedStore(polls)
	for _, id := range cat.AllPackageIDs() {
		store.Add(id,
			map[string][]byte{"data.txt": []byte("asset of " + id.String())},
			map[string][]byte{"main": []byte("scene of " + id.String())},
		)
	}
	host := testutil.NewRecordingSceneHost(2)
	opts = append([]Option{WithLogger(quietLogger()), WithSceneHost(host)}, opts...)
	mgr := New(store, opts...)
	mgr.Initialize(types.PackageIDs(m.Local...), "packs", cat)
	return &fixture{mgr: mgr, store: store, host: host, cat: cat}
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	for range 200 {
		if !f.mgr.IsBusy() {
			return
		}
		f.mgr.Tick()
	}
	t.Fatal("manager did not become idle")
}

func TestEndToEnd_DependencyLoad(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, &catalog.Manifest{
		Local:        []string{"X"},
		Dependencies: map[string][]string{"X": {"Y"}, "Y": {}},
	})

	if deps, _ := f.mgr.GetDependenciesIncludingSelf("X"); !slices.Equal(deps, types.PackageIDs("Y", "X")) {
		t.Errorf("X dependencies = %v, want [Y X]", deps)
	}
	if deps, _ := f.mgr.GetDependenciesIncludingSelf("Y"); !slices.Equal(deps, types.PackageIDs("Y")) {
		t.Errorf("Y dependencies = %v, want [Y]", deps)
	}

	var res listResult
	loadedAtCallback := false
	req := f.mgr.LoadPackageAndDependencies("X", func(r op.Result, ids []types.PackageID) {
		loadedAtCallback = f.mgr.IsLoaded("X") && f.mgr.IsLoaded("Y")
		res.cb(r, ids)
	}, true)
	if req == nil || req.IsDone() {
		t.Fatal("expected a pending request")
	}
	f.drain(t)

	if !loadedAtCallback {
		t.Error("callback fired before both packages loaded")
	}
	if res.calls != 1 || res.r != op.Success {
		t.Fatalf("callback calls = %d, result = %s", res.calls, res.r)
	}
	if !f.mgr.IsLoadedList(types.PackageIDs("X", "Y")) {
		t.Error("X and Y should be loaded")
	}
	if !slices.Equal(f.store.Calls(), types.PackageIDs("Y", "X")) {
		t.Errorf("load order = %v, want dependencies first", f.store.Calls())
	}
	if r, _, err := req.Wait(context.Background()); err != nil || r != op.Success {
		t.Errorf("Wait() = %s, %v", r, err)
	}
	if f.mgr.ActiveOps() != 0 {
		t.Errorf("ActiveOps() = %d, want 0", f.mgr.ActiveOps())
	}
}

func TestInitialize_UnreachableDependencyHasNoHandle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, &catalog.Manifest{
		Local:        []string{"X"},
		Dependencies: map[string][]string{"X": {"Y"}},
	})
	if !f.mgr.IsValid("X") || f.mgr.IsValid("Y") {
		t.Fatalf("IsValid(X) = %v, IsValid(Y) = %v", f.mgr.IsValid("X"), f.mgr.IsValid("Y"))
	}

	var res listResult
	f.mgr.LoadPackageAndDependencies("X", res.cb, false)
	if res.calls != 1 || res.r != op.ErrorPackageNotFound {
		t.Errorf("result = %s after %d calls, want package_not_found", res.r, res.calls)
	}
	if f.mgr.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0", f.mgr.QueueLen())
	}
}

func TestInitialize_SkipsUnknownAndCyclic(t *testing.T) {
	t.Parallel()

	cat := catalog.Load(&catalog.Manifest{
		Dependencies: map[string][]string{"A": {"B"}, "B": {"A"}, "C": {}},
	}, catalog.WithLogger(quietLogger()))
	mgr := New(testutil.NewScriptedStore(0), WithLogger(quietLogger()))

	skipped := mgr.Initialize(types.PackageIDs("A", "C", "ghost"), "packs", cat)
	want := map[types.PackageID]op.Result{"A": op.ErrorCyclicDependency, "ghost": op.ErrorPackageNotFound}
	if diff := cmp.Diff(want, skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
	if !slices.Equal(mgr.LocalIDs(), types.PackageIDs("C")) {
		t.Errorf("LocalIDs() = %v", mgr.LocalIDs())
	}

	var res listResult
	mgr.LoadPackageAndDependencies("A", res.cb, false)
	if res.r != op.ErrorCyclicDependency {
		t.Errorf("result = %s, want cyclic_dependency", res.r)
	}
}

func TestHandles_SelfInclusion(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, &catalog.Manifest{
		Local:        []string{"app", "tools"},
		Dependencies: map[string][]string{"app": {"ui", "core"}, "ui": {"core"}, "core": {}, "tools": {}},
	})
	snaps := f.mgr.Handles()
	if len(snaps) != 4 {
		t.Fatalf("Handles() returned %d handles, want 4", len(snaps))
	}
	for _, s := range snaps {
		if !slices.Contains(s.Dependencies, s.ID) {
			t.Errorf("%s: dependencies %v do not include self", s.ID, s.Dependencies)
		}
		if s.Dependencies[len(s.Dependencies)-1] != s.ID {
			t.Errorf("%s: own id should be last in %v", s.ID, s.Dependencies)
		}
		if s.Path != types.FilesystemPath("packs").Join(s.ID.String()+".pak") {
			t.Errorf("%s: Path = %q", s.ID, s.Path)
		}
	}
	deps, _ := f.mgr.GetDependenciesIncludingSelf("app")
	if !slices.Equal(deps, types.PackageIDs("core", "ui", "app")) {
		t.Errorf("app dependencies = %v", deps)
	}
}

func TestLoadPackageList_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, &catalog.Manifest{
		Local:        []string{"A"},
		Dependencies: map[string][]string{"A": {}},
	})

	var first listResult
	f.mgr.LoadPackageList(types.PackageIDs("A"), first.cb, false)
	f.drain(t)
	if first.r != op.Success || first.calls != 1 {
		t.Fatalf("first load: result = %s, calls = %d", first.r, first.calls)
	}
	calls := len(f.store.Calls())

	var second listResult
	req := f.mgr.LoadPackageList(types.PackageIDs("A"), second.cb, true)
	if second.calls != 1 || second.r != op.Success {
		t.Fatalf("second load should complete synchronously, calls = %d", second.calls)
	}
	if !req.IsDone() || req.Result() != op.Success {
		t.Error("request of an immediate load should be done")
	}
	if f.mgr.QueueLen() != 0 || len(f.store.Calls()) != calls || f.mgr.ActiveOps() != 0 {
		t.Error("second load must not touch the loader")
	}
}

func TestLoadPackageList_FailFastOnUnknown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, &catalog.Manifest{
		Local:        []string{"A"},
		Dependencies: map[string][]string{"A": {}},
	})

	var res listResult
	f.mgr.LoadPackageList(types.PackageIDs("A", "unknown"), res.cb, false)
	if res.calls != 1 || res.r != op.ErrorPackageNotFound {
		t.Fatalf("result = %s after %d calls", res.r, res.calls)
	}
	if f.mgr.QueueLen() != 0 || f.mgr.ActiveOps() != 0 {
		t.Error("nothing should be enqueued")
	}
	if s, _ := f.mgr.State("A"); s != handle.None {
		t.Errorf("State(A) = %s, want none", s)
	}
}

func TestLoadPackageList_Empty(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, &catalog.Manifest{})
	var res listResult
	req := f.mgr.LoadPackageList(nil, res.cb, true)
	if res.calls != 1 || res.r != op.Success || !req.IsDone() {
		t.Errorf("empty list should succeed immediately, calls = %d result = %s", res.calls, res.r)
	}
	if f.mgr.LoadPackageList(nil, nil, false) != nil {
		t.Error("no request should be returned without buildRequest")
	}
}

func TestLoadPackageList_SingleFlight(t *testing.T) {
	t.Parallel()

	deps := map[string][]string{}
	var ids []string
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		deps[id] = nil
		ids = append(ids, id)
	}
	f := newFixture(t, 2, &catalog.Manifest{Local: ids, Dependencies: deps})

	var res listResult
	f.mgr.LoadPackageList(types.PackageIDs(ids...), res.cb, false)
	if f.mgr.QueueLen() != len(ids) {
		t.Fatalf("QueueLen() = %d, want %d", f.mgr.QueueLen(), len(ids))
	}
	for range 100 {
		if !f.mgr.IsBusy() {
			break
		}
		f.mgr.Tick()
		if n := f.store.InFlight(); n > 1 {
			t.Fatalf("%d physical loads in flight", n)
		}
	}
	if res.r != op.Success || res.calls != 1 {
		t.Errorf("result = %s, calls = %d", res.r, res.calls)
	}
}

func TestLoadPackageList_FailureDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, &catalog.Manifest{
		Local:        []string{"A", "B", "C"},
		Dependencies: map[string][]string{"A": {}, "B": {}, "C": {}},
	})
	f.store.Fail("A")

	var res listResult
	f.mgr.LoadPackageList(types.PackageIDs("A", "B", "C"), res.cb, false)
	f.drain(t)

	if res.r != op.ErrorInternal {
		t.Errorf("result = %s, want internal", res.r)
	}
	if !f.mgr.IsLoaded("B") || !f.mgr.IsLoaded("C") {
		t.Error("siblings of a failed package should still load")
	}
	if s, _ := f.mgr.State("A"); s != handle.Error {
		t.Errorf("State(A) = %s, want error", s)
	}
}

func TestLoadPackageList_TopologicalEnqueue(t *testing.T) {
	t.Parallel()

	m := &catalog.Manifest{
		Local:        []string{"X"},
		Dependencies: map[string][]string{"X": {"Y"}, "Y": {}},
	}
	tests := []struct {
		name string
		topo bool
		want []types.PackageID
	}{
		{"enabled", true, types.PackageIDs("Y", "X")},
		{"disabled", false, types.PackageIDs("X", "Y")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, 0, m, WithTopologicalEnqueue(tt.topo))
			f.mgr.LoadPackageList(types.PackageIDs("X", "Y"), nil, false)
			f.drain(t)
			if !slices.Equal(f.store.Calls(), tt.want) {
				t.Errorf("load order = %v, want %v", f.store.Calls(), tt.want)
			}
		})
	}
}

func TestUnloadPackage_WhileLoading(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3, &catalog.Manifest{
		Local:        []string{"A"},
		Dependencies: map[string][]string{"A": {}},
	})

	var res listResult
	f.mgr.LoadPackageList(types.PackageIDs("A"), res.cb, false)
	f.mgr.Tick()
	if s, _ := f.mgr.State("A"); s != handle.Loading {
		t.Fatalf("State(A) = %s, want loading", s)
	}
	if r := f.mgr.UnloadPackage("A"); r != op.Success {
		t.Fatalf("UnloadPackage() = %s", r)
	}
	if s, _ := f.mgr.State("A"); s != handle.Unloading {
		t.Errorf("State(A) = %s, want unloading", s)
	}
	f.drain(t)

	if res.r != op.ErrorNotLoaded {
		t.Errorf("waiting op result = %s, want not_loaded", res.r)
	}
	if s, _ := f.mgr.State("A"); s != handle.None {
		t.Errorf("State(A) = %s, want none after late completion", s)
	}
	c, _ := f.store.Loads()[0].Result()
	if _, ok := c.Asset("data.txt"); ok {
		t.Error("late content should be released")
	}
}

func TestUnloadPackageList(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0, &catalog.Manifest{
		Local:        []string{"A", "B"},
		Dependencies: map[string][]string{"A": {}, "B": {}},
	})
	f.mgr.LoadPackageList(types.PackageIDs("A", "B"), nil, false)
	f.drain(t)

	if r := f.mgr.UnloadPackageList(types.PackageIDs("A", "missing", "B")); r != op.ErrorPackageNotFound {
		t.Errorf("UnloadPackageList() = %s, want package_not_found", r)
	}
	if f.mgr.IsLoaded("A") || f.mgr.IsLoaded("B") {
		t.Error("valid ids should be unloaded despite the invalid one")
	}
	if r := f.mgr.UnloadPackage("A"); r != op.ErrorNotLoaded {
		t.Errorf("second UnloadPackage() = %s, want not_loaded", r)
	}
}

func TestGetLoadProgress(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4, &catalog.Manifest{
		Local:        []string{"A", "B"},
		Dependencies: map[string][]string{"A": {}, "B": {}},
	})
	if got := f.mgr.GetLoadProgress(); got != 1 {
		t.Errorf("GetLoadProgress() of nothing = %v, want 1", got)
	}
	f.mgr.LoadPackageList(types.PackageIDs("A", "B"), nil, false)
	f.mgr.Tick()
	f.mgr.Tick()
	if got := f.mgr.GetLoadProgress("A", "B"); got != 0.25 {
		t.Errorf("GetLoadProgress() = %v, want 0.25", got)
	}
	f.drain(t)
	if got := f.mgr.GetLoadProgress("A", "B", "missing"); got != 2.0/3.0 {
		t.Errorf("GetLoadProgress() = %v, want 2/3", got)
	}
}

func TestReinitialize(t *testing.T) {
	t.Parallel()

	m := &catalog.Manifest{Local: []string{"A"}, Dependencies: map[string][]string{"A": {}}}
	f := newFixture(t, 0, m)
	f.mgr.LoadPackageList(types.PackageIDs("A"), nil, false)
	f.drain(t)
	if !f.mgr.IsLoaded("A") {
		t.Fatal("A should be loaded")
	}
	c, _ := f.store.Loads()[0].Result()

	f.mgr.Initialize(types.PackageIDs("A"), "other", f.cat)
	if f.mgr.IsLoaded("A") {
		t.Error("re-initialize should unload local handles")
	}
	if _, ok := c.Asset("data.txt"); ok {
		t.Error("previous content should be released")
	}
	snap := f.mgr.Handles()[0]
	if snap.Path != types.FilesystemPath("other").Join("A.pak") {
		t.Errorf("Path = %q", snap.Path)
	}

	var res listResult
	f.mgr.LoadPackageList(types.PackageIDs("A"), res.cb, false)
	f.drain(t)
	if res.r != op.Success {
		t.Errorf("load after re-initialize = %s", res.r)
	}
}

func TestRegisterRemote(t *testing.T) {
	t.Parallel()

	m := &catalog.Manifest{
		Local:        []string{"A"},
		Dependencies: map[string][]string{"A": {}, "R": {"S"}, "S": {}},
	}
	if failed := New(testutil.NewScriptedStore(0), WithLogger(quietLogger())).RegisterRemote(types.PackageIDs("R"), "cache"); failed["R"] != op.ErrorPackageNotFound {
		t.Errorf("RegisterRemote() before Initialize = %v", failed)
	}

	f := newFixture(t, 0, m)
	if failed := f.mgr.RegisterRemote(types.PackageIDs("R", "nope"), "cache"); len(failed) != 1 || failed["nope"] != op.ErrorPackageNotFound {
		t.Errorf("RegisterRemote() failures = %v", failed)
	}
	for _, s := range f.mgr.Handles() {
		wantRemote := s.ID != "A"
		if s.Remote != wantRemote {
			t.Errorf("%s: Remote = %v, want %v", s.ID, s.Remote, wantRemote)
		}
	}

	var res listResult
	f.mgr.LoadPackageAndDependencies("R", res.cb, false)
	f.drain(t)
	if res.r != op.Success || !f.mgr.IsLoaded("S") {
		t.Errorf("remote load result = %s", res.r)
	}

	f.mgr.Initialize(types.PackageIDs("A"), "packs", f.cat)
	if !f.mgr.IsLoaded("R") {
		t.Error("re-initialize should keep remote handles")
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5, &catalog.Manifest{
		Local:        []string{"A"},
		Dependencies: map[string][]string{"A": {}},
	})
	var res listResult
	f.mgr.LoadPackageList(types.PackageIDs("A"), res.cb, false)
	f.mgr.Tick()
	f.mgr.Reset()

	if res.calls != 1 || res.r != op.ErrorPackageNotFound {
		t.Errorf("pending op should fail on Reset, result = %s calls = %d", res.r, res.calls)
	}
	if len(f.mgr.Handles()) != 0 || f.mgr.QueueLen() != 0 {
		t.Error("Reset() should forget handles and the queue")
	}
	if !f.mgr.IsBusy() {
		t.Error("the in-flight physical load should keep the manager busy until it drains")
	}
	f.drain(t)

	loads := f.store.Loads()
	if len(loads) != 1 {
		t.Fatalf("physical loads = %d, want 1", len(loads))
	}
	if c, _ := loads[0].Result(); c == nil {
		t.Fatal("the orphaned load should have produced content")
	} else if _, ok := c.Asset("data.txt"); ok {
		t.Error("content of the orphaned load should be released")
	}
}

func TestReset_ReinitializeWaitsForOrphanedLoad(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3, &catalog.Manifest{
		Local:        []string{"A"},
		Dependencies: map[string][]string{"A": {}},
	})
	f.mgr.LoadPackageList(types.PackageIDs("A"), nil, false)
	f.mgr.Tick()
	f.mgr.Reset()
	f.mgr.Initialize(types.PackageIDs("A"), "packs", f.cat)

	var res listResult
	f.mgr.LoadPackageList(types.PackageIDs("A"), res.cb, false)
	if got := f.mgr.GetLoadProgress("A"); got != 0 {
		t.Errorf("progress of the new handle = %v, want 0 while the old load drains", got)
	}

	for tick := 0; tick < 50 && f.mgr.IsBusy(); tick++ {
		f.mgr.Tick()
		if n := f.store.InFlight(); n > 1 {
			t.Fatalf("tick %d: %d physical loads in flight", tick, n)
		}
	}

	if res.calls != 1 || res.r != op.Success {
		t.Fatalf("reload result = %s calls = %d, want success once", res.r, res.calls)
	}
	loads := f.store.Loads()
	if len(loads) != 2 {
		t.Fatalf("physical loads = %d, want 2", len(loads))
	}
	if c, _ := loads[0].Result(); c == nil {
		t.Fatal("the orphaned load should have produced content")
	} else if _, ok := c.Asset("data.txt"); ok {
		t.Error("content of the orphaned load should be released")
	}
	if c, _ := loads[1].Result(); c == nil {
		t.Fatal("the new load should have produced content")
	} else if _, ok := c.Asset("data.txt"); !ok {
		t.Error("content of the new load should be live")
	}
	if st, _ := f.mgr.State("A"); st != handle.Loaded {
		t.Errorf("State(A) = %s, want loaded", st)
	}
}

type recordingMetrics struct {
	finished map[string][]op.Result
	started  int
	active   []int
}

func (r *recordingMetrics) LoadQueued(types.PackageID, int) {}
func (r *recordingMetrics) LoadStarted(types.PackageID) { r.started++ }
func (r *recordingMetrics) LoadFinished(types.PackageID, handle.State, time.Duration) {}
func (r *recordingMetrics) OpFinished(kind string, res op.Result) {
	if r.finished == nil {
		r.finished = make(map[string][]op.Result)
	}
	r.finished[kind] = append(r.finished[kind], res)
}
func (r *recordingMetrics) ActiveOps(n int) { r.active = append(r.active, n) }

func TestMetrics(t *testing.T) {
	t.Parallel()

	rm := &recordingMetrics{}
	f := newFixture(t, 0, &catalog.Manifest{
		Local:        []string{"A"},
		Dependencies: map[string][]string{"A": {}},
	}, WithMetrics(rm))

	f.mgr.LoadPackageList(types.PackageIDs("A"), nil, false)
	f.mgr.LoadPackageList(types.PackageIDs("nope"), nil, false)
	f.drain(t)

	want := map[string][]op.Result{KindPackageList: {op.ErrorPackageNotFound, op.Success}}
	if diff := cmp.Diff(want, rm.finished); diff != "" {
		t.Errorf("OpFinished mismatch (-want +got):\n%s", diff)
	}
	if rm.started != 1 || len(rm.active) == 0 {
		t.Errorf("started = %d, active samples = %d", rm.started, len(rm.active))
	}
}
