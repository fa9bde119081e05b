// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"testing"

	"github.com/pakload/pakload/pkg/catalog"
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/types"
)

func assetFixture(t *testing.T, polls int) *fixture {
	t.Helper()
	return newFixture(t, polls, &catalog.Manifest{
		Local:        []string{"game"},
		Dependencies: map[string][]string{"game": {"shared"}, "shared": {}},
	})
}

func TestLoadAsset_RequiresLoaded(t *testing.T) {
	t.Parallel()

	f := assetFixture(t, 0)
	if _, ok := f.mgr.LoadAsset("game", "data.txt"); ok {
		t.Error("LoadAsset() must not load implicitly")
	}
	if f.mgr.QueueLen() != 0 {
		t.Error("LoadAsset() must not enqueue")
	}

	f.mgr.LoadPackageAndDependencies("game", nil, false)
	f.drain(t)
	data, ok := f.mgr.LoadAsset("game", "data.txt")
	if !ok || string(data) != "asset of game" {
		t.Errorf("LoadAsset() = %q, %v", data, ok)
	}
	if _, ok := f.mgr.LoadAsset("game", "missing"); ok {
		t.Error("unknown asset should not be found")
	}
	if _, ok := f.mgr.LoadAsset("ghost", "data.txt"); ok {
		t.Error("unknown package should not be found")
	}
}

func TestLoadAssetAsync(t *testing.T) {
	t.Parallel()

	f := assetFixture(t, 1)

	var got []byte
	var result op.Result
	calls := 0
	req := f.mgr.LoadAssetAsync("game", "data.txt", func(r op.Result, data []byte) {
		calls++
		result = r
		got = data
	}, true)
	if req.IsDone() {
		t.Fatal("asset load should wait for the package")
	}
	f.drain(t)

	if calls != 1 || result != op.Success || string(got) != "asset of game" {
		t.Fatalf("calls = %d, result = %s, data = %q", calls, result, got)
	}
	if !f.mgr.IsLoadedList(types.PackageIDs("game", "shared")) {
		t.Error("dependencies should be loaded")
	}
	if string(req.Payload()) != "asset of game" {
		t.Errorf("Payload() = %q", req.Payload())
	}
}

func TestLoadAssetAsync_AlreadyLoadedCompletesImmediately(t *testing.T) {
	t.Parallel()

	f := assetFixture(t, 0)
	f.mgr.LoadPackageAndDependencies("game", nil, false)
	f.drain(t)
	loads := len(f.store.Calls())

	req := f.mgr.LoadAssetAsync("game", "data.txt", nil, true)
	if !req.IsDone() || req.Result() != op.Success {
		t.Errorf("IsDone() = %v, Result() = %s", req.IsDone(), req.Result())
	}
	if len(f.store.Calls()) != loads || f.mgr.ActiveOps() != 0 {
		t.Error("loaded package should not be reloaded")
	}
}

func TestLoadAssetAsync_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		pkg   types.PackageID
		asset string
		fail  types.PackageID
		want  op.Result
	}{
		{"unknown package", "ghost", "data.txt", "", op.ErrorPackageNotFound},
		{"unknown asset", "game", "nope.bin", "", op.ErrorAssetNotFound},
		{"dependency fails", "game", "data.txt", "shared", op.ErrorInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := assetFixture(t, 0)
			if tt.fail != "" {
				f.store.Fail(tt.fail)
			}
			var result op.Result
			var data []byte
			f.mgr.LoadAssetAsync(tt.pkg, tt.asset, func(r op.Result, d []byte) {
				result = r
				data = d
			}, false)
			f.drain(t)
			if result != tt.want || data != nil {
				t.Errorf("result = %s, data = %q, want %s", result, data, tt.want)
			}
		})
	}
}
