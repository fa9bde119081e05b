// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/types"
)

// LoadAsset returns the named asset of a loaded package. It never starts
// a load.
func (m *Manager) LoadAsset(pkg types.PackageID, name string) ([]byte, bool) {
	h, ok := m.handles[pkg]
	if !ok || !h.IsLoaded() {
		return nil, false
	}
	return h.Content().Asset(name)
}

// LoadAssetAsync loads pkg with its dependencies and then extracts the
// named asset.
func (m *Manager) LoadAssetAsync(pkg types.PackageID, name string, onDone op.Callback[[]byte], buildRequest bool) *op.Request[[]byte] {
	seq := op.Then(m.dependencySetOp(pkg, nil), func([]types.PackageID) op.Typed[[]byte] {
		return m.extractAsset(pkg, name)
	}, onDone)
	return track[[]byte](m, KindAsset, seq, buildRequest)
}

func (m *Manager) extractAsset(pkg types.PackageID, name string) op.Typed[[]byte] {
	h, ok := m.handles[pkg]
	switch {
	case !ok:
		return op.Completed[[]byte](op.ErrorPackageNotFound, nil, nil)
	case !h.IsLoaded():
		return op.Completed[[]byte](op.ErrorNotLoaded, nil, nil)
	}
	data, ok := h.Content().Asset(name)
	if !ok {
		m.logger.Warn("asset not found", "package", pkg, "asset", name)
		return op.Completed[[]byte](op.ErrorAssetNotFound, nil, nil)
	}
	return op.Completed(op.Success, data, nil)
}
