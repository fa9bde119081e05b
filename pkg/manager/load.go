// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"slices"

	"github.com/pakload/pakload/pkg/handle"
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/types"
)

// ListCallback receives the result of a package list load and the ids it
// covered.
type ListCallback = op.Callback[[]types.PackageID]

// LoadPackageAndDependencies loads id and its dependency closure.
// onDone may be nil. A Request is returned only when buildRequest is set.
func (m *Manager) LoadPackageAndDependencies(id types.PackageID, onDone ListCallback, buildRequest bool) *op.Request[[]types.PackageID] {
	return track(m, KindPackageList, m.dependencySetOp(id, onDone), buildRequest)
}

// LoadPackageList loads every id in ids. The op completes once every
// package is Loaded or failed; it succeeds only if all loaded. Empty,
// already loaded and invalid lists complete before LoadPackageList
// returns, and an invalid id leaves the load queue untouched.
func (m *Manager) LoadPackageList(ids []types.PackageID, onDone ListCallback, buildRequest bool) *op.Request[[]types.PackageID] {
	return track(m, KindPackageList, m.packageSetOp(ids, onDone), buildRequest)
}

func (m *Manager) dependencySetOp(id types.PackageID, onDone ListCallback) op.Typed[[]types.PackageID] {
	h, ok := m.handles[id]
	if !ok {
		r := op.ErrorPackageNotFound
		if skipped, ok := m.skipped[id]; ok {
			r = skipped
		}
		m.logger.Warn("load requested for unknown package", "package", id, "result", r)
		return op.Completed(r, []types.PackageID{id}, onDone)
	}
	return m.packageSetOp(h.Dependencies(), onDone)
}

func (m *Manager) packageSetOp(ids []types.PackageID, onDone ListCallback) op.Typed[[]types.PackageID] {
	switch {
	case len(ids) == 0:
		return op.Completed(op.Success, ids, onDone)
	case !m.IsValidList(ids):
		for _, id := range ids {
			if !m.IsValid(id) {
				m.logger.Warn("load requested for unknown package", "package", id)
				break
			}
		}
		return op.Completed(op.ErrorPackageNotFound, ids, onDone)
	case m.IsLoadedList(ids):
		return op.Completed(op.Success, ids, onDone)
	}

	for _, id := range m.enqueueOrder(ids) {
		m.loader.RequestLoad(id)
	}
	return op.NewGroup(ids, m.probePackage, onDone)
}

// enqueueOrder deduplicates ids and, when enabled, orders them
// dependencies-first.
func (m *Manager) enqueueOrder(ids []types.PackageID) []types.PackageID {
	uniq := make([]types.PackageID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(uniq, id) {
			uniq = append(uniq, id)
		}
	}
	if !m.topo {
		return uniq
	}
	o, ok := m.index.(orderer)
	if !ok {
		return uniq
	}
	ordered, err := o.TopologicalOrder(uniq)
	if err != nil {
		m.logger.Warn("cannot order package list, enqueueing as requested", "error", err)
		return uniq
	}
	return ordered
}

func (m *Manager) probePackage(id types.PackageID) (op.Status, op.Result, float64) {
	h, ok := m.handles[id]
	if !ok {
		return op.Failed, op.ErrorPackageNotFound, 0
	}
	switch h.State() {
	case handle.Loaded:
		return op.Succeeded, op.Success, 1
	case handle.Error:
		return op.Failed, op.ErrorInternal, 0
	case handle.PendingToRequest, handle.Loading:
		return op.Pending, op.Success, m.loader.GetProgress(id)
	default:
		// unloaded while the op was waiting
		return op.Failed, op.ErrorNotLoaded, 0
	}
}
