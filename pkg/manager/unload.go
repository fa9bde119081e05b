// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/types"
)

// UnloadPackage unloads a loaded package or abandons its in-flight load.
// Dependencies are left loaded.
func (m *Manager) UnloadPackage(id types.PackageID) op.Result {
	h, ok := m.handles[id]
	if !ok {
		m.logger.Warn("unload requested for unknown package", "package", id)
		return op.ErrorPackageNotFound
	}
	if !h.Unload() {
		return op.ErrorNotLoaded
	}
	m.logger.Debug("package unloaded", "package", id, "state", h.State())
	return op.Success
}

// UnloadPackageList unloads every id independently and returns the first
// failure, or Success.
func (m *Manager) UnloadPackageList(ids []types.PackageID) op.Result {
	result := op.Success
	for _, id := range ids {
		if r := m.UnloadPackage(id); r != op.Success && result == op.Success {
			result = r
		}
	}
	return result
}
