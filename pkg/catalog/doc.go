// SPDX-License-Identifier: MPL-2.0

// Package catalog owns the static package dependency graph: which package
// ids exist, which ids are local (shipped with the install) rather than
// remote, and each package's direct dependency list.
//
// A catalog is loaded from a manifest:
//
//	local: ["hud", "level1"]
//	dependencies: {
//		hud:    ["fonts"]
//		level1: ["terrain", "hud"]
//		fonts:   []
//		terrain: []
//	}
//
// The local set is expanded with the transitive dependencies of every
// explicitly local id. Only the explicit set is ever serialized, so a
// manifest written by [Catalog.Serialize] and loaded again yields the same
// derived local set.
//
// Manifests can be stored as CUE, JSON, TOML or YAML; the codec is chosen
// from the file extension (see [ReadFile] and [WriteFile]).
package catalog
