// SPDX-License-Identifier: MPL-2.0

// Package content defines the package blob format and the in-memory
// content of a loaded package.
//
// A blob is a zstd-compressed tar stream. Entries under "assets/" are
// assets and entries under "scenes/" are scenes; the remainder of the
// entry path is the asset or scene name. Other entries are ignored.
package content

import (
	"maps"
	"slices"
	"sync/atomic"

	"github.com/pakload/pakload/pkg/types"
)

const (
	// AssetsDir is the blob directory holding assets.
	AssetsDir = "assets"
	// ScenesDir is the blob directory holding scenes.
	ScenesDir = "scenes"
)

type (
	// Content is the opaque result of a physical package load.
	Content interface {
		ID() types.PackageID
		Asset(name string) ([]byte, bool)
		AssetNames() []string
		Scene(name string) ([]byte, bool)
		SceneNames() []string
		// Release marks the content released. Released content reports
		// no assets or scenes. Release is idempotent.
		Release()
	}

	// Package is the Content decoded from a blob.
	Package struct {
		id       types.PackageID
		assets   map[string][]byte
		scenes   map[string][]byte
		size     int64
		released atomic.Bool
	}
)

// NewPackage builds content from already decoded entries. The maps are
// owned by the returned Package.
func NewPackage(id types.PackageID, assets, scenes map[string][]byte) *Package {
	if assets == nil {
		assets = make(map[string][]byte)
	}
	if scenes == nil {
		scenes = make(map[string][]byte)
	}
	p := &Package{id: id, assets: assets, scenes: scenes}
	for _, b := range assets {
		p.size += int64(len(b))
	}
	for _, b := range scenes {
		p.size += int64(len(b))
	}
	return p
}

// ID returns the package id.
func (p *Package) ID() types.PackageID { return p.id }

// Asset returns the named asset.
func (p *Package) Asset(name string) ([]byte, bool) {
	if p.released.Load() {
		return nil, false
	}
	b, ok := p.assets[name]
	return b, ok
}

// AssetNames returns the sorted asset names.
func (p *Package) AssetNames() []string {
	if p.released.Load() {
		return nil
	}
	return slices.Sorted(maps.Keys(p.assets))
}

// Scene returns the named scene.
func (p *Package) Scene(name string) ([]byte, bool) {
	if p.released.Load() {
		return nil, false
	}
	b, ok := p.scenes[name]
	return b, ok
}

// SceneNames returns the sorted scene names.
func (p *Package) SceneNames() []string {
	if p.released.Load() {
		return nil
	}
	return slices.Sorted(maps.Keys(p.scenes))
}

// Size returns the uncompressed size of all entries in bytes.
func (p *Package) Size() int64 { return p.size }

// Released reports whether Release was called.
func (p *Package) Released() bool { return p.released.Load() }

// Release marks the package released. Later lookups report no entries;
// the entry data stays reachable until the package itself is dropped.
func (p *Package) Release() {
	p.released.Store(true)
}
