// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"slices"

	"github.com/pakload/pakload/pkg/types"
)

// Index is the read-only view of a dependency graph that the manager
// builds package handles from. *Catalog implements it; a build-time
// manifest object can implement it too.
type Index interface {
	// AllPackageIDs returns every package id the index knows about.
	AllPackageIDs() []types.PackageID
	// DirectDependencies returns the direct dependencies of id and whether
	// id is known.
	DirectDependencies(id types.PackageID) ([]types.PackageID, bool)
}

// Closure returns the transitive dependencies of id in dependencies-first
// order, without id itself and without duplicates. Dependencies that the
// index does not know are included as leaves.
//
// Traversal uses two maps: visited marks ids whose closure is complete and
// inProgress marks the ids on the current path, so a dependency back onto
// the path is reported as a *CycleError instead of recursing forever.
func Closure(index Index, id types.PackageID) ([]types.PackageID, error) {
	if _, ok := index.DirectDependencies(id); !ok {
		return nil, &UnknownPackageError{ID: id}
	}

	var (
		order      []types.PackageID
		visited    = make(map[types.PackageID]bool)
		inProgress = make(map[types.PackageID]bool)
		path       []types.PackageID
	)

	var visit func(cur types.PackageID) error
	visit = func(cur types.PackageID) error {
		if inProgress[cur] {
			start := slices.Index(path, cur)
			cycle := append(slices.Clone(path[start:]), cur)
			return &CycleError{Path: cycle}
		}
		if visited[cur] {
			return nil
		}

		inProgress[cur] = true
		path = append(path, cur)
		defer func() {
			delete(inProgress, cur)
			path = path[:len(path)-1]
		}()

		deps, _ := index.DirectDependencies(cur)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		visited[cur] = true
		if cur != id {
			order = append(order, cur)
		}
		return nil
	}

	if err := visit(id); err != nil {
		return nil, err
	}
	return order, nil
}
