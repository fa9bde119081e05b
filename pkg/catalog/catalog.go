// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/pakload/pakload/internal/dag"
	"github.com/pakload/pakload/pkg/types"
)

type (
	// Catalog is the single source of truth for "does this package exist,
	// is it local, what does it depend on". It is not safe for concurrent
	// mutation; Register and Load must not race with readers.
	Catalog struct {
		// dependencies holds direct dependencies only: no self references
		// and no duplicates.
		dependencies map[types.PackageID][]types.PackageID
		// registration order, for deterministic iteration.
		order []types.PackageID

		explicitLocal map[types.PackageID]bool
		// local is explicitLocal plus the closure of every explicit id.
		local map[types.PackageID]bool

		closures map[types.PackageID][]types.PackageID
		logger   *slog.Logger
	}

	// Option configures a Catalog.
	Option func(*Catalog)
)

// WithLogger sets the logger used to report skipped manifest entries.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty Catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		dependencies:  make(map[types.PackageID][]types.PackageID),
		explicitLocal: make(map[types.PackageID]bool),
		local:         make(map[types.PackageID]bool),
		closures:      make(map[types.PackageID][]types.PackageID),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load builds a Catalog from a manifest. Malformed entries never fail the
// load: invalid ids, duplicate registrations, and explicit-local ids
// without a dependency entry are logged and dropped. Dependency entries
// are registered in sorted id order so logging is deterministic.
func Load(m *Manifest, opts ...Option) *Catalog {
	c := New(opts...)
	if m == nil {
		return c
	}

	for _, key := range slices.Sorted(maps.Keys(m.Dependencies)) {
		id := types.PackageID(key)
		if err := id.Validate(); err != nil {
			c.logger.Error("skipping manifest dependency entry", "package", key, "error", err)
			continue
		}
		c.Register(id, types.PackageIDs(m.Dependencies[key]...))
	}

	for _, raw := range m.Local {
		c.MarkLocal(types.PackageID(raw))
	}
	return c
}

// Register adds the direct dependencies of id. It returns false and logs
// an error when id is already registered. Self references and repeated
// entries in deps are dropped.
func (c *Catalog) Register(id types.PackageID, deps []types.PackageID) bool {
	if _, dup := c.dependencies[id]; dup {
		c.logger.Error("duplicate package registration skipped", "package", id)
		return false
	}

	clean := make([]types.PackageID, 0, len(deps))
	seen := make(map[types.PackageID]bool, len(deps))
	for _, dep := range deps {
		switch {
		case dep == id:
			c.logger.Warn("dropping self dependency", "package", id)
			continue
		case seen[dep]:
			continue
		case dep.Validate() != nil:
			c.logger.Error("dropping invalid dependency id", "package", id, "dependency", dep, "error", dep.Validate())
			continue
		}
		seen[dep] = true
		clean = append(clean, dep)
	}

	c.dependencies[id] = clean
	c.order = append(c.order, id)
	clear(c.closures)
	c.recomputeLocal()
	return true
}

// MarkLocal declares id explicitly local and unions its transitive closure
// into the local set. An id without a dependency entry is logged and
// ignored, as is an id whose closure contains a cycle (the id itself is
// still kept local).
func (c *Catalog) MarkLocal(id types.PackageID) bool {
	if _, ok := c.dependencies[id]; !ok {
		c.logger.Error("explicit local package has no dependency entry", "package", id)
		return false
	}
	c.explicitLocal[id] = true
	c.expandLocal(id)
	return true
}

func (c *Catalog) recomputeLocal() {
	clear(c.local)
	for id := range c.explicitLocal {
		c.expandLocal(id)
	}
}

func (c *Catalog) expandLocal(id types.PackageID) {
	c.local[id] = true
	deps, err := c.GetAllDependencies(id)
	if err != nil {
		c.logger.Error("cannot expand local package dependencies", "package", id, "error", err)
		return
	}
	for _, dep := range deps {
		c.local[dep] = true
	}
}

// Serialize returns a manifest holding only the explicit local ids and the
// direct dependency map. The derived local set is never written.
func (c *Catalog) Serialize() *Manifest {
	m := &Manifest{
		Local:        make([]string, 0, len(c.explicitLocal)),
		Dependencies: make(map[string][]string, len(c.dependencies)),
	}
	for _, id := range slices.Sorted(maps.Keys(c.explicitLocal)) {
		m.Local = append(m.Local, string(id))
	}
	for id, deps := range c.dependencies {
		list := make([]string, len(deps))
		for i, d := range deps {
			list[i] = string(d)
		}
		m.Dependencies[string(id)] = list
	}
	return m
}

// GetAllDependencies returns the transitive dependencies of id,
// dependencies-first, without id itself. Results are memoized until the
// next Register. A cycle yields a *CycleError.
func (c *Catalog) GetAllDependencies(id types.PackageID) ([]types.PackageID, error) {
	if cached, ok := c.closures[id]; ok {
		return slices.Clone(cached), nil
	}
	deps, err := Closure(c, id)
	if err != nil {
		return nil, err
	}
	c.closures[id] = deps
	return slices.Clone(deps), nil
}

// AllPackageIDs returns every registered id in registration order.
func (c *Catalog) AllPackageIDs() []types.PackageID {
	return slices.Clone(c.order)
}

// DirectDependencies returns the direct dependencies of id.
func (c *Catalog) DirectDependencies(id types.PackageID) ([]types.PackageID, bool) {
	deps, ok := c.dependencies[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(deps), true
}

// Contains reports whether id has a dependency entry.
func (c *Catalog) Contains(id types.PackageID) bool {
	_, ok := c.dependencies[id]
	return ok
}

// IsLocal reports whether id is local, explicitly or as a dependency of an
// explicit local id.
func (c *Catalog) IsLocal(id types.PackageID) bool { return c.local[id] }

// IsExplicitLocal reports whether id was declared local in the manifest.
func (c *Catalog) IsExplicitLocal(id types.PackageID) bool { return c.explicitLocal[id] }

// IsRemote reports whether id is registered but not local.
func (c *Catalog) IsRemote(id types.PackageID) bool {
	return c.Contains(id) && !c.local[id]
}

// LocalIDs returns the derived local set, sorted.
func (c *Catalog) LocalIDs() []types.PackageID {
	return slices.Sorted(maps.Keys(c.local))
}

// ExplicitLocalIDs returns the explicitly declared local ids, sorted.
func (c *Catalog) ExplicitLocalIDs() []types.PackageID {
	return slices.Sorted(maps.Keys(c.explicitLocal))
}

// RemoteIDs returns registered ids that are not local, sorted.
func (c *Catalog) RemoteIDs() []types.PackageID {
	var out []types.PackageID
	for _, id := range c.order {
		if !c.local[id] {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// TopologicalOrder returns ids ordered so that every id comes after the
// members of ids it depends on, directly or transitively. Ids the catalog
// does not know keep their relative input order.
func (c *Catalog) TopologicalOrder(ids []types.PackageID) ([]types.PackageID, error) {
	g := dag.New[types.PackageID]()
	members := make(map[types.PackageID]bool, len(ids))
	for _, id := range ids {
		g.AddNode(id)
		members[id] = true
	}
	for _, id := range ids {
		if !c.Contains(id) {
			continue
		}
		deps, err := c.GetAllDependencies(id)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			if members[dep] {
				g.AddEdge(dep, id)
			}
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		var cycleErr *dag.CycleError[types.PackageID]
		if errors.As(err, &cycleErr) {
			return nil, &CycleError{Path: cycleErr.Cycle}
		}
		return nil, err
	}
	return order, nil
}

// Validate reports every dependency cycle and every dependency on an id
// without an entry. The returned error joins one error per problem.
func (c *Catalog) Validate() error {
	g := dag.New[types.PackageID]()
	var errs []error

	for _, id := range c.order {
		g.AddNode(id)
		for _, dep := range c.dependencies[id] {
			g.AddEdge(dep, id)
			if !c.Contains(dep) {
				errs = append(errs, &DanglingDependencyError{Package: id, Dependency: dep})
			}
		}
	}

	for _, comp := range g.CyclicComponents() {
		// Prefer a real walk through the component over its sorted members.
		var cycleErr *CycleError
		if _, err := c.GetAllDependencies(comp[0]); errors.As(err, &cycleErr) {
			errs = append(errs, cycleErr)
			continue
		}
		errs = append(errs, &CycleError{Path: append(slices.Clone(comp), comp[0])})
	}
	return errors.Join(errs...)
}
