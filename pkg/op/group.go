// SPDX-License-Identifier: MPL-2.0

package op

import "slices"

const (
	// Pending means the item has not resolved.
	Pending Status = iota
	// Succeeded means the item resolved successfully.
	Succeeded
	// Failed means the item resolved with an error.
	Failed
)

type (
	// Status is the resolution of one group item.
	Status int

	// Probe reports an item's status, the failure code when Failed, and
	// its progress in [0, 1].
	Probe[K comparable] func(item K) (Status, Result, float64)

	// Group waits on a fixed set of items and finishes when all of them
	// resolve. The first failure observed becomes the group's result;
	// remaining items still run to completion. The payload is the item
	// list.
	Group[K comparable] struct {
		Base[[]K]
		items   []K
		pending map[K]struct{}
		probe   Probe[K]
		failure Result
	}
)

// NewGroup creates a group over items. Duplicate items are tracked once.
func NewGroup[K comparable](items []K, probe Probe[K], onDone Callback[[]K]) *Group[K] {
	g := &Group[K]{
		Base:    NewBase(onDone),
		pending: make(map[K]struct{}, len(items)),
		probe:   probe,
	}
	for _, it := range items {
		if _, dup := g.pending[it]; dup {
			continue
		}
		g.pending[it] = struct{}{}
		g.items = append(g.items, it)
	}
	return g
}

// Items returns the tracked items.
func (g *Group[K]) Items() []K { return slices.Clone(g.items) }

// PendingCount returns the number of unresolved items.
func (g *Group[K]) PendingCount() int { return len(g.pending) }

// Perform starts the group and resolves items that are already done.
func (g *Group[K]) Perform() {
	if g.Begin() {
		g.poll()
	}
}

// Update re-probes unresolved items.
func (g *Group[K]) Update() {
	if g.IsPerforming() {
		g.poll()
	}
}

func (g *Group[K]) poll() {
	for _, it := range g.items {
		if _, ok := g.pending[it]; !ok {
			continue
		}
		status, r, _ := g.probe(it)
		switch status {
		case Succeeded:
			delete(g.pending, it)
		case Failed:
			delete(g.pending, it)
			if g.failure == Success {
				g.failure = r
				if g.failure == Success {
					g.failure = ErrorInternal
				}
			}
		}
	}
	if len(g.pending) == 0 {
		g.Finish(g.failure, g.Items())
	}
}

// Progress is the mean item progress.
func (g *Group[K]) Progress() float64 {
	if g.IsDone() || len(g.items) == 0 {
		return 1
	}
	var sum float64
	for _, it := range g.items {
		if _, ok := g.pending[it]; !ok {
			sum++
			continue
		}
		_, _, p := g.probe(it)
		sum += p
	}
	return sum / float64(len(g.items))
}
