// SPDX-License-Identifier: MPL-2.0

// Package scene defines the host that instantiates scenes extracted from
// loaded packages, plus an in-memory host.
package scene

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/pakload/pakload/pkg/types"
)

// Single replaces every active scene; Additive keeps them.
const (
	Single Mode = iota
	Additive
)

var (
	// ErrInvalidMode is returned for an unknown Mode.
	ErrInvalidMode = errors.New("invalid scene mode")
	// ErrSceneNotActive is returned when unloading a scene that is not active.
	ErrSceneNotActive = errors.New("scene not active")
)

type (
	// Mode selects how a scene is added to the host.
	Mode int

	// Ref identifies a scene by package and name.
	Ref struct {
		Package types.PackageID
		Name    string
	}

	// Host instantiates scene data.
	Host interface {
		// Load activates a scene synchronously.
		Load(ref Ref, data []byte, mode Mode) error
		// LoadAsync starts activating a scene.
		LoadAsync(ref Ref, data []byte, mode Mode) Pending
		// UnloadAsync starts deactivating a scene.
		UnloadAsync(ref Ref) Pending
	}

	// Pending is an in-flight host operation.
	Pending interface {
		IsDone() bool
		Progress() float64
		Err() error
	}

	// MemoryHost is a Host that keeps active scenes in memory. Async
	// operations complete after a fixed number of polls.
	MemoryHost struct {
		mu     sync.Mutex
		active map[Ref][]byte
		order  []Ref
		steps  int
	}

	memPending struct {
		host  *MemoryHost
		steps int
		polls int
		apply func() error
		err   error
		done  bool
	}
)

func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case Additive:
		return "additive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Validate returns ErrInvalidMode for unknown modes.
func (m Mode) Validate() error {
	if m != Single && m != Additive {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return nil
}

func (r Ref) String() string { return r.Package.String() + ":" + r.Name }

// NewMemoryHost creates a MemoryHost whose async operations finish on
// the given poll (minimum 1).
func NewMemoryHost(steps int) *MemoryHost {
	return &MemoryHost{active: make(map[Ref][]byte), steps: max(steps, 1)}
}

// Load activates ref immediately.
func (h *MemoryHost) Load(ref Ref, data []byte, mode Mode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activate(ref, data, mode)
	return nil
}

// LoadAsync activates ref once the returned Pending has been polled to
// completion.
func (h *MemoryHost) LoadAsync(ref Ref, data []byte, mode Mode) Pending {
	return &memPending{host: h, steps: h.steps, apply: func() error {
		if err := mode.Validate(); err != nil {
			return err
		}
		h.activate(ref, data, mode)
		return nil
	}}
}

// UnloadAsync deactivates ref once the returned Pending has been polled
// to completion.
func (h *MemoryHost) UnloadAsync(ref Ref) Pending {
	return &memPending{host: h, steps: h.steps, apply: func() error {
		if _, ok := h.active[ref]; !ok {
			return fmt.Errorf("%s: %w", ref, ErrSceneNotActive)
		}
		delete(h.active, ref)
		h.order = slices.DeleteFunc(h.order, func(r Ref) bool { return r == ref })
		return nil
	}}
}

// Active returns the active scenes in activation order.
func (h *MemoryHost) Active() []Ref {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.order)
}

// IsActive reports whether ref is active.
func (h *MemoryHost) IsActive(ref Ref) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.active[ref]
	return ok
}

// activate must be called with h.mu held.
func (h *MemoryHost) activate(ref Ref, data []byte, mode Mode) {
	if mode == Single {
		clear(h.active)
		h.order = h.order[:0]
	}
	if _, ok := h.active[ref]; !ok {
		h.order = append(h.order, ref)
	}
	h.active[ref] = data
}

func (p *memPending) IsDone() bool {
	if p.done {
		return true
	}
	p.polls++
	if p.polls < p.steps {
		return false
	}
	p.host.mu.Lock()
	p.err = p.apply()
	p.host.mu.Unlock()
	p.done = true
	return true
}

func (p *memPending) Progress() float64 {
	if p.done {
		return 1
	}
	return float64(p.polls) / float64(p.steps)
}

func (p *memPending) Err() error { return p.err }

// ActiveNames lists the names of active scenes per package. Used for
// reporting.
func (h *MemoryHost) ActiveNames() map[types.PackageID][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[types.PackageID][]string)
	for ref := range h.active {
		out[ref.Package] = append(out[ref.Package], ref.Name)
	}
	for id := range out {
		slices.Sort(out[id])
	}
	return out
}
