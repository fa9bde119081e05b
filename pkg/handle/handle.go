// SPDX-License-Identifier: MPL-2.0

// Package handle implements the per-package load state machine.
//
//	None|Error|Unloading --OnPendingToRequestToLoad--> PendingToRequest
//	PendingToRequest     --OnLoadRequested---------> Loading
//	Loading              --OnLoaded(content)-------> Loaded
//	Loading              --OnLoaded(nil)-----------> Error
//	Loaded               --Unload------------------> None
//	Loading              --Unload------------------> Unloading
//	Unloading            --OnLoaded(any)-----------> None
//
// Every physical load is tagged with a generation. A completion is only
// applied to the load that started it; any other completion has its
// content released.
package handle

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pakload/pakload/pkg/content"
	"github.com/pakload/pakload/pkg/types"
)

const (
	// None means not loaded and not queued.
	None State = iota
	// PendingToRequest means queued on the loader.
	PendingToRequest
	// Loading means a physical load is in flight.
	Loading
	// Loaded means content is available.
	Loaded
	// Error means the last physical load failed.
	Error
	// Unloading means the package was unloaded while its physical load
	// was in flight; the completion is still outstanding.
	Unloading
)

// ErrLoadFailed is recorded when a load completes without content or error.
var ErrLoadFailed = errors.New("package load produced no content")

type (
	// State is a handle's load state.
	State int

	// Handle tracks one package. It is not safe for concurrent use; the
	// owning manager serializes all access.
	Handle struct {
		id         types.PackageID
		path       types.FilesystemPath
		remote     bool
		deps       []types.PackageID
		state      State
		content    content.Content
		generation uint64
		err        error
	}

	// Snapshot is a copy of a handle's observable fields.
	Snapshot struct {
		ID           types.PackageID
		Path         types.FilesystemPath
		Remote       bool
		Dependencies []types.PackageID
		State        State
		Generation   uint64
		HasContent   bool
		Err          error
	}
)

func (s State) String() string {
	switch s {
	case None:
		return "none"
	case PendingToRequest:
		return "pending"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Error:
		return "error"
	case Unloading:
		return "unloading"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// New creates a handle in state None. deps lists the package's
// dependencies; id is appended if deps does not already contain it.
func New(id types.PackageID, path types.FilesystemPath, remote bool, deps []types.PackageID) *Handle {
	d := make([]types.PackageID, 0, len(deps)+1)
	for _, dep := range deps {
		if dep != id && !slices.Contains(d, dep) {
			d = append(d, dep)
		}
	}
	d = append(d, id)
	return &Handle{id: id, path: path, remote: remote, deps: d}
}

// ID returns the package id.
func (h *Handle) ID() types.PackageID { return h.id }

// Path returns the blob location.
func (h *Handle) Path() types.FilesystemPath { return h.path }

// IsRemote reports whether the package is not bundled locally.
func (h *Handle) IsRemote() bool { return h.remote }

// Dependencies returns the dependency list, own id included.
func (h *Handle) Dependencies() []types.PackageID { return slices.Clone(h.deps) }

// State returns the current state.
func (h *Handle) State() State { return h.state }

// Content returns the loaded content, or nil unless Loaded.
func (h *Handle) Content() content.Content { return h.content }

// Generation returns the number of physical loads started.
func (h *Handle) Generation() uint64 { return h.generation }

// Err returns the failure of the last load when in state Error.
func (h *Handle) Err() error { return h.err }

// IsLoaded reports whether content is available.
func (h *Handle) IsLoaded() bool { return h.state == Loaded }

// NeedsToRequestToLoad reports whether the handle may be queued.
func (h *Handle) NeedsToRequestToLoad() bool {
	switch h.state {
	case PendingToRequest, Loading, Loaded:
		return false
	default:
		return true
	}
}

// OnPendingToRequestToLoad marks the handle as queued.
func (h *Handle) OnPendingToRequestToLoad() bool {
	if !h.NeedsToRequestToLoad() {
		return false
	}
	h.state = PendingToRequest
	h.err = nil
	return true
}

// OnLoadRequested starts a physical load and returns its generation.
func (h *Handle) OnLoadRequested() (uint64, bool) {
	if h.state != PendingToRequest {
		return 0, false
	}
	h.generation++
	h.state = Loading
	h.content = nil
	h.err = nil
	return h.generation, true
}

// OnLoaded completes the physical load of generation gen. It returns
// true only when the completion changed the handle to Loaded or Error.
func (h *Handle) OnLoaded(gen uint64, c content.Content, err error) bool {
	if gen != h.generation || h.state != Loading {
		if gen == h.generation && h.state == Unloading {
			h.state = None
		}
		if c != nil && c != h.content {
			c.Release()
		}
		return false
	}
	if c == nil {
		if err == nil {
			err = ErrLoadFailed
		}
		h.state = Error
		h.err = err
		return true
	}
	h.state = Loaded
	h.content = c
	return true
}

// Unload drops loaded content, or marks an in-flight load as abandoned.
func (h *Handle) Unload() bool {
	switch h.state {
	case Loaded:
		h.release()
		h.state = None
		return true
	case Loading:
		h.state = Unloading
		return true
	default:
		return false
	}
}

// Reset returns the handle to None and invalidates any in-flight load.
func (h *Handle) Reset() {
	h.release()
	h.generation++
	h.state = None
	h.err = nil
}

// Snapshot copies the handle's observable state.
func (h *Handle) Snapshot() Snapshot {
	return Snapshot{
		ID:           h.id,
		Path:         h.path,
		Remote:       h.remote,
		Dependencies: h.Dependencies(),
		State:        h.state,
		Generation:   h.generation,
		HasContent:   h.content != nil,
		Err:          h.err,
	}
}

func (h *Handle) release() {
	if h.content != nil {
		h.content.Release()
		h.content = nil
	}
}
