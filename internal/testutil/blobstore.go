// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"errors"
	"sync"

	"github.com/pakload/pakload/pkg/content"
	"github.com/pakload/pakload/pkg/storage"
	"github.com/pakload/pakload/pkg/types"
)

// ErrScriptedFailure is the error of loads scripted to fail.
var ErrScriptedFailure = errors.New("scripted load failure")

type (
	// ScriptedStore is a storage.BlobLoader whose loads finish after a
	// configurable number of IsDone polls. Loads of unknown ids fail.
	ScriptedStore struct {
		mu       sync.Mutex
		polls    int
		packages map[types.PackageID]*content.Package
		failing  map[types.PackageID]bool
		calls    []types.PackageID
		pending  []*ScriptedPending
	}

	// ScriptedPending is a scripted in-flight load.
	ScriptedPending struct {
		mu      sync.Mutex
		id      types.PackageID
		polls   int
		seen    int
		content content.Content
		err     error
		done    chan struct{}
		closed  bool
	}
)

// NewScriptedStore creates a store whose loads complete on the given poll.
// polls of 0 completes loads as soon as they start.
func NewScriptedStore(polls int) *ScriptedStore {
	return &ScriptedStore{
		polls:    polls,
		packages: make(map[types.PackageID]*content.Package),
		failing:  make(map[types.PackageID]bool),
	}
}

// Add registers content for id with the given assets and scenes.
func (s *ScriptedStore) Add(id types.PackageID, assets, scenes map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[id] = content.NewPackage(id, assets, scenes)
}

// Fail makes loads of id fail.
func (s *ScriptedStore) Fail(id types.PackageID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = true
}

// LoadPackageBlob starts a scripted load.
func (s *ScriptedStore) LoadPackageBlob(id types.PackageID, _ types.FilesystemPath) storage.Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, id)
	p := &ScriptedPending{id: id, polls: s.polls, done: make(chan struct{})}
	switch pkg, ok := s.packages[id]; {
	case s.failing[id]:
		p.err = ErrScriptedFailure
	case !ok:
		p.err = errors.New("no scripted content for " + id.String())
	default:
		// each load gets fresh content so releases are observable per load
		p.content = content.NewPackage(id, assetsOf(pkg), scenesOf(pkg))
	}
	s.pending = append(s.pending, p)
	return p
}

// Calls returns the ids passed to LoadPackageBlob in order.
func (s *ScriptedStore) Calls() []types.PackageID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.PackageID(nil), s.calls...)
}

// InFlight returns the number of started loads that are not done.
func (s *ScriptedStore) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.pending {
		if !p.isClosed() {
			n++
		}
	}
	return n
}

// Loads returns every started load in order.
func (s *ScriptedStore) Loads() []*ScriptedPending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ScriptedPending(nil), s.pending...)
}

// ID returns the package id of the load.
func (p *ScriptedPending) ID() types.PackageID { return p.id }

// IsDone counts a poll and reports completion.
func (p *ScriptedPending) IsDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return true
	}
	if p.seen < p.polls {
		p.seen++
		return false
	}
	p.closed = true
	close(p.done)
	return true
}

// Progress is the fraction of polls seen.
func (p *ScriptedPending) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.polls == 0 {
		return 1
	}
	return float64(p.seen) / float64(p.polls)
}

func (p *ScriptedPending) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Result returns the scripted outcome.
func (p *ScriptedPending) Result() (content.Content, error) {
	if p.content == nil {
		return nil, p.err
	}
	return p.content, nil
}

// Done is closed once IsDone has reported true.
func (p *ScriptedPending) Done() <-chan struct{} { return p.done }

func assetsOf(p *content.Package) map[string][]byte {
	out := make(map[string][]byte)
	for _, name := range p.AssetNames() {
		out[name], _ = p.Asset(name)
	}
	return out
}

func scenesOf(p *content.Package) map[string][]byte {
	out := make(map[string][]byte)
	for _, name := range p.SceneNames() {
		out[name], _ = p.Scene(name)
	}
	return out
}
