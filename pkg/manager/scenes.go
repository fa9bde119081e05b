// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"log/slog"

	"github.com/pakload/pakload/pkg/op"
	"github.com/pakload/pakload/pkg/scene"
	"github.com/pakload/pakload/pkg/types"
)

// hostOp drives one asynchronous scene host call.
type hostOp struct {
	op.Base[scene.Ref]
	ref     scene.Ref
	start   func() (scene.Pending, op.Result)
	pending scene.Pending
	logger  *slog.Logger
}

// LoadScene activates a scene of a loaded package synchronously.
func (m *Manager) LoadScene(pkg types.PackageID, name string, mode scene.Mode) op.Result {
	ref := scene.Ref{Package: pkg, Name: name}
	data, r := m.sceneData(ref)
	if r != op.Success {
		return r
	}
	if err := m.scenes.Load(ref, data, mode); err != nil {
		m.logger.Error("scene load failed", "scene", ref, "error", err)
		return op.ErrorInternal
	}
	return op.Success
}

// LoadSceneAsync loads pkg with its dependencies and then activates the
// named scene.
func (m *Manager) LoadSceneAsync(pkg types.PackageID, name string, mode scene.Mode, onDone op.Callback[scene.Ref], buildRequest bool) *op.Request[scene.Ref] {
	ref := scene.Ref{Package: pkg, Name: name}
	seq := op.Then(m.dependencySetOp(pkg, nil), func([]types.PackageID) op.Typed[scene.Ref] {
		return m.newHostOp(ref, nil, func() (scene.Pending, op.Result) {
			data, r := m.sceneData(ref)
			if r != op.Success {
				return nil, r
			}
			return m.scenes.LoadAsync(ref, data, mode), op.Success
		})
	}, onDone)
	return track[scene.Ref](m, KindSceneLoad, seq, buildRequest)
}

// UnloadScene deactivates a scene. The package only has to be valid.
func (m *Manager) UnloadScene(pkg types.PackageID, name string, onDone op.Callback[scene.Ref], buildRequest bool) *op.Request[scene.Ref] {
	ref := scene.Ref{Package: pkg, Name: name}
	o := m.newHostOp(ref, onDone, func() (scene.Pending, op.Result) {
		if !m.IsValid(pkg) {
			return nil, op.ErrorPackageNotFound
		}
		if m.scenes == nil {
			m.logger.Error("no scene host configured", "scene", ref)
			return nil, op.ErrorInternal
		}
		return m.scenes.UnloadAsync(ref), op.Success
	})
	return track[scene.Ref](m, KindSceneUnload, o, buildRequest)
}

func (m *Manager) sceneData(ref scene.Ref) ([]byte, op.Result) {
	h, ok := m.handles[ref.Package]
	switch {
	case !ok:
		return nil, op.ErrorPackageNotFound
	case !h.IsLoaded():
		return nil, op.ErrorNotLoaded
	case m.scenes == nil:
		m.logger.Error("no scene host configured", "scene", ref)
		return nil, op.ErrorInternal
	}
	data, ok := h.Content().Scene(ref.Name)
	if !ok {
		m.logger.Warn("scene not found", "scene", ref)
		return nil, op.ErrorAssetNotFound
	}
	return data, op.Success
}

func (m *Manager) newHostOp(ref scene.Ref, onDone op.Callback[scene.Ref], start func() (scene.Pending, op.Result)) *hostOp {
	return &hostOp{Base: op.NewBase(onDone), ref: ref, start: start, logger: m.logger}
}

func (o *hostOp) Perform() {
	if !o.Begin() {
		return
	}
	p, r := o.start()
	if r != op.Success {
		o.Finish(r, o.ref)
		return
	}
	o.pending = p
	o.Update()
}

func (o *hostOp) Update() {
	if !o.IsPerforming() || !o.pending.IsDone() {
		return
	}
	if err := o.pending.Err(); err != nil {
		o.logger.Error("scene host operation failed", "scene", o.ref, "error", err)
		o.Finish(op.ErrorInternal, o.ref)
		return
	}
	o.Finish(op.Success, o.ref)
}

func (o *hostOp) Progress() float64 {
	if o.IsDone() {
		return 1
	}
	if o.pending == nil {
		return 0
	}
	return o.pending.Progress()
}
