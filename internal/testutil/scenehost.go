// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"fmt"
	"sync"

	"github.com/pakload/pakload/pkg/scene"
)

type (
	// SceneCall is one recorded scene host call.
	SceneCall struct {
		Method string
		Ref    scene.Ref
		Mode   scene.Mode
		Data   string
	}

	// RecordingSceneHost wraps a scene.MemoryHost and records every call.
	RecordingSceneHost struct {
		*scene.MemoryHost
		mu    sync.Mutex
		calls []SceneCall
	}
)

// NewRecordingSceneHost creates a recording host whose async calls
// complete on the given poll.
func NewRecordingSceneHost(steps int) *RecordingSceneHost {
	return &RecordingSceneHost{MemoryHost: scene.NewMemoryHost(steps)}
}

// Load records and forwards a synchronous load.
func (h *RecordingSceneHost) Load(ref scene.Ref, data []byte, mode scene.Mode) error {
	h.record(SceneCall{Method: "Load", Ref: ref, Mode: mode, Data: string(data)})
	return h.MemoryHost.Load(ref, data, mode)
}

// LoadAsync records and forwards an async load.
func (h *RecordingSceneHost) LoadAsync(ref scene.Ref, data []byte, mode scene.Mode) scene.Pending {
	h.record(SceneCall{Method: "LoadAsync", Ref: ref, Mode: mode, Data: string(data)})
	return h.MemoryHost.LoadAsync(ref, data, mode)
}

// UnloadAsync records and forwards an async unload.
func (h *RecordingSceneHost) UnloadAsync(ref scene.Ref) scene.Pending {
	h.record(SceneCall{Method: "UnloadAsync", Ref: ref})
	return h.MemoryHost.UnloadAsync(ref)
}

// Calls returns the recorded calls.
func (h *RecordingSceneHost) Calls() []SceneCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]SceneCall(nil), h.calls...)
}

func (h *RecordingSceneHost) record(c SceneCall) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, c)
}

func (c SceneCall) String() string {
	return fmt.Sprintf("%s(%s, %s)", c.Method, c.Ref, c.Mode)
}
