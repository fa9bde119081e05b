// SPDX-License-Identifier: MPL-2.0

package scene

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pakload/pakload/pkg/types"
)

func TestMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode    Mode
		want    string
		wantErr bool
	}{
		{Single, "single", false},
		{Additive, "additive", false},
		{Mode(7), "Mode(7)", true},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := tt.mode.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			err := tt.mode.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMode) {
				t.Errorf("error should wrap ErrInvalidMode, got %v", err)
			}
		})
	}
}

func TestMemoryHost_LoadModes(t *testing.T) {
	t.Parallel()

	h := NewMemoryHost(1)
	menu := Ref{Package: "ui", Name: "menu"}
	hud := Ref{Package: "ui", Name: "hud"}
	level := Ref{Package: "world", Name: "level1"}

	if err := h.Load(menu, nil, Single); err != nil {
		t.Fatal(err)
	}
	if err := h.Load(hud, nil, Additive); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Ref{menu, hud}, h.Active()); diff != "" {
		t.Errorf("Active() mismatch (-want +got):\n%s", diff)
	}
	if err := h.Load(level, nil, Single); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Ref{level}, h.Active()); diff != "" {
		t.Errorf("Single should replace active scenes (-want +got):\n%s", diff)
	}
	if err := h.Load(level, nil, Mode(9)); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}

func TestMemoryHost_Async(t *testing.T) {
	t.Parallel()

	h := NewMemoryHost(3)
	ref := Ref{Package: "ui", Name: "menu"}

	p := h.LoadAsync(ref, []byte("x"), Additive)
	for range 2 {
		if p.IsDone() {
			t.Fatal("load should not be done before the third poll")
		}
	}
	if h.IsActive(ref) {
		t.Fatal("scene should not be active before completion")
	}
	if !p.IsDone() || p.Err() != nil || p.Progress() != 1 {
		t.Fatalf("load should complete cleanly on the third poll, err = %v", p.Err())
	}
	if !h.IsActive(ref) {
		t.Fatal("scene should be active")
	}
	if diff := cmp.Diff(map[types.PackageID][]string{"ui": {"menu"}}, h.ActiveNames()); diff != "" {
		t.Errorf("ActiveNames() mismatch (-want +got):\n%s", diff)
	}

	u := h.UnloadAsync(ref)
	for range 3 {
		_ = u.IsDone()
	}
	if u.Err() != nil || h.IsActive(ref) {
		t.Errorf("unload failed: err = %v, active = %v", u.Err(), h.IsActive(ref))
	}

	again := NewMemoryHost(1).UnloadAsync(ref)
	if !again.IsDone() || !errors.Is(again.Err(), ErrSceneNotActive) {
		t.Errorf("expected ErrSceneNotActive, got %v", again.Err())
	}
}
