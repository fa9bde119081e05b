// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatError(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns nil", func(t *testing.T) {
		t.Parallel()
		if err := FormatError(nil, "catalog.cue"); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("non-CUE error is wrapped with file path", func(t *testing.T) {
		t.Parallel()
		orig := errors.New("boom")
		err := FormatError(orig, "catalog.cue")
		if !errors.Is(err, orig) {
			t.Errorf("expected wrapped original error, got %v", err)
		}
		if !strings.HasPrefix(err.Error(), "catalog.cue: ") {
			t.Errorf("error should start with the file path, got %q", err)
		}
	})
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path []string
		want string
	}{
		{"empty", nil, ""},
		{"single", []string{"local"}, "local"},
		{"nested", []string{"dependencies", "core"}, "dependencies.core"},
		{"index", []string{"dependencies", "core", "0"}, "dependencies.core[0]"},
		{"leading digits are a key", []string{"0", "x"}, "0.x"},
		{"two indices", []string{"a", "1", "b", "2"}, "a[1].b[2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatPath(tt.path); got != tt.want {
				t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestCheckFileSize(t *testing.T) {
	t.Parallel()

	if err := CheckFileSize(make([]byte, 10), 10, "x.cue"); err != nil {
		t.Errorf("at limit should pass, got %v", err)
	}
	err := CheckFileSize(make([]byte, 11), 10, "x.cue")
	if err == nil {
		t.Fatal("over limit should fail")
	}
	if !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("unexpected message: %v", err)
	}
}
