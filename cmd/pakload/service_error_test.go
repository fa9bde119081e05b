// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/pakload/pakload/internal/issue"
)

func TestNewServiceError_PanicsOnNilErr(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on nil Err, got none")
		}
		if msg, ok := r.(string); !ok || msg != "ServiceError: Err must not be nil" {
			t.Fatalf("unexpected panic value: %v", r)
		}
	}()

	newServiceError(nil, 0)
}

func TestServiceError_ErrorAndUnwrap(t *testing.T) {
	t.Parallel()

	underlying := errors.New("underlying error")
	svcErr := newServiceError(underlying, issue.PackageNotFoundId)

	if svcErr.Error() != "underlying error" {
		t.Errorf("Error() = %q, want %q", svcErr.Error(), "underlying error")
	}
	if !errors.Is(svcErr, underlying) {
		t.Error("errors.Is should find underlying error via Unwrap")
	}
}

func TestRenderServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		svcErr   *ServiceError
		wantText string
	}{
		{"nil", nil, ""},
		{"no issue page", newServiceError(errors.New("x"), 0), ""},
		{"unknown issue page", newServiceError(errors.New("x"), issue.Id(9999)), ""},
		{"cycle page", newServiceError(errors.New("x"), issue.DependencyCycleId), "Dependency cycle detected"},
		{"pack page", newServiceError(errors.New("x"), issue.PackFailedId), "Packing failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			wrote := renderServiceError(&buf, tt.svcErr, "notty")
			if wrote != (tt.wantText != "") {
				t.Fatalf("renderServiceError() = %v, output %q", wrote, buf.String())
			}
			if tt.wantText == "" {
				if buf.Len() != 0 {
					t.Errorf("expected no output, got %q", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), tt.wantText) {
				t.Errorf("output should contain %q, got:\n%s", tt.wantText, buf.String())
			}
		})
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	inner := errors.New("inner")
	if got := (&ExitError{Code: 2, Err: inner}).Error(); got != "inner" {
		t.Errorf("Error() = %q, want inner", got)
	}
	if got := (&ExitError{Code: 3}).Error(); got != "exit status 3" {
		t.Errorf("Error() = %q, want exit status 3", got)
	}
	if !errors.Is(&ExitError{Code: 2, Err: inner}, inner) {
		t.Error("ExitError should unwrap to its cause")
	}
}
