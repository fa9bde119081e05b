// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pakload/pakload/pkg/types"
)

var (
	// ErrCyclicDependency is the sentinel error wrapped by CycleError.
	ErrCyclicDependency = errors.New("cyclic package dependency")
	// ErrUnknownPackage is returned when an id has no dependency entry.
	ErrUnknownPackage = errors.New("unknown package")
	// ErrDanglingDependency is the sentinel error wrapped by DanglingDependencyError.
	ErrDanglingDependency = errors.New("dangling dependency")
	// ErrUnsupportedFormat is returned for manifest files with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
)

type (
	// CycleError reports a dependency cycle. Path is a closed walk through
	// the graph: the first id is repeated at the end.
	CycleError struct {
		Path []types.PackageID
	}

	// DanglingDependencyError reports a dependency on an id that has no
	// entry in the catalog.
	DanglingDependencyError struct {
		Package    types.PackageID
		Dependency types.PackageID
	}

	// UnknownPackageError is returned when a lookup names an id the
	// catalog does not contain.
	UnknownPackageError struct {
		ID types.PackageID
	}
)

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(parts, " -> "))
}

// Unwrap returns ErrCyclicDependency for errors.Is() compatibility.
func (e *CycleError) Unwrap() error { return ErrCyclicDependency }

func (e *DanglingDependencyError) Error() string {
	return fmt.Sprintf("package %q depends on %q which has no dependency entry", e.Package, e.Dependency)
}

// Unwrap returns ErrDanglingDependency for errors.Is() compatibility.
func (e *DanglingDependencyError) Unwrap() error { return ErrDanglingDependency }

func (e *UnknownPackageError) Error() string {
	return fmt.Sprintf("unknown package %q", e.ID)
}

// Unwrap returns ErrUnknownPackage for errors.Is() compatibility.
func (e *UnknownPackageError) Unwrap() error { return ErrUnknownPackage }
