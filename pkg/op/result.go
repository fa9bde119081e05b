// SPDX-License-Identifier: MPL-2.0

package op

import (
	"errors"
	"fmt"
)

const (
	// Success means the operation completed.
	Success Result = iota
	// ErrorPackageNotFound means a package id is not registered.
	ErrorPackageNotFound
	// ErrorNotLoaded means the operation needs a loaded package.
	ErrorNotLoaded
	// ErrorInternal is the catch-all failure, including failed physical loads.
	ErrorInternal
	// ErrorCyclicDependency means a dependency closure contains a cycle.
	ErrorCyclicDependency
	// ErrorAssetNotFound means a loaded package has no such asset or scene.
	ErrorAssetNotFound
)

var (
	// ErrPackageNotFound is the error for ErrorPackageNotFound.
	ErrPackageNotFound = errors.New("package not found")
	// ErrNotLoaded is the error for ErrorNotLoaded.
	ErrNotLoaded = errors.New("package not loaded")
	// ErrInternal is the error for ErrorInternal.
	ErrInternal = errors.New("internal error")
	// ErrCyclicDependency is the error for ErrorCyclicDependency.
	ErrCyclicDependency = errors.New("cyclic dependency")
	// ErrAssetNotFound is the error for ErrorAssetNotFound.
	ErrAssetNotFound = errors.New("asset not found")
)

// Result is the outcome code of an operation.
type Result int

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case ErrorPackageNotFound:
		return "package_not_found"
	case ErrorNotLoaded:
		return "not_loaded"
	case ErrorInternal:
		return "internal"
	case ErrorCyclicDependency:
		return "cyclic_dependency"
	case ErrorAssetNotFound:
		return "asset_not_found"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// IsSuccess reports whether r is Success.
func (r Result) IsSuccess() bool { return r == Success }

// Err returns nil for Success and the matching sentinel otherwise.
func (r Result) Err() error {
	switch r {
	case Success:
		return nil
	case ErrorPackageNotFound:
		return ErrPackageNotFound
	case ErrorNotLoaded:
		return ErrNotLoaded
	case ErrorCyclicDependency:
		return ErrCyclicDependency
	case ErrorAssetNotFound:
		return ErrAssetNotFound
	case ErrorInternal:
		return ErrInternal
	default:
		return fmt.Errorf("%w: %s", ErrInternal, r)
	}
}
