// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// maxPackageIDLength bounds ids so they stay usable as file names.
const maxPackageIDLength = 128

// windowsReservedNames cannot be used as file names on Windows, with or
// without an extension.
var windowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// ErrInvalidPackageID is the sentinel error wrapped by InvalidPackageIDError.
var ErrInvalidPackageID = errors.New("invalid package id")

type (
	// PackageID is the stable, unique identity of a content package.
	// A valid id is non-empty, at most 128 bytes, and contains no path
	// separators or whitespace, since it doubles as the blob file name.
	PackageID string

	// InvalidPackageIDError is returned when a PackageID value is malformed.
	// It wraps ErrInvalidPackageID for errors.Is() compatibility.
	InvalidPackageIDError struct {
		Value  PackageID
		Reason string
	}
)

// String returns the string representation of the PackageID.
func (id PackageID) String() string { return string(id) }

// Validate returns nil if the PackageID is usable as an identity and file name.
func (id PackageID) Validate() error {
	s := string(id)
	switch {
	case s == "":
		return &InvalidPackageIDError{Value: id, Reason: "must be non-empty"}
	case len(s) > maxPackageIDLength:
		return &InvalidPackageIDError{Value: id, Reason: fmt.Sprintf("must be at most %d bytes", maxPackageIDLength)}
	case strings.ContainsAny(s, `/\`):
		return &InvalidPackageIDError{Value: id, Reason: "must not contain path separators"}
	case strings.IndexFunc(s, isSpace) >= 0:
		return &InvalidPackageIDError{Value: id, Reason: "must not contain whitespace"}
	case s == "." || s == "..":
		return &InvalidPackageIDError{Value: id, Reason: "must not be a relative path element"}
	case isWindowsReservedName(s):
		return &InvalidPackageIDError{Value: id, Reason: "is a reserved file name on Windows"}
	}
	return nil
}

// Error implements the error interface for InvalidPackageIDError.
func (e *InvalidPackageIDError) Error() string {
	return fmt.Sprintf("invalid package id %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidPackageID for errors.Is() compatibility.
func (e *InvalidPackageIDError) Unwrap() error { return ErrInvalidPackageID }

// PackageIDs converts plain strings to PackageID values.
func PackageIDs(ids ...string) []PackageID {
	out := make([]PackageID, len(ids))
	for i, id := range ids {
		out[i] = PackageID(id)
	}
	return out
}

// SortedPackageIDs returns a sorted copy of ids.
func SortedPackageIDs(ids []PackageID) []PackageID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// isWindowsReservedName checks the part before the first dot, since
// "nul.tar.pak" is as unusable as "nul".
func isWindowsReservedName(name string) bool {
	base, _, _ := strings.Cut(name, ".")
	return windowsReservedNames[strings.ToUpper(base)]
}
