// SPDX-License-Identifier: MPL-2.0

// Package types defines the value types shared by the catalog, storage,
// manager and CLI layers: package ids, filesystem paths and listen
// addresses. Each carries its own validation and typed error.
//
// This package is a leaf dependency: it imports only the standard library.
package types
