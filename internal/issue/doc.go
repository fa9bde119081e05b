// SPDX-License-Identifier: MPL-2.0

// Package issue carries user-facing error context for the CLI: an
// ActionableError with operation, resource, suggestions and cause, and a
// catalog of Markdown help pages rendered with glamour.
package issue
