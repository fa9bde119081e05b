// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for pakload.
//
// The App type is the composition root: every command handler receives it and
// resolves configuration, the catalog and the blob store through it, so tests
// can substitute a scripted store and an in-memory config provider.
package cmd
