// SPDX-License-Identifier: MPL-2.0

// Package testutil provides deterministic fakes for tests: a manually
// advanced clock, a scripted blob store whose loads finish after a set
// number of polls, and a scene host that records calls.
package testutil
