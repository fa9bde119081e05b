// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	ManifestNotFoundId Id = iota + 1
	ManifestParseErrorId
	ManifestInvalidId
	PackageNotFoundId
	DependencyCycleId
	PackageLoadFailedId
	AssetNotFoundId
	PackFailedId
	ConfigLoadFailedId
	PermissionDeniedId
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	// Issue is a help page for one class of failure.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

var (
	render = glamour.Render

	issues = index(
		&Issue{
			id: ManifestNotFoundId,
			mdMsg: `
# No package manifest found!

pakload reads the package manifest from the path in the ` + "`manifest`" + ` config key,
or from ` + "`--manifest`" + `.

## Things you can try:
- Pass the manifest explicitly:
~~~
$ pakload --manifest ./packages.cue catalog show
~~~
- Set it once in ~/.config/pakload/config.cue:
~~~cue
manifest: "./packages.cue"
~~~`,
		},
		&Issue{
			id: ManifestParseErrorId,
			mdMsg: `
# The package manifest could not be parsed!

Supported formats are chosen by extension: .cue, .json, .toml, .yaml and .yml.

## Example manifest (CUE):
~~~cue
local: ["ui"]
dependencies: {
	ui:    ["fonts"]
	fonts: []
}
~~~

## Things you can try:
- Convert an existing manifest to check it round-trips:
~~~
$ pakload catalog fmt --to cue
~~~`,
		},
		&Issue{
			id: ManifestInvalidId,
			mdMsg: `
# The package manifest is inconsistent!

Some dependency lists name packages that have no entry of their own, or
packages depend on each other in a loop.

## Things you can try:
- List every problem at once:
~~~
$ pakload catalog check
~~~
- Add an empty entry for leaf packages, e.g. ` + "`fonts: []`" + `.`,
		},
		&Issue{
			id: PackageNotFoundId,
			mdMsg: `
# Package not found!

The package id is not registered. Only ids in the manifest's local list,
their dependencies, and explicitly loaded remote ids are known.

## Things you can try:
- List the known packages:
~~~
$ pakload catalog show
~~~`,
		},
		&Issue{
			id: DependencyCycleId,
			mdMsg: `
# Dependency cycle detected!

A package depends on itself through its dependencies, so there is no
order in which the set can be loaded.

## Things you can try:
- Show the cycle:
~~~
$ pakload catalog check
~~~
- Move the shared content into a new package both sides depend on.`,
		},
		&Issue{
			id: PackageLoadFailedId,
			mdMsg: `
# A package failed to load!

The blob for the package is missing, truncated, or not a zstd-compressed
tar stream.

## Things you can try:
- Check that the blob exists under ` + "`packages_dir`" + ` with the configured extension.
- Rebuild it:
~~~
$ pakload pack ./content/ui --out-dir ./packs
~~~`,
		},
		&Issue{
			id: AssetNotFoundId,
			mdMsg: `
# Asset not found!

The package loaded, but it has no asset or scene with that name. Names are
paths relative to the package's assets/ or scenes/ directory.`,
		},
		&Issue{
			id: PackFailedId,
			mdMsg: `
# Packing failed!

A package directory needs an assets/ and/or a scenes/ sub-directory.

## Example layout:
~~~
content/ui/
  assets/logo.png
  scenes/menu.scene
~~~`,
		},
		&Issue{
			id: ConfigLoadFailedId,
			mdMsg: `
# Failed to load configuration!

The config file is CUE and is validated against the built-in schema.

## Things you can try:
- Print the effective configuration:
~~~
$ pakload config show
~~~
- Remove unknown keys; durations are strings like "16ms".`,
		},
		&Issue{
			id: PermissionDeniedId,
			mdMsg: `
# Permission denied!

pakload could not read or write a file it needs.

## Things you can try:
- Check ownership of the manifest, packages_dir and output directories.`,
		},
	)
)

func index(list ...*Issue) map[Id]*Issue {
	m := make(map[Id]*Issue, len(list))
	for _, i := range list {
		m[i.id] = i
	}
	return m
}

func (i *Issue) Id() Id { return i.id }

func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

func (i *Issue) ExtLinks() []HttpLink { return slices.Clone(i.extLinks) }

// Render renders the page, with a "See also" list when links are set.
func (i *Issue) Render(stylePath string) (string, error) {
	var b strings.Builder
	b.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		b.WriteString("\n\n## See also:\n")
		for _, link := range slices.Concat(i.docLinks, i.extLinks) {
			b.WriteString("- [" + string(link) + "]\n")
		}
	}
	return render(b.String(), stylePath)
}

// Values returns every issue ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, id := range slices.Sorted(maps.Keys(issues)) {
		out = append(out, issues[id])
	}
	return out
}

// Get returns the issue for id, or nil.
func Get(id Id) *Issue { return issues[id] }
