// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/pakload/pakload/pkg/cueutil"
)

const (
	// FormatCUE is the default manifest format.
	FormatCUE Format = "cue"
	// FormatJSON matches the conceptual wire format of the manifest.
	FormatJSON Format = "json"
	// FormatTOML stores the manifest as TOML.
	FormatTOML Format = "toml"
	// FormatYAML stores the manifest as YAML.
	FormatYAML Format = "yaml"
)

//go:embed manifest_schema.cue
var manifestSchema []byte

type (
	// Format identifies a manifest encoding.
	Format string

	// Manifest is the serialized form of a Catalog. Local holds the
	// explicit local ids only; Dependencies holds direct dependencies only.
	Manifest struct {
		Local        []string            `json:"local" toml:"local" yaml:"local"`
		Dependencies map[string][]string `json:"dependencies" toml:"dependencies" yaml:"dependencies"`
	}
)

// Formats lists the supported manifest formats.
func Formats() []Format {
	return []Format{FormatCUE, FormatJSON, FormatTOML, FormatYAML}
}

// String returns the string representation of the Format.
func (f Format) String() string { return string(f) }

// Validate returns nil if f is a supported format.
func (f Format) Validate() error {
	if slices.Contains(Formats(), f) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
}

// FormatFromPath selects a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "yml" {
		ext = "yaml"
	}
	f := Format(ext)
	if err := f.Validate(); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Decode parses a manifest. CUE input is validated against the embedded
// #Manifest schema; other formats are structurally decoded.
func Decode(format Format, data []byte, filename string) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatCUE:
		res, err := cueutil.ParseAndDecode[Manifest](manifestSchema, data, "#Manifest", cueutil.WithFilename(filename))
		if err != nil {
			return nil, err
		}
		m = *res.Value
	case FormatJSON:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	default:
		return nil, fmt.Errorf("%s: %w: %q", filename, ErrUnsupportedFormat, string(format))
	}
	if m.Dependencies == nil {
		m.Dependencies = make(map[string][]string)
	}
	return &m, nil
}

// Encode serializes a manifest. Output is deterministic: local ids and
// dependency keys are sorted.
func Encode(format Format, m *Manifest) ([]byte, error) {
	norm := m.normalized()
	switch format {
	case FormatCUE:
		return []byte(norm.toCUE()), nil
	case FormatJSON:
		out, err := json.MarshalIndent(norm, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case FormatTOML:
		return toml.Marshal(norm)
	case FormatYAML:
		return yaml.MarshalWithOptions(norm, yaml.IndentSequence(true))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
}

// ReadFile loads a manifest, choosing the codec from the extension.
func ReadFile(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Decode(format, data, path)
}

// WriteFile writes a manifest atomically (temp file + rename), choosing
// the codec from the extension.
func WriteFile(path string, m *Manifest) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Encode(format, m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}
	return nil
}

func (m *Manifest) normalized() *Manifest {
	out := &Manifest{
		Local:        slices.Sorted(slices.Values(m.Local)),
		Dependencies: make(map[string][]string, len(m.Dependencies)),
	}
	if out.Local == nil {
		out.Local = []string{}
	}
	for k, deps := range m.Dependencies {
		if deps == nil {
			deps = []string{}
		}
		out.Dependencies[k] = slices.Clone(deps)
	}
	return out
}

// toCUE renders the manifest as CUE source.
func (m *Manifest) toCUE() string {
	var sb strings.Builder
	sb.WriteString("// Package manifest. Only explicitly local ids are listed under local.\n\n")

	sb.WriteString("local: [")
	for i, id := range m.Local {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", id)
	}
	sb.WriteString("]\n\n")

	if len(m.Dependencies) == 0 {
		sb.WriteString("dependencies: {}\n")
		return sb.String()
	}

	sb.WriteString("dependencies: {\n")
	for _, key := range slices.Sorted(maps.Keys(m.Dependencies)) {
		fmt.Fprintf(&sb, "\t%q: [", key)
		for i, dep := range m.Dependencies[key] {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%q", dep)
		}
		sb.WriteString("]\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}
