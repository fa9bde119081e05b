// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pakload/pakload/pkg/content"
	"github.com/pakload/pakload/pkg/storage"
	"github.com/pakload/pakload/pkg/types"
)

// MustMkdirAll creates path and its parents, failing the test on error.
func MustMkdirAll(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("failed to create directory %s: %v", path, err)
	}
}

// MustWriteFile writes data to path, creating parent directories.
func MustWriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	MustMkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// WriteBlob packs the given assets and scenes into dir/<id>.pak and
// returns the blob path.
func WriteBlob(t testing.TB, dir string, id types.PackageID, assets, scenes map[string]string) types.FilesystemPath {
	t.Helper()
	src := t.TempDir()
	for name, body := range assets {
		MustWriteFile(t, filepath.Join(src, content.AssetsDir, filepath.FromSlash(name)), []byte(body))
	}
	for name, body := range scenes {
		MustWriteFile(t, filepath.Join(src, content.ScenesDir, filepath.FromSlash(name)), []byte(body))
	}
	var buf bytes.Buffer
	if _, err := content.Pack(src, &buf); err != nil {
		t.Fatalf("failed to pack %s: %v", id, err)
	}
	path := storage.BlobPath(types.FilesystemPath(dir), id, "")
	MustWriteFile(t, path.String(), buf.Bytes())
	return path
}
