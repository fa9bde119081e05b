// SPDX-License-Identifier: MPL-2.0

package content

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/pakload/pakload/pkg/types"
)

// MaxEntrySize bounds a single decoded entry (256MB).
const MaxEntrySize int64 = 256 << 20

var (
	// ErrEntryTooLarge is returned when a blob entry exceeds MaxEntrySize.
	ErrEntryTooLarge = errors.New("blob entry too large")
	// ErrNoEntries is returned by Pack when a directory has neither assets
	// nor scenes.
	ErrNoEntries = errors.New("no assets or scenes to pack")
)

// PackStats describes a packed blob.
type PackStats struct {
	Assets int
	Scenes int
	// RawBytes is the total size of packed entries before compression.
	RawBytes int64
}

// Pack writes the blob for dir to w. dir must contain an "assets" and/or
// a "scenes" sub-directory; files are added in lexical order so the same
// tree always produces the same tar stream.
func Pack(dir string, w io.Writer) (PackStats, error) {
	var stats PackStats
	var files []string

	for _, sub := range []string{AssetsDir, ScenesDir} {
		root := filepath.Join(dir, sub)
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && p == root {
					return fs.SkipDir
				}
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	if len(files) == 0 {
		return stats, fmt.Errorf("%s: %w", dir, ErrNoEntries)
	}
	slices.Sort(files)

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return stats, fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	for _, file := range files {
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return stats, err
		}
		name := filepath.ToSlash(rel)
		n, err := addFile(tw, file, name)
		if err != nil {
			return stats, err
		}
		stats.RawBytes += n
		if strings.HasPrefix(name, AssetsDir+"/") {
			stats.Assets++
		} else {
			stats.Scenes++
		}
	}

	if err := tw.Close(); err != nil {
		return stats, fmt.Errorf("close tar stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("close zstd stream: %w", err)
	}
	return stats, nil
}

func addFile(tw *tar.Writer, file, name string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     info.Size(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("write header %s: %w", name, err)
	}
	n, err := io.Copy(tw, f)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}

// Read decodes a blob stream into a Package.
func Read(id types.PackageID, r io.Reader) (*Package, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	defer zr.Close()

	assets := make(map[string][]byte)
	scenes := make(map[string][]byte)

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read blob %s: %w", id, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > MaxEntrySize {
			return nil, fmt.Errorf("%s: %s: %w", id, hdr.Name, ErrEntryTooLarge)
		}

		clean := path.Clean(hdr.Name)
		dir, name, ok := strings.Cut(clean, "/")
		if !ok || name == "" {
			continue
		}
		var target map[string][]byte
		switch dir {
		case AssetsDir:
			target = assets
		case ScenesDir:
			target = scenes
		default:
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, MaxEntrySize))
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", hdr.Name, err)
		}
		target[name] = data
	}

	return NewPackage(id, assets, scenes), nil
}
