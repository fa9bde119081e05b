// SPDX-License-Identifier: MPL-2.0

// Package storage is the physical loader: it turns a package blob on disk
// into loaded content in the background and exposes a pollable handle
// for the in-flight load.
package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pakload/pakload/pkg/content"
	"github.com/pakload/pakload/pkg/types"
)

// DefaultBlobExtension is appended to a package id to form its blob name.
const DefaultBlobExtension = ".pak"

// ErrEmptyBlob is returned for zero-length blob files.
var ErrEmptyBlob = errors.New("empty package blob")

type (
	// BlobLoader starts physical package loads.
	BlobLoader interface {
		// LoadPackageBlob starts loading the blob at path. It never blocks;
		// the returned Pending is polled until IsDone.
		LoadPackageBlob(id types.PackageID, path types.FilesystemPath) Pending
	}

	// Pending is an in-flight physical load.
	Pending interface {
		IsDone() bool
		// Progress is in [0, 1].
		Progress() float64
		// Result is valid once IsDone is true. A failed load has nil
		// content and a non-nil error.
		Result() (content.Content, error)
		// Done is closed when the load completes.
		Done() <-chan struct{}
	}

	// FileStore loads blobs from the local filesystem.
	FileStore struct {
		logger *slog.Logger
	}

	// FileStoreOption configures a FileStore.
	FileStoreOption func(*FileStore)

	filePending struct {
		size atomic.Int64
		read atomic.Int64
		done chan struct{}

		mu      sync.Mutex
		content content.Content
		err     error
	}

	countingReader struct {
		r io.Reader
		n *atomic.Int64
	}
)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *slog.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = l }
}

// NewFileStore creates a FileStore.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	s := &FileStore{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// BlobPath returns the blob location for id under base.
func BlobPath(base types.FilesystemPath, id types.PackageID, ext string) types.FilesystemPath {
	if ext == "" {
		ext = DefaultBlobExtension
	}
	return base.Join(id.String() + ext)
}

// LoadPackageBlob reads and decodes the blob on its own goroutine.
func (s *FileStore) LoadPackageBlob(id types.PackageID, path types.FilesystemPath) Pending {
	p := &filePending{done: make(chan struct{})}
	go func() {
		c, err := s.load(id, path, p)
		if err != nil {
			s.logger.Debug("package blob load failed", "package", id, "path", path, "error", err)
		}
		p.finish(c, err)
	}()
	return p
}

func (s *FileStore) load(id types.PackageID, path types.FilesystemPath, p *filePending) (content.Content, error) {
	f, err := os.Open(path.String())
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat blob: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyBlob)
	}
	p.size.Store(info.Size())

	pkg, err := content.Read(id, countingReader{r: f, n: &p.read})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("package blob loaded", "package", id, "bytes", info.Size(), "entries", len(pkg.AssetNames())+len(pkg.SceneNames()))
	return pkg, nil
}

func (c countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n.Add(int64(n))
	return n, err
}

func (p *filePending) finish(c content.Content, err error) {
	p.mu.Lock()
	p.content = c
	p.err = err
	p.mu.Unlock()
	close(p.done)
}

func (p *filePending) IsDone() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *filePending) Progress() float64 {
	if p.IsDone() {
		return 1
	}
	size := p.size.Load()
	if size <= 0 {
		return 0
	}
	frac := float64(p.read.Load()) / float64(size)
	// the decoder may read ahead to EOF before the last entry is decoded
	return min(frac, 0.99)
}

func (p *filePending) Result() (content.Content, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, p.err
}

func (p *filePending) Done() <-chan struct{} { return p.done }
