package sessionmeta

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrymomot/scanauth/pkg/session"
)

// FileCache stores the breadcrumb as a small JSON file.
type FileCache struct {
	mu   sync.Mutex
	path string
	opts options
}

// NewFileCache returns a FileCache writing to path. The parent directory is
// created on first Store.
func NewFileCache(path string, opts ...Option) *FileCache {
	return &FileCache{path: path, opts: newOptions(opts)}
}

// Store writes the breadcrumb atomically through a temp file rename.
func (c *FileCache) Store(_ context.Context, s *session.Session) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(Metadata{HadSession: true, CapturedAt: c.opts.now().UTC()})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".session-meta-*")
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Join(ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Clear removes the file. A missing file is not an error.
func (c *FileCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (c *FileCache) HadRecentSession(ctx context.Context) bool {
	meta, err := c.load()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.opts.warn(ctx, "session metadata unreadable, skipping recovery", err)
		}
		return false
	}
	return meta.recent(c.opts.now(), c.opts.maxAge)
}

func (c *FileCache) load() (Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, errors.Join(ErrCorrupt, err)
	}
	return meta, nil
}
