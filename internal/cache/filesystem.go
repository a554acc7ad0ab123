package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Filesystem stores tiles as files under root/bin/z/x/y.
type Filesystem struct {
	root string
}

var _ Cache = (*Filesystem)(nil)

// NewFilesystem stores tiles as files below root.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		return nil, errors.New("cache: filesystem root not set")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", root, err)
	}
	return &Filesystem{root: root}, nil
}

func (c *Filesystem) path(k Key) string {
	bin := k.Bin
	if bin == "" {
		bin = "_"
	}
	return filepath.Join(c.root, filepath.Base(bin),
		strconv.FormatUint(uint64(k.Level), 10),
		strconv.FormatUint(uint64(k.X), 10),
		strconv.FormatUint(uint64(k.Y), 10))
}

func (c *Filesystem) Get(_ context.Context, k Key) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set writes through a temp file so readers never see a partial tile.
func (c *Filesystem) Set(_ context.Context, k Key, v []byte) error {
	p := c.path(k)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tile-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(v); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (c *Filesystem) Has(_ context.Context, k Key) (bool, error) {
	_, err := os.Stat(c.path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (c *Filesystem) Close() error { return nil }
