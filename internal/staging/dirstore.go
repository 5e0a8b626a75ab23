package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lensworks/mediagate/internal/platform/env"
)

type DirConfig struct {
	Root string
}

func DirConfigFromEnv() (DirConfig, error) {
	cfg := DirConfig{
		Root: env.String("MEDIAGATE_STAGING_DIR", filepath.Join(os.TempDir(), "mediagate")),
	}
	if err := cfg.Validate(); err != nil {
		return DirConfig{}, err
	}
	return cfg, nil
}

func (c DirConfig) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return errors.New("staging root is required")
	}
	return nil
}

// DirStore stages resources as plain files under one root directory.
// Subprocess transformers address them by path.
type DirStore struct {
	root string
}

func NewDirStore(cfg DirConfig) (*DirStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &DirStore{root: cfg.Root}, nil
}

func (s *DirStore) Root() string {
	return s.root
}

func (s *DirStore) Allocate(key string) Resource {
	return Resource{Key: key, Path: filepath.Join(s.root, key)}
}

func (s *DirStore) Put(ctx context.Context, key string, body io.Reader) (Resource, error) {
	res := s.Allocate(key)
	f, err := os.OpenFile(res.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Resource{}, fmt.Errorf("create %s: %w", key, err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(res.Path)
		return Resource{}, fmt.Errorf("write %s: %w", key, err)
	}
	res.Size = n
	return res, nil
}

func (s *DirStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, key))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return f, nil
}

func (s *DirStore) Stat(ctx context.Context, key string) (Resource, error) {
	res := s.Allocate(key)
	info, err := os.Stat(res.Path)
	if err != nil {
		return Resource{}, fmt.Errorf("stat %s: %w", key, err)
	}
	res.Size = info.Size()
	return res, nil
}

func (s *DirStore) Remove(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.root, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
