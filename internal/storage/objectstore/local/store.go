// Package local is a filesystem ObjectStore for development and tests.
package local

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"kycvault/internal/storage/objectstore"
	"kycvault/pkg/platform/sentinel"
)

// Store implements ObjectStore using the local filesystem.
type Store struct {
	baseDir string
}

// New creates a local object store rooted at baseDir.
func New(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("local store root is required")
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir root: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Put writes body atomically through a temp file and rename.
func (s *Store) Put(ctx context.Context, key string, body []byte, _ objectstore.PutOptions) (objectstore.Object, error) {
	if err := ctx.Err(); err != nil {
		return objectstore.Object{}, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return objectstore.Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o700); err != nil {
		return objectstore.Object{}, wrap("mkdir", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return objectstore.Object{}, wrap("create temp", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return objectstore.Object{}, wrap("write body", err)
	}
	if err := tmp.Close(); err != nil {
		return objectstore.Object{}, wrap("close temp", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return objectstore.Object{}, wrap("rename", err)
	}
	return s.Stat(ctx, key)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, wrap("read file", err)
	}
	return b, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrap("remove", err)
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, key string) (objectstore.Object, error) {
	if err := ctx.Err(); err != nil {
		return objectstore.Object{}, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return objectstore.Object{}, err
	}
	info, err := os.Stat(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return objectstore.Object{}, sentinel.ErrNotFound
	}
	if err != nil {
		return objectstore.Object{}, wrap("stat", err)
	}
	b, err := os.ReadFile(fullPath)
	if err != nil {
		return objectstore.Object{}, wrap("read file", err)
	}
	sum := md5.Sum(b)
	return objectstore.Object{
		Key:          key,
		Size:         info.Size(),
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: info.ModTime().UTC(),
	}, nil
}

// List walks every file under prefix. Keys use forward slashes.
func (s *Store) List(ctx context.Context, prefix string) ([]objectstore.Object, error) {
	root := s.baseDir
	if prefix != "" {
		p, err := s.resolve(prefix)
		if err != nil {
			return nil, err
		}
		root = p
	}
	var out []objectstore.Object
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		out = append(out, objectstore.Object{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, wrap("walk", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// wrap marks interrupted or busy filesystem calls as unavailable so the
// storage manager retries them; everything else is permanent.
func wrap(op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EINTR) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}

var _ objectstore.ObjectStore = (*Store)(nil)
