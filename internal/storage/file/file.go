// Package file stores each slot as a JSON document in a directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/utafrali/templamart/pkg/database"
	apperrors "github.com/utafrali/templamart/pkg/errors"
)

const ext = ".json"

// Store writes slots atomically: data goes to a temp file in the same
// directory which is then renamed over the target.
type Store struct {
	dir string
}

// New creates the directory if needed and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Store{dir: filepath.Clean(dir)}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+ext)
}

// Get reads the slot file.
func (s *Store) Get(ctx context.Context, key string) (data []byte, err error) {
	ctx, end := database.TraceOp(ctx, "file", "GetSlot", key)
	defer func() { end(err) }()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	data, err = os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NotFound("slot", key)
		}
		return nil, fmt.Errorf("read slot %s: %w", key, err)
	}
	return data, nil
}

// Set replaces the slot file contents.
func (s *Store) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceOp(ctx, "file", "SetSlot", key)
	defer func() { end(err) }()

	if err = ctx.Err(); err != nil {
		return err
	}
	return s.write(key, value)
}

func (s *Store) write(key string, value []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".slot-*")
	if err != nil {
		return fmt.Errorf("create temp slot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync slot %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close slot %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename slot %s: %w", key, err)
	}
	return nil
}

// Delete removes the slot file. Missing files are ignored.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceOp(ctx, "file", "DeleteSlot", key)
	defer func() { end(err) }()

	if err = ctx.Err(); err != nil {
		return err
	}
	if rmErr := os.Remove(s.path(key)); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return fmt.Errorf("delete slot %s: %w", key, rmErr)
	}
	return nil
}

// Ping checks that the directory is still present.
func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat storage directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", s.dir)
	}
	return nil
}
