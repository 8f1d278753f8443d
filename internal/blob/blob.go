// Package blob is the file storage collaborator: bytes in, opaque handle
// out. Handles are uuids, never paths, so storage locations are not exposed
// to callers.
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("blob not found")
	ErrInvalidHandle = errors.New("invalid blob handle")
)

type Store struct {
	dir    string
	logger *zap.Logger
}

func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With(zap.String("component", "blob_store")),
	}, nil
}

func (s *Store) Put(data []byte) (string, error) {
	handle := uuid.New().String()
	if err := os.WriteFile(filepath.Join(s.dir, handle), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	s.logger.Debug("Stored blob", zap.String("handle", handle), zap.Int("size", len(data)))
	return handle, nil
}

func (s *Store) Get(handle string) ([]byte, error) {
	if err := validateHandle(handle); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, handle))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *Store) Delete(handle string) error {
	if err := validateHandle(handle); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, handle)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// validateHandle rejects anything that is not a bare uuid-shaped name, so a
// handle can never escape the storage directory.
func validateHandle(handle string) error {
	if handle == "" ||
		strings.ContainsAny(handle, `/\`) ||
		strings.Contains(handle, "..") {
		return ErrInvalidHandle
	}
	return nil
}
