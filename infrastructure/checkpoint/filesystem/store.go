// Package filesystem provides a filesystem-backed checkpoint store. Blobs
// are content-addressed files; the resume head is a small pointer file
// replaced atomically.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/inquestlabs/inquest/orchestrator"
)

// Store implements orchestrator.CheckpointStore on a local directory.
type Store struct {
	basePath string
}

// NewStore creates the checkpoint directory if needed.
func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Put writes the blob under its ref. An existing file with the same ref is
// identical by construction, so rewriting is harmless.
func (s *Store) Put(ctx context.Context, ref string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateRef(ref); err != nil {
		return err
	}
	tmp := s.blobPath(ref) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.blobPath(ref)); err != nil {
		os.Remove(tmp) // #nosec G104 -- best-effort cleanup in error path
		return fmt.Errorf("publish checkpoint: %w", err)
	}
	return nil
}

// Get reads a blob by ref.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blobPath(ref))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrCheckpointNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return data, nil
}

// SetLatest replaces the resume head pointer atomically.
func (s *Store) SetLatest(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateRef(ref); err != nil {
		return err
	}
	if _, err := os.Stat(s.blobPath(ref)); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", orchestrator.ErrCheckpointNotFound, ref)
	}
	tmp := s.latestPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(ref+"\n"), 0600); err != nil {
		return fmt.Errorf("write head: %w", err)
	}
	if err := os.Rename(tmp, s.latestPath()); err != nil {
		os.Remove(tmp) // #nosec G104 -- best-effort cleanup in error path
		return fmt.Errorf("publish head: %w", err)
	}
	return nil
}

// Latest reads the resume head pointer.
func (s *Store) Latest(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.latestPath())
	if os.IsNotExist(err) {
		return "", orchestrator.ErrCheckpointNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read head: %w", err)
	}
	ref := strings.TrimSpace(string(data))
	if ref == "" {
		return "", orchestrator.ErrCheckpointNotFound
	}
	return ref, nil
}

func (s *Store) blobPath(ref string) string {
	return filepath.Join(s.basePath, ref+".json")
}

func (s *Store) latestPath() string {
	return filepath.Join(s.basePath, "LATEST")
}

// validateRef rejects refs that could escape the checkpoint directory. Refs
// are hex digests in practice, but the store doesn't trust its callers.
func validateRef(ref string) error {
	if ref == "" || strings.ContainsAny(ref, "/\\") || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid checkpoint ref %q", ref)
	}
	return nil
}

var _ orchestrator.CheckpointStore = (*Store)(nil)
