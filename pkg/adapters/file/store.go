package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/aretw0/blobrelay/pkg/domain"
)

const checkpointExt = ".json"

// Store implements ports.StateStore using the local filesystem.
// It stores one JSON checkpoint per instance in a configured directory.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".blobrelay/instances".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".blobrelay", "instances")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(instanceID string) (string, error) {
	if err := domain.ValidateInstanceID(instanceID); err != nil {
		return "", err
	}
	return filepath.Join(s.BasePath, instanceID+checkpointExt), nil
}

// Save persists the checkpoint to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, instanceID string, inst *domain.Instance) error {
	destPath, err := s.path(instanceID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure instance directory: %w", err)
	}

	data, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	// 1. Create Temp File in the same directory (same filesystem, required for atomic rename).
	// Its name never ends in the checkpoint extension, so List cannot mistake it for an instance.
	tmpFile, err := os.CreateTemp(s.BasePath, "."+instanceID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Remove the temp file on failure; after a successful rename this is a no-op.
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	// 2. Write Data
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// 3. Fsync to ensure durability
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// 4. Close File (cannot rename open file on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// 5. Atomic Rename
	// On Windows, os.Rename fails if dest exists, so it has to be removed first.
	// The Delete+Rename window there is accepted over a partially written checkpoint.
	if goruntime.GOOS == "windows" {
		if _, err := os.Stat(destPath); err == nil {
			if err := os.Remove(destPath); err != nil {
				return fmt.Errorf("failed to remove existing checkpoint for overwrite: %w", err)
			}
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to checkpoint: %w", err)
	}

	// 6. Fsync the directory so the rename itself survives a crash.
	return syncDir(s.BasePath)
}

func syncDir(dir string) error {
	if goruntime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open instance directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to fsync instance directory: %w", err)
	}
	return nil
}

// Load retrieves the checkpoint from its JSON file.
func (s *Store) Load(ctx context.Context, instanceID string) (*domain.Instance, error) {
	filePath, err := s.path(instanceID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var inst domain.Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return &inst, nil
}

// Delete removes the checkpoint file.
func (s *Store) Delete(ctx context.Context, instanceID string) error {
	filePath, err := s.path(instanceID)
	if err != nil {
		return err
	}

	err = os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}

	return nil
}

// List returns all stored instance ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != checkpointExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, checkpointExt))
	}

	return ids, nil
}
