package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Dataset names shared by all Store implementations.
const (
	DatasetHistory = "history"
	DatasetTotals  = "totals"
	DatasetStays   = "stays"
)

// Store persists the three bot datasets. Load fills v with the stored value,
// leaving the caller's default untouched when the dataset is missing or
// unreadable. Save failures are returned to the caller; in-memory state stays
// authoritative for the running process.
type Store interface {
	Load(ctx context.Context, name string, v interface{}) error
	Save(ctx context.Context, name string, v interface{}) error
	Close()
}

// FileStore keeps each dataset as a JSON file under a single directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Load(ctx context.Context, name string, v interface{}) error {
	path := filepath.Join(f.dir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		// Broken file: start over with the caller's default rather than
		// refusing to boot.
		log.Printf("store: %s is corrupt, starting with empty %s: %v", path, name, err)
		return nil
	}
	return nil
}

// Save writes the dataset to a temp file and renames it into place. The mutex
// keeps writes to all datasets serialized so a crash cannot interleave them.
func (f *FileStore) Save(ctx context.Context, name string, v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(f.dir, name+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func (f *FileStore) Close() {}
