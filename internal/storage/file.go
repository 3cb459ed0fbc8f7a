package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"ytdigest/internal/domain"
)

const (
	ledgerSchemaVersion = "1"
	lockTimeout         = 5 * time.Second
)

// FileBackend keeps the ledger in a single JSON file. The file lock is held
// from open until Close; every append rewrites the file atomically.
type FileBackend struct {
	path string
	lock *FileLock

	mu   sync.RWMutex
	data *ledgerFile
}

type ledgerFile struct {
	Version   string                   `json:"version"`
	UpdatedAt time.Time                `json:"updated_at"`
	Markers   map[string]domain.Marker `json:"markers"`
}

// NewFileBackend locks and loads the ledger at path, creating it when missing.
func NewFileBackend(ctx context.Context, path string) (*FileBackend, error) {
	b := &FileBackend{path: path, lock: NewFileLock(path)}

	if err := b.lock.Lock(ctx, lockTimeout); err != nil {
		return nil, &StorageError{Op: "open", Backend: "file", Err: err}
	}
	if err := b.load(); err != nil {
		b.lock.Unlock()
		return nil, err
	}
	return b, nil
}

func (b *FileBackend) load() error {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		b.data = &ledgerFile{Version: ledgerSchemaVersion, Markers: make(map[string]domain.Marker)}
		// Write immediately so permission problems surface at open time.
		return b.save()
	}
	if err != nil {
		return &StorageError{Op: "open", Backend: "file", Err: err}
	}

	data := &ledgerFile{}
	if err := json.Unmarshal(raw, data); err != nil {
		return &StorageError{Op: "open", Backend: "file", Err: ErrStorageCorrupt}
	}
	if data.Markers == nil {
		data.Markers = make(map[string]domain.Marker)
	}
	b.data = data
	return nil
}

func (b *FileBackend) save() error {
	b.data.UpdatedAt = time.Now().UTC()
	err := writeFileAtomic(b.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b.data)
	})
	if err != nil {
		return &StorageError{Op: "write", Backend: "file", Err: err}
	}
	return nil
}

func (b *FileBackend) Processed(ctx context.Context, id string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data.Markers[id]
	return ok, nil
}

func (b *FileBackend) Append(ctx context.Context, m domain.Marker) error {
	if err := validateMarker("file", m); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.data.Markers[m.ItemID]; exists {
		return nil
	}
	b.data.Markers[m.ItemID] = m
	if err := b.save(); err != nil {
		delete(b.data.Markers, m.ItemID)
		return err
	}
	return nil
}

// Marker returns the stored marker for id.
func (b *FileBackend) Marker(id string) (domain.Marker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.data.Markers[id]
	return m, ok
}

func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lock.Unlock()
}
