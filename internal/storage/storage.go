// Package storage keeps the dedup ledger that maps an item id to its
// processed marker. The ledger is append-only: no backend exposes update or
// delete.
package storage

import (
	"context"
	"errors"
	"fmt"

	"ytdigest/internal/domain"
)

// Sentinel errors for common storage conditions.
var (
	// ErrUnavailable indicates the configured backend could not be reached or
	// was never configured (missing credentials, bad URL).
	ErrUnavailable = errors.New("storage: unavailable")
	// ErrInvalidInput indicates a marker without an item id.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates the ledger file could not be decoded.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring the ledger file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError wraps backend failures with the operation and backend name.
//
//	var serr *storage.StorageError
//	if errors.As(err, &serr) {
//		fmt.Println(serr.Backend, serr.Op, serr.ID)
//	}
type StorageError struct {
	// Op is the operation that failed ("open", "lookup", "append", "close").
	Op string
	// Backend is the backend name ("sheets", "file", "postgres", "redis").
	Backend string
	// ID is the item id if applicable.
	ID string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Backend, e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Backend is a durable ledger of processed markers.
// Append of an id that already has a marker keeps the existing marker.
type Backend interface {
	// Processed reports whether a marker exists for id.
	Processed(ctx context.Context, id string) (bool, error)
	// Append records a marker.
	Append(ctx context.Context, m domain.Marker) error
	// Close releases connections, locks and file handles.
	Close() error
}

func validateMarker(backend string, m domain.Marker) error {
	if m.ItemID == "" {
		return &StorageError{Op: "append", Backend: backend, Err: ErrInvalidInput}
	}
	return nil
}
