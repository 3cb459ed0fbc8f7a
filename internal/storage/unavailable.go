package storage

import (
	"context"
	"errors"

	"ytdigest/internal/domain"
)

// Unavailable is the backend used when the configured one could not be
// opened. Every call fails with ErrUnavailable joined with Reason.
type Unavailable struct {
	Name   string
	Reason error
}

func (u *Unavailable) err(op, id string) error {
	return &StorageError{Op: op, Backend: u.Name, ID: id, Err: errors.Join(ErrUnavailable, u.Reason)}
}

func (u *Unavailable) Processed(ctx context.Context, id string) (bool, error) {
	return false, u.err("lookup", id)
}

func (u *Unavailable) Append(ctx context.Context, m domain.Marker) error {
	return u.err("append", m.ItemID)
}

func (u *Unavailable) Close() error { return nil }
