package storage

import (
	"context"
	"os"
	"time"
)

const lockPollInterval = 10 * time.Millisecond

// FileLock is an advisory lock on path + ".lock". It keeps two ytdigest
// runs from interleaving writes to one ledger file.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock for path. Nothing is acquired until Lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Lock acquires the exclusive lock, polling until timeout elapses or ctx is
// done. Returns ErrLockTimeout when the timeout wins.
func (l *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return &StorageError{Op: "lock", Backend: "file", ID: l.path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := tryLock(f); err == nil {
			l.file = f
			return nil
		}
		if !time.Now().Before(deadline) {
			f.Close()
			return ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			f.Close()
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Unlock releases the lock. The lock file itself is left in place; removing
// it would let a waiter lock an unlinked inode.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	unlockFile(l.file)
	err := l.file.Close()
	l.file = nil
	return err
}
