package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ytdigest/internal/domain"
)

// Ledger is the dedup store used by the pipeline. Lookups fail open: a
// backend error is logged and the item is treated as new, so an outage can
// cause a duplicate notification but never a silently dropped one.
type Ledger struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedger wraps backend. A nil logger disables logging.
func NewLedger(backend Backend, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{backend: backend, logger: logger, now: time.Now}
}

// IsProcessed reports whether id has a marker. Errors yield false.
func (l *Ledger) IsProcessed(ctx context.Context, id string) bool {
	ok, err := l.backend.Processed(ctx, id)
	if err != nil {
		l.logger.Warn("ledger lookup failed, treating item as new",
			zap.String("item_id", id), zap.Error(err))
		return false
	}
	return ok
}

// Check is IsProcessed without the fail-open behaviour.
func (l *Ledger) Check(ctx context.Context, id string) (bool, error) {
	return l.backend.Processed(ctx, id)
}

// Commit appends the marker for an item. ProcessedAt defaults to now.
func (l *Ledger) Commit(ctx context.Context, m domain.Marker) error {
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = l.now().UTC()
	}
	return l.backend.Append(ctx, m)
}

// Close closes the underlying backend.
func (l *Ledger) Close() error {
	return l.backend.Close()
}
