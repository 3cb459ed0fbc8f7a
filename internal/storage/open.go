package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"ytdigest/internal/config"
)

// Open builds the backend selected by cfg. It never returns nil: when the
// backend cannot be opened the failure is logged and an Unavailable backend
// is returned, so lookups fail open and commits fail loudly.
func Open(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b, err := open(ctx, cfg)
	if err != nil {
		logger.Error("ledger unavailable", zap.String("backend", cfg.Backend), zap.Error(err))
		return &Unavailable{Name: cfg.Backend, Reason: err}
	}
	logger.Debug("ledger opened", zap.String("backend", cfg.Backend))
	return b
}

func open(ctx context.Context, cfg config.LedgerConfig) (Backend, error) {
	switch cfg.Backend {
	case config.LedgerSheets, "":
		if cfg.ServiceAccountJSON == "" {
			return nil, fmt.Errorf("%w: no service account credentials", ErrUnavailable)
		}
		return NewSheetsBackend(ctx, cfg.SheetID, cfg.SheetRange,
			option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)),
			option.WithScopes(sheets.SpreadsheetsScope))
	case config.LedgerFile:
		return NewFileBackend(ctx, cfg.File)
	case config.LedgerPostgres:
		return NewPostgresBackend(ctx, cfg.DatabaseURL)
	case config.LedgerRedis:
		return NewRedisBackend(ctx, cfg.RedisAddr, cfg.RedisKey)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
