package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ytdigest/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const processedTable = "processed_items"

// PostgresBackend keeps the ledger in the processed_items table.
type PostgresBackend struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

// NewPostgresBackend applies pending migrations and opens a connection pool.
func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	if databaseURL == "" {
		return nil, &StorageError{Op: "open", Backend: "postgres", Err: fmt.Errorf("%w: no database url", ErrUnavailable)}
	}
	if err := Migrate(databaseURL); err != nil {
		return nil, &StorageError{Op: "migrate", Backend: "postgres", Err: err}
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, &StorageError{Op: "open", Backend: "postgres", Err: fmt.Errorf("parse database URL: %w", err)}
	}
	poolCfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &StorageError{Op: "open", Backend: "postgres", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &StorageError{Op: "open", Backend: "postgres", Err: fmt.Errorf("ping database: %w", err)}
	}

	return &PostgresBackend{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Migrate runs the embedded up-migrations. Already-applied migrations are skipped.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrationURL rewrites a postgres:// URL to the pgx5:// scheme the
// migrate driver registers under.
func migrationURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

func (b *PostgresBackend) Processed(ctx context.Context, id string) (bool, error) {
	query, args, err := b.sb.Select("1").
		From(processedTable).
		Where(sq.Eq{"item_id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, &StorageError{Op: "lookup", Backend: "postgres", ID: id, Err: err}
	}

	var one int
	err = b.pool.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "lookup", Backend: "postgres", ID: id, Err: err}
	}
	return true, nil
}

func (b *PostgresBackend) Append(ctx context.Context, m domain.Marker) error {
	if err := validateMarker("postgres", m); err != nil {
		return err
	}
	query, args, err := b.sb.Insert(processedTable).
		Columns("item_id", "title", "status", "processed_at").
		Values(m.ItemID, m.Title, m.Status, m.ProcessedAt).
		Suffix("ON CONFLICT (item_id) DO NOTHING").
		ToSql()
	if err != nil {
		return &StorageError{Op: "append", Backend: "postgres", ID: m.ItemID, Err: err}
	}
	if _, err := b.pool.Exec(ctx, query, args...); err != nil {
		return &StorageError{Op: "append", Backend: "postgres", ID: m.ItemID, Err: err}
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
