package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"ytdigest/internal/config"
	"ytdigest/internal/domain"
)

// Postgres and Redis tests run only against real servers:
//
//	YTDIGEST_TEST_DATABASE_URL=postgres://... YTDIGEST_TEST_REDIS_ADDR=localhost:6379 go test ./internal/storage

func testItemID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	id := testItemID("vid")

	if ok, err := b.Processed(ctx, id); err != nil || ok {
		t.Fatalf("Processed(new) = %v, %v", ok, err)
	}
	m := domain.Marker{ItemID: id, Title: "t", Status: domain.StatusProcessed, ProcessedAt: time.Now().UTC()}
	if err := b.Append(ctx, m); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := b.Append(ctx, m); err != nil {
		t.Fatalf("duplicate Append() error = %v", err)
	}
	if ok, err := b.Processed(ctx, id); err != nil || !ok {
		t.Fatalf("Processed(appended) = %v, %v", ok, err)
	}
}

func TestPostgresBackend(t *testing.T) {
	url := os.Getenv("YTDIGEST_TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("YTDIGEST_TEST_DATABASE_URL not set")
	}
	b, err := NewPostgresBackend(context.Background(), url)
	if err != nil {
		t.Fatalf("NewPostgresBackend() error = %v", err)
	}
	defer b.Close()
	exerciseBackend(t, b)
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("YTDIGEST_TEST_REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("YTDIGEST_TEST_REDIS_ADDR not set")
	}
	key := testItemID("ytdigest-test")
	b, err := NewRedisBackend(context.Background(), addr, key)
	if err != nil {
		t.Fatalf("NewRedisBackend() error = %v", err)
	}
	defer func() {
		b.client.Del(context.Background(), key)
		b.Close()
	}()
	exerciseBackend(t, b)

	ctx := context.Background()
	id := testItemID("vid")
	if _, ok, err := b.Marker(ctx, id); err != nil || ok {
		t.Fatalf("Marker(missing) = %v, %v", ok, err)
	}
	first := domain.Marker{ItemID: id, Title: "first", Status: domain.StatusProcessedAudio, ProcessedAt: time.Now().UTC()}
	if err := b.Append(ctx, first); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := b.Append(ctx, domain.Marker{ItemID: id, Title: "second", Status: domain.StatusProcessed}); err != nil {
		t.Fatalf("duplicate Append() error = %v", err)
	}
	got, ok, err := b.Marker(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Marker() = %v, %v", ok, err)
	}
	if got.Title != "first" || got.Status != domain.StatusProcessedAudio {
		t.Errorf("Marker() = %+v, want the first marker kept", got)
	}
}

func TestMigrationURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@h/db":  "pgx5://u:p@h/db",
		"postgresql://u@h/db":  "pgx5://u@h/db",
		"pgx5://already/there": "pgx5://already/there",
	}
	for in, want := range tests {
		if got := migrationURL(in); got != want {
			t.Errorf("migrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpen_FallsBackToUnavailable(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LedgerConfig
	}{
		{"sheets without credentials", config.LedgerConfig{Backend: config.LedgerSheets, SheetID: "s"}},
		{"postgres without url", config.LedgerConfig{Backend: config.LedgerPostgres}},
		{"redis without address", config.LedgerConfig{Backend: config.LedgerRedis}},
		{"unknown backend", config.LedgerConfig{Backend: "mongo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Open(context.Background(), tt.cfg, zap.NewNop())
			if _, ok := b.(*Unavailable); !ok {
				t.Fatalf("Open() = %T, want *Unavailable", b)
			}
			if _, err := b.Processed(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
				t.Errorf("Processed() error = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestOpen_File(t *testing.T) {
	cfg := config.LedgerConfig{Backend: config.LedgerFile, File: t.TempDir() + "/ledger.json"}
	b := Open(context.Background(), cfg, nil)
	defer b.Close()
	if _, ok := b.(*FileBackend); !ok {
		t.Fatalf("Open() = %T, want *FileBackend", b)
	}
}
