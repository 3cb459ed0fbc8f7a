package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"ytdigest/internal/domain"
)

// RedisBackend keeps the ledger in one hash: field = item id, value = the
// JSON-encoded marker. HSETNX keeps the first marker for an id.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend connects to addr and verifies the connection.
func NewRedisBackend(ctx context.Context, addr, key string) (*RedisBackend, error) {
	if addr == "" {
		return nil, &StorageError{Op: "open", Backend: "redis", Err: fmt.Errorf("%w: no redis address", ErrUnavailable)}
	}
	if key == "" {
		key = "ytdigest:processed"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &StorageError{Op: "open", Backend: "redis", Err: err}
	}
	return &RedisBackend{client: client, key: key}, nil
}

func (b *RedisBackend) Processed(ctx context.Context, id string) (bool, error) {
	ok, err := b.client.HExists(ctx, b.key, id).Result()
	if err != nil {
		return false, &StorageError{Op: "lookup", Backend: "redis", ID: id, Err: err}
	}
	return ok, nil
}

func (b *RedisBackend) Append(ctx context.Context, m domain.Marker) error {
	if err := validateMarker("redis", m); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return &StorageError{Op: "append", Backend: "redis", ID: m.ItemID, Err: err}
	}
	if err := b.client.HSetNX(ctx, b.key, m.ItemID, payload).Err(); err != nil {
		return &StorageError{Op: "append", Backend: "redis", ID: m.ItemID, Err: err}
	}
	return nil
}

// Marker returns the stored marker for id.
func (b *RedisBackend) Marker(ctx context.Context, id string) (domain.Marker, bool, error) {
	raw, err := b.client.HGet(ctx, b.key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Marker{}, false, nil
	}
	if err != nil {
		return domain.Marker{}, false, &StorageError{Op: "lookup", Backend: "redis", ID: id, Err: err}
	}
	var m domain.Marker
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Marker{}, false, &StorageError{Op: "lookup", Backend: "redis", ID: id, Err: ErrStorageCorrupt}
	}
	return m, true, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
