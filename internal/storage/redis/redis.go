package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/templamart/pkg/database"
	apperrors "github.com/utafrali/templamart/pkg/errors"
)

// KeyPrefix namespaces every slot written by this backend.
const KeyPrefix = "templamart:"

// Store implements storage.Storage on Redis string values.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Redis-backed slot store. A zero ttl keeps slots until they
// are deleted explicitly.
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a slot value.
func (s *Store) Get(ctx context.Context, key string) (data []byte, err error) {
	ctx, end := database.TraceOp(ctx, "redis", "GetSlot", key)
	defer func() { end(err) }()

	data, err = s.client.Get(ctx, KeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("slot", key)
		}
		return nil, fmt.Errorf("redis get slot: %w", err)
	}
	return data, nil
}

// Set writes a slot value with the configured TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := database.TraceOp(ctx, "redis", "SetSlot", key)
	defer func() { end(err) }()

	if err = s.client.Set(ctx, KeyPrefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set slot: %w", err)
	}
	return nil
}

// Delete removes a slot.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceOp(ctx, "redis", "DeleteSlot", key)
	defer func() { end(err) }()

	if err = s.client.Del(ctx, KeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del slot: %w", err)
	}
	return nil
}

// CompareAndSwap writes value only if the slot still holds old, using
// WATCH/MULTI so a concurrent writer on another replica aborts the commit.
func (s *Store) CompareAndSwap(ctx context.Context, key string, old, value []byte) (swapped bool, err error) {
	ctx, end := database.TraceOp(ctx, "redis", "SwapSlot", key)
	defer func() { end(err) }()

	k := KeyPrefix + key
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}
		if exists != (old != nil) || !bytes.Equal(cur, old) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, value, s.ttl)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis swap slot: %w", err)
	}
	return swapped, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
