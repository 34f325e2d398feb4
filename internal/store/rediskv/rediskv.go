// Package rediskv implements store.Store on a remote Redis server.
package rediskv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/airrelay/internal/infrastructure/config"
	"github.com/nerrad567/airrelay/internal/store"
)

// Store keeps each directory key as a plain Redis string.
type Store struct {
	client    *redis.Client
	namespace string
}

var _ store.Store = (*Store)(nil)

// Open parses the configured URL, applies explicit password/db/timeout
// overrides and verifies the server answers PING.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("rediskv: invalid URL: %w", err)
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	if timeout := cfg.Redis.RedisTimeout(); timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("rediskv: ping failed: %w", err)
	}
	return New(client, cfg.Namespace), nil
}

// New wraps an existing client. Close closes it.
func New(client *redis.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

func (s *Store) key(k string) string {
	return store.PrefixKey(s.namespace, k)
}

// Get maps redis.Nil to absence.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := store.ValidateKeys(key); err != nil {
		return "", false, err
	}

	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("rediskv: get %q: %w", key, err)
	}
	return v, true, nil
}

// Put writes all entries with a single MSET inside MULTI/EXEC.
func (s *Store) Put(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	pairs := make([]any, 0, 2*len(entries))
	for k, v := range entries {
		if err := store.ValidateKeys(k); err != nil {
			return err
		}
		pairs = append(pairs, s.key(k), v)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.MSet(ctx, pairs...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("rediskv: put: %w", err)
	}
	return nil
}

// Delete removes keys with one DEL.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := store.ValidateKeys(keys...); err != nil {
		return err
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("rediskv: delete: %w", err)
	}
	return nil
}

// CompareAndSwap uses WATCH so the write aborts if key changes between the
// read and EXEC. An aborted transaction reports false.
func (s *Store) CompareAndSwap(ctx context.Context, key, old, newValue string) (bool, error) {
	if err := store.ValidateKeys(key); err != nil {
		return false, err
	}

	k := s.key(key)
	swapped := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Result()
		switch {
		case errors.Is(err, redis.Nil):
			current = ""
		case err != nil:
			return err
		}
		if current != old {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, newValue, 0)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("rediskv: compare-and-swap %q: %w", key, err)
	}
	return swapped, nil
}

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("rediskv: ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
