// Package sqlitekv implements store.Store on the local SQLite database.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/airrelay/internal/infrastructure/config"
	"github.com/nerrad567/airrelay/internal/infrastructure/database"
	"github.com/nerrad567/airrelay/internal/store"
	"github.com/nerrad567/airrelay/migrations"
)

// Store keeps every key in the single kv table.
type Store struct {
	db        *database.DB
	namespace string
	ownsDB    bool
}

var _ store.Store = (*Store)(nil)

// Open opens the configured database file, applies pending migrations and
// returns a Store that closes the database on Close.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	db, err := database.Open(ctx, cfg.SQLite)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	s := New(db, cfg.Namespace)
	s.ownsDB = true
	return s, nil
}

// New wraps an already migrated database. The caller keeps ownership of db.
func New(db *database.DB, namespace string) *Store {
	return &Store{db: db, namespace: namespace}
}

func (s *Store) key(k string) string {
	return store.PrefixKey(s.namespace, k)
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := store.ValidateKeys(key); err != nil {
		return "", false, err
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", s.key(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlitekv: get %q: %w", key, err)
	}
	return value, true, nil
}

// Put upserts every entry inside one transaction.
func (s *Store) Put(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	for k := range entries {
		if err := store.ValidateKeys(k); err != nil {
			return err
		}
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for k, v := range entries {
			if _, err := stmt.ExecContext(ctx, s.key(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlitekv: put: %w", err)
	}
	return nil
}

// Delete removes keys inside one transaction.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := store.ValidateKeys(keys...); err != nil {
		return err
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", s.key(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlitekv: delete: %w", err)
	}
	return nil
}

// CompareAndSwap reads and conditionally writes key in one transaction.
// The pool holds a single connection, so no other writer can interleave.
func (s *Store) CompareAndSwap(ctx context.Context, key, old, newValue string) (bool, error) {
	if err := store.ValidateKeys(key); err != nil {
		return false, err
	}

	var swapped bool
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", s.key(key)).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			current = ""
		case err != nil:
			return err
		}
		if current != old {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			s.key(key), newValue,
		); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("sqlitekv: compare-and-swap %q: %w", key, err)
	}
	return swapped, nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

// Close closes the database if Open created it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
