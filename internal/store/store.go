// Package store defines the raw key-value primitive underneath the
// directory. Backends live in sub-packages; the cache decorates any of them.
package store

import (
	"context"
	"errors"
)

// ErrEmptyKey is returned when an operation receives an empty key.
var ErrEmptyKey = errors.New("store: empty key")

// Store is a durable string-to-string map.
//
// Absence is reported through the bool result of Get, never as an error.
// Every error returned means the backend could not be reached or answered
// with something unusable.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put writes every entry. Backends apply the batch all-or-nothing.
	Put(ctx context.Context, entries map[string]string) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// CompareAndSwap sets key to newValue only if its current value equals
	// old. An old value of "" matches an absent key as well as an empty one.
	CompareAndSwap(ctx context.Context, key, old, newValue string) (bool, error)

	Close() error
}

// PrefixKey applies a namespace to key. An empty namespace leaves key as is.
func PrefixKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// ValidateKeys rejects empty keys before a backend round trip.
func ValidateKeys(keys ...string) error {
	for _, k := range keys {
		if k == "" {
			return ErrEmptyKey
		}
	}
	return nil
}
