// Package kvstore is the durable client-side key-value storage behind identities, sessions and
// revocation flags. Values are plain strings; callers encode integers and JSON themselves.
package kvstore

import (
	"context"
	"errors"
)

// ErrEmptyKey is returned when a key is empty.
var ErrEmptyKey = errors.New("kvstore: empty key")

// Store is a flat string key-value store.
type Store interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns every key starting with prefix, in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}
