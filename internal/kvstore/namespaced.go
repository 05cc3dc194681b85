package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Namespaced scopes a Store under a fixed key prefix. Callers use bare keys ("user",
// "revoked_a@b.c"); the prefix is added on the way in and stripped on the way out.
type Namespaced struct {
	store  Store
	prefix string
}

// NewNamespaced returns store scoped under prefix (e.g. "voiceAgent_").
func NewNamespaced(store Store, prefix string) *Namespaced {
	return &Namespaced{store: store, prefix: prefix}
}

// Prefix returns the namespace prefix.
func (n *Namespaced) Prefix() string { return n.prefix }

func (n *Namespaced) key(k string) string { return n.prefix + k }

// Get returns the value for key within the namespace.
func (n *Namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	return n.store.Get(ctx, n.key(key))
}

// Set stores value under key within the namespace.
func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return n.store.Set(ctx, n.key(key), value)
}

// Delete removes key within the namespace.
func (n *Namespaced) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return n.store.Delete(ctx, n.key(key))
}

// DeleteAll removes each key, stopping at the first failure.
func (n *Namespaced) DeleteAll(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := n.Delete(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

// Keys returns the bare keys (namespace stripped) that start with prefix.
func (n *Namespaced) Keys(ctx context.Context, prefix string) ([]string, error) {
	full, err := n.store.Keys(ctx, n.key(prefix))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(full))
	for _, k := range full {
		out = append(out, strings.TrimPrefix(k, n.prefix))
	}
	return out, nil
}

// Clear deletes every entry in the namespace. Keys outside the namespace are untouched.
func (n *Namespaced) Clear(ctx context.Context) error {
	keys, err := n.Keys(ctx, "")
	if err != nil {
		return err
	}
	return n.DeleteAll(ctx, keys...)
}

// Ping checks the underlying store.
func (n *Namespaced) Ping(ctx context.Context) error { return n.store.Ping(ctx) }

// GetInt reads key as a base-10 integer. A missing key yields ok false; a malformed value is an error.
func (n *Namespaced) GetInt(ctx context.Context, key string) (int64, bool, error) {
	v, ok, err := n.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("kvstore: %s is not an integer: %w", key, err)
	}
	return i, true, nil
}

// SetInt stores i under key in base 10.
func (n *Namespaced) SetInt(ctx context.Context, key string, i int64) error {
	return n.Set(ctx, key, strconv.FormatInt(i, 10))
}
