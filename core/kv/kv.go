// Package kv implements the namespaced, TTL-capable KV Store
// behind a pluggable Driver: in-memory (default), Redis (durable), and a
// JSON-file driver for the local runner.
package kv

import (
	"context"
	"time"
)

// Entry is one stored value plus its optional absolute expiry instant.
type Entry struct {
	Value     []byte
	ExpiresAt *time.Time // nil = no expiry
}

// Expired reports whether e has an expiry that has passed as of now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Driver is the pluggable backing store, scoped externally by namespace.
// Every method is namespace-qualified by the caller composing keys as
// "namespace\x00key" — see Store, which owns that composition so drivers
// stay simple flat key-value maps.
type Driver interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	ClearPrefix(ctx context.Context, prefix string) error
	Close() error
}

const nsSeparator = "\x00"

// Store is the namespaced KV API exposed to the sandbox's `kv` global
//. One Store per invocation namespace; Namespace composes keys
// against a shared Driver so multiple namespaces can share one backing
// store without colliding.
type Store struct {
	driver    Driver
	namespace string
}

// New returns a Store scoped to namespace, backed by driver.
func New(driver Driver, namespace string) *Store {
	return &Store{driver: driver, namespace: namespace}
}

func (s *Store) qualify(key string) string {
	return s.namespace + nsSeparator + key
}

// Get returns the value for k, or (nil, false) if absent or expired.
func (s *Store) Get(ctx context.Context, k string) ([]byte, bool, error) {
	entry, ok, err := s.driver.Get(ctx, s.qualify(k))
	if err != nil || !ok {
		return nil, false, err
	}
	if entry.Expired(time.Now()) {
		_ = s.driver.Delete(ctx, s.qualify(k))
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Has reports whether Get(k) would return a non-expired entry right now.
func (s *Store) Has(ctx context.Context, k string) (bool, error) {
	_, ok, err := s.Get(ctx, k)
	return ok, err
}

// Set stores value under k, optionally expiring after ttl (0 = no expiry).
func (s *Store) Set(ctx context.Context, k string, value []byte, ttl time.Duration) error {
	entry := Entry{Value: value}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		entry.ExpiresAt = &exp
	}
	return s.driver.Set(ctx, s.qualify(k), entry)
}

// Delete removes k, if present.
func (s *Store) Delete(ctx context.Context, k string) error {
	return s.driver.Delete(ctx, s.qualify(k))
}

// Clear removes every key in this namespace only.
func (s *Store) Clear(ctx context.Context) error {
	return s.driver.ClearPrefix(ctx, s.namespace+nsSeparator)
}

// Keys returns every (non-expired) key currently stored in this namespace.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	prefix := s.namespace + nsSeparator
	raw, err := s.driver.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		entry, ok, err := s.driver.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok || entry.Expired(now) {
			continue
		}
		out = append(out, k[len(prefix):])
	}
	return out, nil
}
