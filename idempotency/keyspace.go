// Package idempotency deduplicates side effects by a caller-supplied key.
//
// Uniqueness is enforced by the backing store at insert time. A Keyspace
// never locks: when two first-time requests race, the loser's insert fails
// with a conflict and the winner's record is read back as a replay.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned by Cache implementations when no entry exists.
var ErrCacheMiss = errors.New("idempotency: cache miss")

// Cache is an optional fast path in front of the store. Entries are
// advisory; the store stays authoritative.
type Cache interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
}

// Keyspace binds one dedup key (relay idempotency key, telemetry event id)
// to its store lookup and error classification.
type Keyspace[T any] struct {
	// Name namespaces cache entries and error messages.
	Name string

	// Find loads the record owning key.
	Find func(ctx context.Context, key string) (T, error)

	// IsAbsent reports whether a Find error means no record exists.
	IsAbsent func(error) bool

	// IsConflict reports whether an insert error is a uniqueness violation.
	IsConflict func(error) bool

	// Cache, when set, is consulted before Find. Only values accepted by
	// Cacheable are written to it.
	Cache     Cache
	CacheTTL  time.Duration
	Cacheable func(T) bool

	// OnCacheError observes cache failures, which never fail a lookup.
	OnCacheError func(error)
}

// Lookup reports the record already recorded for key, if any.
func (k Keyspace[T]) Lookup(ctx context.Context, key string) (T, bool, error) {
	var zero T

	if v, ok := k.cached(ctx, key); ok {
		return v, true, nil
	}

	v, err := k.Find(ctx, key)
	if err != nil {
		if k.IsAbsent(err) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("idempotency: %s lookup: %w", k.Name, err)
	}

	k.remember(ctx, key, v)
	return v, true, nil
}

// Claim returns the existing record for key, or runs insert to create it.
// replayed is true whenever the returned record was created by an earlier
// or concurrent request.
func (k Keyspace[T]) Claim(ctx context.Context, key string, insert func(ctx context.Context) (T, error)) (rec T, replayed bool, err error) {
	var zero T

	existing, ok, err := k.Lookup(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if ok {
		return existing, true, nil
	}

	created, err := insert(ctx)
	if err == nil {
		return created, false, nil
	}
	if !k.IsConflict(err) {
		return zero, false, err
	}

	winner, ok, lerr := k.Lookup(ctx, key)
	if lerr != nil {
		return zero, false, lerr
	}
	if !ok {
		return zero, false, err
	}
	return winner, true, nil
}

// Remember writes v to the cache if it is cacheable. Callers use it after
// a record reaches a state worth serving from the cache.
func (k Keyspace[T]) Remember(ctx context.Context, key string, v T) {
	k.remember(ctx, key, v)
}

func (k Keyspace[T]) cached(ctx context.Context, key string) (T, bool) {
	var zero T
	if k.Cache == nil {
		return zero, false
	}

	data, err := k.Cache.Get(ctx, k.Name, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			k.cacheError(err)
		}
		return zero, false
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		k.cacheError(fmt.Errorf("idempotency: decode %s entry: %w", k.Name, err))
		return zero, false
	}
	return v, true
}

func (k Keyspace[T]) remember(ctx context.Context, key string, v T) {
	if k.Cache == nil || (k.Cacheable != nil && !k.Cacheable(v)) {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		k.cacheError(fmt.Errorf("idempotency: encode %s entry: %w", k.Name, err))
		return
	}
	if err := k.Cache.Set(ctx, k.Name, key, data, k.CacheTTL); err != nil {
		k.cacheError(err)
	}
}

func (k Keyspace[T]) cacheError(err error) {
	if k.OnCacheError != nil {
		k.OnCacheError(err)
	}
}
