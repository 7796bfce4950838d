// Package cache stores rendered responses so that repeated requests with a
// fixed seed skip the handwriting engine.
//
// Three backends implement [Cache]: [NullCache] (caching disabled),
// [FileCache] (a directory of hash-sharded JSON files, used by the CLI and
// single-node servers) and [RedisCache] (shared between server replicas).
//
// Keys are built by a [Keyer] so that every caller agrees on the layout:
//
//	k := cache.NewDefaultKeyer()
//	key := k.RenderKey(cache.Hash([]byte(text)), params.Hash(), "png")
//	data, ok, err := c.Get(ctx, key)
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value stored under key. A miss is reported with
	// ok=false and a nil error.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Keyer builds cache keys.
type Keyer interface {
	// RenderKey returns the key for a rendered response identified by the
	// hash of its text, the hash of its parameters and the output format.
	RenderKey(textHash, paramsHash, format string) string
}

// DefaultKeyer builds unprefixed keys of the form "render:<sha256>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// RenderKey implements Keyer.
func (DefaultKeyer) RenderKey(textHash, paramsHash, format string) string {
	return hashKey("render", textHash, paramsHash, format)
}
