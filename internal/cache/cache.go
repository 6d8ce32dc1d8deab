// Package cache provides a short-lived hot layer in front of the durable
// store. It holds marshalled records so repeated reads of the same key skip
// the database; freshness policy is still decided from the record's own
// updated_at, never from this layer's TTL.
package cache

import (
	"context"
	"time"
)

// RecordCache is a simple JSON key-value cache. Get reports whether the key
// was present; a miss is not an error.
type RecordCache interface {
	// GetJSON retrieves and unmarshals a cached value into dest.
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)

	// SetJSON marshals and stores a value with a TTL.
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DefaultTTL is how long a hot-layer entry is served before falling back to
// the store. Kept deliberately short: the store row, not this layer, is the
// source of truth for staleness.
const DefaultTTL = 60 * time.Second

// Cache key patterns for consistent naming.
const (
	TokenRecordKeyPattern      = "token-record:%s:%s" // token-record:0x123...:42
	CollectionRecordKeyPattern = "collection-record:%s"
)
