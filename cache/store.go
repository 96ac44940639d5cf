// Package cache provides persistent response caching for provider calls.
//
// Information Hiding:
// - Key derivation (normalization + hashing) is internal to Key
// - Expiry is enforced lazily on read; callers never see stale entries
// - Backing store details hidden behind the Store interface
package cache

// Store is a persistent key-value store with per-entry expiry.
type Store interface {
	// Get returns the cached value for key, or ok=false if absent or expired.
	Get(key string) (value string, ok bool, err error)

	// Set stores value under key with the given TTL in seconds.
	Set(key, value string, ttlSeconds int) error

	// Delete removes an entry if present.
	Delete(key string) error

	// Close releases the underlying store.
	Close() error
}
