package storage

import (
	"errors"
	"time"
)

type ExpiryStatus int

const (
	// ExpNotFound means that the key does not exist
	ExpNotFound ExpiryStatus = -2
	// ExpNoTimeout means that the key exists, but it does not have a TTL
	ExpNoTimeout ExpiryStatus = -1
	// ExpActive means that the key has an active lifetime
	ExpActive ExpiryStatus = 1
)

// ErrClosed is returned by engines used after Close
var ErrClosed = errors.New("storage: engine closed")

// Engine is a common interface for the embedded key-value engines.
// Keys and values are opaque byte strings. Expired keys are never visible
type Engine interface {
	// Name returns the engine kind ("memory", "leveldb", "bolt", "badger")
	Name() string

	// Get returns the value and true if the key is found
	Get(key []byte) ([]byte, bool, error)

	// Set writes the value. A zero ttl stores the key without expiration
	Set(key, value []byte, ttl time.Duration) error

	// Delete deletes the key. Returns true if the key existed
	Delete(key []byte) (bool, error)

	// Rename moves the value and expiration of key to newKey, overwriting it.
	// Returns false if key does not exist
	Rename(key, newKey []byte) (bool, error)

	// Expiry returns the remaining lifetime and status as ExpiryStatus
	Expiry(key []byte) (time.Duration, ExpiryStatus, error)

	// Expire sets the lifetime of an existing key. Returns false if key does not exist
	Expire(key []byte, ttl time.Duration) (bool, error)

	// Persist removes the expiration of the key.
	// Returns true if the key existed and had a TTL
	Persist(key []byte) (bool, error)

	// Keys calls fn for every live key in ascending byte order until fn returns false.
	// fn must not modify the engine
	Keys(fn func(key []byte) bool) error

	// Count returns the number of live keys
	Count() (int64, error)

	// Flush deletes every key
	Flush() error

	// Close releases the engine
	Close() error
}
