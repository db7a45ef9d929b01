package core

import "bytes"

// Key is an opaque byte sequence identifying an entry
type Key []byte

// MakeKey construct Key from string
func MakeKey(s string) Key {
	return Key(s)
}

// Equal reports whether both keys hold the same bytes
func (k Key) Equal(other Key) bool {
	return bytes.Equal(k, other)
}

// String returns the key bytes as a string
func (k Key) String() string {
	return string(k)
}

// NoTTL means that a key has no expiration
const NoTTL int64 = 0

// NKey is a key plus an optional time to live in seconds.
// A TTL that was never resolved is different from a known NoTTL
type NKey struct {
	key    Key
	ttl    int64
	hasTTL bool
}

// NewNKey creates a key descriptor without TTL information
func NewNKey(key Key) NKey {
	return NKey{key: key}
}

// NewNKeyTTL creates a key descriptor with a known TTL
func NewNKeyTTL(key Key, ttl int64) NKey {
	k := NKey{key: key}
	k.SetTTL(ttl)
	return k
}

// Key returns the raw key
func (k NKey) Key() Key {
	return k.key
}

// SetKey replaces the raw key bytes
func (k *NKey) SetKey(key Key) {
	k.key = key
}

// TTL returns the time to live in seconds and whether it is known.
// NoTTL with true means the key never expires
func (k NKey) TTL() (int64, bool) {
	return k.ttl, k.hasTTL
}

// SetTTL records the time to live. Negative values are stored as NoTTL
func (k *NKey) SetTTL(ttl int64) {
	if ttl < 0 {
		ttl = NoTTL
	}
	k.ttl = ttl
	k.hasTTL = true
}

// ClearTTL forgets the TTL information
func (k *NKey) ClearTTL() {
	k.ttl = 0
	k.hasTTL = false
}

// KeyValue is a key descriptor with its value. It is the unit exchanged
// between drivers and translators
type KeyValue struct {
	Key   NKey
	Value Value
}

// NewKeyValue creates a KeyValue pair
func NewKeyValue(key NKey, value Value) KeyValue {
	return KeyValue{Key: key, Value: value}
}

// ValueString renders the value for command text
func (kv KeyValue) ValueString() string {
	return kv.Value.Render(" ")
}
