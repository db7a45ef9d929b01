package storage

import (
	"encoding/binary"
	"io"
	"sync"
	"time"
)

// MapStorage is one thread-safe shard of the memory engine
type MapStorage struct {
	data    map[string][]byte // key - value
	expires map[string]int64  // key - expires time nanoseconds
	mu      sync.RWMutex
}

// NewMapStorage creates a new instance of MapStorage
func NewMapStorage() *MapStorage {
	return &MapStorage{
		data:    make(map[string][]byte),
		expires: make(map[string]int64),
	}
}

// Get returns the value and true if the key is found. Otherwise, nil, false
func (m *MapStorage) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	exp, hasExp := m.expires[key]
	val, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if hasExp && time.Now().UnixNano() > exp {
		m.mu.Lock()
		defer m.mu.Unlock()

		// checking again, can be changed while waiting for the lock
		if m.evictLocked(key, time.Now().UnixNano()) {
			return nil, false
		}

		val, ok = m.data[key]
		return val, ok
	}

	return val, true
}

// Set writes the value, a zero ttl removes any existing expiration
func (m *MapStorage) Set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	if ttl <= 0 {
		delete(m.expires, key)
		return
	}
	m.expires[key] = deadline(ttl)
}

// Delete deletes the key. Returns true if the key existed and was deleted
func (m *MapStorage) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.evictLocked(key, time.Now().UnixNano()) {
		return false
	}
	if _, ok := m.data[key]; ok {
		delete(m.data, key)
		delete(m.expires, key)
		return true
	}
	return false
}

// Expiry returns the remaining lifetime and status as ExpiryStatus
func (m *MapStorage) Expiry(key string) (time.Duration, ExpiryStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UnixNano()
	if m.evictLocked(key, now) {
		return 0, ExpNotFound
	}

	if _, ok := m.data[key]; !ok {
		return 0, ExpNotFound
	}

	exp, hasExp := m.expires[key]
	if !hasExp {
		return 0, ExpNoTimeout
	}

	return time.Duration(exp - now), ExpActive
}

// Expire sets the lifetime of an existing key
func (m *MapStorage) Expire(key string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.evictLocked(key, time.Now().UnixNano()) {
		return false
	}
	if _, ok := m.data[key]; !ok {
		return false
	}

	if ttl <= 0 {
		delete(m.data, key)
		delete(m.expires, key)
		return true
	}
	m.expires[key] = deadline(ttl)
	return true
}

// Persist removes the expiration date of the key, making it eternal.
// Returns true if successful, false if the key was not found or had no TTL
func (m *MapStorage) Persist(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.evictLocked(key, time.Now().UnixNano()) {
		return false
	}

	_, ok := m.data[key]
	_, hasExp := m.expires[key]
	if !ok || !hasExp {
		return false
	}

	delete(m.expires, key)
	return true
}

// Keys returns the live keys of the shard in no particular order
func (m *MapStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UnixNano()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if exp, hasExp := m.expires[key]; hasExp && now > exp {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of live keys of the shard
func (m *MapStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UnixNano()
	n := len(m.data)
	for _, exp := range m.expires {
		if now > exp {
			n--
		}
	}
	return n
}

// Flush deletes every key of the shard
func (m *MapStorage) Flush() {
	m.mu.Lock()
	m.data = make(map[string][]byte)
	m.expires = make(map[string]int64)
	m.mu.Unlock()
}

// DeleteExpired randomly selects a limit of keys and deletes them if their TTL has expired.
// Returns the ratio of expired keys among the checked ones
func (m *MapStorage) DeleteExpired(limit int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.expires) == 0 {
		return 0.0
	}

	checked := 0
	expired := 0
	now := time.Now().UnixNano()

	// go map iteration is randomized by design
	for key, expTime := range m.expires {
		checked++
		if now > expTime {
			delete(m.data, key)
			delete(m.expires, key)
			expired++
		}

		if checked >= limit {
			break
		}
	}

	return float64(expired) / float64(checked)
}

// evictLocked removes key if it has expired. Caller holds the write lock
func (m *MapStorage) evictLocked(key string, now int64) bool {
	exp, hasExp := m.expires[key]
	if !hasExp || now <= exp {
		return false
	}
	delete(m.data, key)
	delete(m.expires, key)
	return true
}

// Snapshot serializes the shard data in Writer
func (m *MapStorage) Snapshot(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	header := make([]byte, 16)

	for key, value := range m.data {
		exp := m.expires[key]

		binary.LittleEndian.PutUint32(header[0:4], uint32(len(key)))
		binary.LittleEndian.PutUint32(header[4:8], uint32(len(value)))
		binary.LittleEndian.PutUint64(header[8:16], uint64(exp))

		if _, err := w.Write(header); err != nil {
			return err
		}
		if _, err := io.WriteString(w, key); err != nil {
			return err
		}
		if _, err := w.Write(value); err != nil {
			return err
		}
	}

	return nil
}

// snapshotRecord is one key read back by readSnapshot
type snapshotRecord struct {
	key      string
	value    []byte
	expireAt int64
}

// readSnapshot decodes a stream written by Snapshot, calling fn per record
func readSnapshot(r io.Reader, fn func(rec snapshotRecord)) error {
	header := make([]byte, 16)

	for {
		_, err := io.ReadFull(r, header)
		if err == io.EOF {
			return nil // end of stream
		}
		if err != nil {
			return err
		}

		keyLen := binary.LittleEndian.Uint32(header[0:4])
		valueLen := binary.LittleEndian.Uint32(header[4:8])
		exp := int64(binary.LittleEndian.Uint64(header[8:16]))

		keyBuf := make([]byte, keyLen)
		if _, err := io.ReadFull(r, keyBuf); err != nil {
			return err
		}

		valBuf := make([]byte, valueLen)
		if _, err := io.ReadFull(r, valBuf); err != nil {
			return err
		}

		fn(snapshotRecord{key: string(keyBuf), value: valBuf, expireAt: exp})
	}
}
