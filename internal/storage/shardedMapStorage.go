package storage

import (
	"context"
	"errors"
	"io"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// ShardedMapStorage is the in-process memory engine,
// divided into segments (shards) to reduce contention for locking
type ShardedMapStorage struct {
	shards    []*MapStorage
	shardMask uint64
	closed    bool
	mu        sync.RWMutex // protects closed, held exclusively by cross-shard operations
}

// NewShardedMapStorage creates a new instance of ShardedMapStorage.
// The requestedShards parameter must be a power of two for efficient allocation.
// The maximum allowed number of shards is 64.
func NewShardedMapStorage(requestedShards uint) (*ShardedMapStorage, error) {
	if bits.OnesCount(requestedShards) != 1 {
		return nil, errors.New("requested shards must be a power of 2")
	}

	if requestedShards > 64 {
		return nil, errors.New("requested shards must be less or equal than 64")
	}

	s := &ShardedMapStorage{
		shards:    make([]*MapStorage, requestedShards),
		shardMask: uint64(requestedShards - 1),
	}

	for i := range s.shards {
		s.shards[i] = NewMapStorage()
	}

	return s, nil
}

// Name returns the engine kind
func (s *ShardedMapStorage) Name() string {
	return "memory"
}

// getShardIndex returns index of shard by key
func (s *ShardedMapStorage) getShardIndex(key string) uint64 {
	return xxhash.Sum64String(key) & s.shardMask
}

func (s *ShardedMapStorage) shard(key string) (*MapStorage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.shards[s.getShardIndex(key)], nil
}

// Get returns the value and true if the key is found
func (s *ShardedMapStorage) Get(key []byte) ([]byte, bool, error) {
	sh, err := s.shard(string(key))
	if err != nil {
		return nil, false, err
	}
	val, ok := sh.Get(string(key))
	return val, ok, nil
}

// Set writes the value
func (s *ShardedMapStorage) Set(key, value []byte, ttl time.Duration) error {
	sh, err := s.shard(string(key))
	if err != nil {
		return err
	}
	sh.Set(string(key), value, ttl)
	return nil
}

// Delete deletes the key. Returns true if the key existed and was deleted
func (s *ShardedMapStorage) Delete(key []byte) (bool, error) {
	sh, err := s.shard(string(key))
	if err != nil {
		return false, err
	}
	return sh.Delete(string(key)), nil
}

// Rename moves key to newKey with its expiration, locking both shards
func (s *ShardedMapStorage) Rename(key, newKey []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	src := s.shards[s.getShardIndex(string(key))]
	dst := s.shards[s.getShardIndex(string(newKey))]

	src.mu.Lock()
	defer src.mu.Unlock()
	if dst != src {
		dst.mu.Lock()
		defer dst.mu.Unlock()
	}

	if src.evictLocked(string(key), time.Now().UnixNano()) {
		return false, nil
	}
	val, ok := src.data[string(key)]
	if !ok {
		return false, nil
	}
	exp, hasExp := src.expires[string(key)]

	delete(src.data, string(key))
	delete(src.expires, string(key))

	dst.data[string(newKey)] = val
	if hasExp {
		dst.expires[string(newKey)] = exp
	} else {
		delete(dst.expires, string(newKey))
	}
	return true, nil
}

// Expiry returns the remaining lifetime and status as ExpiryStatus
func (s *ShardedMapStorage) Expiry(key []byte) (time.Duration, ExpiryStatus, error) {
	sh, err := s.shard(string(key))
	if err != nil {
		return 0, ExpNotFound, err
	}
	d, st := sh.Expiry(string(key))
	return d, st, nil
}

// Expire sets the lifetime of an existing key
func (s *ShardedMapStorage) Expire(key []byte, ttl time.Duration) (bool, error) {
	sh, err := s.shard(string(key))
	if err != nil {
		return false, err
	}
	return sh.Expire(string(key), ttl), nil
}

// Persist removes the expiration date of the key, making it eternal
func (s *ShardedMapStorage) Persist(key []byte) (bool, error) {
	sh, err := s.shard(string(key))
	if err != nil {
		return false, err
	}
	return sh.Persist(string(key)), nil
}

// Keys calls fn for the live keys of every shard in ascending byte order
func (s *ShardedMapStorage) Keys(fn func(key []byte) bool) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	var keys []string
	for _, sh := range s.shards {
		keys = append(keys, sh.Keys()...)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		if !fn([]byte(key)) {
			break
		}
	}
	return nil
}

// Count returns the number of live keys
func (s *ShardedMapStorage) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int64
	for _, sh := range s.shards {
		n += int64(sh.Len())
	}
	return n, nil
}

// Flush deletes every key of every shard
func (s *ShardedMapStorage) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	for _, sh := range s.shards {
		sh.Flush()
	}
	return nil
}

// Close marks the engine closed. Data is kept until garbage collected
func (s *ShardedMapStorage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// DeleteExpired randomly selects a limit of keys from each shard and delete if his TTL has expired
func (s *ShardedMapStorage) DeleteExpired(limit int) float64 {
	var wg sync.WaitGroup
	var totalRatio float64
	var mu sync.Mutex // protects totalRatio

	shardCount := len(s.shards)
	wg.Add(shardCount)

	for _, shard := range s.shards {
		go func(m *MapStorage) {
			ratio := m.DeleteExpired(limit)

			mu.Lock()
			totalRatio += ratio
			mu.Unlock()

			wg.Done()
		}(shard)
	}

	wg.Wait()

	return totalRatio / float64(shardCount)
}

// RunExpiration triggers the active expiration mechanism until ctx is done.
// A round whose expired ratio exceeds threshold is repeated immediately
func (s *ShardedMapStorage) RunExpiration(ctx context.Context, interval time.Duration, samples int, threshold float64, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				ratio := s.DeleteExpired(samples)
				if ratio > 0 && log.Core().Enabled(zap.DebugLevel) {
					log.Debug("expired keys deleted", zap.Float64("expired_ratio", ratio))
				}
				if ratio <= threshold || ctx.Err() != nil {
					break
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Snapshot iterates over all shards sequentially to minimize locking time
func (s *ShardedMapStorage) Snapshot(w io.Writer) error {
	for _, shard := range s.shards {
		if err := shard.Snapshot(w); err != nil {
			return err
		}
	}
	return nil
}

// Restore reads a Snapshot stream and fills the shards. Expired records are skipped
func (s *ShardedMapStorage) Restore(r io.Reader) error {
	now := time.Now().UnixNano()
	return readSnapshot(r, func(rec snapshotRecord) {
		if expired(rec.expireAt, now) {
			return
		}

		targetShard := s.shards[s.getShardIndex(rec.key)]
		targetShard.mu.Lock()
		targetShard.data[rec.key] = rec.value
		if rec.expireAt > 0 {
			targetShard.expires[rec.key] = rec.expireAt
		}
		targetShard.mu.Unlock()
	})
}
