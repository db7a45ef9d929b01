package storage

import (
	"bytes"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMapStorage_Concurrency(t *testing.T) {
	s := NewMapStorage()
	const workers = 50
	const opsPerWorker = 10000

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			for j := 0; j < opsPerWorker; j++ {
				key := fmt.Sprintf("key-%d", r.Intn(50))
				val := []byte(fmt.Sprintf("val-%d", j))

				switch r.Intn(4) {
				case 0:
					s.Set(key, val, 0)
				case 1:
					s.Get(key)
				case 2:
					s.Delete(key)
				case 3:
					s.Expire(key, time.Minute)
				}
			}
		}(i)
	}

	wg.Wait()
}

func TestMapStorage_LazyExpiration(t *testing.T) {
	s := NewMapStorage()
	s.Set("k", []byte("v"), time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	_, ok := s.Get("k")
	assert.False(t, ok)
	_, st := s.Expiry("k")
	assert.Equal(t, ExpNotFound, st)
	assert.Equal(t, 0, s.Len())
}

func TestMapStorage_DeleteExpired(t *testing.T) {
	s := NewMapStorage()
	for i := 0; i < 10; i++ {
		s.Set(fmt.Sprintf("k%d", i), []byte("v"), time.Nanosecond)
	}
	s.Set("keep", []byte("v"), time.Hour)

	time.Sleep(time.Millisecond)

	ratio := s.DeleteExpired(100)
	assert.Greater(t, ratio, 0.0)
	assert.Equal(t, []string{"keep"}, s.Keys())
}

func TestShardedMapStorage_InvalidShards(t *testing.T) {
	_, err := NewShardedMapStorage(3)
	assert.Error(t, err)
	_, err = NewShardedMapStorage(128)
	assert.Error(t, err)
}

func TestShardedMapStorage_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.snap")
	log := zap.NewNop()

	m, err := OpenMemory(MemoryOptions{Shards: 4, Snapshot: path}, log)
	require.NoError(t, err)
	require.NoError(t, m.Set([]byte("a"), []byte("1"), 0))
	require.NoError(t, m.Set([]byte("b"), []byte("2"), time.Hour))
	require.NoError(t, m.Set([]byte("gone"), []byte("3"), time.Nanosecond))
	require.NoError(t, m.Close())

	restored, err := OpenMemory(MemoryOptions{Shards: 8, Snapshot: path}, log)
	require.NoError(t, err)
	defer restored.Close() //nolint:errcheck

	v, ok, err := restored.Get([]byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	_, st, err := restored.Expiry([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, ExpActive, st)

	n, err := restored.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemory_ExpirationLoop(t *testing.T) {
	m, err := OpenMemory(MemoryOptions{Shards: 2, GCInterval: time.Millisecond, GCSamples: 10}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Set([]byte("k"), []byte("v"), time.Millisecond))

	assert.Eventually(t, func() bool {
		sh := m.shards[m.getShardIndex("k")]
		sh.mu.RLock()
		defer sh.mu.RUnlock()
		_, ok := sh.data["k"]
		return !ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	_, _, err = m.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
}

func FuzzMapStorage(f *testing.F) {
	s := NewMapStorage()

	f.Add("key1", []byte("val1"))
	f.Add("special", []byte("!@#$%^&*()"))

	f.Fuzz(func(t *testing.T, key string, val []byte) {
		s.Set(key, val, 0)

		v, ok := s.Get(key)
		if !ok || !bytes.Equal(v, val) {
			t.Errorf("Get failed after Set: key=%q, val=%q", key, val)
		}
	})
}
