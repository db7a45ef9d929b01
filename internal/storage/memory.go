package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MemoryOptions configures the memory engine
type MemoryOptions struct {
	Shards uint
	// Snapshot is the file the engine is loaded from and saved to on Close, empty for none
	Snapshot string
	// GCInterval enables the active expiration loop when positive
	GCInterval  time.Duration
	GCSamples   int
	GCThreshold float64
}

// Memory is the memory engine with its optional snapshot file and expiration loop
type Memory struct {
	*ShardedMapStorage
	snapshot *SnapshotFile
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// OpenMemory creates a memory engine, restoring the snapshot when configured
func OpenMemory(opts MemoryOptions, logger *zap.Logger) (*Memory, error) {
	if opts.Shards == 0 {
		opts.Shards = 16
	}

	db, err := NewShardedMapStorage(opts.Shards)
	if err != nil {
		return nil, err
	}

	m := &Memory{ShardedMapStorage: db, logger: logger}

	if opts.Snapshot != "" {
		m.snapshot = NewSnapshotFile(opts.Snapshot, logger)
		if err := m.snapshot.Load(db); err != nil {
			return nil, err
		}
	}

	if opts.GCInterval > 0 {
		if opts.GCSamples <= 0 {
			opts.GCSamples = 20
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.done = make(chan struct{})
		go func() {
			defer close(m.done)
			db.RunExpiration(ctx, opts.GCInterval, opts.GCSamples, opts.GCThreshold, logger)
		}()
	}

	return m, nil
}

// Close stops the expiration loop and saves the snapshot
func (m *Memory) Close() error {
	if m.cancel != nil {
		m.cancel()
		<-m.done
		m.cancel = nil
	}

	if m.snapshot != nil {
		if err := m.snapshot.Save(m.ShardedMapStorage); err != nil {
			m.logger.Error("snapshot save failed", zap.Error(err))
			return err
		}
	}

	return m.ShardedMapStorage.Close()
}
