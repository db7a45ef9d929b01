// Package backends builds the connection, command table and translator of a
// configured endpoint
package backends

import (
	"context"
	"fmt"

	"github.com/eternalApril/moonview/internal/backend/local"
	"github.com/eternalApril/moonview/internal/backend/memcached"
	"github.com/eternalApril/moonview/internal/backend/redis"
	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/config"
	"github.com/eternalApril/moonview/internal/connection"
	"github.com/eternalApril/moonview/internal/driver"
	"github.com/eternalApril/moonview/internal/metrics"
	"github.com/eternalApril/moonview/internal/storage"
	"github.com/eternalApril/moonview/internal/translator"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Backend is one configured endpoint: its connection and the translator of its grammar.
// The backend specific session type stays behind driver.Conn
type Backend struct {
	Config     config.ConnectionConfig
	Conn       driver.Conn
	Translator *translator.Translator

	help []string
}

// Help returns the usage line of every command of the backend
func (b *Backend) Help() []string {
	return append([]string(nil), b.help...)
}

// NewDriver creates a driver on the backend connection
func (b *Backend) NewDriver(opts ...driver.Option) (*driver.Driver, error) {
	return driver.New(b.Conn, b.Translator, opts...)
}

// Open builds the backend of cfg. The connection is not established
func Open(cfg config.ConnectionConfig, log *zap.Logger, m *metrics.Metrics) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("connection %q: %w", cfg.Name, err)
	}

	log = log.With(zap.String("connection", cfg.Name))
	opts := []connection.Option{connection.WithLogger(log), connection.WithMetrics(m)}

	switch cfg.Type {
	case config.TypeRedis:
		s := redis.NewSession(goredis.Options{
			Addr:         cfg.Address,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.Database,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.CommandTimeout,
			WriteTimeout: cfg.CommandTimeout,
		}, log)
		table := redis.NewTable()
		return &Backend{
			Config:     cfg,
			Conn:       connection.New(cfg.Type, s, table, opts...),
			Translator: translator.New(redis.NewGrammar()),
			help:       summaries(table),
		}, nil

	case config.TypeMemcached:
		s := memcached.NewSession(cfg.Address, cfg.CommandTimeout, log)
		table := memcached.NewTable()
		return &Backend{
			Config:     cfg,
			Conn:       connection.New(cfg.Type, s, table, opts...),
			Translator: translator.New(memcached.NewGrammar()),
			help:       summaries(table),
		}, nil
	}

	open, err := opener(cfg, log)
	if err != nil {
		return nil, err
	}
	s := local.NewSession(cfg.Type, open, log)
	table := local.NewTable(cfg.Type)
	return &Backend{
		Config:     cfg,
		Conn:       connection.New(cfg.Type, s, table, opts...),
		Translator: translator.New(local.NewGrammar(cfg.Type)),
		help:       summaries(table),
	}, nil
}

// opener returns the engine constructor of an embedded backend
func opener(cfg config.ConnectionConfig, log *zap.Logger) (local.Opener, error) {
	switch cfg.Type {
	case config.TypeMemory:
		o := storage.MemoryOptions{Shards: cfg.Shards, Snapshot: cfg.Snapshot}
		if cfg.GC.Enabled {
			o.GCInterval = cfg.GC.Interval
			o.GCSamples = cfg.GC.SamplesPerCheck
			o.GCThreshold = cfg.GC.MatchThreshold
		}
		return func() (storage.Engine, error) {
			return storage.OpenMemory(o, log)
		}, nil

	case config.TypeLevelDB:
		return func() (storage.Engine, error) {
			if cfg.InMemory {
				return storage.OpenLevelDBMemory()
			}
			return storage.OpenLevelDB(cfg.Path, nil)
		}, nil

	case config.TypeBolt:
		bucket := cfg.Bucket
		if bucket == "" {
			bucket = storage.DefaultBucket
		}
		return func() (storage.Engine, error) {
			return storage.OpenBolt(cfg.Path, bucket)
		}, nil

	case config.TypeBadger:
		return func() (storage.Engine, error) {
			return storage.OpenBadger(storage.BadgerOptions{Path: cfg.Path, InMemory: cfg.InMemory}, log)
		}, nil
	}
	return nil, fmt.Errorf("connection %q: unknown type %q", cfg.Name, cfg.Type)
}

func summaries[S any](table *command.Table[S]) []string {
	ds := table.Descriptors()
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Summary
	}
	return out
}

// OpenAll opens and connects every endpoint concurrently, one goroutine per
// connection. On failure the connections already established are closed and
// the first error is returned
func OpenAll(ctx context.Context, cfgs []config.ConnectionConfig, log *zap.Logger, m *metrics.Metrics) ([]*Backend, error) {
	out := make([]*Backend, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)

	for i, cfg := range cfgs {
		g.Go(func() error {
			b, err := Open(cfg, log, m)
			if err != nil {
				return err
			}
			if err := b.Conn.Connect(gctx); err != nil {
				return fmt.Errorf("connection %q: %w", cfg.Name, err)
			}
			out[i] = b
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, b := range out {
			if b != nil {
				b.Conn.Disconnect() //nolint:errcheck
			}
		}
		return nil, err
	}
	return out, nil
}
