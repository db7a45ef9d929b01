package backends

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eternalApril/moonview/internal/backend/local"
	"github.com/eternalApril/moonview/internal/backend/memcached"
	"github.com/eternalApril/moonview/internal/backend/redis"
	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/config"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/driver"
	"github.com/eternalApril/moonview/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpen_EmbeddedEngines(t *testing.T) {
	dir := t.TempDir()
	cfgs := []config.ConnectionConfig{
		{Name: "mem", Type: config.TypeMemory, Shards: 4},
		{Name: "level", Type: config.TypeLevelDB, InMemory: true},
		{Name: "bolt", Type: config.TypeBolt, Path: filepath.Join(dir, "bolt.db")},
		{Name: "badger", Type: config.TypeBadger, InMemory: true},
	}

	for _, cfg := range cfgs {
		t.Run(cfg.Name, func(t *testing.T) {
			b, err := Open(cfg, zap.NewNop(), nil)
			require.NoError(t, err)
			assert.NotEmpty(t, b.Help())

			d, err := b.NewDriver()
			require.NoError(t, err)
			require.NoError(t, d.Connect(context.Background()))
			defer d.Disconnect() //nolint:errcheck

			ctx := context.Background()
			_, err = d.ExecuteRequest(ctx, driver.Request{
				Kind:  driver.CreateKey,
				Key:   core.NewNKey(core.MakeKey("k")),
				Value: core.MakeString("v"),
			})
			require.NoError(t, err)

			resp, err := d.ExecuteRequest(ctx, driver.Request{Kind: driver.LoadKey, Key: core.NewNKey(core.MakeKey("k"))})
			require.NoError(t, err)
			assert.Equal(t, "v", resp.KeyValue.Value.String())

			resp, err = d.ExecuteRequest(ctx, driver.Request{Kind: driver.LoadKeyspacePage})
			require.NoError(t, err)
			require.Len(t, resp.Page.Keys, 1)
			assert.Equal(t, int64(1), resp.Page.Total)
		})
	}
}

func TestOpen_RemoteBackendsAreLazy(t *testing.T) {
	for _, cfg := range []config.ConnectionConfig{
		{Name: "r", Type: config.TypeRedis, Address: "127.0.0.1:1"},
		{Name: "m", Type: config.TypeMemcached, Address: "127.0.0.1:1"},
	} {
		b, err := Open(cfg, zap.NewNop(), nil)
		require.NoError(t, err, cfg.Name)
		assert.False(t, b.Conn.IsConnected())
		assert.Equal(t, cfg.Type, b.Translator.Name())
	}
}

func TestOpen_Invalid(t *testing.T) {
	_, err := Open(config.ConnectionConfig{Name: "x", Type: "mongo"}, zap.NewNop(), nil)
	assert.Error(t, err)

	_, err = Open(config.ConnectionConfig{Name: "x", Type: config.TypeRedis}, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestOpenAll(t *testing.T) {
	cfgs := []config.ConnectionConfig{
		{Name: "a", Type: config.TypeMemory, Shards: 2},
		{Name: "b", Type: config.TypeMemory, Shards: 2},
		{Name: "c", Type: config.TypeLevelDB, InMemory: true},
	}

	all, err := OpenAll(context.Background(), cfgs, zap.NewNop(), nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, b := range all {
		assert.Equal(t, cfgs[i].Name, b.Config.Name)
		assert.True(t, b.Conn.IsConnected())
		require.NoError(t, b.Conn.Disconnect())
	}
}

func TestOpenAll_FailureClosesOthers(t *testing.T) {
	cfgs := []config.ConnectionConfig{
		{Name: "ok", Type: config.TypeMemory, Shards: 2},
		{Name: "down", Type: config.TypeMemcached, Address: "127.0.0.1:1", CommandTimeout: 200 * time.Millisecond},
	}

	all, err := OpenAll(context.Background(), cfgs, zap.NewNop(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.Nil(t, all)
}

// checkArity runs every descriptor of table one argument below its minimum and
// one above its maximum. The target is a nil session, so a handler reaching
// the backend would panic
func checkArity[T any](t *testing.T, table *command.Table[T]) {
	t.Helper()
	d := command.NewDispatcher(table)
	var target T

	for _, desc := range table.Descriptors() {
		var counts []int
		if desc.MinArgs > 0 {
			counts = append(counts, desc.MinArgs-1)
		}
		if desc.MaxArgs != core.Unbounded {
			counts = append(counts, desc.MaxArgs+1)
		}

		for _, n := range counts {
			line := desc.Name + strings.Repeat(" arg", n)
			root := result.NewRoot(line)

			err := d.Execute(context.Background(), target, line, root)
			var arity *core.ArityError
			require.ErrorAs(t, err, &arity, line)
			assert.Equal(t, desc.Name, arity.Name, line)
			assert.Equal(t, n, arity.Got, line)
			assert.Empty(t, root.Children(), line)
		}
	}
}

func TestTables_ArityIsCheckedBeforeIO(t *testing.T) {
	t.Run("redis", func(t *testing.T) { checkArity(t, redis.NewTable()) })
	t.Run("memcached", func(t *testing.T) { checkArity(t, memcached.NewTable()) })
	for _, name := range []string{config.TypeMemory, config.TypeLevelDB, config.TypeBolt, config.TypeBadger} {
		t.Run(name, func(t *testing.T) { checkArity(t, local.NewTable(name)) })
	}
}

func TestTranslators_LoadKeyIsALoadCommand(t *testing.T) {
	cfgs := []config.ConnectionConfig{
		{Name: "redis", Type: config.TypeRedis, Address: "127.0.0.1:1"},
		{Name: "memcached", Type: config.TypeMemcached, Address: "127.0.0.1:1"},
		{Name: "memory", Type: config.TypeMemory, Shards: 2},
		{Name: "leveldb", Type: config.TypeLevelDB, InMemory: true},
		{Name: "bolt", Type: config.TypeBolt, Path: filepath.Join(t.TempDir(), "bolt.db")},
		{Name: "badger", Type: config.TypeBadger, InMemory: true},
	}
	hints := []core.ValueType{
		core.TypeNull, core.TypeString, core.TypeArray, core.TypeSet,
		core.TypeZSet, core.TypeHash, core.TypeStream,
	}

	for _, cfg := range cfgs {
		t.Run(cfg.Name, func(t *testing.T) {
			b, err := Open(cfg, zap.NewNop(), nil)
			require.NoError(t, err)
			tr := b.Translator

			for _, name := range []string{"k", "a b", "quote\"d"} {
				key := core.NewNKey(core.MakeKey(name))

				for _, hint := range hints {
					line, err := tr.LoadKeyCommand(key, hint)
					require.NoError(t, err)
					assert.True(t, tr.IsLoadCommandLine(line), line)
					assert.True(t, b.Conn.IsReadOnly(line), line)
				}

				line, err := tr.DeleteKeyCommand(key)
				require.NoError(t, err)
				assert.False(t, tr.IsLoadCommandLine(line), line)
				assert.False(t, b.Conn.IsReadOnly(line), line)
			}
		})
	}
}
