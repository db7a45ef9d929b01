package local

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/eternalApril/moonview/internal/backend"
	"github.com/eternalApril/moonview/internal/command"
	"github.com/eternalApril/moonview/internal/connection"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	"github.com/eternalApril/moonview/internal/storage"
	"github.com/eternalApril/moonview/internal/translator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newConnection(t *testing.T, open Opener) *connection.Connection[*Session] {
	t.Helper()
	s := NewSession("memory", open, zap.NewNop())
	c := connection.New("memory", s, NewTable("memory"))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Disconnect() }) //nolint:errcheck
	return c
}

func memoryOpener() (storage.Engine, error) {
	return storage.OpenMemory(storage.MemoryOptions{Shards: 4}, zap.NewNop())
}

func exec(t *testing.T, c *connection.Connection[*Session], line string) (core.Value, error) {
	t.Helper()
	root := result.NewRoot(line)
	err := c.Execute(context.Background(), line, root)
	v, _ := root.FirstValue()
	return v, err
}

func TestLocal_Commands(t *testing.T) {
	c := newConnection(t, memoryOpener)

	tests := []struct {
		line string
		want string
	}{
		{`SET "my key" "hello world"`, "OK"},
		{`GET "my key"`, "hello world"},
		{`EXISTS "my key" nope`, "1"},
		{`TYPE "my key"`, "string"},
		{`TYPE nope`, "none"},
		{`TTL "my key"`, "-1"},
		{`EXPIRE "my key" 100`, "1"},
		{`TTL "my key"`, "100"},
		{`PERSIST "my key"`, "1"},
		{`TTL nope`, "-2"},
		{`RENAME "my key" other`, "OK"},
		{`GET "my key"`, "(nil)"},
		{`MGET other nope`, "hello world (nil)"},
		{`DBKCOUNT`, "1"},
		{`DEL other nope`, "1"},
		{`PING`, "PONG"},
		{`FLUSHDB`, "OK"},
	}

	for _, tt := range tests {
		v, err := exec(t, c, tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, v.String(), tt.line)
	}
}

func TestLocal_BackendErrors(t *testing.T) {
	c := newConnection(t, memoryOpener)

	v, err := exec(t, c, "RENAME missing other")
	assert.ErrorIs(t, err, core.ErrBackend)
	assert.True(t, v.IsError())
	assert.Equal(t, "ERR no such key", v.String())

	_, err = exec(t, c, "SET k v PX 10")
	assert.ErrorIs(t, err, core.ErrBackend)

	_, err = exec(t, c, "EXPIRE k soon")
	assert.ErrorIs(t, err, core.ErrBackend)

	_, err = exec(t, c, "SCAN 0 COUNT 0")
	assert.ErrorIs(t, err, core.ErrBackend)
}

func TestLocal_ScanPages(t *testing.T) {
	c := newConnection(t, memoryOpener)

	for i := 0; i < 25; i++ {
		_, err := exec(t, c, fmt.Sprintf("SET key:%02d v", i))
		require.NoError(t, err)
	}
	_, err := exec(t, c, "SET other v")
	require.NoError(t, err)

	var (
		cursor uint64
		seen   []string
		pages  int
	)
	for {
		v, err := exec(t, c, fmt.Sprintf("SCAN %d MATCH key:* COUNT 10", cursor))
		require.NoError(t, err)

		next, keys, err := backend.ParseScanReply(v)
		require.NoError(t, err)
		for _, k := range keys {
			seen = append(seen, k.String())
		}
		pages++
		cursor = next
		if cursor == 0 {
			break
		}
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 25)
	assert.Equal(t, "key:00", seen[0])
	assert.Equal(t, "key:24", seen[24])
}

func TestLocal_ScanInterrupted(t *testing.T) {
	c := newConnection(t, memoryOpener)
	_, err := exec(t, c, "SET a 1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := result.NewRoot("SCAN 0")
	err = c.Execute(ctx, "SCAN 0", root)
	assert.ErrorIs(t, err, core.ErrInterrupted)
}

func TestLocal_LevelDB(t *testing.T) {
	c := newConnection(t, func() (storage.Engine, error) {
		return storage.OpenLevelDBMemory()
	})

	_, err := exec(t, c, "SET k v EX 50")
	require.NoError(t, err)

	v, err := exec(t, c, "TTL k")
	require.NoError(t, err)
	n, ok := v.AsInteger()
	require.True(t, ok)
	assert.InDelta(t, 50, n, 1)
}

func TestLocal_ExpireTimeOutOfRange(t *testing.T) {
	openers := map[string]Opener{
		"memory": memoryOpener,
		"leveldb": func() (storage.Engine, error) {
			return storage.OpenLevelDBMemory()
		},
		"bolt": func() (storage.Engine, error) {
			return storage.OpenBolt(filepath.Join(t.TempDir(), "bolt.db"), "")
		},
		"badger": func() (storage.Engine, error) {
			return storage.OpenBadger(storage.BadgerOptions{InMemory: true}, zap.NewNop())
		},
	}
	tr := translator.New(NewGrammar("memory"))

	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			c := newConnection(t, open)

			_, err := exec(t, c, "SET k v")
			require.NoError(t, err)

			line, err := tr.Translate(translator.ChangeTTL, core.NewNKey(core.MakeKey("k")), translator.Params{TTL: 10_000_000_000})
			require.NoError(t, err)
			v, err := exec(t, c, line)
			assert.ErrorIs(t, err, core.ErrBackend)
			assert.Equal(t, "ERR invalid expire time in 'expire' command", v.String())

			v, err = exec(t, c, "GET k")
			require.NoError(t, err)
			assert.Equal(t, "v", v.String())
			v, err = exec(t, c, "TTL k")
			require.NoError(t, err)
			assert.Equal(t, "-1", v.String())

			v, err = exec(t, c, "SET j v EX 10000000000")
			assert.ErrorIs(t, err, core.ErrBackend)
			assert.Equal(t, "ERR invalid expire time in 'set' command", v.String())
			v, err = exec(t, c, "GET j")
			require.NoError(t, err)
			assert.True(t, v.IsNull())

			// the largest accepted ttl keeps the key alive
			v, err = exec(t, c, fmt.Sprintf("EXPIRE k %d", maxTTLSeconds))
			require.NoError(t, err)
			assert.Equal(t, "1", v.String())
			v, err = exec(t, c, "TTL k")
			require.NoError(t, err)
			n, ok := v.AsInteger()
			require.True(t, ok)
			assert.Greater(t, n, int64(100*365*24*3600))

			// a very negative ttl deletes instead of wrapping around
			v, err = exec(t, c, "EXPIRE k -10000000000")
			require.NoError(t, err)
			assert.Equal(t, "1", v.String())
			v, err = exec(t, c, "GET k")
			require.NoError(t, err)
			assert.True(t, v.IsNull())
		})
	}
}

func TestLocal_ClosedSession(t *testing.T) {
	s := NewSession("memory", memoryOpener, zap.NewNop())
	table := NewTable("memory")
	d := command.NewDispatcher(table)

	err := d.Execute(context.Background(), s, "GET k", result.NewRoot("GET k"))
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestGrammar_Translate(t *testing.T) {
	tr := translator.New(NewGrammar("memory"))
	key := core.NewNKey(core.MakeKey("foo"))

	tests := []struct {
		name string
		op   translator.Operation
		key  core.NKey
		p    translator.Params
		want string
	}{
		{"create", translator.CreateKey, key, translator.Params{Value: core.MakeString("bar")}, "SET foo bar"},
		{"create ttl", translator.CreateKey, core.NewNKeyTTL(core.MakeKey("foo"), 10), translator.Params{Value: core.MakeString("bar")}, "SET foo bar EX 10"},
		{"create quoted", translator.CreateKey, core.NewNKey(core.MakeKey("a b")), translator.Params{Value: core.MakeString("x y")}, `SET "a b" "x y"`},
		{"load", translator.LoadKey, key, translator.Params{Hint: core.TypeHash}, "GET foo"},
		{"delete", translator.DeleteKey, key, translator.Params{}, "DEL foo"},
		{"rename", translator.RenameKey, key, translator.Params{NewName: core.MakeKey("baz")}, "RENAME foo baz"},
		{"ttl", translator.ChangeTTL, key, translator.Params{TTL: 30}, "EXPIRE foo 30"},
		{"persist", translator.ChangeTTL, key, translator.Params{TTL: -1}, "PERSIST foo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Translate(tt.op, tt.key, tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGrammar_CommandsResolve(t *testing.T) {
	tr := translator.New(NewGrammar("memory"))
	d := command.NewDispatcher(NewTable("memory"))
	key := core.NewNKey(core.MakeKey("k"))

	lines := []string{}
	for _, op := range []translator.Operation{translator.CreateKey, translator.LoadKey, translator.DeleteKey, translator.RenameKey, translator.ChangeTTL} {
		line, err := tr.Translate(op, key, translator.Params{Value: core.MakeString("v"), NewName: core.MakeKey("n"), TTL: 5})
		require.NoError(t, err)
		lines = append(lines, line)
	}
	scanLine, err := tr.ScanCommand(0, "", 10)
	require.NoError(t, err)
	typeLine, _ := tr.TypeCommand(key.Key())
	ttlLine, _ := tr.TTLCommand(key.Key())
	countLine, _ := tr.KeyCountCommand()
	lines = append(lines, scanLine, typeLine, ttlLine, countLine)

	for _, line := range lines {
		_, err := d.Resolve(line)
		assert.NoError(t, err, line)
	}
}

func TestGrammar_LoadCommandsAreReadOnly(t *testing.T) {
	tr := translator.New(NewGrammar("memory"))
	table := NewTable("memory")

	for _, name := range tr.LoadCommands() {
		d, ok := table.Find(name)
		require.True(t, ok, name)
		assert.True(t, d.ReadOnly, name)
	}

	line, err := tr.LoadKeyCommand(core.NewNKey(core.MakeKey("k")), core.TypeNull)
	require.NoError(t, err)
	assert.True(t, tr.IsLoadCommandLine(line))
	assert.False(t, tr.IsLoadCommandLine("DEL k"))
}
