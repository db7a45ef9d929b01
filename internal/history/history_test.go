package history

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHistory_AppendAndLoad(t *testing.T) {
	for _, strategy := range []string{"always", "everysec", "no"} {
		t.Run(strategy, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "moonview.history")
			h, err := Open(path, strategy, zap.NewNop())
			require.NoError(t, err)

			now := time.UnixMilli(1700000000123)
			h.Append(Entry{Time: now, Connection: "local", Command: "GET a", Reply: core.MakeString("1")})
			h.Append(Entry{Time: now, Connection: "local", Command: "GET b", Reply: core.MakeNull()})
			require.NoError(t, h.Close())

			entries, err := Load(path)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "GET a", entries[0].Command)
			assert.Equal(t, "local", entries[0].Connection)
			assert.Equal(t, now, entries[0].Time)
			assert.Equal(t, "1", entries[0].Reply.String())
			assert.True(t, entries[1].Reply.IsNull())
		})
	}
}

func TestHistory_AppendsAcrossSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h")

	for i := 0; i < 2; i++ {
		h, err := Open(path, "always", zap.NewNop())
		require.NoError(t, err)
		h.Append(Entry{Time: time.Now(), Connection: "c", Command: "PING", Reply: core.MakeString("PONG")})
		require.NoError(t, h.Close())
	}

	entries, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestHistory_AppendAfterCloseIsDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h")
	h, err := Open(path, "everysec", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h.Append(Entry{Time: time.Now(), Command: "GET a", Reply: core.MakeString("1")})

	entries, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistory_Observer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h")
	h, err := Open(path, "always", zap.NewNop())
	require.NoError(t, err)

	root := result.NewRoot("load key", h.Observer("scratch"))

	get := result.NewCommand(root, "GET a")
	result.AppendChild(get, core.MakeString("1"))

	// nested containers add children to the reply, not to the command
	scan := result.NewCommand(root, "SCAN 0")
	result.AppendChild(scan, core.MakeArray([]core.Value{
		core.MakeString("0"),
		core.MakeStringArray("a", "b"),
	}))

	failed := result.NewCommand(root, "TTL a")
	failed.SetError(core.ErrTransport)

	raw := result.NewRoot("DBSIZE", h.Observer("scratch"))
	result.AppendChild(raw, core.MakeInteger(4))

	require.NoError(t, h.Close())

	entries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "GET a", entries[0].Command)
	assert.Equal(t, "scratch", entries[0].Connection)
	assert.Equal(t, "SCAN 0", entries[1].Command)
	assert.Equal(t, core.TypeArray, entries[1].Reply.Type)
	assert.Equal(t, "0 a b", entries[1].Reply.String())
	assert.Equal(t, "TTL a", entries[2].Command)
	assert.True(t, entries[2].Reply.IsError())
	assert.Equal(t, "DBSIZE", entries[3].Command)
	assert.Equal(t, int64(4), entries[3].Reply.Integer)
}

func TestLoad_Missing(t *testing.T) {
	entries, err := Load(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestLoad_TruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h")
	h, err := Open(path, "always", zap.NewNop())
	require.NoError(t, err)
	h.Append(Entry{Time: time.Now(), Connection: "c", Command: "GET a", Reply: core.MakeString("1")})
	h.Append(Entry{Time: time.Now(), Connection: "c", Command: "GET b", Reply: core.MakeString("2")})
	require.NoError(t, h.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-3))

	entries, err := Load(path)
	assert.True(t, errors.Is(err, ErrTruncated))
	require.Len(t, entries, 1)
	assert.Equal(t, "GET a", entries[0].Command)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h")
	require.NoError(t, os.WriteFile(path, []byte(":1\r\n"), 0600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrMalformed)
}
