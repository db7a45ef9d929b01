package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/eternalApril/moonview/internal/connection"
	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/result"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// liveConnection connects to the server named by MOONVIEW_REDIS_ADDR
func liveConnection(t *testing.T) *connection.Connection[*Session] {
	t.Helper()

	addr := os.Getenv("MOONVIEW_REDIS_ADDR")
	if addr == "" {
		t.Skip("MOONVIEW_REDIS_ADDR is not set")
	}

	s := NewSession(goredis.Options{Addr: addr, DB: 15}, zap.NewNop())
	c := connection.New("redis", s, NewTable())
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Disconnect() }) //nolint:errcheck

	require.NoError(t, c.Execute(context.Background(), "FLUSHDB", result.NewRoot("FLUSHDB")))
	return c
}

func TestPipelining(t *testing.T) {
	c := liveConnection(t)
	ctx := context.Background()

	count := 1_000
	root := result.NewRoot("pipeline")
	batch := make(connection.Batch, 0, count*2)

	for i := 0; i < count; i++ {
		line := fmt.Sprintf("SET pipe_key_%d val_%d", i, i)
		batch = append(batch, connection.Entry{Command: line, Node: result.NewCommand(root, line)})
	}
	for i := 0; i < count; i++ {
		line := fmt.Sprintf("GET pipe_key_%d", i)
		batch = append(batch, connection.Entry{Command: line, Node: result.NewCommand(root, line)})
	}

	start := time.Now()
	err := c.ExecuteAsPipeline(ctx, batch)
	elapsed := time.Since(start)

	require.NoError(t, err, "Pipeline execution failed")
	t.Logf("Pipeline executed in %v", elapsed)

	for i := 0; i < count; i++ {
		v, ok := batch[count+i].Node.FirstValue()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("val_%d", i), v.String(), "Key %d mismatch", i)
	}
}

func TestPipelining_BackendErrorDoesNotAbort(t *testing.T) {
	c := liveConnection(t)
	ctx := context.Background()

	root := result.NewRoot("pipeline")
	lines := []string{"SET k v", "LPUSH k x", "GET k"}
	batch := make(connection.Batch, len(lines))
	for i, line := range lines {
		batch[i] = connection.Entry{Command: line, Node: result.NewCommand(root, line)}
	}

	require.NoError(t, c.ExecuteAsPipeline(ctx, batch))

	v, _ := batch[1].Node.FirstValue()
	assert.True(t, v.IsError(), "WRONGTYPE stays on its entry")
	v, _ = batch[2].Node.FirstValue()
	assert.Equal(t, "v", v.String())
}

func TestSelect(t *testing.T) {
	c := liveConnection(t)
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, "SELECT 14", result.NewRoot("SELECT 14")))
	assert.Equal(t, 14, c.Session().DB())

	root := result.NewRoot("SELECT x")
	err := c.Execute(ctx, "SELECT x", root)
	assert.ErrorIs(t, err, core.ErrBackend)
}
