package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "moonview.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, uint64(100), cfg.Keyspace.PageSize)
	assert.Equal(t, "everysec", cfg.History.Fsync)
	assert.Equal(t, 256, cfg.Cache.Size)

	require.Len(t, cfg.Connections, 1)
	conn := cfg.Connections[0]
	assert.Equal(t, TypeMemory, conn.Type)
	assert.Equal(t, uint(32), conn.Shards)
	assert.Equal(t, DefaultGCConfig(), conn.GC)
}

func TestLoad_File(t *testing.T) {
	dir := writeConfig(t, `
log:
  level: debug
  format: json
default_connection: cache
keyspace:
  pattern: "user:*"
  page_size: 50
connections:
  - name: main
    type: Redis
    address: 127.0.0.1:6379
    database: 2
    dial_timeout: 2s
  - name: cache
    type: memcached
    address: 127.0.0.1:11211
  - name: disk
    type: bolt
    path: /tmp/moonview.db
history:
  enabled: true
  fsync: always
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "user:*", cfg.Keyspace.Pattern)
	assert.Equal(t, uint64(50), cfg.Keyspace.PageSize)
	assert.True(t, cfg.History.Enabled)
	require.Len(t, cfg.Connections, 3)

	main := cfg.Connections[0]
	assert.Equal(t, TypeRedis, main.Type)
	assert.Equal(t, 2, main.Database)
	assert.Equal(t, 2*time.Second, main.DialTimeout)
	assert.Equal(t, 30*time.Second, main.CommandTimeout)
	assert.Equal(t, ":", main.NamespaceSeparator)

	conn, err := cfg.Connection("")
	require.NoError(t, err)
	assert.Equal(t, "cache", conn.Name)

	conn, err = cfg.Connection("disk")
	require.NoError(t, err)
	assert.Equal(t, TypeBolt, conn.Type)

	_, err = cfg.Connection("nope")
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MOONVIEW_KEYSPACE_PAGE_SIZE", "25")
	t.Setenv("MOONVIEW_LOG_LEVEL", "warn")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, uint64(25), cfg.Keyspace.PageSize)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Connections: []ConnectionConfig{{Name: "m", Type: TypeMemory}},
			Keyspace:    KeyspaceConfig{PageSize: 10},
			History:     HistoryConfig{Fsync: "no"},
			Cache:       CacheConfig{Size: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing name", func(c *Config) { c.Connections[0].Name = "" }},
		{"duplicate name", func(c *Config) { c.Connections = append(c.Connections, c.Connections[0]) }},
		{"unknown type", func(c *Config) { c.Connections[0].Type = "mongo" }},
		{"redis without address", func(c *Config) { c.Connections[0].Type = TypeRedis }},
		{"leveldb without path", func(c *Config) { c.Connections[0].Type = TypeLevelDB }},
		{"bolt without path", func(c *Config) { c.Connections[0].Type = TypeBolt; c.Connections[0].InMemory = true }},
		{"negative database", func(c *Config) { c.Connections[0].Database = -1 }},
		{"unknown default", func(c *Config) { c.DefaultConnection = "x" }},
		{"bad fsync", func(c *Config) { c.History.Fsync = "sometimes" }},
		{"zero page size", func(c *Config) { c.Keyspace.PageSize = 0 }},
		{"zero cache", func(c *Config) { c.Cache.Size = 0 }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.Connections[0] = ConnectionConfig{Name: "l", Type: TypeLevelDB, InMemory: true}
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := writeConfig(t, `
connections:
  - name: x
    type: redis
`)
	_, err := Load(dir)
	assert.Error(t, err)
}
