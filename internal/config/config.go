package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend types of a connection
const (
	TypeRedis     = "redis"
	TypeMemcached = "memcached"
	TypeMemory    = "memory"
	TypeLevelDB   = "leveldb"
	TypeBolt      = "bolt"
	TypeBadger    = "badger"
)

// Config represents the root configuration structure for the application
type Config struct {
	Log               LogConfig          `mapstructure:"log"`
	Connections       []ConnectionConfig `mapstructure:"connections"`
	DefaultConnection string             `mapstructure:"default_connection"`
	Keyspace          KeyspaceConfig     `mapstructure:"keyspace"`
	History           HistoryConfig      `mapstructure:"history"`
	Cache             CacheConfig        `mapstructure:"cache"`
	Metrics           MetricsConfig      `mapstructure:"metrics"`
}

// LogConfig defines logging verbosity and output style
type LogConfig struct {
	Level  string   `mapstructure:"level"`  // debug, info, warn, error
	Format string   `mapstructure:"format"` // json, console
	Output []string `mapstructure:"output"`
}

// ConnectionConfig is one backend endpoint
type ConnectionConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`

	// redis, memcached
	Address        string        `mapstructure:"address"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Database       int           `mapstructure:"database"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	// leveldb, bolt, badger
	Path     string `mapstructure:"path"`
	Bucket   string `mapstructure:"bucket"`
	InMemory bool   `mapstructure:"in_memory"`

	// memory
	Shards   uint     `mapstructure:"shards"`
	Snapshot string   `mapstructure:"snapshot"`
	GC       GCConfig `mapstructure:"gc"`

	NamespaceSeparator string `mapstructure:"namespace_separator"`
}

// KeyspaceConfig defines how the keyspace is browsed
type KeyspaceConfig struct {
	Pattern  string `mapstructure:"pattern"`
	PageSize uint64 `mapstructure:"page_size"`
}

// HistoryConfig defines the command history file
type HistoryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Filename string `mapstructure:"filename"`
	Fsync    string `mapstructure:"fsync"` // always, everysec, no
}

// CacheConfig defines the cache of loaded key values
type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// MetricsConfig defines the prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads the configuration from a file and overrides it with environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("moonview")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("MOONVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Connections) == 0 {
		cfg.Connections = []ConnectionConfig{{Name: "scratch", Type: TypeMemory}}
	}
	for i := range cfg.Connections {
		cfg.Connections[i].applyDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults populates viper with fallback values if they are not provided via file or ENV
func setDefaults(v *viper.Viper) {
	// Logger
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", []string{"stderr"})

	// Keyspace
	v.SetDefault("keyspace.pattern", "*")
	v.SetDefault("keyspace.page_size", 100)

	// History
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.filename", "moonview.history")
	v.SetDefault("history.fsync", "everysec")

	// Cache
	v.SetDefault("cache.size", 256)

	// Metrics
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "127.0.0.1:9121")
	v.SetDefault("metrics.namespace", "moonview")
}

func (c *ConnectionConfig) applyDefaults() {
	c.Type = strings.ToLower(c.Type)
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 30 * time.Second
	}
	if c.NamespaceSeparator == "" {
		c.NamespaceSeparator = ":"
	}
	if c.Type == TypeMemory {
		if c.Shards == 0 {
			c.Shards = 32
		}
		if c.GC == (GCConfig{}) {
			c.GC = DefaultGCConfig()
		}
	}
}

// Validate checks the connection list and the enumerated settings
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Connections))
	for i, conn := range c.Connections {
		if conn.Name == "" {
			return fmt.Errorf("connections[%d]: name is required", i)
		}
		if _, dup := seen[conn.Name]; dup {
			return fmt.Errorf("connections[%d]: duplicate name %q", i, conn.Name)
		}
		seen[conn.Name] = struct{}{}

		if err := conn.Validate(); err != nil {
			return fmt.Errorf("connection %q: %w", conn.Name, err)
		}
	}

	if c.DefaultConnection != "" {
		if _, ok := seen[c.DefaultConnection]; !ok {
			return fmt.Errorf("default_connection %q is not configured", c.DefaultConnection)
		}
	}

	switch c.History.Fsync {
	case "always", "everysec", "no":
	default:
		return fmt.Errorf("history.fsync: unknown strategy %q", c.History.Fsync)
	}
	if c.Keyspace.PageSize == 0 {
		return errors.New("keyspace.page_size must be positive")
	}
	if c.Cache.Size <= 0 {
		return errors.New("cache.size must be positive")
	}
	return nil
}

// Validate checks the fields required by the connection type
func (c ConnectionConfig) Validate() error {
	switch c.Type {
	case TypeRedis, TypeMemcached:
		if c.Address == "" {
			return errors.New("address is required")
		}
	case TypeLevelDB, TypeBadger:
		if c.Path == "" && !c.InMemory {
			return errors.New("path is required unless in_memory is set")
		}
	case TypeBolt:
		if c.Path == "" {
			return errors.New("path is required")
		}
	case TypeMemory:
	default:
		return fmt.Errorf("unknown type %q", c.Type)
	}
	if c.Database < 0 {
		return fmt.Errorf("invalid database %d", c.Database)
	}
	return nil
}

// Connection returns the connection called name. An empty name selects the
// default connection, or the first one when no default is set
func (c *Config) Connection(name string) (ConnectionConfig, error) {
	if name == "" {
		name = c.DefaultConnection
	}
	if name == "" && len(c.Connections) > 0 {
		return c.Connections[0], nil
	}
	for _, conn := range c.Connections {
		if conn.Name == name {
			return conn, nil
		}
	}
	return ConnectionConfig{}, fmt.Errorf("unknown connection %q", name)
}
