package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Cache       CacheConfig       `yaml:"cache"`
	Resolver    ResolverConfig    `yaml:"resolver"`
	Scenes      ScenesConfig      `yaml:"scenes"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LoggingConfig controls the slog handler
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name onto a slog.Level
func (c *LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// UpstreamConfig holds the ranking service client configuration
type UpstreamConfig struct {
	BaseURL        string        `yaml:"base_url"`
	UserAgent      string        `yaml:"user_agent"`
	Timeout        time.Duration `yaml:"timeout"`
	PageSize       int           `yaml:"page_size"`
	PageDelay      time.Duration `yaml:"page_delay"`
	MaxPlayers     int           `yaml:"max_players"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// SnapshotConfig holds the rankings snapshot store configuration
type SnapshotConfig struct {
	Dir        string        `yaml:"dir"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// CacheConfig holds the player cache configuration
type CacheConfig struct {
	File         string        `yaml:"file"`
	MaxEntries   int           `yaml:"max_entries"`
	TTL          time.Duration `yaml:"ttl"`
	SaveInterval time.Duration `yaml:"save_interval"`
}

// ResolverConfig holds hybrid resolution configuration
type ResolverConfig struct {
	LookupDelay time.Duration `yaml:"lookup_delay"`
	MaxBatch    int           `yaml:"max_batch"`
}

// ScenesConfig holds the scene registry configuration
type ScenesConfig struct {
	File           string        `yaml:"file"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BatchSize    int           `yaml:"batch_size"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// LeaderboardConfig holds limits for list endpoints
type LeaderboardConfig struct {
	DefaultLimit    int `yaml:"default_limit"`
	MaxLimit        int `yaml:"max_limit"`
	DefaultPageSize int `yaml:"default_page_size"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// Hybrid and live scene lookups call upstream per player
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	// Upstream defaults
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://www.fightcade.com/api/"
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = "FC-Rank-Search/1.0.0"
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 15 * time.Second
	}
	if c.Upstream.PageSize == 0 {
		c.Upstream.PageSize = 100
	}
	if c.Upstream.PageDelay == 0 {
		c.Upstream.PageDelay = 2 * time.Second
	}
	if c.Upstream.MaxPlayers == 0 {
		c.Upstream.MaxPlayers = 100000
	}
	if c.Upstream.MaxConcurrency == 0 {
		c.Upstream.MaxConcurrency = 8
	}

	// Snapshot defaults
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "data"
	}
	if c.Snapshot.StaleAfter == 0 {
		c.Snapshot.StaleAfter = 24 * time.Hour
	}

	// Player cache defaults
	if c.Cache.File == "" {
		c.Cache.File = "data/player-cache.json"
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Cache.SaveInterval == 0 {
		c.Cache.SaveInterval = 30 * time.Minute
	}

	// Resolver defaults
	if c.Resolver.LookupDelay == 0 {
		c.Resolver.LookupDelay = 100 * time.Millisecond
	}
	if c.Resolver.MaxBatch == 0 {
		c.Resolver.MaxBatch = 50
	}

	// Scene defaults
	if c.Scenes.File == "" {
		c.Scenes.File = "data/scenes.json"
	}
	if c.Scenes.ReloadInterval == 0 {
		c.Scenes.ReloadInterval = time.Minute
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.BatchSize == 0 {
		c.Redis.BatchSize = 1000
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 10
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "fc-refresh-requests"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "fc-refresher"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 50
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 5 * time.Second
	}

	// Leaderboard defaults
	if c.Leaderboard.DefaultLimit == 0 {
		c.Leaderboard.DefaultLimit = 10
	}
	if c.Leaderboard.MaxLimit == 0 {
		c.Leaderboard.MaxLimit = 1000
	}
	if c.Leaderboard.DefaultPageSize == 0 {
		c.Leaderboard.DefaultPageSize = 50
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
