// Package config provides configuration management for the Cascade store.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	CAS     CASConfig     `mapstructure:"cas"`
	Chunker ChunkerConfig `mapstructure:"chunker"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds HTTP admin server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BackendConfig holds object store backend settings.
// Supports memory, SQLite, PostgreSQL and Redis backends.
type BackendConfig struct {
	// Driver specifies the backend driver: "memory", "sqlite",
	// "postgres" or "redis". Default is "sqlite".
	Driver string `mapstructure:"driver"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`             // Path to SQLite database file
	JournalMode     string `mapstructure:"journal_mode"`     // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout     int    `mapstructure:"busy_timeout"`     // Milliseconds to wait for locks
	CacheSize       int    `mapstructure:"cache_size"`       // Page cache size (negative = KB)
	SynchronousMode string `mapstructure:"synchronous_mode"` // NORMAL, FULL, OFF

	// Redis settings (used when Driver is "redis")
	Redis RedisConfig `mapstructure:"redis"`
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c BackendConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsEmbedded returns true if the backend needs no external service.
func (c BackendConfig) IsEmbedded() bool {
	return c.Driver == "sqlite" || c.Driver == "memory"
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CASConfig holds content-addressable store settings.
type CASConfig struct {
	// Compression selects the compressor applied before objects are
	// written: "no", "snappy", "zstd" or "lz4".
	Compression string `mapstructure:"compression"`

	// FingerprintAlgorithm selects the content hash: "SHA-256" or "BLAKE3".
	FingerprintAlgorithm string `mapstructure:"fingerprint_algorithm"`

	// CacheSize is the chunk cache budget in bytes. Zero disables the
	// cache.
	CacheSize int64 `mapstructure:"cache_size"`
}

// ChunkerConfig holds chunking and parallel-write settings.
type ChunkerConfig struct {
	// ChunkSize is the fixed chunk size in bytes for full writes.
	ChunkSize uint64 `mapstructure:"chunk_size"`

	// Workers is the number of concurrent chunk writers.
	Workers int `mapstructure:"workers"`

	// WriteBatch is the job channel capacity of the writer pool.
	WriteBatch int `mapstructure:"write_batch"`

	// MaxOutstanding bounds how many chunks a streaming source may
	// hold in memory before a reader drains them.
	MaxOutstanding int64 `mapstructure:"max_outstanding"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with CASCADE_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("CASCADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file configuration
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/cascade")
	}

	// Read config file (optional - environment variables can be used instead)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is acceptable - use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9200)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Backend defaults
	v.SetDefault("backend.driver", "sqlite")
	v.SetDefault("backend.host", "localhost")
	v.SetDefault("backend.port", 5432)
	v.SetDefault("backend.user", "cascade")
	v.SetDefault("backend.password", "")
	v.SetDefault("backend.database", "cascade")
	v.SetDefault("backend.ssl_mode", "prefer")
	v.SetDefault("backend.max_open_conns", 25)
	v.SetDefault("backend.min_idle_conns", 5)
	v.SetDefault("backend.conn_max_lifetime", 5*time.Minute)
	// SQLite defaults
	v.SetDefault("backend.path", "./data/cascade.db")
	v.SetDefault("backend.journal_mode", "WAL")
	v.SetDefault("backend.busy_timeout", 5000)
	v.SetDefault("backend.cache_size", -2000)
	v.SetDefault("backend.synchronous_mode", "NORMAL")
	// Redis defaults
	v.SetDefault("backend.redis.host", "localhost")
	v.SetDefault("backend.redis.port", 6379)
	v.SetDefault("backend.redis.password", "")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.redis.pool_size", 10)
	v.SetDefault("backend.redis.dial_timeout", 5*time.Second)

	// CAS defaults
	v.SetDefault("cas.compression", "snappy")
	v.SetDefault("cas.fingerprint_algorithm", "SHA-256")
	v.SetDefault("cas.cache_size", 64*1024*1024) // 64MB

	// Chunker defaults
	v.SetDefault("chunker.chunk_size", 4*1024*1024) // 4MB
	v.SetDefault("chunker.workers", 8)
	v.SetDefault("chunker.write_batch", 16)
	v.SetDefault("chunker.max_outstanding", 100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate backend configuration
	validDrivers := map[string]bool{"memory": true, "sqlite": true, "postgres": true, "redis": true}
	if !validDrivers[c.Backend.Driver] {
		return fmt.Errorf("backend.driver must be 'memory', 'sqlite', 'postgres' or 'redis'")
	}

	switch c.Backend.Driver {
	case "postgres":
		if c.Backend.Host == "" {
			return fmt.Errorf("backend.host is required for postgres driver")
		}
		if c.Backend.User == "" {
			return fmt.Errorf("backend.user is required for postgres driver")
		}
		if c.Backend.Database == "" {
			return fmt.Errorf("backend.database is required for postgres driver")
		}
	case "sqlite":
		if c.Backend.Path == "" {
			return fmt.Errorf("backend.path is required for sqlite driver")
		}
	case "redis":
		if c.Backend.Redis.Host == "" {
			return fmt.Errorf("backend.redis.host is required for redis driver")
		}
	}

	// Validate chunker configuration
	if c.Chunker.ChunkSize == 0 {
		return fmt.Errorf("chunker.chunk_size must be positive")
	}
	if c.Chunker.Workers < 1 {
		return fmt.Errorf("chunker.workers must be at least 1")
	}
	if c.Chunker.MaxOutstanding < 1 {
		return fmt.Errorf("chunker.max_outstanding must be at least 1")
	}

	// Validate logging configuration
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
