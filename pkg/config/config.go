// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, Source, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Source   SourceConfig   `yaml:"source"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables both the document consumer and the analytics producer.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentEvents  string `yaml:"documentEvents"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the query cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexDefinition is the YAML form of a per-index configuration.
type IndexDefinition struct {
	Fields              []string           `yaml:"fields"`
	Weights             map[string]float64 `yaml:"weights"`
	StopWords           []string           `yaml:"stopWords"`
	UseDefaultStopWords bool               `yaml:"useDefaultStopWords"`
	MinWordLength       int                `yaml:"minWordLength"`
	CaseSensitive       bool               `yaml:"caseSensitive"`
	Stemming            bool               `yaml:"stemming"`
}

// IndexerConfig controls which indexes exist at boot, how often they are
// rebuilt and where explicit snapshots are written.
type IndexerConfig struct {
	SnapshotDir     string                     `yaml:"snapshotDir"`
	RebuildInterval time.Duration              `yaml:"rebuildInterval"`
	Indexes         map[string]IndexDefinition `yaml:"indexes"`
}

// SearchConfig controls query execution limits.
type SearchConfig struct {
	DefaultLimit     int `yaml:"defaultLimit"`
	MaxResults       int `yaml:"maxResults"`
	MaxFuzzyTerms    int `yaml:"maxFuzzyTerms"`
	FuzzyMaxDistance int `yaml:"fuzzyMaxDistance"`
	FuzzyCacheSize   int `yaml:"fuzzyCacheSize"`
}

// SourceConfig names the index each PostgreSQL record type is loaded into.
type SourceConfig struct {
	Enabled      bool          `yaml:"enabled"`
	LoadTimeout  time.Duration `yaml:"loadTimeout"`
	Profiles     string        `yaml:"profiles"`
	Repositories string        `yaml:"repositories"`
	Users        string        `yaml:"users"`
	Skills       string        `yaml:"skills"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive, got %d", c.Server.Port)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.defaultLimit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)", c.Search.MaxResults, c.Search.DefaultLimit)
	}
	if c.Search.FuzzyMaxDistance < 0 {
		return fmt.Errorf("search.fuzzyMaxDistance must be >= 0, got %d", c.Search.FuzzyMaxDistance)
	}
	if c.Indexer.RebuildInterval < 0 {
		return fmt.Errorf("indexer.rebuildInterval must be >= 0, got %s", c.Indexer.RebuildInterval)
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "devsearch",
			User:            "devsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "devsearch-indexer",
			Topics: KafkaTopics{
				DocumentEvents:  "document-events",
				AnalyticsEvents: "search-analytics",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			RebuildInterval: 0,
		},
		Search: SearchConfig{
			DefaultLimit:     10,
			MaxResults:       100,
			MaxFuzzyTerms:    8,
			FuzzyMaxDistance: 2,
			FuzzyCacheSize:   4096,
		},
		Source: SourceConfig{
			LoadTimeout:  2 * time.Minute,
			Profiles:     "profiles",
			Repositories: "repositories",
			Users:        "users",
			Skills:       "skills",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// envString, envInt, envBool and envDuration bind one SP_* variable to a
// field. Unparsable values are ignored and the file value stays.
func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	envInt("SP_SERVER_PORT", &cfg.Server.Port)
	envDuration("SP_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)

	envString("SP_POSTGRES_HOST", &cfg.Postgres.Host)
	envInt("SP_POSTGRES_PORT", &cfg.Postgres.Port)
	envString("SP_POSTGRES_DATABASE", &cfg.Postgres.Database)
	envString("SP_POSTGRES_USER", &cfg.Postgres.User)
	envString("SP_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	envString("SP_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	envString("SP_REDIS_ADDR", &cfg.Redis.Addr)
	envString("SP_REDIS_PASSWORD", &cfg.Redis.Password)
	envDuration("SP_REDIS_CACHE_TTL", &cfg.Redis.CacheTTL)

	envString("SP_INDEXER_SNAPSHOT_DIR", &cfg.Indexer.SnapshotDir)
	envDuration("SP_INDEXER_REBUILD_INTERVAL", &cfg.Indexer.RebuildInterval)
	envBool("SP_SOURCE_ENABLED", &cfg.Source.Enabled)

	envString("SP_LOGGING_LEVEL", &cfg.Logging.Level)
	envString("SP_LOGGING_FORMAT", &cfg.Logging.Format)
	envBool("SP_METRICS_ENABLED", &cfg.Metrics.Enabled)
	envInt("SP_METRICS_PORT", &cfg.Metrics.Port)
}
