// Package config loads and validates service configuration from YAML files
// with RESEARCH_-prefixed environment-variable overrides. It provides typed
// structs for every subsystem (Server, Records, Search, Evaluate, Redis,
// Kafka, Postgres, Logging, Metrics).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Identity IdentityConfig `yaml:"identity"`
	Server   ServerConfig   `yaml:"server"`
	Records  RecordsConfig  `yaml:"records"`
	Search   SearchConfig   `yaml:"search"`
	Evaluate EvaluateConfig `yaml:"evaluate"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IdentityConfig names the server for handshake metadata.
type IdentityConfig struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RecordsConfig selects and parameterises the record source. The store is
// built once at startup from this source and never mutated afterward.
type RecordsConfig struct {
	// Source is "file", "postgres", or "none".
	Source        string `yaml:"source"`
	Path          string `yaml:"path"`
	Table         string `yaml:"table"`
	FailOnMissing bool   `yaml:"failOnMissing"`
}

// SearchConfig controls query validation limits and method resolution.
type SearchConfig struct {
	DefaultMethod     string `yaml:"defaultMethod"`
	MaxQueryLength    int    `yaml:"maxQueryLength"`
	MaxIDLength       int    `yaml:"maxIdLength"`
	StrictQueryFilter bool   `yaml:"strictQueryFilter"`
}

// EvaluateConfig holds the funder-variable fallback mapping and the packet
// concurrency bound. FunderVars is an open-ended mapping: keys name the
// output variables, values are the fallbacks applied when no record resolves
// them (a nil fallback is legitimate).
type EvaluateConfig struct {
	FunderVars     map[string]any `yaml:"funderVars"`
	MaxConcurrency int            `yaml:"maxConcurrency"`
}

// RedisConfig holds Redis connection and search-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and analytics topic settings.
type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	ConsumerGroup  string   `yaml:"consumerGroup"`
	AnalyticsTopic string   `yaml:"analyticsTopic"`
}

// PostgresConfig holds PostgreSQL connection parameters for the optional
// postgres record source.
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

// Load reads a YAML config file (if provided) and applies environment
// variable overrides. It returns a Config populated with defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Identity: IdentityConfig{
			Name:         "Funder Research Service",
			Instructions: "Search research records",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  25 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Records: RecordsConfig{
			Source:        "file",
			Path:          "records.json",
			Table:         "research_records",
			FailOnMissing: false,
		},
		Search: SearchConfig{
			DefaultMethod:     "simple",
			MaxQueryLength:    512,
			MaxIDLength:       128,
			StrictQueryFilter: true,
		},
		Evaluate: EvaluateConfig{
			FunderVars:     map[string]any{},
			MaxConcurrency: 10,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:        false,
			Brokers:        []string{"localhost:9092"},
			ConsumerGroup:  "research-analytics",
			AnalyticsTopic: "research.tool-events",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "research",
			User:            "research",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
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

// applyEnvOverrides copies recognised RESEARCH_* environment variables onto
// the corresponding config fields. Invalid numeric values are logged and
// ignored rather than aborting startup.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RESEARCH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			slog.Warn("ignoring invalid env override", "var", "RESEARCH_SERVER_PORT", "value", v)
		}
	}
	if v := os.Getenv("RESEARCH_RECORDS_SOURCE"); v != "" {
		cfg.Records.Source = v
	}
	if v := os.Getenv("RESEARCH_RECORDS_PATH"); v != "" {
		cfg.Records.Path = v
	}
	if v := os.Getenv("RESEARCH_DEFAULT_METHOD"); v != "" {
		cfg.Search.DefaultMethod = v
	}
	if v := os.Getenv("RESEARCH_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.Evaluate.MaxConcurrency = n
		} else {
			slog.Warn("ignoring invalid env override", "var", "RESEARCH_MAX_CONCURRENCY", "value", v)
		}
	}
	if v := os.Getenv("RESEARCH_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RESEARCH_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		} else {
			slog.Warn("ignoring invalid env override", "var", "RESEARCH_POSTGRES_PORT", "value", v)
		}
	}
	if v := os.Getenv("RESEARCH_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RESEARCH_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RESEARCH_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RESEARCH_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RESEARCH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RESEARCH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RESEARCH_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RESEARCH_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
