// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Directory, Accelerator, Logo, Admin, Redis, Kafka, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Directory   DirectoryConfig   `yaml:"directory"`
	Accelerator AcceleratorConfig `yaml:"accelerator"`
	Logo        LogoConfig        `yaml:"logo"`
	Admin       AdminConfig       `yaml:"admin"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// DirectoryConfig controls where the companies file is found and the
// query limits applied at the HTTP boundary.
type DirectoryConfig struct {
	// DataPath is an explicit override tried before DataCandidates.
	DataPath       string            `yaml:"dataPath"`
	DataCandidates []string          `yaml:"dataCandidates"`
	RegionRules    string            `yaml:"regionRules"`
	CategoryIcons  map[string]string `yaml:"categoryIcons"`
	DefaultLimit   int               `yaml:"defaultLimit"`
	MaxLimit       int               `yaml:"maxLimit"`
	SuggestLimit   int               `yaml:"suggestLimit"`
	MaxSuggest     int               `yaml:"maxSuggest"`
	MaxSummaryIDs  int               `yaml:"maxSummaryIds"`
	ExportMaxRows  int               `yaml:"exportMaxRows"`
}

// AcceleratorConfig points at the optional external search engine.
type AcceleratorConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Host      string        `yaml:"host"`
	APIKey    string        `yaml:"apiKey"`
	Index     string        `yaml:"index"`
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batchSize"`
}

// LogoConfig controls the logo proxy's disk cache and upstream policy.
type LogoConfig struct {
	CacheDir        string        `yaml:"cacheDir"`
	TTL             time.Duration `yaml:"ttl"`
	MaxBytes        int64         `yaml:"maxBytes"`
	UpstreamTimeout time.Duration `yaml:"upstreamTimeout"`
	AllowedHost     string        `yaml:"allowedHost"`
	UserAgent       string        `yaml:"userAgent"`
}

// AdminConfig guards the reload and reindex endpoints.
type AdminConfig struct {
	Secret    string  `yaml:"secret"`
	RateLimit float64 `yaml:"rateLimit"`
	Burst     int     `yaml:"burst"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DirectoryReload string `yaml:"directoryReload"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AnalyticsConfig selects where aggregated snapshots are persisted.
type AnalyticsConfig struct {
	Store            string        `yaml:"store"`
	SQLitePath       string        `yaml:"sqlitePath"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	BufferSize       int           `yaml:"bufferSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. A missing file at path is not an error when path is the
// default location; callers pass "" to skip the file entirely.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
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
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Directory.DefaultLimit < 1 || c.Directory.MaxLimit < c.Directory.DefaultLimit {
		errs = append(errs, fmt.Errorf("directory limits invalid: default %d, max %d", c.Directory.DefaultLimit, c.Directory.MaxLimit))
	}
	if c.Directory.SuggestLimit < 1 || c.Directory.MaxSuggest < c.Directory.SuggestLimit {
		errs = append(errs, fmt.Errorf("suggest limits invalid: default %d, max %d", c.Directory.SuggestLimit, c.Directory.MaxSuggest))
	}
	if c.Directory.MaxSummaryIDs < 1 {
		errs = append(errs, fmt.Errorf("directory.maxSummaryIds must be positive"))
	}
	switch c.Analytics.Store {
	case "postgres", "sqlite", "none":
	default:
		errs = append(errs, fmt.Errorf("analytics.store %q must be postgres, sqlite or none", c.Analytics.Store))
	}
	if c.Accelerator.Enabled && c.Accelerator.Host == "" {
		errs = append(errs, fmt.Errorf("accelerator.host is required when the accelerator is enabled"))
	}
	return errors.Join(errs...)
}

// DataPathCandidates returns the ordered list of locations tried for the
// companies file: the explicit override first, then the conventional ones.
func (d DirectoryConfig) DataPathCandidates() []string {
	candidates := make([]string, 0, len(d.DataCandidates)+1)
	if p := strings.TrimSpace(d.DataPath); p != "" {
		candidates = append(candidates, p)
	}
	return append(candidates, d.DataCandidates...)
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Directory: DirectoryConfig{
			DataCandidates: []string{
				"public/data/ibiz/companies.jsonl",
				"../../Info-ibiz/output/companies.jsonl",
			},
			DefaultLimit:  24,
			MaxLimit:      200,
			SuggestLimit:  8,
			MaxSuggest:    20,
			MaxSummaryIDs: 200,
			ExportMaxRows: 5000,
		},
		Accelerator: AcceleratorConfig{
			Host:      "http://localhost:7700",
			Index:     "companies",
			Timeout:   5 * time.Second,
			BatchSize: 5000,
		},
		Logo: LogoConfig{
			CacheDir:        "",
			TTL:             30 * 24 * time.Hour,
			MaxBytes:        5 * 1024 * 1024,
			UpstreamTimeout: 15 * time.Second,
			AllowedHost:     "ibiz.by",
			UserAgent:       "business-directory/logo-proxy",
		},
		Admin: AdminConfig{
			Secret:    "dev-secret-change-me",
			RateLimit: 0.2,
			Burst:     3,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "directory",
			User:            "directory",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "directory-group",
			Topics: KafkaTopics{
				DirectoryReload: "directory-reload",
				AnalyticsEvents: "directory-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Store:            "sqlite",
			SQLitePath:       "data/analytics.db",
			SnapshotInterval: time.Minute,
			BufferSize:       10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    true,
			SampleRate: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables, plus the legacy
// IBIZ_*, MEILI_* and ADMIN_SECRET names, and overrides the matching fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("IBIZ_COMPANIES_JSONL_PATH")); v != "" {
		cfg.Directory.DataPath = v
	}
	if v := os.Getenv("SP_DIRECTORY_REGION_RULES"); v != "" {
		cfg.Directory.RegionRules = v
	}
	if v := strings.TrimSpace(os.Getenv("IBIZ_LOGO_CACHE_DIR")); v != "" {
		cfg.Logo.CacheDir = v
	}
	if v := os.Getenv("MEILI_HOST"); v != "" {
		cfg.Accelerator.Host = v
	}
	if v := os.Getenv("MEILI_MASTER_KEY"); v != "" {
		cfg.Accelerator.APIKey = v
	}
	if v := os.Getenv("SP_ACCELERATOR_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Accelerator.Enabled = b
		}
	}
	if v := os.Getenv("ADMIN_SECRET"); v != "" {
		cfg.Admin.Secret = v
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_ANALYTICS_STORE"); v != "" {
		cfg.Analytics.Store = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
