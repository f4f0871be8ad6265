// Package config loads the shared configuration for all four cmd/ binaries:
// a YAML file (grounded on stellar-postgres-ingester/go/config.go) with
// environment-variable overrides (grounded on
// contract-data-processor/go/config/config.go's LoadFromEnv) layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document. Every cmd/ binary loads
// the same shape and uses only the sections it needs.
type Config struct {
	Node struct {
		Address      string            `yaml:"address"`
		Token        string            `yaml:"token"`
		ExtraHeaders map[string]string `yaml:"extra_headers"`
	} `yaml:"node"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Database string `yaml:"database"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgres"`

	Archiver struct {
		BlockDir      string `yaml:"block_dir"`
		TarDir        string `yaml:"tar_dir"`
		ArchiveStride uint64 `yaml:"archive_stride"`
		StallSeconds  int    `yaml:"stall_seconds"`
	} `yaml:"archiver"`

	Loader struct {
		GenesisFile string `yaml:"genesis_file"`
	} `yaml:"loader"`

	Accounting struct {
		MaxRound uint64 `yaml:"max_round"` // 0 = unbounded
	} `yaml:"accounting"`

	Validator struct {
		IndexerAddress string   `yaml:"indexer_address"`
		Addresses      []string `yaml:"addresses"`
		Shard          string   `yaml:"shard"` // "a/b"
		Threads        int      `yaml:"threads"`
		MaxMismatches  int      `yaml:"max_mismatches"`
		PageSize       int      `yaml:"page_size"`
	} `yaml:"validator"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	HealthPort  int `yaml:"health_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// defaults mirror spec.md's stated defaults (archive_stride=1000,
// stall_seconds=30) plus the ambient ops defaults this repo's ambient stack
// carries (health/metrics ports, page size, threads).
func defaults() Config {
	var c Config
	c.Archiver.ArchiveStride = 1000
	c.Archiver.StallSeconds = 30
	c.Archiver.BlockDir = "./data/blocks"
	c.Archiver.TarDir = "./data/archives"
	c.Postgres.SSLMode = "disable"
	c.Postgres.Port = 5432
	c.Validator.Threads = 8
	c.Validator.MaxMismatches = 100
	c.Validator.PageSize = 500
	c.Logging.Level = "info"
	c.HealthPort = 8088
	c.MetricsPort = 9108
	return c
}

// Load reads path as YAML (if non-empty) and then applies environment
// variable overrides on top, following LoadFromEnv's backward-compatibility
// pattern: a config file is optional, env vars always take precedence.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALGOD_ADDRESS"); v != "" {
		cfg.Node.Address = v
	}
	if v := os.Getenv("ALGOD_TOKEN"); v != "" {
		cfg.Node.Token = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = p
		}
	}
	if v := os.Getenv("POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BLOCK_DIR"); v != "" {
		cfg.Archiver.BlockDir = v
	}
	if v := os.Getenv("TAR_DIR"); v != "" {
		cfg.Archiver.TarDir = v
	}
	if v := os.Getenv("ARCHIVE_STRIDE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Archiver.ArchiveStride = n
		}
	}
	if v := os.Getenv("STALL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Archiver.StallSeconds = n
		}
	}
	if v := os.Getenv("GENESIS_FILE"); v != "" {
		cfg.Loader.GenesisFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthPort = n
		}
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = n
		}
	}
}

func (c *Config) validate() error {
	if c.Archiver.ArchiveStride == 0 {
		return fmt.Errorf("archiver.archive_stride must be > 0")
	}
	if c.Archiver.StallSeconds <= 0 {
		return fmt.Errorf("archiver.stall_seconds must be > 0")
	}
	return nil
}

// StallDuration returns the archiver's stall threshold as a time.Duration.
func (c *Config) StallDuration() time.Duration {
	return time.Duration(c.Archiver.StallSeconds) * time.Second
}

// PostgresDSN renders the lib/pq connection string, following
// stellar-postgres-ingester/go/config.go's GetPostgresConnectionString.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Postgres.Host, c.Postgres.Port, c.Postgres.User, c.Postgres.Password,
		c.Postgres.Database, c.Postgres.SSLMode,
	)
}

// ParseShard parses a "a/b" shard spec into its components.
func ParseShard(spec string) (a, b uint64, err error) {
	if spec == "" {
		return 0, 1, nil
	}
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid shard spec %q, want \"a/b\"", spec)
	}
	a, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid shard numerator %q: %w", parts[0], err)
	}
	b, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid shard denominator %q: %w", parts[1], err)
	}
	if b == 0 || a == 0 || a > b {
		return 0, 0, fmt.Errorf("invalid shard spec %q: need 1 <= a <= b", spec)
	}
	return a, b, nil
}
