// Package config holds the partition topology and the options forwarded to
// every partition connection.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config describes the partitions and how tables on them are created.
type Config struct {
	// PartitionURLs holds one connection string per partition, in partition order.
	PartitionURLs []string `yaml:"partition_urls"`

	// ShardsCount is the total number of shards. It must be a multiple of the
	// number of partitions.
	ShardsCount int `yaml:"shards_count"`

	// ConnectionOptions are passed to every partition connect, e.g.
	// max_connections. With temp tables max_connections defaults to 1.
	ConnectionOptions map[string]any `yaml:"connection_options"`

	// DatabaseExtensions are loaded on every partition right after connecting.
	DatabaseExtensions []string `yaml:"database_extensions"`

	// CreateTableOptions are passed unchanged to every table creation,
	// e.g. temp: true.
	CreateTableOptions map[string]any `yaml:"create_table_options"`

	// LegacyCreatedAtIsBigint stores created_at as unix seconds instead of a timestamp.
	LegacyCreatedAtIsBigint bool `yaml:"legacy_created_at_is_bigint"`

	// Models are declared here only for tooling; programs attach models in code.
	Models []Model `yaml:"models"`
}

// Model declares a model and its indexes.
type Model struct {
	Name    string  `yaml:"name"`
	Indexes []Index `yaml:"indexes"`
}

// Index declares one index. An empty name is the primary index.
type Index struct {
	Name    string  `yaml:"name"`
	Fields  []Field `yaml:"fields"`
	ShardOn string  `yaml:"shard_on"`
}

// Field is a typed index field: integer, string, float or boolean.
type Field struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// PartitionsCount is the number of partition urls.
func (c *Config) PartitionsCount() int {
	return len(c.PartitionURLs)
}

// ShardsPerPartitionCount is ShardsCount / PartitionsCount.
func (c *Config) ShardsPerPartitionCount() int {
	if c.PartitionsCount() == 0 {
		return 0
	}
	return c.ShardsCount / c.PartitionsCount()
}

// Validate checks the topology. It must pass before any table name is derived.
func (c *Config) Validate() error {
	if c.PartitionsCount() == 0 {
		return fmt.Errorf("%w: no partition urls", ErrInvalid)
	}
	for i, url := range c.PartitionURLs {
		if strings.TrimSpace(url) == "" {
			return fmt.Errorf("%w: partition %d has an empty url", ErrInvalid, i)
		}
	}
	if c.ShardsCount < 1 {
		return fmt.Errorf("%w: shards_count must be positive, got %d", ErrInvalid, c.ShardsCount)
	}
	if c.ShardsCount%c.PartitionsCount() != 0 {
		return fmt.Errorf("%w: shards_count %d is not divisible by %d partitions",
			ErrInvalid, c.ShardsCount, c.PartitionsCount())
	}
	return nil
}

// Environment variables that override a loaded file.
const (
	EnvPartitionURLs = "SHAMELESS_PARTITION_URLS"
	EnvShardsCount   = "SHAMELESS_SHARDS_COUNT"
)

// LoadEnv loads .env files into the process environment. Missing files are
// not an error.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a YAML file, expands ${VAR} references and applies environment
// overrides. It does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, expanding environment references.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPartitionURLs); v != "" {
		c.PartitionURLs = nil
		for _, url := range strings.Split(v, ",") {
			if url = strings.TrimSpace(url); url != "" {
				c.PartitionURLs = append(c.PartitionURLs, url)
			}
		}
	}
	if v := os.Getenv(EnvShardsCount); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, EnvShardsCount, v)
		}
		c.ShardsCount = n
	}
	return nil
}
