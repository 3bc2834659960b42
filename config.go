package ticketregistry

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v2"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"
)

// Registry kinds accepted in Config.Registry.
const (
	RegistryMemcached = "memcached"
	RegistryMemory    = "memory"
	RegistrySQL       = "sql"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "TICKET_REGISTRY_"

// Config is the file and environment configuration of a registry.
type Config struct {
	Registry      string          `yaml:"registry" env:"REGISTRY"`
	Codec         string          `yaml:"codec" env:"CODEC"`
	CipherKey     string          `yaml:"cipher_key" env:"CIPHER_KEY"` //hex, empty stores tickets unencrypted
	GRPCAddr      string          `yaml:"grpc_addr" env:"GRPC_ADDR"`
	EvictInterval time.Duration   `yaml:"evict_interval" env:"EVICT_INTERVAL"`
	Memcached     MemcachedConfig `yaml:"memcached" envPrefix:"MEMCACHED_"`
	SQL           SQLConfig       `yaml:"sql" envPrefix:"SQL_"`
}

// MemcachedConfig configures the memcached registry.
type MemcachedConfig struct {
	Servers      []string      `yaml:"servers" env:"SERVERS" envSeparator:","`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
}

// SQLConfig configures the SQL registry.
type SQLConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

// DefaultConfig returns the configuration used for unset values.
func DefaultConfig() *Config {
	return &Config{
		Registry:      RegistryMemcached,
		Codec:         "json",
		GRPCAddr:      ":9090",
		EvictInterval: 10 * time.Second,
		Memcached: MemcachedConfig{
			Servers: []string{"127.0.0.1:11211"},
		},
		SQL: SQLConfig{
			Driver: "sqlite",
			DSN:    "file:tickets.db",
		},
	}
}

// LoadConfig reads the YAML file at path, if path is not empty, over the
// defaults and then applies TICKET_REGISTRY_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// NewCipher returns the configured cipher, or nil when no key is set.
func (c *Config) NewCipher() (*Cipher, error) {
	if c.CipherKey == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(c.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("decode cipher key: %w", err)
	}
	return NewCipher(key)
}

// NewRegistry builds the configured registry.
func (c *Config) NewRegistry(ctx context.Context) (TicketRegistry, error) {
	codec, err := CodecByName(c.Codec)
	if err != nil {
		return nil, err
	}

	cipher, err := c.NewCipher()
	if err != nil {
		return nil, err
	}

	switch c.Registry {
	case RegistryMemcached:
		client, err := NewMemcachedClient(&MemcachedOptions{
			Servers:      c.Memcached.Servers,
			Timeout:      c.Memcached.Timeout,
			MaxIdleConns: c.Memcached.MaxIdleConns,
		})
		if err != nil {
			return nil, err
		}
		return NewMemcachedRegistry(&Options{
			Client: client,
			Codec:  codec,
			Cipher: cipher,
		}), nil

	case RegistryMemory:
		return NewMemoryRegistry(), nil

	case RegistrySQL:
		db, err := sqlx.Open(c.SQL.Driver, c.SQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("open %s database: %w", c.SQL.Driver, err)
		}

		r := NewSQLRegistry(db, codec, cipher)
		if err := r.CreateSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("create tickets table: %w", err)
		}
		return r, nil
	}

	return nil, fmt.Errorf("ticketregistry: unknown registry %q", c.Registry)
}
