package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/linkfabric/swagent/pkg/orch"
)

// Config holds all configuration for the switch agent
type Config struct {
	// Server configuration
	HTTPPort int    `env:"SWAGENT_HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Task recording. Empty disables recording.
	RecordFile string `env:"SWAGENT_RECORD_FILE"`

	// Warm restart: bake durable state into the pipeline before
	// serving change-log events.
	WarmRestart bool `env:"SWAGENT_WARM_RESTART" envDefault:"false"`

	// Tables consumed from the change log, as NAME or NAME:priority.
	Tables []string `env:"SWAGENT_TABLES" envSeparator:"," envDefault:"PORT_TABLE,VLAN_TABLE,ROUTE_TABLE"`

	// Tables whose processing is routed through the ring buffer.
	RingTables []string `env:"SWAGENT_RING_TABLES" envSeparator:","`

	// Reference fields, as TABLE.field=REFTABLE. A "[]" suffix on the
	// field marks a comma-separated list field.
	RefFields []string `env:"SWAGENT_REF_FIELDS" envSeparator:","`

	// Consumer group used when reading the change-log streams.
	ConsumerGroup string `env:"SWAGENT_CONSUMER_GROUP" envDefault:"swagent"`

	// Redis configuration
	Redis RedisConfig

	// Ring configuration
	Ring RingConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// RingConfig holds ring buffer configuration
type RingConfig struct {
	Size int `env:"SWAGENT_RING_SIZE" envDefault:"30"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	DrainInterval   time.Duration `env:"SWAGENT_DRAIN_INTERVAL" envDefault:"500ms"`
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// TableSpec is one parsed entry of Tables.
type TableSpec struct {
	Name     string
	Priority int
}

// RefFieldSpec is one parsed entry of RefFields.
type RefFieldSpec struct {
	Table    string
	Field    string
	RefTable string
	List     bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if len(c.Tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}
	if _, err := c.ParseTables(); err != nil {
		return err
	}
	if _, err := c.RefFieldSpecs(); err != nil {
		return err
	}

	if c.Ring.Size < 1 {
		return fmt.Errorf("ring size must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// ParseTables expands the Tables entries into name/priority pairs.
func (c *Config) ParseTables() ([]TableSpec, error) {
	specs := make([]TableSpec, 0, len(c.Tables))
	for _, raw := range c.Tables {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, prio := raw, 0
		if i := strings.LastIndex(raw, orch.Delimiter); i >= 0 {
			name = raw[:i]
			if _, err := fmt.Sscanf(raw[i+1:], "%d", &prio); err != nil {
				return nil, fmt.Errorf("invalid table priority in %q: %w", raw, err)
			}
		}
		if name == "" {
			return nil, fmt.Errorf("empty table name in %q", raw)
		}
		specs = append(specs, TableSpec{Name: name, Priority: prio})
	}
	return specs, nil
}

// RefFieldSpecs expands the RefFields entries.
func (c *Config) RefFieldSpecs() ([]RefFieldSpec, error) {
	specs := make([]RefFieldSpec, 0, len(c.RefFields))
	for _, raw := range c.RefFields {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		lhs, refTable, ok := strings.Cut(raw, "=")
		if !ok || refTable == "" {
			return nil, fmt.Errorf("invalid reference field %q (want TABLE.field=REFTABLE)", raw)
		}
		table, field, ok := strings.Cut(lhs, ".")
		if !ok || table == "" || field == "" {
			return nil, fmt.Errorf("invalid reference field %q (want TABLE.field=REFTABLE)", raw)
		}
		list := strings.HasSuffix(field, "[]")
		if list {
			field = strings.TrimSuffix(field, "[]")
		}
		specs = append(specs, RefFieldSpec{Table: table, Field: field, RefTable: refTable, List: list})
	}
	return specs, nil
}

// IsRingTable reports whether a table is routed through the ring.
func (c *Config) IsRingTable(table string) bool {
	for _, t := range c.RingTables {
		if strings.TrimSpace(t) == table {
			return true
		}
	}
	return false
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
