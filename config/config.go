// Package config loads the YAML configuration of approvalctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/songzhibin97/approval-engine/directory"
	"github.com/songzhibin97/approval-engine/escalation"
	"github.com/songzhibin97/approval-engine/rules"
	"github.com/songzhibin97/approval-engine/storage"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the root of the approvalctl configuration file.
type Config struct {
	Log        Log        `yaml:"log"`
	Node       Node       `yaml:"node"`
	Storage    Storage    `yaml:"storage"`
	Escalation Escalation `yaml:"escalation"`
	Directory  Directory  `yaml:"directory"`
	Routing    Routing    `yaml:"routing"`
}

// Log selects the log level and whether output is human-readable.
type Log struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// DefaultEpoch is the snowflake epoch. It must never move once a persistent
// store holds IDs generated from it.
var DefaultEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Node identifies this process to the snowflake ID generator. Every process
// sharing a store needs its own MachineID and the same Epoch.
type Node struct {
	MachineID uint16    `yaml:"machineID"`
	Epoch     time.Time `yaml:"epoch"`
}

// Storage picks the request store backend.
type Storage struct {
	Driver string               `yaml:"driver"`
	Redis  storage.RedisOptions `yaml:"redis"`
}

// Escalation controls the sweep schedule and the retention of closed requests.
type Escalation struct {
	Interval time.Duration `yaml:"interval"`
	// Retention is how long cancelled and completed requests are kept
	// before purge removes them.
	Retention time.Duration `yaml:"retention"`
}

// Directory lists the users and the approver roles they hold.
type Directory struct {
	Users []directory.Entry `yaml:"users"`
}

// Routing is the route table; it replaces the built-in routes when present.
type Routing struct {
	Routes []rules.Route `yaml:"routes"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		Log:  Log{Level: "info", Console: true},
		Node: Node{MachineID: 1, Epoch: DefaultEpoch},
		Storage: Storage{
			Driver: DriverMemory,
			Redis: storage.RedisOptions{
				Addr:         "localhost:6379",
				PoolSize:     10,
				MinIdleConns: 2,
				IdleTimeout:  5 * time.Minute,
			},
		},
		Escalation: Escalation{
			Interval:  escalation.DefaultInterval,
			Retention: 90 * 24 * time.Hour,
		},
		Routing: Routing{Routes: rules.DefaultRoutes()},
	}
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg and validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks the values a process cannot start without.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	if c.Node.Epoch.IsZero() || c.Node.Epoch.After(time.Now()) {
		return fmt.Errorf("%w: node.epoch must be set and in the past", ErrInvalid)
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("%w: storage.redis.addr is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrInvalid, c.Storage.Driver)
	}
	if c.Escalation.Interval <= 0 {
		return fmt.Errorf("%w: escalation.interval must be positive", ErrInvalid)
	}
	if c.Escalation.Retention < 0 {
		return fmt.Errorf("%w: escalation.retention must not be negative", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Directory.Users))
	for _, u := range c.Directory.Users {
		if u.ID == "" {
			return fmt.Errorf("%w: directory user without id", ErrInvalid)
		}
		if seen[u.ID] {
			return fmt.Errorf("%w: duplicate directory user %q", ErrInvalid, u.ID)
		}
		seen[u.ID] = true
	}
	for i, r := range c.Routing.Routes {
		if !r.Type.Valid() {
			return fmt.Errorf("%w: routing.routes[%d]: unknown type %q", ErrInvalid, i, r.Type)
		}
		if len(r.Steps) == 0 {
			return fmt.Errorf("%w: routing.routes[%d]: no steps", ErrInvalid, i)
		}
	}
	return nil
}

// Logger builds the process logger from the log section.
func (c *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if c.Log.Console {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
