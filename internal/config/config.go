// Package config loads the TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// Config is the on-disk configuration.
type Config struct {
	Ledger   Ledger   `toml:"ledger"`
	Session  Session  `toml:"session"`
	Identity Identity `toml:"identity"`
	Review   Review   `toml:"review"`
	Log      Log      `toml:"log"`
}

type Ledger struct {
	Driver          string `toml:"driver"` // sqlite | redis
	Path            string `toml:"path"`
	RedisURL        string `toml:"redis_url"`
	RedisPrefix     string `toml:"redis_prefix"`
	ContractAddress string `toml:"contract_address"`
	Concurrency     int    `toml:"concurrency"`
}

type Session struct {
	ChainID      int64 `toml:"chain_id"`
	DurationDays int   `toml:"duration_days"`
}

type Identity struct {
	KeyFile string `toml:"key_file"`
}

type Review struct {
	Reviewers []string `toml:"reviewers"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text | json
}

// Dir is the default directory for the ledger database and identity key.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".biobank")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Ledger: Ledger{
			Driver:          "sqlite",
			Path:            filepath.Join(Dir(), "ledger.db"),
			RedisURL:        "redis://localhost:6379/0",
			RedisPrefix:     "biobank:",
			ContractAddress: "0x0000000000000000000000000000000000000000",
			Concurrency:     8,
		},
		Session:  Session{ChainID: 1, DurationDays: 30},
		Identity: Identity{KeyFile: filepath.Join(Dir(), "identity.key")},
		Log:      Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is true.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	_, err := toml.DecodeFile(expand(path), cfg)
	if errors.Is(err, fs.ErrNotExist) && optional {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.Ledger.Path = expand(cfg.Ledger.Path)
	cfg.Identity.KeyFile = expand(cfg.Identity.KeyFile)
	return cfg, cfg.Validate()
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Ledger.Driver {
	case "sqlite", "redis":
	case "memory":
		// ledger.Memory lives only as long as one process, and every CLI
		// command is a new process.
		return fmt.Errorf("ledger driver %q does not persist between commands (valid: sqlite, redis)", c.Ledger.Driver)
	default:
		return fmt.Errorf("unknown ledger driver %q (valid: sqlite, redis)", c.Ledger.Driver)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", c.Log.Format)
	}
	return nil
}

// Logger builds the logger described by c.Log. Logs go to stderr.
func (c *Config) Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if lvl, err := logrus.ParseLevel(c.Log.Level); err == nil {
		l.SetLevel(lvl)
	}
	if c.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}

func expand(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
