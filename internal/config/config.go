// Package config holds the daemon's bootstrap configuration file and the
// durable runtime settings layer over the store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bootstrap configuration loaded from mindvault.yaml before
// the store is open. Runtime-tunable values live in the settings table
// instead; this file only carries what is needed to boot.
type Config struct {
	// DataDir is where the SQLite database lives.
	DataDir string `yaml:"data_dir"`
	// DatabaseFile overrides the database filename inside DataDir.
	DatabaseFile string `yaml:"database_file"`
	// ListenAddr is the control-surface bind address.
	ListenAddr string `yaml:"listen_addr"`
	// VaultID selects the vault the agent works against.
	VaultID string `yaml:"vault_id"`
	// ShutdownGrace bounds how long an in-flight task may run after a
	// stop request before the process exits unconditionally.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// DefaultConfig returns the bootstrap defaults.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:       filepath.Join(home, ".mindvault"),
		DatabaseFile:  "mindvault.db",
		ListenAddr:    "127.0.0.1:4727",
		VaultID:       "default",
		ShutdownGrace: 30 * time.Second,
	}
}

// Load reads the config file at path, applying defaults for absent fields.
// A missing file is not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	def := DefaultConfig()
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.DatabaseFile == "" {
		cfg.DatabaseFile = def.DatabaseFile
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.VaultID == "" {
		cfg.VaultID = def.VaultID
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = def.ShutdownGrace
	}
	return cfg, nil
}

// DatabasePath returns the full path of the SQLite database.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.DatabaseFile)
}
