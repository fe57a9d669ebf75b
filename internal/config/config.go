// Package config provides configuration management for the yahalom server.
//
// Config file locations (priority order):
//  1. $YAHALOM_CONFIG
//  2. ./yahalom.yaml
//  3. $XDG_CONFIG_HOME/yahalom/config.yaml
//  4. ~/.config/yahalom/config.yaml
//  5. /etc/yahalom/config.yaml
//
// Files ending in .toml are decoded as TOML, everything else as YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddr      = ":3000"
	defaultDataDir   = "./data"
	defaultQuestions = "questions.json"
	defaultTests     = "tests.json"
	defaultFields    = "fields.json"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, path, fmt.Errorf("parse config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path, as TOML when the path ends in
// .toml and as YAML otherwise
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(c); err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
	}

	return os.WriteFile(path, data, 0644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = defaultDataDir
	}
	if c.Storage.Collections.Questions == "" {
		c.Storage.Collections.Questions = defaultQuestions
	}
	if c.Storage.Collections.Tests == "" {
		c.Storage.Collections.Tests = defaultTests
	}
	if c.Storage.Collections.Fields == "" {
		c.Storage.Collections.Fields = defaultFields
	}
	if c.Replica.SQL != nil && c.Replica.SQL.Driver == "" {
		c.Replica.SQL.Driver = "sqlite"
	}
	if c.Replica.S3 != nil && c.Replica.S3.Region == "" {
		c.Replica.S3.Region = "us-east-1"
	}
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.Replica.SQL != nil {
		switch c.Replica.SQL.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Errorf("replica.sql.driver: unknown driver %q", c.Replica.SQL.Driver))
		}
		if c.Replica.SQL.DSN == "" {
			errs = append(errs, errors.New("replica.sql.dsn is required"))
		}
	}
	if c.Replica.S3 != nil && c.Replica.S3.Bucket == "" {
		errs = append(errs, errors.New("replica.s3.bucket is required"))
	}
	for _, h := range c.Auth.TokenHashes {
		if !strings.HasPrefix(h, "$2") {
			errs = append(errs, errors.New("auth.token_hashes: entries must be bcrypt hashes"))
			break
		}
	}
	return errors.Join(errs...)
}

// CollectionPaths returns the collection file of every collection, keyed by
// collection name
func (c *Config) CollectionPaths() map[string]string {
	dir := c.Storage.DataDir
	return map[string]string{
		"questions": filepath.Join(dir, c.Storage.Collections.Questions),
		"tests":     filepath.Join(dir, c.Storage.Collections.Tests),
		"fields":    filepath.Join(dir, c.Storage.Collections.Fields),
	}
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Listen: %s, Data: %s\n", c.Server.Addr, c.Storage.DataDir)
	summary += fmt.Sprintf("Auth: %d token(s)", len(c.Auth.TokenHashes))
	if c.Replica.Enabled {
		summary += ", Replica:"
		if c.Replica.SQL != nil {
			summary += " " + c.Replica.SQL.Driver
		}
		if c.Replica.S3 != nil {
			summary += " s3://" + c.Replica.S3.Bucket
		}
	}
	return summary
}
