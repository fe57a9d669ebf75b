package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version int           `yaml:"version" toml:"version"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
	Replica ReplicaConfig `yaml:"replica" toml:"replica"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string   `yaml:"addr" toml:"addr"`
	CORSOrigin      string   `yaml:"cors_origin" toml:"cors_origin"`
	ReadTimeout     Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// StorageConfig locates the collection files
type StorageConfig struct {
	DataDir       string            `yaml:"data_dir" toml:"data_dir"`
	CreateMissing bool              `yaml:"create_missing" toml:"create_missing"`
	SeedFile      string            `yaml:"seed_file,omitempty" toml:"seed_file"`
	Collections   CollectionsConfig `yaml:"collections" toml:"collections"`
}

// CollectionsConfig maps each collection to its file name under DataDir
type CollectionsConfig struct {
	Questions string `yaml:"questions" toml:"questions"`
	Tests     string `yaml:"tests" toml:"tests"`
	Fields    string `yaml:"fields" toml:"fields"`
}

// AuthConfig holds bcrypt hashes of accepted API tokens.
// An empty list disables authentication.
type AuthConfig struct {
	TokenHashes []string `yaml:"token_hashes,omitempty" toml:"token_hashes"`
}

// ReplicaConfig configures snapshot backups of the collections
type ReplicaConfig struct {
	Enabled bool        `yaml:"enabled" toml:"enabled"`
	SQL     *SQLReplica `yaml:"sql,omitempty" toml:"sql"`
	S3      *S3Replica  `yaml:"s3,omitempty" toml:"s3"`
}

// SQLReplica stores snapshots in a SQL table (driver: sqlite or postgres)
type SQLReplica struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// S3Replica stores snapshots as objects in an S3 compatible bucket
type S3Replica struct {
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Region    string `yaml:"region,omitempty" toml:"region"`
	Endpoint  string `yaml:"endpoint,omitempty" toml:"endpoint"`
	Prefix    string `yaml:"prefix,omitempty" toml:"prefix"`
	PathStyle bool   `yaml:"path_style,omitempty" toml:"path_style"`
}

// Duration wraps time.Duration for YAML and TOML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// MarshalText implements encoding.TextMarshaler, used by the TOML encoder
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
