package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "YAHALOM_CONFIG"
	// ConfigFileName is the default config file name
	ConfigFileName = "yahalom.yaml"
	// ConfigDirName is the config directory name under XDG
	ConfigDirName = "yahalom"
)

// FindConfigPath searches for a config file in priority order and returns
// an empty string if none exists
func FindConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if fileExists(path) {
			return path
		}
	}

	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}

	for _, dir := range configDirs() {
		path := filepath.Join(dir, ConfigDirName, "config.yaml")
		if fileExists(path) {
			return path
		}
	}

	return ""
}

// DefaultConfigPath returns the preferred location for a new config file
func DefaultConfigPath() string {
	if dirs := configDirs(); len(dirs) > 0 && dirs[0] != "/etc" {
		return filepath.Join(dirs[0], ConfigDirName, "config.yaml")
	}
	return ConfigFileName
}

// configDirs lists the XDG config home, ~/.config and /etc in lookup order
func configDirs() []string {
	var dirs []string
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		dirs = append(dirs, xdgHome)
	}
	if home := os.Getenv("HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config"))
	}
	return append(dirs, "/etc")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
