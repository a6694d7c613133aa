package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Widget: ListenConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8788,
			AllowOrigins: []string{"*"},
			URL:          "http://127.0.0.1:8788",
		},
		Log: LogConfig{
			File:       "myday.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

const defaultHeader = `# myday configuration
#
# Secrets can be left empty here and supplied through the environment:
# SUPABASE_URL, SUPABASE_ANON_KEY, SUPABASE_SERVICE_ROLE_KEY,
# SUPABASE_JWT_SECRET, ANTHROPIC_API_KEY (or MYDAY_<SECTION>_<KEY>).

`

// WriteDefault writes the default configuration to path, creating the parent
// directory. The file may later hold keys, so it is only readable by the
// owner.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, append([]byte(defaultHeader), data...), 0600)
}

// DefaultDataDir returns ~/.myday, or .myday when there is no home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".myday"
	}
	return filepath.Join(home, ".myday")
}

// DefaultPath returns the path of the user config file
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}
