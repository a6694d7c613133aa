// Package config loads myday settings from defaults, a YAML file and the
// environment, and sets up log output for long-running commands.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/magicmac/myday/internal/mirror"
)

// EnvPrefix prefixes every environment override (MYDAY_WIDGET_PORT, ...).
const EnvPrefix = "MYDAY"

// conventional names accepted in addition to the prefixed ones
var envAliases = map[string]string{
	"supabase.url":              "SUPABASE_URL",
	"supabase.anon_key":         "SUPABASE_ANON_KEY",
	"supabase.service_role_key": "SUPABASE_SERVICE_ROLE_KEY",
	"supabase.jwt_secret":       "SUPABASE_JWT_SECRET",
	"anthropic.api_key":         "ANTHROPIC_API_KEY",
}

// ErrMissingBackend is returned when the backend URL or anon key is unset.
var ErrMissingBackend = errors.New("supabase url and anon key are required (run `myday config init` or set SUPABASE_URL and SUPABASE_ANON_KEY)")

// Load merges defaults, the YAML file at path (if it exists) and the
// environment. An empty path means DefaultPath().
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("supabase.url", d.Supabase.URL)
	v.SetDefault("supabase.anon_key", d.Supabase.AnonKey)
	v.SetDefault("supabase.service_role_key", d.Supabase.ServiceRoleKey)
	v.SetDefault("supabase.jwt_secret", d.Supabase.JWTSecret)
	v.SetDefault("anthropic.api_key", d.Anthropic.APIKey)
	v.SetDefault("widget.host", d.Widget.Host)
	v.SetDefault("widget.port", d.Widget.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allow_origins", d.Server.AllowOrigins)
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// RequireBackend checks that the backend can be reached.
func (c *Config) RequireBackend() error {
	if strings.TrimSpace(c.Supabase.URL) == "" || strings.TrimSpace(c.Supabase.AnonKey) == "" {
		return ErrMissingBackend
	}
	return nil
}

// MirrorPath returns the path of the widget mirror file
func (c *Config) MirrorPath() string {
	return filepath.Join(c.DataDir, mirror.FileName)
}

// DBPath returns the path of the local database
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "myday.db")
}

// LogOutput returns console teed into the rotating log file, or console
// alone when no file is configured. Close the returned closer on exit.
func (c *Config) LogOutput(console io.Writer) (io.Writer, io.Closer) {
	if c.Log.File == "" {
		return console, nopCloser{}
	}
	file := c.Log.File
	if !filepath.IsAbs(file) {
		file = filepath.Join(c.DataDir, file)
	}
	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
	}
	return io.MultiWriter(console, rotating), rotating
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
