package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Widget.Port != 8787 {
		t.Errorf("Expected widget port 8787, got %d", cfg.Widget.Port)
	}
	if cfg.Server.Port != 8788 {
		t.Errorf("Expected server port 8788, got %d", cfg.Server.Port)
	}
	if cfg.Log.File != "myday.log" || cfg.Log.MaxSizeMB != 10 {
		t.Errorf("Unexpected log defaults: %+v", cfg.Log)
	}
	if err := cfg.RequireBackend(); !errors.Is(err, ErrMissingBackend) {
		t.Errorf("Expected ErrMissingBackend, got %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Widget.Host != "127.0.0.1" || cfg.Server.URL != "http://127.0.0.1:8788" {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if len(cfg.Server.AllowOrigins) != 1 || cfg.Server.AllowOrigins[0] != "*" {
		t.Errorf("Unexpected origins: %v", cfg.Server.AllowOrigins)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `data_dir: ` + dir + `
supabase:
  url: https://example.supabase.co
  anon_key: anon
widget:
  port: 9000
log:
  file: ""
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Supabase.URL != "https://example.supabase.co" || cfg.Supabase.AnonKey != "anon" {
		t.Errorf("Unexpected supabase config: %+v", cfg.Supabase)
	}
	if cfg.Widget.Port != 9000 || cfg.Widget.Host != "127.0.0.1" {
		t.Errorf("Expected merged widget config, got %+v", cfg.Widget)
	}
	if err := cfg.RequireBackend(); err != nil {
		t.Errorf("RequireBackend failed: %v", err)
	}
	if cfg.MirrorPath() != filepath.Join(dir, "widget_tasks.json") {
		t.Errorf("Unexpected mirror path %s", cfg.MirrorPath())
	}
	if cfg.DBPath() != filepath.Join(dir, "myday.db") {
		t.Errorf("Unexpected db path %s", cfg.DBPath())
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")
	t.Setenv("MYDAY_SUPABASE_ANON_KEY", "prefixed-anon")
	t.Setenv("MYDAY_SERVER_PORT", "9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Supabase.URL != "https://env.supabase.co" {
		t.Errorf("Expected SUPABASE_URL, got %q", cfg.Supabase.URL)
	}
	if cfg.Supabase.AnonKey != "prefixed-anon" {
		t.Errorf("Expected MYDAY_SUPABASE_ANON_KEY, got %q", cfg.Supabase.AnonKey)
	}
	if cfg.Anthropic.APIKey != "sk-env" {
		t.Errorf("Expected ANTHROPIC_API_KEY, got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected MYDAY_SERVER_PORT, got %d", cfg.Server.Port)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "# myday configuration") {
		t.Error("Missing header comment")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of written default failed: %v", err)
	}
	if cfg.Widget.Port != 8787 || cfg.Log.MaxBackups != 3 {
		t.Errorf("Written defaults did not round trip: %+v", cfg)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/data"); got != filepath.Join(home, "data") {
		t.Errorf("Expected %s, got %s", filepath.Join(home, "data"), got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("Absolute path changed: %s", got)
	}
}

func TestLogOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()

	var console strings.Builder
	w, closer := cfg.LogOutput(&console)
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if console.String() != "hello\n" {
		t.Errorf("Console got %q", console.String())
	}
	data, err := os.ReadFile(filepath.Join(cfg.DataDir, "myday.log"))
	if err != nil || string(data) != "hello\n" {
		t.Errorf("Log file got %q (%v)", data, err)
	}

	cfg.Log.File = ""
	w, _ = cfg.LogOutput(&console)
	if w != &console {
		t.Error("Expected console writer when no file is configured")
	}
}
