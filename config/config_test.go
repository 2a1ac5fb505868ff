package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Addr() != "0.0.0.0:1998" {
		t.Fatalf("unexpected default addr %s", cfg.Addr())
	}
}

func TestRoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "advoc.toml")
	cfg := Default()
	cfg.Store.Backend = "sqlite"
	cfg.Store.IOTimeout = Duration{2 * time.Second}

	if err := Init(path, cfg); err != nil {
		t.Fatal(err)
	}
	if err := Init(path, cfg); err == nil {
		t.Fatal("expected Init to refuse to overwrite")
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestReadPartialKeepsDefaults(t *testing.T) {
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(`
[server]
port = 8080

[store]
io_timeout = "750ms"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Store.IOTimeout.Duration != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %v", cfg.Store.IOTimeout)
	}
	if cfg.Store.Backend != "json" || cfg.Media.DefaultProfilePic != "default.png" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestReadRejectsBadDuration(t *testing.T) {
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("[session]\nttl = \"soon\"\n")); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestWriteEncodesDurations(t *testing.T) {
	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, Default()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `io_timeout = "5s"`) {
		t.Fatalf("expected duration string in output:\n%s", buf.String())
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":            "3000",
		"ALLOWED_ORIGINS": "https://a.example, https://b.example,",
		"STORE_BACKEND":   "redis",
		"REDIS_ADDR":      "localhost:6379",
		"LOG_LEVEL":       "debug",
	}
	cfg := Default()
	if err := ApplyEnv(cfg, func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 3000 || cfg.Store.Backend != "redis" || cfg.Log.Level != "debug" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	want := []string{"https://a.example", "https://b.example"}
	if diff := cmp.Diff(want, cfg.Server.AllowedOrigins); diff != "" {
		t.Fatalf("origins mismatch:\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	err := ApplyEnv(Default(), func(k string) string {
		if k == "PORT" {
			return "eighty"
		}
		return ""
	})
	if err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"backend", func(c *Config) { c.Store.Backend = "mongo" }},
		{"redis addr", func(c *Config) { c.Store.Backend = "redis" }},
		{"data dir", func(c *Config) { c.Store.DataDir = "" }},
		{"profile pic", func(c *Config) { c.Media.DefaultProfilePic = "" }},
		{"cookie", func(c *Config) { c.Session.CookieName = "" }},
		{"rate", func(c *Config) { c.RateLimit.RPS = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.edit(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{"HOST", "PORT", "ALLOWED_ORIGINS", "DATA_DIR", "STORE_BACKEND", "REDIS_ADDR", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(filepath.Join(dir, "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("expected defaults (-want +got):\n%s", diff)
	}
}
