// Package config loads the server configuration from a TOML file, a .env
// file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Store     StoreConfig     `toml:"store"`
	Media     MediaConfig     `toml:"media"`
	Session   SessionConfig   `toml:"session"`
	Log       LogConfig       `toml:"log"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	PublicDir      string   `toml:"public_dir"` // static files served at /
}

// StoreConfig selects and configures the collection backend.
// This uses a tagged union pattern - the Backend field determines which other fields are relevant.
type StoreConfig struct {
	Backend   string   `toml:"backend"`  // "json" (default), "sqlite", "redis" or "memory"
	DataDir   string   `toml:"data_dir"` // json and sqlite
	IOTimeout Duration `toml:"io_timeout"`

	// Redis-specific fields (only used when Backend == "redis")
	RedisAddr   string `toml:"redis_addr,omitempty"`
	RedisPrefix string `toml:"redis_prefix,omitempty"`
}

// MediaConfig holds the directories uploads are placed in.
type MediaConfig struct {
	UploadsDir         string `toml:"uploads_dir"`
	BusinessUploadsDir string `toml:"business_uploads_dir"`
	ProfilePicsDir     string `toml:"profile_pics_dir"`
	DefaultProfilePic  string `toml:"default_profile_pic"`
	MaxUploadBytes     int64  `toml:"max_upload_bytes"`
}

// SessionConfig holds cookie session settings.
type SessionConfig struct {
	CookieName string   `toml:"cookie_name"`
	TTL        Duration `toml:"ttl"`
	Secure     bool     `toml:"secure"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// RateLimitConfig bounds requests per client on the write and auth routes.
type RateLimitConfig struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Default returns the stock configuration: port
// 1998, JSON files in the working directory and media under public/.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           1998,
			AllowedOrigins: []string{"*"},
			PublicDir:      "public",
		},
		Store: StoreConfig{
			Backend:   "json",
			DataDir:   ".",
			IOTimeout: Duration{5 * time.Second},
		},
		Media: MediaConfig{
			UploadsDir:         filepath.Join("public", "uploads"),
			BusinessUploadsDir: filepath.Join("public", "business_uploads"),
			ProfilePicsDir:     filepath.Join("public", "profile_pics"),
			DefaultProfilePic:  "default.png",
			MaxUploadBytes:     64 << 20,
		},
		Session: SessionConfig{
			CookieName: "advoc_session",
			TTL:        Duration{24 * time.Hour},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r on top of the defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then the TOML file at
// path if it exists, then .env, then the process environment. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := ReadFromFile(path)
		switch {
		case err == nil:
			cfg = fileCfg
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load(".env")

	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any of the supported environment variables
// that getenv reports as set.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := getenv("DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Store.Backend {
	case "json", "sqlite":
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir required for %s backend", c.Store.Backend)
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr required for redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend: %q (supported: json, sqlite, redis, memory)", c.Store.Backend)
	}
	if c.Media.DefaultProfilePic == "" {
		return fmt.Errorf("media.default_profile_pic must not be empty")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name must not be empty")
	}
	if c.RateLimit.Burst < 0 || c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Init writes cfg to a new file at path. It refuses to overwrite.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
