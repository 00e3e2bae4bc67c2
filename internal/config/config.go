package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so it reads as "30s" in TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents ~/.dealdesk/config.toml.
type Config struct {
	// BaseURL is the REST authority, including any path prefix.
	BaseURL string `toml:"base_url"`
	// UserID identifies the current user; message ownership is derived from
	// it, never trusted from the wire.
	UserID string `toml:"user_id"`
	// Token is an inline bearer credential. TokenFile points at a file
	// holding one; it wins over Token when both are set.
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`

	Profile string `toml:"profile"`

	RequestTimeout Duration `toml:"request_timeout"`
	MaxRetries     int      `toml:"max_retries"`
	RetryDelay     Duration `toml:"retry_delay"`

	PollInterval Duration `toml:"poll_interval"`
	DisableCache bool     `toml:"disable_cache"`
	MetricsAddr  string   `toml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:        "http://localhost:9000/api",
		Profile:        "default",
		RequestTimeout: Duration(30 * time.Second),
		MaxRetries:     3,
		RetryDelay:     Duration(time.Second),
		PollInterval:   Duration(30 * time.Second),
	}
}

// Load reads config from the given path, layered over defaults. A missing
// file yields the defaults without error; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// applyEnv overlays DEALDESK_* environment variables. A .env file loaded by
// the binary (godotenv) lands here too.
func (c *Config) applyEnv() {
	if v := os.Getenv("DEALDESK_API_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("DEALDESK_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("DEALDESK_USER_ID"); v != "" {
		c.UserID = v
	}
}
