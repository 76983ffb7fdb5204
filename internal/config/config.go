// Package config resolves compass-tui settings from defaults, an optional
// YAML file, the environment and command-line flags, in that order.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8501/api"
	DefaultMarkdownStyle  = "auto"
	DefaultRequestTimeout = 15 * time.Second
)

type Config struct {
	BaseURL           string        `yaml:"base_url"`
	SessionID         string        `yaml:"session_id"`
	LogFile           string        `yaml:"log_file"`
	LogLevel          string        `yaml:"log_level"`
	MarkdownStyle     string        `yaml:"markdown_style"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"`
	AltScreen         bool          `yaml:"alt_screen"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		LogLevel:       "info",
		MarkdownStyle:  DefaultMarkdownStyle,
		RequestTimeout: DefaultRequestTimeout,
		AltScreen:      true,
	}
}

// LoadFile overlays the YAML document at path onto cfg. A missing path is
// not an error when optional is true.
func LoadFile(cfg *Config, path string, optional bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

// LoadEnv reads .env (if present) and overlays COMPASS_* variables onto cfg.
func LoadEnv(cfg *Config) {
	_ = godotenv.Load()
	cfg.BaseURL = envOr("COMPASS_BASE_URL", cfg.BaseURL)
	cfg.SessionID = envOr("COMPASS_SESSION_ID", cfg.SessionID)
	cfg.LogFile = envOr("COMPASS_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = envOr("COMPASS_LOG_LEVEL", cfg.LogLevel)
	cfg.MarkdownStyle = envOr("COMPASS_MARKDOWN_STYLE", cfg.MarkdownStyle)
	cfg.RequestTimeout = envOrDuration("COMPASS_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.StreamIdleTimeout = envOrDuration("COMPASS_STREAM_IDLE_TIMEOUT", cfg.StreamIdleTimeout)
	cfg.AltScreen = envOrBool("COMPASS_ALT_SCREEN", cfg.AltScreen)
}

// Normalize trims and clamps values in place.
func (c *Config) Normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.SessionID = strings.TrimSpace(c.SessionID)
	c.LogFile = strings.TrimSpace(c.LogFile)
	c.MarkdownStyle = normalizeStyle(c.MarkdownStyle)
	c.RequestTimeout = clampDuration(c.RequestTimeout, time.Second, 5*time.Minute)
	if c.StreamIdleTimeout < 0 {
		c.StreamIdleTimeout = 0
	}
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.Wrap(err, "invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("base url %q must use http or https", c.BaseURL)
	}
	if u.Host == "" {
		return errors.Errorf("base url %q has no host", c.BaseURL)
	}
	return nil
}

func normalizeStyle(style string) string {
	normalized := strings.ToLower(strings.TrimSpace(style))
	switch normalized {
	case "dark", "light", "notty", "auto":
		return normalized
	default:
		return DefaultMarkdownStyle
	}
}

func clampDuration(value, min, max time.Duration) time.Duration {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
