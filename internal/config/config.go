// Package config loads code-stats settings from a config file and the environment using Viper,
// and notifies subscribers when they change.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultAPIURL is the public code-stats pulses endpoint.
	DefaultAPIURL = "https://codestats.net/api/my/pulses"
	// DefaultPulseTimeout is the delay between the first activity of a burst and delivery.
	DefaultPulseTimeout = 10 * time.Second
	// EnvPrefix prefixes every environment override (CODESTATS_API_KEY, ...).
	EnvPrefix = "CODESTATS"
)

// Settings holds the daemon configuration.
type Settings struct {
	// APIURL is the pulses endpoint (API_URL).
	APIURL string `mapstructure:"API_URL"`
	// APIKey is the machine token sent with every pulse (API_KEY). Required; no default.
	APIKey string `mapstructure:"API_KEY"`
	// PulseTimeout is the fixed delay after the first activity before pulses are sent (e.g. "10s").
	PulseTimeout time.Duration `mapstructure:"PULSE_TIMEOUT"`
	// HTTPTimeout bounds a single POST; zero means no timeout.
	HTTPTimeout time.Duration `mapstructure:"HTTP_TIMEOUT"`
	// MaxBacklog bounds the retry backlog; zero keeps every failed pulse.
	MaxBacklog int `mapstructure:"MAX_BACKLOG"`
	// GRPCAddr is where the gRPC health service listens (e.g. 127.0.0.1:7654); empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// OTelEndpoint is the OTLP collector; empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure forces plaintext to an https collector.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is text or json.
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// HasRequiredSettings reports whether both the API URL and key are set.
func (s Settings) HasRequiredSettings() bool {
	return strings.TrimSpace(s.APIURL) != "" && strings.TrimSpace(s.APIKey) != ""
}

// DefaultPath returns $XDG_CONFIG_HOME/code-stats/config.env (or the OS equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.env"
	}
	return filepath.Join(dir, "code-stats", "config.env")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("env")
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// The standard OTel variables are honored without the prefix too.
	_ = v.BindEnv("OTEL_EXPORTER_OTLP_ENDPOINT", EnvPrefix+"_OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("OTEL_EXPORTER_OTLP_INSECURE", EnvPrefix+"_OTEL_EXPORTER_OTLP_INSECURE", "OTEL_EXPORTER_OTLP_INSECURE")

	v.SetDefault("API_URL", DefaultAPIURL)
	v.SetDefault("API_KEY", "")
	v.SetDefault("PULSE_TIMEOUT", DefaultPulseTimeout.String())
	v.SetDefault("HTTP_TIMEOUT", "0s")
	v.SetDefault("MAX_BACKLOG", 0)
	v.SetDefault("GRPC_ADDR", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	return v
}

// Load reads the config file at path (if present), then builds and validates Settings.
// A missing file is ignored; environment variables override the file.
func Load(path string) (Settings, error) {
	v := newViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	s.APIURL = strings.TrimSpace(s.APIURL)
	s.APIKey = strings.TrimSpace(s.APIKey)

	if s.PulseTimeout <= 0 {
		return Settings{}, errors.New("config: PULSE_TIMEOUT must be positive")
	}
	if s.HTTPTimeout < 0 {
		return Settings{}, errors.New("config: HTTP_TIMEOUT must not be negative")
	}
	if s.MaxBacklog < 0 {
		return Settings{}, errors.New("config: MAX_BACKLOG must not be negative")
	}
	switch strings.ToLower(s.LogFormat) {
	case "text", "json":
	default:
		return Settings{}, fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", s.LogFormat)
	}
	return s, nil
}

// WriteTemplate writes a starter config file at path unless one already exists.
// It reports whether a file was written.
func WriteTemplate(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("config: create config dir: %w", err)
	}
	v := viper.New()
	if filepath.Ext(path) == "" {
		v.SetConfigType("env")
	}
	v.Set("API_URL", DefaultAPIURL)
	v.Set("API_KEY", "")
	v.Set("PULSE_TIMEOUT", DefaultPulseTimeout.String())
	if err := v.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return false, nil
		}
		return false, fmt.Errorf("config: write template: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		slog.Default().Warn("config: restrict template permissions", "path", path, "error", err)
	}
	return true, nil
}

// RedactKey hides all but the first characters of an API key for logging.
func RedactKey(key string) string {
	if key == "" {
		return "<unset>"
	}
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
