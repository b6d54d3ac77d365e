// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; secrets go to the OS keychain.
//
// Values are layered: built-in defaults, then config.yaml, then WAYFARE_* environment
// variables. Command-line flags are applied by the cmd package on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"wayfare/cli/internal/xdg"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "WAYFARE_"

// Config holds non-sensitive CLI settings.
type Config struct {
	BaseURL           string        `yaml:"base_url"            env:"BASE_URL"`
	ManifestURL       string        `yaml:"manifest_url"        env:"MANIFEST_URL"`
	// ManifestPublicKey is a PEM RSA key; when set the manifest must be signed.
	ManifestPublicKey string        `yaml:"manifest_public_key" env:"MANIFEST_PUBLIC_KEY"`
	RequestTimeout    time.Duration `yaml:"request_timeout"     env:"REQUEST_TIMEOUT"`
	RefreshBuffer     time.Duration `yaml:"refresh_buffer"      env:"REFRESH_BUFFER"`
	DeviceID          string        `yaml:"device_id"           env:"DEVICE_ID"`
	LogLevel          string        `yaml:"log_level"           env:"LOG_LEVEL"`
	Verbose           bool          `yaml:"-"                   env:"VERBOSE"`

	Retry     RetryConfig     `yaml:"retry"     envPrefix:"RETRY_"`
	Keyring   KeyringConfig   `yaml:"keyring"   envPrefix:"KEYRING_"`
	Biometric BiometricConfig `yaml:"biometric" envPrefix:"BIOMETRIC_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
}

// RetryConfig parameterizes transport retries against the identity backend.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay"   env:"BASE_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay"    env:"MAX_DELAY"`
	Multiplier  float64       `yaml:"multiplier"   env:"MULTIPLIER"`
	Jitter      float64       `yaml:"jitter"       env:"JITTER"`
}

// KeyringConfig selects the secure storage backend.
type KeyringConfig struct {
	Backend string `yaml:"backend"  env:"BACKEND"`
	FileDir string `yaml:"file_dir" env:"FILE_DIR"`
	// FilePassword unlocks the encrypted file backend. Env only, never written to disk.
	FilePassword string `yaml:"-" env:"FILE_PASSWORD"`
}

// BiometricConfig selects the local step-up device.
type BiometricConfig struct {
	// Device is "none" or "terminal".
	Device string `yaml:"device" env:"DEVICE"`
}

// TelemetryConfig enables span export to an OTLP/HTTP collector, e.g.
// WAYFARE_OTEL_ENDPOINT=http://localhost:4318. Tracing is off without an endpoint.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Disabled bool   `yaml:"disabled" env:"DISABLED"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:        "https://api.wayfare.travel/api",
		RequestTimeout: 10 * time.Second,
		RefreshBuffer:  5 * time.Minute,
		LogLevel:       "info",
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.2,
		},
		Keyring:   KeyringConfig{Backend: "auto"},
		Biometric: BiometricConfig{Device: "none"},
	}
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the XDG config file, applies environment overrides and makes sure a
// device ID exists. A missing file yields defaults.
func Load() (Config, error) {
	p, err := Path()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(p)
}

// LoadFile is Load for an explicit path.
func LoadFile(p string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(p)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return c, err
	default:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", p, err)
		}
	}

	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}

	if c.DeviceID == "" {
		c.DeviceID = uuid.NewString()
		// Best effort: an unwritable config dir still yields a usable per-process ID.
		_ = SaveFile(p, c)
	}
	return c, c.Validate()
}

// Save writes configuration to the XDG config file.
func Save(c Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(p, c)
}

// SaveFile writes configuration as YAML with 0600 permissions.
func SaveFile(p string, c Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// Validate rejects configurations the runtime cannot operate with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("config: base_url is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: request_timeout must be positive")
	}
	if c.RefreshBuffer < 0 {
		return errors.New("config: refresh_buffer must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return errors.New("config: retry.max_attempts must not be negative")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return errors.New("config: retry.jitter must be within [0,1]")
	}
	switch c.Biometric.Device {
	case "", "none", "terminal":
	default:
		return fmt.Errorf("config: unknown biometric device %q", c.Biometric.Device)
	}
	return nil
}
