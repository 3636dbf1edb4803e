package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/dmaguire/sigenflux/internal/credstore"
	"github.com/dmaguire/sigenflux/internal/sigen"
	"github.com/dmaguire/sigenflux/internal/tokenmanager"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// CredentialStorageType represents where the persisted credential set lives.
type CredentialStorageType string

const (
	CredentialStorageTypeFile    CredentialStorageType = "file"
	CredentialStorageTypeEnv     CredentialStorageType = "env"
	CredentialStorageTypeKeyring CredentialStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat   = LogFormatText
	DefaultConfigAuthStorage = CredentialStorageTypeFile
	DefaultConfigBaseURL     = sigen.DefaultBaseURL
	DefaultConfigTokenURL    = sigen.DefaultBaseURL + "/auth/oauth/token"
	// DefaultConfigClientAuth is the station API's public client pair
	// ("sigen:sigen"), Base64 encoded.
	DefaultConfigClientAuth = "c2lnZW46c2lnZW4="
	DefaultConfigTimezone   = "Europe/Dublin"
	DefaultConfigInfluxURL  = "http://localhost:8086"
)

// SigenConfig holds station API and account settings. Username and password
// may stay empty when a valid credential set is already persisted; they are
// only needed for the password grant. Password is the pre-transformed secret
// the token endpoint expects, treated as opaque.
type SigenConfig struct {
	BaseURL    string `json:"base_url" validate:"required,url"`
	TokenURL   string `json:"token_url" validate:"required,url"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	ClientAuth string `json:"client_auth" validate:"required"`
	// StationID presence is enforced by the station client, so token-only
	// invocations work before a station is configured.
	StationID string `json:"station_id"`
}

// AuthConfig describes how the credential set is persisted.
type AuthConfig struct {
	// Storage configuration - where the stored credential set lives
	Storage CredentialStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to credential file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewCredentialStore creates a credential store from the auth configuration.
func (a *AuthConfig) NewCredentialStore() (tokenmanager.Store, error) {
	switch a.Storage {
	case CredentialStorageTypeFile:
		return credstore.NewFileStore(a.File)
	case CredentialStorageTypeEnv:
		return credstore.NewEnvStore(a.EnvKey)
	case CredentialStorageTypeKeyring:
		return credstore.NewKeyringStore("sigenflux-credentials", a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// WeatherConfig holds the Open-Meteo location. Latitude and longitude are
// passed through as strings exactly as configured; leaving them empty
// disables the weather pipeline.
type WeatherConfig struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Enabled reports whether the weather pipeline is configured.
func (w *WeatherConfig) Enabled() bool {
	return w.Latitude != "" && w.Longitude != ""
}

// InfluxConfig holds the InfluxDB v2 sink settings. Presence is enforced
// when the writer is constructed, so token-only invocations don't need a
// sink configured.
type InfluxConfig struct {
	URL    string `json:"url" validate:"omitempty,url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json"`
	// Timezone is the station-local IANA timezone used for date math,
	// local API timestamps, and the weather request.
	Timezone string        `json:"timezone" validate:"required"`
	Sigen    SigenConfig   `json:"sigen"`
	Auth     AuthConfig    `json:"auth"`
	Weather  WeatherConfig `json:"weather"`
	Influx   InfluxConfig  `json:"influx"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Timezone == "" {
		c.Timezone = DefaultConfigTimezone
	}
	if c.Sigen.BaseURL == "" {
		c.Sigen.BaseURL = DefaultConfigBaseURL
	}
	if c.Sigen.TokenURL == "" {
		c.Sigen.TokenURL = DefaultConfigTokenURL
	}
	if c.Sigen.ClientAuth == "" {
		c.Sigen.ClientAuth = DefaultConfigClientAuth
	}
	if c.Influx.URL == "" {
		c.Influx.URL = DefaultConfigInfluxURL
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "sigenflux", "credentials.json")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case CredentialStorageTypeEnv:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case CredentialStorageTypeEnv:
		if c.Auth.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
