package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/dmaguire/sigenflux/internal/app"
)

func noEnv() []string { return nil }

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		cfg, err := loadConfig("", "", nil, noEnv)
		require.NoError(t, err)

		assert.Equal(t, app.DefaultConfigTimezone, cfg.Timezone)
		assert.Equal(t, app.DefaultConfigTokenURL, cfg.Sigen.TokenURL)
		assert.Equal(t, app.DefaultConfigAuthStorage, cfg.Auth.Storage)
		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	})

	t.Run("config file values", func(t *testing.T) {
		path := writeTempFile(t, "config.toml", `
log_level = "debug"
timezone = "Australia/Sydney"

[sigen]
username = "user@example.com"
station_id = "12345"

[auth]
storage = "env"
env_key = "SIGEN_CREDS"

[weather]
latitude = "53.35"
longitude = "-6.26"
`)

		cfg, err := loadConfig(path, "", nil, noEnv)
		require.NoError(t, err)

		assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
		assert.Equal(t, "Australia/Sydney", cfg.Timezone)
		assert.Equal(t, "user@example.com", cfg.Sigen.Username)
		assert.Equal(t, "12345", cfg.Sigen.StationID)
		assert.Equal(t, app.CredentialStorageTypeEnv, cfg.Auth.Storage)
		assert.Equal(t, "SIGEN_CREDS", cfg.Auth.EnvKey)
		assert.True(t, cfg.Weather.Enabled())

		// Untouched settings still get defaults.
		assert.Equal(t, app.DefaultConfigClientAuth, cfg.Sigen.ClientAuth)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeTempFile(t, "config.toml", `
timezone = "Australia/Sydney"

[sigen]
username = "file@example.com"
`)
		environ := func() []string {
			return []string{
				"SIGENFLUX_SIGEN__USERNAME=env@example.com",
				"SIGENFLUX_INFLUX__BUCKET=energy",
				"UNRELATED=ignored",
			}
		}

		cfg, err := loadConfig(path, "", nil, environ)
		require.NoError(t, err)

		assert.Equal(t, "env@example.com", cfg.Sigen.Username)
		assert.Equal(t, "energy", cfg.Influx.Bucket)
		assert.Equal(t, "Australia/Sydney", cfg.Timezone, "file value survives when env does not set it")
	})

	t.Run("dotenv file feeds the environment", func(t *testing.T) {
		path := writeTempFile(t, ".env", "SIGENFLUX_SIGEN__USERNAME=dotenv@example.com\n")
		t.Cleanup(func() { _ = os.Unsetenv("SIGENFLUX_SIGEN__USERNAME") })

		cfg, err := loadConfig("", path, nil, os.Environ)
		require.NoError(t, err)
		assert.Equal(t, "dotenv@example.com", cfg.Sigen.Username)
	})

	t.Run("missing dotenv file is fine", func(t *testing.T) {
		_, err := loadConfig("", filepath.Join(t.TempDir(), "absent.env"), nil, noEnv)
		require.NoError(t, err)
	})

	t.Run("missing config file is an error", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"), "", nil, noEnv)
		require.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := writeTempFile(t, "config.toml", `log_format = "yaml"`)
		_, err := loadConfig(path, "", nil, noEnv)
		require.Error(t, err)
	})
}

func TestExtractAndTransformFlags(t *testing.T) {
	var got map[string]any
	cmd := &cli.Command{
		Name: "test",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sigen--station-id"},
			&cli.StringFlag{Name: "log-level"},
			&cli.StringFlag{Name: "untouched"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			got = extractAndTransformFlags(cmd)
			return nil
		},
	}

	err := cmd.Run(context.Background(),
		[]string{"test", "--sigen--station-id", "12345", "--log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"sigen.station_id": "12345",
		"log_level":        "debug",
	}, got)
}
