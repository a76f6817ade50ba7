package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "be-ar-invoicing", cfg.Service.Name)
	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "https://api.xero.com", cfg.Xero.APIBaseURL)
	assert.Contains(t, cfg.Xero.Scopes, "offline_access")
	assert.Equal(t, 10*time.Minute, cfg.Redis.StateTTL)
}

func TestLoadRequiresXeroCredentialsOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XERO_CLIENT_ID")

	t.Setenv("XERO_CLIENT_ID", "client")
	t.Setenv("XERO_CLIENT_SECRET", "secret")
	t.Setenv("STATE_SECRET", "too-short")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATE_SECRET")

	t.Setenv("STATE_SECRET", "0123456789abcdef0123456789abcdef")
	_, err = Load()
	require.NoError(t, err)
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, Database: "ar", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5433/ar?sslmode=require", d.DSN())
}

func TestLoadCLIDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetCLIDefaults()
	viper.Set("server_url", "https://dash.example.com/")

	cfg, err := LoadCLI()
	require.NoError(t, err)

	assert.Equal(t, "https://dash.example.com", cfg.ServerURL)
	assert.Equal(t, 600, cfg.Popup.Width)
	assert.Equal(t, 5*time.Minute, cfg.Popup.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Popup.PollInterval)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrency)
	assert.Equal(t, uint(5), cfg.Batch.ReprobeAttempts)
}

func TestLoadCLIRequiresServerURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetCLIDefaults()
	viper.Set("server_url", "  ")

	_, err := LoadCLI()
	require.Error(t, err)
}
