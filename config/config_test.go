package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "margind.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8480", cfg.ListenAddress)
	require.Equal(t, "local", cfg.Environment)
	require.NotZero(t, cfg.RateLimit.RequestsPerSecond)

	// The default was persisted and loads back identically.
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "margind.toml")
	raw := `
ListenAddress = ":9000"
DataDir = "/var/lib/margind"
RegistryFile = "registry.yaml"
Environment = "staging"

[Log]
File = "/var/log/margind/margind.log"
MaxSizeMB = 250

[RateLimit]
RequestsPerSecond = 10.0
Burst = 20
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, 250, cfg.Log.MaxSizeMB)
	require.Equal(t, 3, cfg.Log.MaxBackups)
	require.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	require.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestValidate(t *testing.T) {
	cfg := &Config{ListenAddress: ":9000", DataDir: "./data"}
	require.NoError(t, cfg.Validate())

	missing := &Config{DataDir: "./data"}
	require.Error(t, missing.Validate())

	negative := &Config{ListenAddress: ":9000", DataDir: "./data"}
	negative.RateLimit.Burst = -1
	require.Error(t, negative.Validate())
}
