package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Monitor.Concurrency)
	assert.Equal(t, 15*time.Second, cfg.Monitor.ProviderTimeout)
	assert.Equal(t, 1000000.0, cfg.Classification.WhaleUSD)
	assert.Equal(t, []string{"alchemy", "moralis", "etherscan"}, cfg.Providers.Order["ethereum"])
	assert.Equal(t, "X-Owner-ID", cfg.App.OwnerHeader)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
monitor:
  concurrency: 2
  provider_timeout: 3s
providers:
  alchemy:
    timeout: 1s
  order:
    ethereum: [etherscan]
classification:
  whale_usd: 50000
  exchange_addresses:
    ethereum: ["0x28c6c06298d514db089934071355e5743bf21d60"]
`)
	t.Setenv("MONITOR_SECRET", "s3cret")
	t.Setenv("ALCHEMY_API_KEY", "alchemy-key")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Monitor.Concurrency)
	assert.Equal(t, "s3cret", cfg.Monitor.Secret)
	assert.Equal(t, "alchemy-key", cfg.Providers.Alchemy.APIKey)
	assert.Equal(t, []string{"etherscan"}, cfg.Providers.Order["ethereum"])
	assert.Equal(t, 50000.0, cfg.Classification.WhaleUSD)
	assert.Len(t, cfg.Classification.ExchangeAddresses["ethereum"], 1)

	assert.Equal(t, time.Second, cfg.ProviderTimeout("alchemy"))
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout("moralis"))
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
providers:
  order:
    ethereum: [alchemy, covalent]
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "covalent")
}
