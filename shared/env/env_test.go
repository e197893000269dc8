package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	require.NoError(t, LoadEnv())
	assert.Equal(t, "agent/config.yaml", ConfigPath)

	t.Setenv("CONFIG_PATH", "/etc/wallet-watch/config.yaml")
	require.NoError(t, LoadEnv())
	assert.Equal(t, "/etc/wallet-watch/config.yaml", ConfigPath)
}
