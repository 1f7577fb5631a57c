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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8099, c.Server.Port)
	assert.Equal(t, "macd-cross", c.Strategy.ID)
	assert.Equal(t, 60*time.Second, c.Polling.Interval)
	assert.Equal(t, "fmp", c.DataAPI.Provider)
	assert.Equal(t, "paper", c.Broker.Provider)
	assert.Equal(t, 256, c.Store.QueueSize)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
watchlist: [aapl, " tsla "]
polling:
  interval: 30s
strategy:
  bb_period: 14
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, c.Server.Port)
	assert.Equal(t, []string{"AAPL", "TSLA"}, c.Watchlist)
	assert.Equal(t, 30*time.Second, c.Polling.Interval)
	assert.Equal(t, 14, c.Strategy.BBPeriod)
	// untouched sections keep their defaults
	assert.Equal(t, 10*time.Second, c.Server.ReadTimeout)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: verbose
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvertedScannerPrices(t *testing.T) {
	path := writeConfig(t, `
scanner:
  min_price: 20
  max_price: 5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_price")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadWithEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
data_api:
  api_key: from-file
`)
	t.Setenv("TAPEDECK_API_KEY", "from-env")
	t.Setenv("TAPEDECK_SYMBOLS", "gme, amc")
	t.Setenv("TAPEDECK_REDIS_ADDR", "redis:6379")
	t.Setenv("TAPEDECK_STARTING_CASH", "25000")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", c.DataAPI.APIKey)
	assert.Equal(t, []string{"GME", "AMC"}, c.Watchlist)
	assert.True(t, c.Cache.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Cache.Redis.Addr)
	assert.Equal(t, 25000.0, c.Broker.StartingCash)
}

func TestLoadWithEnvBadStartingCashKeepsDefault(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("TAPEDECK_STARTING_CASH", "lots")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, c.Broker.StartingCash)
}

func TestSplitSymbols(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"aapl", []string{"AAPL"}},
		{"aapl,tsla", []string{"AAPL", "TSLA"}},
		{" aapl , , tsla ,", []string{"AAPL", "TSLA"}},
		{",,", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitSymbols(tt.in), "input %q", tt.in)
	}
}
