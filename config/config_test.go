package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alejandrodnm/tradecore/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "engine:\n  initial_capital: 5000\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5000.0, cfg.Engine.InitialCapital)
	assert.Equal(t, 1, cfg.Engine.MaxPositionsPerInstrument)
	assert.Equal(t, 0.15, cfg.Risk.MaxDrawdown)
	assert.Equal(t, 0.8, cfg.Risk.WarnFraction)
	assert.Equal(t, "binance", cfg.Costs.Venue)
	assert.Equal(t, "liquidation_hunter", cfg.Strategy.Name)
	assert.Equal(t, 86_400, cfg.Backtest.Ticks)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TRADECORE_VENUE", "kraken")
	t.Setenv("TRADECORE_INITIAL_CAPITAL", "2500")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "kraken", cfg.Costs.Venue)
	assert.Equal(t, 2500.0, cfg.Engine.InitialCapital)
}

func TestLoad_RejectsInvalidRisk(t *testing.T) {
	path := writeConfig(t, "risk:\n  max_drawdown: 1.5\nstrategy:\n  fast_period: 40\n  slow_period: 20\n")

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk.max_drawdown")
	assert.Contains(t, err.Error(), "fast_period")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault_Durations(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(2000), cfg.MaxLatency().Milliseconds())
	assert.Equal(t, int64(5000), cfg.FreshnessWindow().Milliseconds())
	assert.Equal(t, 24.0, cfg.RiskWindow().Hours())
}
