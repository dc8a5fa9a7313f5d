package store

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

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
targets:
  INFY: 0.6
  TCS: 0.4
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DRY_RUN", cfg.Mode)
	assert.Equal(t, "NSE", cfg.Exchange)
	assert.Equal(t, 3, cfg.Executor.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Executor.PollTimeout())
	assert.Equal(t, 2*time.Second, cfg.Executor.PollInterval())
	assert.Equal(t, 5.0, cfg.Executor.SlippageBudgetBps)
	assert.Equal(t, 1.0, cfg.Rebalance.ToleranceThresholdPct)
	assert.Equal(t, 2, cfg.Rebalance.MaxPasses)
	assert.Equal(t, 60*time.Second, cfg.Rebalance.SettlementWait())
	assert.Equal(t, "auto", cfg.Settlement.Strategy)
	assert.Equal(t, 100000.0, cfg.Paper.Cash)
}

func TestLoadConfigExplicitValuesSurviveDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: LIVE
exchange: BSE
interval_minutes: 15
targets:
  INFY: 1.0
executor:
  max_retries: 5
  poll_timeout_seconds: 45
  poll_interval_seconds: 0.5
  slippage_budget_bps: 10
rebalance:
  tolerance_threshold_pct: 2.5
  max_passes: 3
  allow_outside_market_hours: true
settlement:
  strategy: stream
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "LIVE", cfg.Mode)
	assert.Equal(t, "BSE", cfg.Exchange)
	assert.Equal(t, 15, cfg.IntervalMinutes)
	assert.Equal(t, 5, cfg.Executor.MaxRetries)
	assert.Equal(t, 45*time.Second, cfg.Executor.PollTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Executor.PollInterval())
	assert.Equal(t, 2.5, cfg.Rebalance.ToleranceThresholdPct)
	assert.Equal(t, 3, cfg.Rebalance.MaxPasses)
	assert.True(t, cfg.Rebalance.AllowOutsideMarketHours)
	assert.Equal(t, "stream", cfg.Settlement.Strategy)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad mode", "mode: REPLAY\ntargets:\n  INFY: 1.0\n"},
		{"no targets", "mode: DRY_RUN\n"},
		{"weight above one", "targets:\n  INFY: 1.5\n"},
		{"negative weight", "targets:\n  INFY: -0.2\n"},
		{"negative retries", "targets:\n  INFY: 1.0\nexecutor:\n  max_retries: -1\n"},
		{"bad strategy", "targets:\n  INFY: 1.0\nsettlement:\n  strategy: webhook\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestWeightSumOffTolerance(t *testing.T) {
	cfg := &Config{Targets: map[string]float64{"INFY": 0.5, "TCS": 0.48}}
	sum, off := cfg.WeightSumOffTolerance()
	assert.InDelta(t, 0.98, sum, 1e-9)
	assert.False(t, off)

	cfg.Targets["HDFC"] = 0.3
	_, off = cfg.WeightSumOffTolerance()
	assert.True(t, off)
}
