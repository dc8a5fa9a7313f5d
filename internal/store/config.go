package store

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WeightSumTolerance is how far the target weights may drift from 1.0 before
// a warning is flagged. Drift inside the tolerance is never rejected.
const WeightSumTolerance = 0.05

type ExecutorConfig struct {
	MaxRetries          int     `yaml:"max_retries"`
	PollTimeoutSeconds  int     `yaml:"poll_timeout_seconds"`
	PollIntervalSeconds float64 `yaml:"poll_interval_seconds"`
	SlippageBudgetBps   float64 `yaml:"slippage_budget_bps"`
}

func (e ExecutorConfig) PollTimeout() time.Duration {
	return time.Duration(e.PollTimeoutSeconds) * time.Second
}

func (e ExecutorConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalSeconds * float64(time.Second))
}

type RebalanceConfig struct {
	ToleranceThresholdPct   float64 `yaml:"tolerance_threshold_pct"`
	MaxPasses               int     `yaml:"max_passes"`
	AllowOutsideMarketHours bool    `yaml:"allow_outside_market_hours"`
	SettlementWaitSeconds   int     `yaml:"settlement_wait_seconds"`
	PassPauseSeconds        int     `yaml:"pass_pause_seconds"`
}

func (r RebalanceConfig) SettlementWait() time.Duration {
	return time.Duration(r.SettlementWaitSeconds) * time.Second
}

func (r RebalanceConfig) PassPause() time.Duration {
	return time.Duration(r.PassPauseSeconds) * time.Second
}

type SettlementConfig struct {
	// Strategy is "auto", "poll" or "stream". Auto prefers the streamed
	// watcher and falls back to polling when the stream cannot start.
	Strategy            string  `yaml:"strategy"`
	PollIntervalSeconds float64 `yaml:"poll_interval_seconds"`
}

func (s SettlementConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds * float64(time.Second))
}

type PaperConfig struct {
	Cash   float64            `yaml:"cash"`
	Prices map[string]float64 `yaml:"prices"`
}

type Config struct {
	Mode            string             `yaml:"mode"`
	Exchange        string             `yaml:"exchange"`
	IntervalMinutes int                `yaml:"interval_minutes"`
	Targets         map[string]float64 `yaml:"targets"`
	Executor        ExecutorConfig     `yaml:"executor"`
	Rebalance       RebalanceConfig    `yaml:"rebalance"`
	Settlement      SettlementConfig   `yaml:"settlement"`
	Paper           PaperConfig        `yaml:"paper"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Targets) == 0 {
		return errors.New("targets cannot be empty")
	}
	for symbol, weight := range c.Targets {
		if weight < 0 || weight > 1 {
			return fmt.Errorf("target weight for %s must be within [0,1], got %.4f", symbol, weight)
		}
	}
	if c.Executor.MaxRetries < 0 {
		return fmt.Errorf("executor.max_retries must be >= 0, got %d", c.Executor.MaxRetries)
	}
	if c.Executor.PollIntervalSeconds <= 0 {
		return fmt.Errorf("executor.poll_interval_seconds must be positive, got %.2f", c.Executor.PollIntervalSeconds)
	}
	if c.Executor.PollTimeoutSeconds <= 0 {
		return fmt.Errorf("executor.poll_timeout_seconds must be positive, got %d", c.Executor.PollTimeoutSeconds)
	}
	if c.Rebalance.ToleranceThresholdPct <= 0 {
		return fmt.Errorf("rebalance.tolerance_threshold_pct must be positive, got %.2f", c.Rebalance.ToleranceThresholdPct)
	}
	if c.Rebalance.MaxPasses < 1 {
		return fmt.Errorf("rebalance.max_passes must be >= 1, got %d", c.Rebalance.MaxPasses)
	}
	switch c.Settlement.Strategy {
	case "auto", "poll", "stream":
	default:
		return fmt.Errorf("settlement.strategy must be 'auto', 'poll' or 'stream', got '%s'", c.Settlement.Strategy)
	}
	return nil
}

// WeightSumOffTolerance reports whether the target weights sum is outside
// 1.0 +/- WeightSumTolerance. Callers log a warning; the config stays valid.
func (c *Config) WeightSumOffTolerance() (float64, bool) {
	sum := 0.0
	for _, w := range c.Targets {
		sum += w
	}
	return sum, math.Abs(sum-1.0) > WeightSumTolerance
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.Executor.MaxRetries == 0 {
		c.Executor.MaxRetries = 3
	}
	if c.Executor.PollTimeoutSeconds == 0 {
		c.Executor.PollTimeoutSeconds = 30
	}
	if c.Executor.PollIntervalSeconds == 0 {
		c.Executor.PollIntervalSeconds = 2.0
	}
	if c.Executor.SlippageBudgetBps == 0 {
		c.Executor.SlippageBudgetBps = 5
	}
	if c.Rebalance.ToleranceThresholdPct == 0 {
		c.Rebalance.ToleranceThresholdPct = 1.0
	}
	if c.Rebalance.MaxPasses == 0 {
		c.Rebalance.MaxPasses = 2
	}
	if c.Rebalance.SettlementWaitSeconds == 0 {
		c.Rebalance.SettlementWaitSeconds = 60
	}
	if c.Rebalance.PassPauseSeconds == 0 {
		c.Rebalance.PassPauseSeconds = 2
	}
	if c.Settlement.Strategy == "" {
		c.Settlement.Strategy = "auto"
	}
	if c.Settlement.PollIntervalSeconds == 0 {
		c.Settlement.PollIntervalSeconds = 2.0
	}
	if c.Paper.Cash == 0 {
		c.Paper.Cash = 100000
	}
}
