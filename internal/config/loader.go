// Package config provides configuration management for the Evo Trader service.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads and parses the configuration from file and environment variables.
// It expands environment variable placeholders in the YAML file (${VAR_NAME}).
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	v.SetEnvPrefix("EVO_TRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("data_provider.timeout_seconds", 30)
	v.SetDefault("data_provider.retry_attempts", 3)
	v.SetDefault("data_provider.rate_limit_per_second", 10.0)
	v.SetDefault("data_provider.cache_ttl_seconds", 300)
	v.SetDefault("data_provider.max_requests_per_cycle", 50)
	v.SetDefault("memory.timeout_seconds", 5)
	v.SetDefault("memory.failure_limit", 5)
	v.SetDefault("backtest.initial_capital", 10000.0)
	v.SetDefault("backtest.slippage_pct", 0.001)
	v.SetDefault("backtest.risk_free_rate", 0.02)
	v.SetDefault("backtest.monte_carlo_iterations", 2000)
	v.SetDefault("backtest.walk_forward_in_days", 60)
	v.SetDefault("backtest.walk_forward_out_days", 20)
	v.SetDefault("backtest.walk_forward_step_days", 20)
	v.SetDefault("backtest.walk_forward_min_periods", 2)
	v.SetDefault("evolution.interval_seconds", 3600)
	v.SetDefault("evolution.batch_size", 20)
	v.SetDefault("evolution.workers", 3)
	v.SetDefault("evolution.max_population", 200)
	v.SetDefault("evolution.mutation_every_n", 3)
	v.SetDefault("evolution.mutation_win_rate_floor", 0.40)
	v.SetDefault("evolution.max_attempts", 10)
	v.SetDefault("evolution.stale_attempt_limit", 5)
	v.SetDefault("evolution.rebacktest_after_days", 7)
	v.SetDefault("evolution.candle_limit", 1000)
	v.SetDefault("intake.interval_seconds", 600)
	v.SetDefault("intake.sanity_candle_limit", 200)
	v.SetDefault("intake.min_trades", 5)
	v.SetDefault("intake.max_drawdown", 0.40)
	v.SetDefault("intake.min_robustness", 0.75)
	v.SetDefault("intake.min_eval_cycles", 3)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
}
