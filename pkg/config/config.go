// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config loads runtime configuration from a YAML file and the
// KENNEL_* environment, environment winning.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/packlabs/kennel/pkg/types"
)

// Config is the runtime configuration for the kennel service.
type Config struct {
	// HTTPAddr is the listen address for the ingress API.
	HTTPAddr string `mapstructure:"http_addr"`

	// DBPath is the SQLite database path. ":memory:" for ephemeral runs.
	DBPath string `mapstructure:"db_path"`

	// BudgetUSD is the total spend budget for the ledger.
	BudgetUSD float64 `mapstructure:"budget_usd"`

	// TargetBurnRate is the USD/s rate the breaker trips at twice of.
	TargetBurnRate float64 `mapstructure:"target_burn_rate"`

	// DefaultTier denominates classifier cost estimates.
	DefaultTier string `mapstructure:"default_tier"`

	// LLMProvider selects the generator: "anthropic" or "heuristic".
	LLMProvider string `mapstructure:"llm_provider"`

	// AnthropicAPIKey overrides ANTHROPIC_API_KEY.
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`

	// Degraded forces the heuristic generator regardless of provider.
	Degraded bool `mapstructure:"degraded"`

	// Deadline is the critical-path deadline in milliseconds.
	DeadlineMs int `mapstructure:"deadline_ms"`

	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration. path may be empty; environment variables use
// the KENNEL_ prefix (e.g. KENNEL_BUDGET_USD).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("db_path", "kennel.db")
	v.SetDefault("budget_usd", 10.0)
	v.SetDefault("target_burn_rate", 0.01)
	v.SetDefault("default_tier", string(types.TierStandard))
	v.SetDefault("llm_provider", "heuristic")
	v.SetDefault("degraded", false)
	v.SetDefault("deadline_ms", 3000)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("KENNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.BudgetUSD <= 0 {
		return fmt.Errorf("budget_usd must be positive, got %v", c.BudgetUSD)
	}
	switch types.Tier(c.DefaultTier) {
	case types.TierEco, types.TierStandard, types.TierPremium:
	default:
		return fmt.Errorf("unknown default_tier %q", c.DefaultTier)
	}
	if c.DeadlineMs <= 0 {
		return fmt.Errorf("deadline_ms must be positive, got %d", c.DeadlineMs)
	}
	return nil
}
