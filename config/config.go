// Package config provides process-wide resolution defaults for servus,
// loadable from a YAML file with SERVUS_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the tunables the registry consults when a caller does not
// configure a resolution explicitly.
type Config struct {
	// DefaultTimeout bounds every resolution wait that has no explicit
	// timeout, measured in virtual time.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`

	// TimeScale multiplies tick deltas on the virtual clock.
	TimeScale float64 `mapstructure:"time_scale"`

	// SettleTicks is how many scheduling ticks an unregistered optional
	// dependency is given to appear before resolving to absent. The
	// single-tick default mirrors the common startup burst; raising it is
	// a tunable, not a correctness guarantee for arbitrarily large bursts.
	SettleTicks int `mapstructure:"settle_ticks"`

	// TickInterval is the suggested wall-clock interval for hosts that
	// drive Tick from a timer rather than a frame loop.
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

func Default() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		TimeScale:      1.0,
		SettleTicks:    1,
		TickInterval:   10 * time.Millisecond,
	}
}

// Load reads path (YAML) when non-empty, applies SERVUS_ environment
// overrides on top of defaults, and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("default_timeout", defaults.DefaultTimeout)
	v.SetDefault("time_scale", defaults.TimeScale)
	v.SetDefault("settle_ticks", defaults.SettleTicks)
	v.SetDefault("tick_interval", defaults.TickInterval)

	v.SetEnvPrefix("SERVUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be positive, got %s", c.DefaultTimeout)
	}
	if c.TimeScale < 0 {
		return fmt.Errorf("time_scale must not be negative, got %g", c.TimeScale)
	}
	if c.SettleTicks < 1 {
		return fmt.Errorf("settle_ticks must be at least 1, got %d", c.SettleTicks)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	return nil
}
