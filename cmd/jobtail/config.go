package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// fileConfig is the on-disk shape of jobtail's config file, loaded via
// viper from a YAML document (~/.jobtail.yaml by default, or --config).
type fileConfig struct {
	// PollIntervalMillis is how often a followed job is re-polled.
	// Default: 200, Range: 10-60000.
	PollIntervalMillis int `mapstructure:"poll_interval_ms"`

	// DefaultJobRoot is used when no --job-root flag is given.
	DefaultJobRoot string `mapstructure:"default_job_root"`

	// Color controls ANSI output: "auto", "always", or "never".
	// Default: "auto".
	Color string `mapstructure:"color"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		PollIntervalMillis: 200,
		Color:              "auto",
	}
}

// loadConfig reads jobtail's YAML config via viper, falling back to
// defaults for anything unset rather than erroring when the file is
// absent.
func loadConfig(explicitPath string) (fileConfig, error) {
	v := viper.New()
	cfg := defaultFileConfig()
	v.SetDefault("poll_interval_ms", cfg.PollIntervalMillis)
	v.SetDefault("color", cfg.Color)

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName(".jobtail")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("jobtail: reading config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("jobtail: parsing config: %w", err)
	}
	if cfg.PollIntervalMillis < 10 || cfg.PollIntervalMillis > 60000 {
		return cfg, fmt.Errorf("jobtail: poll_interval_ms %d is outside 10-60000", cfg.PollIntervalMillis)
	}
	return cfg, nil
}

func (c fileConfig) pollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}
