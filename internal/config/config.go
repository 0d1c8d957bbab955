// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Substack SubstackConfig `mapstructure:"substack"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SubstackConfig governs the remote content client.
type SubstackConfig struct {
	UserAgent           string `mapstructure:"user_agent"`
	BatchSize           int    `mapstructure:"batch_size"`
	BatchDelayMs        int    `mapstructure:"batch_delay_ms"`
	MaxRetries          int    `mapstructure:"max_retries"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	ImageTimeoutSeconds int    `mapstructure:"image_timeout_seconds"`
}

// JobsConfig governs job working directories, pacing, and expiry.
type JobsConfig struct {
	Workdir             string `mapstructure:"workdir"`
	TTLSeconds          int    `mapstructure:"ttl_seconds"`
	ReapIntervalSeconds int    `mapstructure:"reap_interval_seconds"`
	ItemDelayMs         int    `mapstructure:"item_delay_ms"`
	KeepAliveSeconds    int    `mapstructure:"keepalive_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BINDSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("substack.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("substack.batch_size", 50)
	v.SetDefault("substack.batch_delay_ms", 1500)
	v.SetDefault("substack.max_retries", 3)
	v.SetDefault("substack.timeout_seconds", 30)
	v.SetDefault("substack.image_timeout_seconds", 15)
	v.SetDefault("jobs.workdir", "")
	v.SetDefault("jobs.ttl_seconds", 3600)
	v.SetDefault("jobs.reap_interval_seconds", 300)
	v.SetDefault("jobs.item_delay_ms", 1500)
	v.SetDefault("jobs.keepalive_seconds", 60)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Substack.BatchSize <= 0 {
		return fmt.Errorf("substack.batch_size must be > 0")
	}
	if c.Substack.MaxRetries <= 0 {
		return fmt.Errorf("substack.max_retries must be > 0")
	}
	if c.Substack.TimeoutSeconds <= 0 {
		return fmt.Errorf("substack.timeout_seconds must be > 0")
	}
	if c.Jobs.TTLSeconds <= 0 {
		return fmt.Errorf("jobs.ttl_seconds must be > 0")
	}
	if c.Jobs.KeepAliveSeconds <= 0 {
		return fmt.Errorf("jobs.keepalive_seconds must be > 0")
	}
	// A slow network call must never be mistaken for a dead subscriber.
	if c.Substack.TimeoutSeconds >= c.Jobs.KeepAliveSeconds {
		return fmt.Errorf("substack.timeout_seconds must be < jobs.keepalive_seconds")
	}
	return nil
}

// BatchDelay returns the politeness interval between archive page fetches.
func (c SubstackConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMs) * time.Millisecond
}

// Timeout returns the per-request network timeout.
func (c SubstackConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ImageTimeout returns the shorter timeout used for image downloads.
func (c SubstackConfig) ImageTimeout() time.Duration {
	return time.Duration(c.ImageTimeoutSeconds) * time.Second
}

// TTL returns the retention window for finished jobs.
func (c JobsConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ReapInterval returns how often expired jobs are swept.
func (c JobsConfig) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalSeconds) * time.Second
}

// ItemDelay returns the pacing interval between posts within one job.
func (c JobsConfig) ItemDelay() time.Duration {
	return time.Duration(c.ItemDelayMs) * time.Millisecond
}

// KeepAlive returns the subscriber idle interval before a ping is sent.
func (c JobsConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}
