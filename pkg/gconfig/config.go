// Package gconfig loads process-startup configuration for graphcore: how
// long a distributed pull backs off when a remote worker has nothing ready,
// how big and how long-lived the plan cache is, how many local workers to
// run, and where the demo server binds. Grounded on pkg/config, which
// layers built-in defaults, an optional YAML file, and environment
// variables in that order; this package keeps the same precedence but
// scopes the fields to what graphcore actually reads.
package gconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting graphcore reads at process start.
type Config struct {
	// Cluster settings
	WorkerCount     int    // number of local shard workers to run
	ListenAddress   string // demo server bind address, host:port

	// RemotePullSleep is the back-off between PullClient re-requests when a
	// remote worker returns an empty batch that is not yet exhausted (the
	// value operators.PullRemote takes as PollInterval; nothing in this
	// module copies it there), mirroring the original FLAGS_remote_pull_sleep
	// compile-time constant this package turns into a runtime setting.
	RemotePullSleep time.Duration

	// Plan cache
	PlanCacheSize int
	PlanCacheTTL  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// yamlConfig mirrors Config's shape for the optional file, using
// human-readable duration strings the way pkg/config's YAMLConfig does.
type yamlConfig struct {
	Cluster struct {
		WorkerCount   int    `yaml:"worker_count"`
		ListenAddress string `yaml:"listen_address"`
	} `yaml:"cluster"`
	RemotePullSleep string `yaml:"remote_pull_sleep"`
	PlanCache       struct {
		Size int    `yaml:"size"`
		TTL  string `yaml:"ttl"`
	} `yaml:"plan_cache"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadDefaults returns the built-in safe defaults, the base every other
// source overrides.
func LoadDefaults() *Config {
	return &Config{
		WorkerCount:     1,
		ListenAddress:   "0.0.0.0:7687",
		RemotePullSleep: time.Millisecond,
		PlanCacheSize:   256,
		PlanCacheTTL:    10 * time.Minute,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// LoadFromFile applies configPath's YAML contents on top of LoadDefaults,
// then applies environment variables on top of that, matching pkg/config's
// defaults -> file -> env precedence. A missing file is not an error; it
// just means every setting falls through to defaults-then-env.
func LoadFromFile(configPath string) (*Config, error) {
	cfg := LoadDefaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("gconfig: read %s: %w", configPath, err)
			}
		} else {
			var y yamlConfig
			if err := yaml.Unmarshal(data, &y); err != nil {
				return nil, fmt.Errorf("gconfig: parse %s: %w", configPath, err)
			}
			applyYAML(cfg, &y)
		}
	}

	applyEnvVars(cfg)
	return cfg, nil
}

func applyYAML(cfg *Config, y *yamlConfig) {
	if y.Cluster.WorkerCount > 0 {
		cfg.WorkerCount = y.Cluster.WorkerCount
	}
	if y.Cluster.ListenAddress != "" {
		cfg.ListenAddress = y.Cluster.ListenAddress
	}
	if y.RemotePullSleep != "" {
		if d, err := time.ParseDuration(y.RemotePullSleep); err == nil {
			cfg.RemotePullSleep = d
		}
	}
	if y.PlanCache.Size > 0 {
		cfg.PlanCacheSize = y.PlanCache.Size
	}
	if y.PlanCache.TTL != "" {
		if d, err := time.ParseDuration(y.PlanCache.TTL); err == nil {
			cfg.PlanCacheTTL = d
		}
	}
	if y.Logging.Level != "" {
		cfg.LogLevel = y.Logging.Level
	}
	if y.Logging.Format != "" {
		cfg.LogFormat = y.Logging.Format
	}
}

// applyEnvVars applies NORNIC_-prefixed environment variables.
func applyEnvVars(cfg *Config) {
	cfg.WorkerCount = getEnvInt("NORNIC_WORKER_COUNT", cfg.WorkerCount)
	cfg.ListenAddress = getEnv("NORNIC_LISTEN_ADDRESS", cfg.ListenAddress)
	cfg.RemotePullSleep = getEnvDuration("NORNIC_REMOTE_PULL_SLEEP", cfg.RemotePullSleep)
	cfg.PlanCacheSize = getEnvInt("NORNIC_PLAN_CACHE_SIZE", cfg.PlanCacheSize)
	cfg.PlanCacheTTL = getEnvDuration("NORNIC_PLAN_CACHE_TTL", cfg.PlanCacheTTL)
	cfg.LogLevel = getEnv("NORNIC_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("NORNIC_LOG_FORMAT", cfg.LogFormat)
}

// Validate checks for values that would make startup nonsensical.
func (c *Config) Validate() error {
	if c.WorkerCount <= 0 {
		return fmt.Errorf("gconfig: worker count must be positive, got %d", c.WorkerCount)
	}
	if c.RemotePullSleep < 0 {
		return fmt.Errorf("gconfig: remote pull sleep must not be negative")
	}
	if c.PlanCacheSize < 0 {
		return fmt.Errorf("gconfig: plan cache size must not be negative")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
