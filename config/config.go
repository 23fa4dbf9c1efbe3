package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the configuration file and applies defaults.
// An empty path yields a default configuration.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Agents.MaxConcurrentTasks <= 0 {
		cfg.Agents.MaxConcurrentTasks = 3
	}
	if cfg.Agents.MaxTaskDuration <= 0 {
		cfg.Agents.MaxTaskDuration = Duration(5 * time.Minute)
	}
	if cfg.Agents.MemorySize <= 0 {
		cfg.Agents.MemorySize = 100
	}

	if cfg.Manager.Workers <= 0 {
		cfg.Manager.Workers = 4
	}
	// Worker pool is bounded: too few starves teams, too many thrashes
	// the reasoning backend.
	if cfg.Manager.Workers < 2 {
		cfg.Manager.Workers = 2
	}
	if cfg.Manager.Workers > 10 {
		cfg.Manager.Workers = 10
	}
	if cfg.Manager.DispatchTimeout <= 0 {
		cfg.Manager.DispatchTimeout = Duration(time.Second)
	}
	if cfg.Manager.RetryBackoff <= 0 {
		cfg.Manager.RetryBackoff = Duration(5 * time.Second)
	}
	if cfg.Manager.MonitorInterval <= 0 {
		cfg.Manager.MonitorInterval = Duration(30 * time.Second)
	}

	if cfg.Web.Timeout <= 0 {
		cfg.Web.Timeout = Duration(30 * time.Second)
	}
	if cfg.Web.MaxBodySize <= 0 {
		cfg.Web.MaxBodySize = 5 * 1024 * 1024
	}

	// Honor the env toggle so test runs can force deterministic output
	// without editing config files.
	if os.Getenv("SWARM_STUB_RESPONSES") == "1" {
		cfg.StubResponses = true
	}
}
