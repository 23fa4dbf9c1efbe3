package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"swarm/llm"
)

// Duration wraps time.Duration so yaml values like "30s" or "5m" parse.
// Bare integers are taken as nanoseconds, matching time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration
type Config struct {
	StubResponses bool                  `yaml:"stub_responses"`
	Agents        AgentConfig           `yaml:"agents"`
	Manager       ManagerConfig         `yaml:"manager"`
	LLM           map[string]llm.Config `yaml:"llm"` // keyed by purpose
	Web           WebConfig             `yaml:"web"`
}

// AgentConfig holds per-agent defaults
type AgentConfig struct {
	MaxConcurrentTasks int      `yaml:"max_concurrent_tasks"`
	MaxTaskDuration    Duration `yaml:"max_task_duration"`
	MemorySize         int      `yaml:"memory_size"`
}

// ManagerConfig holds manager and background-loop settings
type ManagerConfig struct {
	Workers         int      `yaml:"workers"`          // worker pool size, clamped 2-10
	DispatchTimeout Duration `yaml:"dispatch_timeout"` // dequeue wait per dispatch cycle
	RetryBackoff    Duration `yaml:"retry_backoff"`    // backoff after a failed dispatch
	MonitorInterval Duration `yaml:"monitor_interval"` // health monitor period
	MetricsEnabled  bool     `yaml:"metrics_enabled"`
}

// WebConfig bounds the web content fetcher
type WebConfig struct {
	Timeout     Duration `yaml:"timeout"`
	MaxBodySize int64    `yaml:"max_body_size"`
}
