// Package config loads the voyagent configuration: defaults, then an
// optional YAML file, then environment variables with the VOYAGENT prefix.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("voyagent.yaml").
//	    Load()
package config

import (
	"fmt"
	"strings"

	"github.com/voyagent/voyagent/discovery"
	"github.com/voyagent/voyagent/kb"
	"github.com/voyagent/voyagent/llm"
	"github.com/voyagent/voyagent/pipeline"
)

// DefaultEnvPrefix namespaces the environment overrides.
const DefaultEnvPrefix = "VOYAGENT"

// Config is the complete voyagent configuration.
type Config struct {
	Log       LogConfig                `yaml:"log" env:"LOG"`
	Agents    AgentsConfig             `yaml:"agents" env:"AGENTS"`
	Pipeline  pipeline.Config          `yaml:"pipeline" env:"PIPELINE"`
	KB        kb.Config                `yaml:"kb" env:"KB"`
	Redis     RedisConfig              `yaml:"redis" env:"REDIS"`
	LLM       llm.OpenAIConfig         `yaml:"llm" env:"LLM"`
	Discovery discovery.ResolverConfig `yaml:"discovery" env:"DISCOVERY"`
	Telemetry TelemetryConfig          `yaml:"telemetry" env:"TELEMETRY"`
	Metrics   MetricsConfig            `yaml:"metrics" env:"METRICS"`
}

// LogConfig selects the logger profile.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// AgentsConfig names the mailbox address of each agent.
type AgentsConfig struct {
	Coordinator string `yaml:"coordinator" env:"COORDINATOR"`
	Presenter   string `yaml:"presenter" env:"PRESENTER"`
	Extractor   string `yaml:"extractor" env:"EXTRACTOR"`
	Registry    string `yaml:"registry" env:"REGISTRY"`
	Bridge      string `yaml:"bridge" env:"BRIDGE"`
	Weather     string `yaml:"weather" env:"WEATHER"`
}

// RedisConfig configures the shared cache tier. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the configuration used when nothing is overridden: all
// agents on the in-process broker, in-memory SQLite, no Redis, no model.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Agents: AgentsConfig{
			Coordinator: "coordinator@local",
			Presenter:   "presenter@local",
			Extractor:   "extractor@local",
			Registry:    "registry@local",
			Bridge:      "bridge@local",
			Weather:     "weather@local",
		},
		Pipeline: pipeline.Config{
			ReceiveTimeout: pipeline.DefaultReceiveTimeout,
			MaxBodyBytes:   pipeline.DefaultMaxBodyBytes,
		},
		KB: kb.DefaultConfig(),
		Discovery: discovery.ResolverConfig{
			PositiveTTL: discovery.DefaultPositiveTTL,
			NegativeTTL: discovery.DefaultNegativeTTL,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voyagent",
			SampleRatio: 1.0,
		},
		Metrics: MetricsConfig{Addr: ":9091"},
	}
}

// Validate rejects configurations the runtime cannot start with.
func (c *Config) Validate() error {
	var errs []string
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if c.Pipeline.ReceiveTimeout < 0 {
		errs = append(errs, "pipeline.receive_timeout must not be negative")
	}
	if c.Pipeline.MaxBodyBytes < 0 {
		errs = append(errs, "pipeline.max_body_bytes must not be negative")
	}
	if c.Pipeline.MaxIdleTicks < 0 {
		errs = append(errs, "pipeline.max_idle_ticks must not be negative")
	}
	if c.Agents.Registry == "" {
		errs = append(errs, "agents.registry must be set")
	}
	if c.KB.Driver != "" && c.KB.Driver != "postgres" && c.KB.Driver != "sqlite" {
		errs = append(errs, fmt.Sprintf("unknown kb driver %q", c.KB.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
