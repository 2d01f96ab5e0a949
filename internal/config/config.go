package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log          LogConfig                  `yaml:"log"`
	Inference    InferenceConfig            `yaml:"inference"`
	Agents       map[string]AgentDefinition `yaml:"agents"`
	Orchestrator OrchestratorConfig         `yaml:"orchestrator"`
	NATS         NATSConfig                 `yaml:"nats"`
	Store        StoreConfig                `yaml:"store"`
	Web          WebConfig                  `yaml:"web"`
	Scheduler    SchedulerConfig            `yaml:"scheduler"`
	Telegram     TelegramConfig             `yaml:"telegram"`
	Vault        VaultConfig                `yaml:"vault"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type InferenceConfig struct {
	AnthropicAPIKey string                `yaml:"anthropic_api_key" envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string                `yaml:"openai_api_key" envconfig:"OPENAI_API_KEY"`
	DefaultModel    string                `yaml:"default_model" split_words:"true"`
	MaxTokens       int64                 `yaml:"max_tokens" split_words:"true"`
	// Pricing overrides, USD per million tokens, keyed by model.
	Pricing         map[string]ModelPrice `yaml:"pricing" ignored:"true"`
}

type ModelPrice struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// AgentDefinition describes one roster member. The map key is the agent name.
type AgentDefinition struct {
	Role        string `yaml:"role"`
	Model       string `yaml:"model"`
	Personality string `yaml:"personality"`
}

type OrchestratorConfig struct {
	LeadAgent        string        `yaml:"lead_agent" split_words:"true"`
	ReviewerAgent    string        `yaml:"reviewer_agent" split_words:"true"`
	MaxTurns         int           `yaml:"max_turns" split_words:"true"`
	RunTimeout       time.Duration `yaml:"run_timeout" split_words:"true"`
	ConnectionTTL    time.Duration `yaml:"connection_ttl" split_words:"true"`
	ParallelSubtasks bool          `yaml:"parallel_subtasks" split_words:"true"`
	MaxParallel      int           `yaml:"max_parallel" split_words:"true"`
}

type NATSConfig struct {
	// Port 0 picks a free port.
	Port int `yaml:"port"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Port       int    `yaml:"port"`
	Auth       string `yaml:"auth"`
	CronSecret string `yaml:"cron_secret" split_words:"true"`
}

type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval" split_words:"true"`
	// Cron takes precedence over PollInterval when set.
	Cron         string        `yaml:"cron"`
	BatchSize    int           `yaml:"batch_size" split_words:"true"`
}

type TelegramConfig struct {
	Token     string  `yaml:"token"`
	AllowFrom []int64 `yaml:"allow_from" split_words:"true"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

// DefaultRoster is the five-agent team used when the config file names none.
func DefaultRoster() map[string]AgentDefinition {
	return map[string]AgentDefinition{
		"Nova": {
			Role:        "lead",
			Model:       "claude-sonnet-4-5-20250514",
			Personality: "Organised and decisive. Breaks goals into clear, well-scoped subtasks and keeps the team aligned.",
		},
		"Atlas": {
			Role:        "backend",
			Model:       "claude-sonnet-4-5-20250514",
			Personality: "Methodical backend engineer. Cares about data models, APIs and failure modes.",
		},
		"Pixel": {
			Role:        "frontend",
			Model:       "claude-sonnet-4-5-20250514",
			Personality: "Detail-oriented frontend engineer with a strong eye for usability.",
		},
		"Sentinel": {
			Role:        "reviewer",
			Model:       "claude-sonnet-4-5-20250514",
			Personality: "Sceptical reviewer. Approves only work that meets the stated requirements.",
		},
		"Flow": {
			Role:        "automation",
			Model:       "claude-haiku-4-5-20251001",
			Personality: "Pragmatic automation specialist focused on pipelines and repeatable processes.",
		},
	}
}

func defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Inference: InferenceConfig{
			DefaultModel: "claude-sonnet-4-5-20250514",
			MaxTokens:    4096,
		},
		Orchestrator: OrchestratorConfig{
			LeadAgent:     "Nova",
			ReviewerAgent: "Sentinel",
			MaxTurns:      10,
			RunTimeout:    10 * time.Minute,
			ConnectionTTL: 30 * time.Second,
			MaxParallel:   4,
		},
		NATS: NATSConfig{
			Port: 4222,
		},
		Store: StoreConfig{
			Path: "data/agentcrew.db",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			PollInterval: time.Minute,
			BatchSize:    3,
		},
	}
}

// Path returns the config file location.
func Path() string {
	if p := os.Getenv("AGENTCREW_CONFIG"); p != "" {
		return p
	}
	return "config/agentcrew.yaml"
}

func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads the YAML file at path over the defaults and applies
// environment overrides. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Agents) == 0 {
		cfg.Agents = DefaultRoster()
	}
	for name, def := range cfg.Agents {
		if def.Model == "" {
			def.Model = cfg.Inference.DefaultModel
			cfg.Agents[name] = def
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	groups := []struct {
		prefix string
		target any
	}{
		{"AGENTCREW_LOG", &cfg.Log},
		{"AGENTCREW_INFERENCE", &cfg.Inference},
		{"AGENTCREW_ORCHESTRATOR", &cfg.Orchestrator},
		{"AGENTCREW_NATS", &cfg.NATS},
		{"AGENTCREW_STORE", &cfg.Store},
		{"AGENTCREW_WEB", &cfg.Web},
		{"AGENTCREW_SCHEDULER", &cfg.Scheduler},
		{"AGENTCREW_TELEGRAM", &cfg.Telegram},
		{"AGENTCREW_VAULT", &cfg.Vault},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return fmt.Errorf("env overrides %s: %w", g.prefix, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	if _, ok := c.Agents[c.Orchestrator.LeadAgent]; !ok {
		return fmt.Errorf("orchestrator.lead_agent %q is not in agents", c.Orchestrator.LeadAgent)
	}
	if _, ok := c.Agents[c.Orchestrator.ReviewerAgent]; !ok {
		return fmt.Errorf("orchestrator.reviewer_agent %q is not in agents", c.Orchestrator.ReviewerAgent)
	}
	if c.Orchestrator.MaxTurns < 1 {
		return fmt.Errorf("orchestrator.max_turns must be positive, got %d", c.Orchestrator.MaxTurns)
	}
	if c.Scheduler.BatchSize < 1 {
		c.Scheduler.BatchSize = 1
	}
	if c.Orchestrator.MaxParallel < 1 {
		c.Orchestrator.MaxParallel = 1
	}
	return nil
}
