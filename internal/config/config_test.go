package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Orchestrator.LeadAgent != "Nova" {
		t.Errorf("expected lead agent Nova, got %s", cfg.Orchestrator.LeadAgent)
	}
	if cfg.Orchestrator.ReviewerAgent != "Sentinel" {
		t.Errorf("expected reviewer Sentinel, got %s", cfg.Orchestrator.ReviewerAgent)
	}
	if cfg.Orchestrator.MaxTurns != 10 {
		t.Errorf("expected max_turns 10, got %d", cfg.Orchestrator.MaxTurns)
	}
	if cfg.Orchestrator.ConnectionTTL != 30*time.Second {
		t.Errorf("expected connection_ttl 30s, got %v", cfg.Orchestrator.ConnectionTTL)
	}
	if cfg.Inference.MaxTokens != 4096 {
		t.Errorf("expected max_tokens 4096, got %d", cfg.Inference.MaxTokens)
	}
	if cfg.Scheduler.BatchSize != 3 {
		t.Errorf("expected batch_size 3, got %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected web port 8080, got %d", cfg.Web.Port)
	}
	if !cfg.Web.Enabled {
		t.Error("expected web enabled by default")
	}
	if cfg.Store.Path != "data/agentcrew.db" {
		t.Errorf("expected store path data/agentcrew.db, got %s", cfg.Store.Path)
	}
}

func TestLoadFallsBackToDefaultRoster(t *testing.T) {
	t.Setenv("AGENTCREW_CONFIG", "/nonexistent/config.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Agents) != 5 {
		t.Fatalf("expected 5 agents, got %d", len(cfg.Agents))
	}
	for _, name := range []string{"Nova", "Atlas", "Pixel", "Sentinel", "Flow"} {
		if _, ok := cfg.Agents[name]; !ok {
			t.Errorf("expected agent %s in default roster", name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("AGENTCREW_CONFIG", "/nonexistent/config.yaml")
	t.Setenv("AGENTCREW_TELEGRAM_TOKEN", "test-token-123")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")
	t.Setenv("AGENTCREW_WEB_AUTH", "secret")
	t.Setenv("AGENTCREW_WEB_PORT", "9090")
	t.Setenv("AGENTCREW_ORCHESTRATOR_MAX_TURNS", "4")
	t.Setenv("AGENTCREW_SCHEDULER_POLL_INTERVAL", "15s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Telegram.Token != "test-token-123" {
		t.Errorf("expected telegram token test-token-123, got %s", cfg.Telegram.Token)
	}
	if cfg.Inference.AnthropicAPIKey != "sk-test-key" {
		t.Errorf("expected anthropic key sk-test-key, got %s", cfg.Inference.AnthropicAPIKey)
	}
	if cfg.Web.Auth != "secret" {
		t.Errorf("expected web auth secret, got %s", cfg.Web.Auth)
	}
	if cfg.Web.Port != 9090 {
		t.Errorf("expected web port 9090, got %d", cfg.Web.Port)
	}
	if cfg.Orchestrator.MaxTurns != 4 {
		t.Errorf("expected max_turns 4, got %d", cfg.Orchestrator.MaxTurns)
	}
	if cfg.Scheduler.PollInterval != 15*time.Second {
		t.Errorf("expected poll interval 15s, got %v", cfg.Scheduler.PollInterval)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	t.Setenv("CREW_TEST_KEY", "from-env")
	yaml := `
telegram:
  token: "yaml-token"
  allow_from: [123, 456]
inference:
  anthropic_api_key: "${CREW_TEST_KEY}"
  default_model: "claude-haiku-4-5-20251001"
agents:
  Lead:
    role: lead
    personality: "in charge"
  Check:
    role: reviewer
    model: claude-opus-4-6
orchestrator:
  lead_agent: Lead
  reviewer_agent: Check
web:
  port: 3000
  enabled: false
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AGENTCREW_CONFIG", cfgPath)
	t.Setenv("AGENTCREW_TELEGRAM_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Telegram.AllowFrom) != 2 {
		t.Errorf("expected 2 allow_from entries, got %d", len(cfg.Telegram.AllowFrom))
	}
	if cfg.Inference.AnthropicAPIKey != "from-env" {
		t.Errorf("expected expanded api key, got %s", cfg.Inference.AnthropicAPIKey)
	}
	if len(cfg.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(cfg.Agents))
	}
	if cfg.Agents["Lead"].Model != "claude-haiku-4-5-20251001" {
		t.Errorf("expected default model applied, got %s", cfg.Agents["Lead"].Model)
	}
	if cfg.Agents["Check"].Model != "claude-opus-4-6" {
		t.Errorf("expected explicit model kept, got %s", cfg.Agents["Check"].Model)
	}
	if cfg.Web.Port != 3000 {
		t.Errorf("expected web port 3000, got %d", cfg.Web.Port)
	}
	if cfg.Web.Enabled {
		t.Error("expected web disabled")
	}
}

func TestLoadRejectsUnknownLead(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := `
agents:
  Solo:
    role: backend
orchestrator:
  lead_agent: Ghost
  reviewer_agent: Solo
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(cfgPath); err == nil {
		t.Fatal("expected error for unknown lead agent")
	}
}
