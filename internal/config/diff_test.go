package config

import (
	"testing"
	"time"
)

func TestDiff_NoChanges(t *testing.T) {
	cfg := &Config{
		Agents: map[string]AgentDefinition{
			"Nova": {Role: "lead", Model: "claude-opus-4-6"},
		},
		Orchestrator: OrchestratorConfig{LeadAgent: "Nova"},
	}
	d := Diff(cfg, cfg)
	if d.HasChanges() {
		t.Error("expected no changes")
	}
}

func TestDiff_AgentAdded(t *testing.T) {
	old := &Config{
		Agents: map[string]AgentDefinition{
			"Nova": {Role: "lead"},
		},
	}
	new := &Config{
		Agents: map[string]AgentDefinition{
			"Nova":  {Role: "lead"},
			"Atlas": {Role: "backend"},
		},
	}
	d := Diff(old, new)
	if len(d.AgentsAdded) != 1 || d.AgentsAdded[0] != "Atlas" {
		t.Errorf("expected Atlas added, got %v", d.AgentsAdded)
	}
	if len(d.AgentsRemoved) != 0 {
		t.Errorf("expected no removals, got %v", d.AgentsRemoved)
	}
	if !d.RosterChanged() {
		t.Error("expected roster changed")
	}
}

func TestDiff_AgentRemoved(t *testing.T) {
	old := &Config{
		Agents: map[string]AgentDefinition{
			"Nova": {Role: "lead"},
			"Flow": {Role: "automation"},
		},
	}
	new := &Config{
		Agents: map[string]AgentDefinition{
			"Nova": {Role: "lead"},
		},
	}
	d := Diff(old, new)
	if len(d.AgentsRemoved) != 1 || d.AgentsRemoved[0] != "Flow" {
		t.Errorf("expected Flow removed, got %v", d.AgentsRemoved)
	}
}

func TestDiff_AgentModelChanged(t *testing.T) {
	old := &Config{
		Agents: map[string]AgentDefinition{
			"Atlas": {Role: "backend", Model: "claude-opus-4-6"},
		},
	}
	new := &Config{
		Agents: map[string]AgentDefinition{
			"Atlas": {Role: "backend", Model: "gpt-4o"},
		},
	}
	d := Diff(old, new)
	if len(d.AgentsChanged) != 1 || d.AgentsChanged[0] != "Atlas" {
		t.Errorf("expected Atlas changed, got %v", d.AgentsChanged)
	}
}

func TestDiff_OrchestratorChanged(t *testing.T) {
	old := &Config{Orchestrator: OrchestratorConfig{MaxTurns: 10}}
	new := &Config{Orchestrator: OrchestratorConfig{MaxTurns: 5}}
	d := Diff(old, new)
	if !d.OrchestratorChanged {
		t.Error("expected orchestrator changed")
	}
	if d.NewOrchestrator.MaxTurns != 5 {
		t.Errorf("expected max turns 5, got %d", d.NewOrchestrator.MaxTurns)
	}
}

func TestDiff_SchedulerChanged(t *testing.T) {
	old := &Config{Scheduler: SchedulerConfig{PollInterval: 30 * time.Second}}
	new := &Config{Scheduler: SchedulerConfig{PollInterval: 60 * time.Second}}
	d := Diff(old, new)
	if !d.SchedulerChanged {
		t.Error("expected scheduler changed")
	}
	if d.NewScheduler.PollInterval != time.Minute {
		t.Errorf("expected 1m, got %v", d.NewScheduler.PollInterval)
	}
}

func TestDiff_PricingChanged(t *testing.T) {
	old := &Config{}
	new := &Config{Inference: InferenceConfig{Pricing: map[string]ModelPrice{"m": {Input: 1, Output: 2}}}}
	d := Diff(old, new)
	if !d.PricingChanged {
		t.Error("expected pricing changed")
	}
}

func TestDiff_NonReloadable(t *testing.T) {
	old := &Config{
		Telegram: TelegramConfig{Token: "old-token"},
		Web:      WebConfig{Port: 8080},
	}
	new := &Config{
		Telegram: TelegramConfig{Token: "new-token"},
		Web:      WebConfig{Port: 9090},
	}
	d := Diff(old, new)
	if len(d.NonReloadable) != 2 {
		t.Errorf("expected 2 non-reloadable warnings, got %v", d.NonReloadable)
	}
	if d.HasChanges() {
		t.Error("non-reloadable fields should not count as changes")
	}
}
