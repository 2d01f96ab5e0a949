package registry

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return New(s, config.DefaultRoster()), s
}

func TestSync(t *testing.T) {
	reg, s := newTestRegistry(t)

	if err := reg.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	agents, err := s.ListAgents()
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(agents) != 5 {
		t.Fatalf("expected 5 agents, got %d", len(agents))
	}
	if agents[0].Name != "Nova" || agents[0].Role != "lead" {
		t.Errorf("expected Nova first as lead, got %s (%s)", agents[0].Name, agents[0].Role)
	}

	nova, err := reg.GetByName("Nova")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	byID, err := reg.Get(nova.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if byID.Name != "Nova" {
		t.Errorf("expected Nova, got %s", byID.Name)
	}

	// Resync keeps ids stable.
	if err := reg.Sync(); err != nil {
		t.Fatalf("resync: %v", err)
	}
	again, _ := reg.GetByName("Nova")
	if again.ID != nova.ID {
		t.Errorf("expected stable id, got %s then %s", nova.ID, again.ID)
	}
}

func TestGetByNameUnknown(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if err := reg.Sync(); err != nil {
		t.Fatal(err)
	}
	_, err := reg.GetByName("Unknown")
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unknown") {
		t.Errorf("expected the name in the error, got %v", err)
	}
}

func TestUpdateMarksRemovedOffline(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if err := reg.Sync(); err != nil {
		t.Fatal(err)
	}

	roster := config.DefaultRoster()
	delete(roster, "Flow")
	if err := reg.Update(roster); err != nil {
		t.Fatalf("update: %v", err)
	}

	flow, err := reg.GetByName("Flow")
	if err != nil {
		t.Fatalf("removed agent should still resolve: %v", err)
	}
	if flow.Status != store.AgentOffline {
		t.Errorf("expected Flow offline, got %s", flow.Status)
	}

	text, err := reg.Roster()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(text, "Flow") {
		t.Errorf("offline agent should not appear in roster:\n%s", text)
	}
	if !strings.Contains(text, "Sentinel (QA Reviewer)") {
		t.Errorf("expected Sentinel in roster:\n%s", text)
	}
}

func TestSyncRejectsUnknownRole(t *testing.T) {
	_, s := newTestRegistry(t)
	reg := New(s, map[string]config.AgentDefinition{
		"Bob": {Role: "janitor", Model: "m"},
	})
	if err := reg.Sync(); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
