package router

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/registry"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := registry.New(s, config.DefaultRoster())
	if err := reg.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return New(reg)
}

func TestRouteWithAtPrefix(t *testing.T) {
	rtr := newTestRouter(t)

	route, err := rtr.Route("@Atlas fix the bug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !route.Direct() || route.Agent.Name != "Atlas" {
		t.Errorf("expected direct route to Atlas, got %+v", route)
	}
	if route.Goal.Title != "fix the bug" {
		t.Errorf("expected cleaned title 'fix the bug', got %q", route.Goal.Title)
	}
}

func TestRouteWithAtPrefixMultiline(t *testing.T) {
	rtr := newTestRouter(t)

	route, err := rtr.Route("@Pixel\nRedo the header\nUse the new palette")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Agent == nil || route.Agent.Name != "Pixel" {
		t.Fatalf("expected Pixel, got %+v", route.Agent)
	}
	if route.Goal.Title != "Redo the header" || route.Goal.Description != "Use the new palette" {
		t.Errorf("unexpected goal %+v", route.Goal)
	}
}

func TestRouteWithAtPrefixNoMessage(t *testing.T) {
	rtr := newTestRouter(t)

	if _, err := rtr.Route("@Atlas"); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestRouteWithUnknownAtPrefix(t *testing.T) {
	rtr := newTestRouter(t)

	// Unknown agent name falls back to orchestration
	route, err := rtr.Route("@unknown hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Direct() {
		t.Errorf("expected orchestration, got agent %s", route.Agent.Name)
	}
	if route.Goal.Title != "@unknown hello" {
		t.Errorf("expected original message preserved, got %q", route.Goal.Title)
	}
}

func TestRouteOrchestration(t *testing.T) {
	rtr := newTestRouter(t)

	route, err := rtr.Route("  Build login page\nWith OAuth\nand remember-me  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Direct() {
		t.Error("expected orchestration route")
	}
	if route.Goal.Title != "Build login page" || route.Goal.Description != "With OAuth\nand remember-me" {
		t.Errorf("unexpected goal %+v", route.Goal)
	}

	if _, err := rtr.Route("   \n  "); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty for blank message, got %v", err)
	}
}
