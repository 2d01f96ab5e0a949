package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/store"
	"github.com/mtzanidakis/agentcrew/internal/tools"
)

// ErrAgentNotFound is returned for an unknown agent id or name.
var ErrAgentNotFound = store.ErrAgentNotFound

type Registry struct {
	store *store.Store

	mu     sync.RWMutex
	agents map[string]config.AgentDefinition
}

func New(s *store.Store, agents map[string]config.AgentDefinition) *Registry {
	return &Registry{
		store:  s,
		agents: agents,
	}
}

// Sync writes the configured roster to the store. Agents that are no
// longer configured are marked offline, never deleted, so historical
// tasks and messages keep resolving.
func (r *Registry) Sync() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := sortedNames(r.agents)
	for _, name := range names {
		def := r.agents[name]
		role, err := tools.ParseRole(def.Role)
		if err != nil {
			return fmt.Errorf("agent %s: %w", name, err)
		}

		a := &store.Agent{
			Name:        name,
			Role:        string(role),
			Model:       def.Model,
			Personality: def.Personality,
		}
		if err := r.store.UpsertAgent(a); err != nil {
			return fmt.Errorf("save agent %s: %w", name, err)
		}
	}

	n, err := r.store.MarkAgentsOfflineExcept(names)
	if err != nil {
		return fmt.Errorf("mark stale agents: %w", err)
	}
	if n > 0 {
		slog.Info("agents marked offline", "count", n)
	}
	return nil
}

// Update replaces the roster definition and syncs it.
func (r *Registry) Update(agents map[string]config.AgentDefinition) error {
	r.mu.Lock()
	r.agents = agents
	r.mu.Unlock()
	return r.Sync()
}

func (r *Registry) Get(agentID string) (*store.Agent, error) {
	a, err := r.store.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return a, nil
}

func (r *Registry) GetByName(name string) (*store.Agent, error) {
	a, err := r.store.GetAgentByName(name)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return a, nil
}

func (r *Registry) List() ([]store.Agent, error) {
	return r.store.ListAgents()
}

// Roster describes the online team, one line per agent, for prompts.
func (r *Registry) Roster() (string, error) {
	agents, err := r.store.ListAgents()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, a := range agents {
		if a.Status == store.AgentOffline {
			continue
		}
		role := tools.Role(a.Role)
		fmt.Fprintf(&b, "- %s (%s): %s\n", a.Name, role.Label(), role.Description())
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

var roleOrder = map[tools.Role]int{
	tools.RoleLead:       0,
	tools.RoleBackend:    1,
	tools.RoleFrontend:   2,
	tools.RoleReviewer:   3,
	tools.RoleAutomation: 4,
}

// sortedNames orders the roster lead first, then by role and name.
func sortedNames(agents map[string]config.AgentDefinition) []string {
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	rank := func(name string) int {
		role, err := tools.ParseRole(agents[name].Role)
		if err != nil {
			return len(roleOrder)
		}
		return roleOrder[role]
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := rank(names[i]), rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names
}
