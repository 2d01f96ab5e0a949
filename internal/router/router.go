// Package router decides how an incoming chat message is handled: a
// leading "@Name" sends it straight to that agent, anything else becomes
// an orchestration goal.
package router

import (
	"errors"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/orchestrator"
	"github.com/mtzanidakis/agentcrew/internal/registry"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

var ErrEmpty = errors.New("empty message")

// Route is the decision for one message. Agent is nil for orchestration.
type Route struct {
	Agent *store.Agent
	Goal  orchestrator.Goal
}

// Direct reports whether the message goes to a single agent.
func (r Route) Direct() bool { return r.Agent != nil }

type Router struct {
	registry *registry.Registry
}

func New(reg *registry.Registry) *Router {
	return &Router{registry: reg}
}

func (r *Router) Route(message string) (Route, error) {
	message = strings.TrimSpace(message)

	// Check for @agent_name prefix
	if rest, ok := strings.CutPrefix(message, "@"); ok {
		name, body := rest, ""
		if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
			name, body = rest[:i], rest[i+1:]
		}
		if ag, err := r.registry.GetByName(name); err == nil {
			goal, ok := ParseGoal(body)
			if !ok {
				return Route{}, ErrEmpty
			}
			return Route{Agent: ag, Goal: goal}, nil
		}
		// Unknown agent name in prefix, the whole text is a goal
	}

	goal, ok := ParseGoal(message)
	if !ok {
		return Route{}, ErrEmpty
	}
	return Route{Goal: goal}, nil
}

// ParseGoal splits text into a title (first line) and description (the
// rest).
func ParseGoal(text string) (orchestrator.Goal, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return orchestrator.Goal{}, false
	}
	title, desc, _ := strings.Cut(text, "\n")
	return orchestrator.Goal{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(desc),
	}, true
}
