package tools

import (
	"fmt"
	"strings"
)

// Role is an agent's function on the team. The set is closed.
type Role string

const (
	RoleLead       Role = "lead"
	RoleBackend    Role = "backend"
	RoleFrontend   Role = "frontend"
	RoleReviewer   Role = "reviewer"
	RoleAutomation Role = "automation"
)

var roleAliases = map[string]Role{
	"lead":         RoleLead,
	"pm / lead":    RoleLead,
	"pm":           RoleLead,
	"backend":      RoleBackend,
	"backend dev":  RoleBackend,
	"frontend":     RoleFrontend,
	"frontend dev": RoleFrontend,
	"reviewer":     RoleReviewer,
	"qa":           RoleReviewer,
	"automation":   RoleAutomation,
}

// ParseRole accepts a canonical role name or one of its display labels,
// case-insensitively.
func ParseRole(s string) (Role, error) {
	if r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Roles returns every role.
func Roles() []Role {
	return []Role{RoleLead, RoleBackend, RoleFrontend, RoleReviewer, RoleAutomation}
}

// Label is the human-readable title used in prompts.
func (r Role) Label() string {
	switch r {
	case RoleLead:
		return "PM / Lead"
	case RoleBackend:
		return "Backend Developer"
	case RoleFrontend:
		return "Frontend Developer"
	case RoleReviewer:
		return "QA Reviewer"
	case RoleAutomation:
		return "Automation Engineer"
	}
	return string(r)
}

// Description summarises what the role does, for the team roster.
func (r Role) Description() string {
	switch r {
	case RoleLead:
		return "coordinates the team and breaks work into subtasks"
	case RoleBackend:
		return "builds APIs and backend services"
	case RoleFrontend:
		return "builds user interfaces"
	case RoleReviewer:
		return "reviews quality and tests delivered work"
	case RoleAutomation:
		return "builds automations and pipelines"
	}
	return ""
}

// Tools lists the tools offered to the role, in the order they are
// presented to the model.
func (r Role) Tools() []Name {
	common := []Name{SendMessage, UpdateTaskStatus}
	switch r {
	case RoleLead:
		return append(common, CreateSubtask)
	case RoleReviewer:
		return append(common, ApproveTask, RejectTask)
	case RoleBackend, RoleFrontend, RoleAutomation:
		return append(common, RequestReview)
	}
	return common
}

// Allows reports whether the role may call the tool.
func (r Role) Allows(name Name) bool {
	for _, n := range r.Tools() {
		if n == name {
			return true
		}
	}
	return false
}

// Schemas returns the schemas of the role's tools.
func (r Role) Schemas() []Schema {
	names := r.Tools()
	out := make([]Schema, 0, len(names))
	for _, n := range names {
		if s, ok := Lookup(n); ok {
			out = append(out, s)
		}
	}
	return out
}
