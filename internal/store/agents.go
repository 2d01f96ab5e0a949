package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentWorking   AgentStatus = "working"
	AgentTalking   AgentStatus = "talking"
	AgentReviewing AgentStatus = "reviewing"
	AgentOffline   AgentStatus = "offline"
)

type Agent struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Role          string      `json:"role"`
	Model         string      `json:"model"`
	Personality   string      `json:"personality,omitempty"`
	Status        AgentStatus `json:"status"`
	CurrentTaskID *string     `json:"current_task_id,omitempty"`
	LastActiveAt  *time.Time  `json:"last_active_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TaskRef says what a status change does to an agent's current task.
type TaskRef struct {
	op     taskRefOp
	taskID string
}

type taskRefOp int

const (
	keepTask taskRefOp = iota
	clearTask
	setTask
)

// KeepTask leaves the current task untouched.
func KeepTask() TaskRef { return TaskRef{op: keepTask} }

// ClearTask removes the current task.
func ClearTask() TaskRef { return TaskRef{op: clearTask} }

// SetTask makes id the current task.
func SetTask(id string) TaskRef { return TaskRef{op: setTask, taskID: id} }

const agentColumns = `id, name, role, model, personality, status, current_task_id, last_active_at, created_at, updated_at`

func scanAgent(s scanner) (*Agent, error) {
	a := &Agent{}
	var personality, currentTask sql.NullString
	err := s.Scan(&a.ID, &a.Name, &a.Role, &a.Model, &personality, &a.Status, &currentTask,
		&a.LastActiveAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Personality = personality.String
	a.CurrentTaskID = ptrFromNull(currentTask)
	return a, nil
}

// UpsertAgent inserts the agent or updates the existing row with the same
// name. An offline agent that is upserted again comes back idle. a.ID is
// set to the stored id.
func (s *Store) UpsertAgent(a *Agent) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	err := s.db.QueryRow(`
		INSERT INTO agents (id, name, role, model, personality, status)
		VALUES (?, ?, ?, ?, ?, 'idle')
		ON CONFLICT(name) DO UPDATE SET
			role = excluded.role,
			model = excluded.model,
			personality = excluded.personality,
			status = CASE WHEN agents.status = 'offline' THEN 'idle' ELSE agents.status END,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id`,
		a.ID, a.Name, a.Role, a.Model, nullString(a.Personality)).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(id string) (*Agent, error) {
	row := s.db.QueryRow(`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (s *Store) GetAgentByName(name string) (*Agent, error) {
	row := s.db.QueryRow(`SELECT `+agentColumns+` FROM agents WHERE name = ?`, name)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent by name: %w", err)
	}
	return a, nil
}

func (s *Store) ListAgents() ([]Agent, error) {
	rows, err := s.db.Query(`SELECT ` + agentColumns + ` FROM agents ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// SetAgentStatus writes status and the current task in one statement so
// readers never observe one without the other.
func (s *Store) SetAgentStatus(id string, status AgentStatus, ref TaskRef) error {
	now := time.Now().UTC()
	var res sql.Result
	var err error
	switch ref.op {
	case keepTask:
		res, err = s.db.Exec(`
			UPDATE agents SET status = ?, last_active_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, status, now, id)
	case clearTask:
		res, err = s.db.Exec(`
			UPDATE agents SET status = ?, current_task_id = NULL, last_active_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, status, now, id)
	case setTask:
		res, err = s.db.Exec(`
			UPDATE agents SET status = ?, current_task_id = ?, last_active_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, status, ref.taskID, now, id)
	}
	if err != nil {
		return fmt.Errorf("set agent status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// MarkAgentsOfflineExcept sets every agent whose name is not in names
// offline and returns how many changed.
func (s *Store) MarkAgentsOfflineExcept(names []string) (int64, error) {
	query := `UPDATE agents SET status = 'offline', current_task_id = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE status != 'offline'`
	args := make([]any, len(names))
	if len(names) > 0 {
		placeholders := make([]string, len(names))
		for i, n := range names {
			placeholders[i] = "?"
			args[i] = n
		}
		query += ` AND name NOT IN (` + strings.Join(placeholders, ",") + `)`
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark agents offline: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
