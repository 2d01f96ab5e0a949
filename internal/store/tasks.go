package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskReview, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Task struct {
	ID              string          `json:"id"`
	ParentTaskID    *string         `json:"parent_task_id,omitempty"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Status          TaskStatus      `json:"status"`
	Priority        Priority        `json:"priority"`
	AssignedAgentID *string         `json:"assigned_agent_id,omitempty"`
	CreatedBy       string          `json:"created_by"`
	Result          *string         `json:"result,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TaskFilter narrows ListTasks. Zero fields match everything.
type TaskFilter struct {
	Status   TaskStatus
	ParentID string
	Limit    int
}

const taskColumns = `id, parent_task_id, title, description, status, priority, assigned_agent_id,
	created_by, result, metadata, created_at, updated_at`

func scanTask(s scanner) (*Task, error) {
	t := &Task{}
	var parent, description, assigned, result, metadata sql.NullString
	err := s.Scan(&t.ID, &parent, &t.Title, &description, &t.Status, &t.Priority, &assigned,
		&t.CreatedBy, &result, &metadata, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ParentTaskID = ptrFromNull(parent)
	t.Description = description.String
	t.AssignedAgentID = ptrFromNull(assigned)
	t.Result = ptrFromNull(result)
	if metadata.Valid {
		t.Metadata = json.RawMessage(metadata.String)
	}
	return t, nil
}

// CreateTask inserts t, filling in id, status and priority defaults.
// A parent that does not exist yields ErrParentNotFound.
func (s *Store) CreateTask(t *Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.ParentTaskID != nil {
		var one int
		err := s.db.QueryRow(`SELECT 1 FROM tasks WHERE id = ?`, *t.ParentTaskID).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrParentNotFound
		}
		if err != nil {
			return fmt.Errorf("check parent task: %w", err)
		}
	}

	var metadata sql.NullString
	if len(t.Metadata) > 0 {
		metadata = sql.NullString{String: string(t.Metadata), Valid: true}
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, parent_task_id, title, description, status, priority, assigned_agent_id,
			created_by, result, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, nullPtr(t.ParentTaskID), t.Title, nullString(t.Description), t.Status, t.Priority,
		nullPtr(t.AssignedAgentID), t.CreatedBy, nullPtr(t.Result), metadata, now, now)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (s *Store) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks matching f, newest first.
func (s *Store) ListTasks(f TaskFilter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.ParentID != "" {
		query += ` AND parent_task_id = ?`
		args = append(args, f.ParentID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.queryTasks(query, args...)
}

// ListSubtasks returns the children of parentID in creation order.
func (s *Store) ListSubtasks(parentID string) ([]Task, error) {
	return s.queryTasks(`SELECT `+taskColumns+` FROM tasks WHERE parent_task_id = ? ORDER BY rowid`, parentID)
}

// PendingAssignedTasks returns up to limit pending tasks that have an
// assignee, oldest first.
func (s *Store) PendingAssignedTasks(limit int) ([]Task, error) {
	return s.queryTasks(`
		SELECT `+taskColumns+` FROM tasks
		WHERE status = 'pending' AND assigned_agent_id IS NOT NULL
		ORDER BY created_at, rowid
		LIMIT ?`, limit)
}

func (s *Store) queryTasks(query string, args ...any) ([]Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus sets the status and, when result is non-nil, the result.
func (s *Store) UpdateTaskStatus(id string, status TaskStatus, result *string) error {
	var res sql.Result
	var err error
	if result != nil {
		res, err = s.db.Exec(`UPDATE tasks SET status = ?, result = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			status, *result, id)
	} else {
		res, err = s.db.Exec(`UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			status, id)
	}
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ClaimTask moves a pending task to in_progress. It reports false when the
// task was no longer pending.
func (s *Store) ClaimTask(id string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE tasks SET status = 'in_progress', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
