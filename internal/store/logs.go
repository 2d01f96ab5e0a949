package store

import (
	"database/sql"
	"fmt"
	"time"
)

// TaskLog is one audit entry for work done on a task.
type TaskLog struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	AgentID    *string   `json:"agent_id,omitempty"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"`
	TokensUsed int64     `json:"tokens_used"`
	CostUSD    float64   `json:"cost_usd"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Store) SaveTaskLog(l *TaskLog) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO task_logs (task_id, agent_id, action, details, tokens_used, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.TaskID, nullPtr(l.AgentID), l.Action, nullString(l.Details), l.TokensUsed, l.CostUSD, now)
	if err != nil {
		return fmt.Errorf("save task log: %w", err)
	}
	l.ID, _ = res.LastInsertId()
	l.CreatedAt = now
	return nil
}

func (s *Store) ListTaskLogs(taskID string) ([]TaskLog, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, agent_id, action, details, tokens_used, cost_usd, created_at
		FROM task_logs WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task logs: %w", err)
	}
	defer rows.Close()

	var logs []TaskLog
	for rows.Next() {
		var l TaskLog
		var agent, details sql.NullString
		if err := rows.Scan(&l.ID, &l.TaskID, &agent, &l.Action, &details, &l.TokensUsed, &l.CostUSD, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task log: %w", err)
		}
		l.AgentID = ptrFromNull(agent)
		l.Details = details.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// UsageTotals sums tokens and cost over all audit entries.
type UsageTotals struct {
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

func (s *Store) GetUsageTotals() (UsageTotals, error) {
	var u UsageTotals
	err := s.db.QueryRow(`SELECT COALESCE(SUM(tokens_used), 0), COALESCE(SUM(cost_usd), 0) FROM task_logs`).
		Scan(&u.Tokens, &u.CostUSD)
	if err != nil {
		return u, fmt.Errorf("get usage totals: %w", err)
	}
	return u, nil
}
