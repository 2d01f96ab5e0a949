package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type MessageType string

const (
	MessageChat           MessageType = "chat"
	MessageTaskAssignment MessageType = "task_assignment"
	MessageStatusUpdate   MessageType = "status_update"
	MessageReviewRequest  MessageType = "review_request"
	MessageReviewResult   MessageType = "review_result"
	MessageSystem         MessageType = "system"
	MessageUserInput      MessageType = "user_input"
)

// Message is an append-only bus entry. A nil ToAgentID is a broadcast.
type Message struct {
	ID          int64           `json:"id"`
	FromAgentID *string         `json:"from_agent_id,omitempty"`
	ToAgentID   *string         `json:"to_agent_id,omitempty"`
	TaskID      *string         `json:"task_id,omitempty"`
	Type        MessageType     `json:"type"`
	Content     string          `json:"content"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MessageFilter narrows ListMessages. Zero fields match everything.
type MessageFilter struct {
	TaskID  string
	AgentID string
	Limit   int
}

func (s *Store) SaveMessage(msg *Message) error {
	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		metadata = sql.NullString{String: string(msg.Metadata), Valid: true}
	}
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		INSERT INTO messages (from_agent_id, to_agent_id, task_id, type, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullPtr(msg.FromAgentID), nullPtr(msg.ToAgentID), nullPtr(msg.TaskID), msg.Type, msg.Content, metadata, now)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	msg.ID, _ = result.LastInsertId()
	msg.CreatedAt = now
	return nil
}

// ListMessages returns messages in insertion order. When a limit is set
// the most recent limit messages are returned, still oldest first.
func (s *Store) ListMessages(f MessageFilter) ([]Message, error) {
	query := `SELECT id, from_agent_id, to_agent_id, task_id, type, content, metadata, created_at
		FROM messages WHERE 1=1`
	var args []any
	if f.TaskID != "" {
		query += ` AND task_id = ?`
		args = append(args, f.TaskID)
	}
	if f.AgentID != "" {
		query += ` AND (from_agent_id = ? OR to_agent_id = ?)`
		args = append(args, f.AgentID, f.AgentID)
	}
	query += ` ORDER BY id DESC`
	if f.Limit <= 0 {
		f.Limit = 200
	}
	query += ` LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var from, to, task, metadata sql.NullString
		if err := rows.Scan(&m.ID, &from, &to, &task, &m.Type, &m.Content, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.FromAgentID = ptrFromNull(from)
		m.ToAgentID = ptrFromNull(to)
		m.TaskID = ptrFromNull(task)
		if metadata.Valid {
			m.Metadata = json.RawMessage(metadata.String)
		}
		messages = append(messages, m)
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, rows.Err()
}
