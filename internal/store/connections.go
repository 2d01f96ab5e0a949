package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConnectionType string

const (
	ConnectionCommunication  ConnectionType = "communication"
	ConnectionTaskDelegation ConnectionType = "task_delegation"
	ConnectionReview         ConnectionType = "review"
)

// Connection is a short-lived edge between two agents, used only for
// visualisation.
type Connection struct {
	ID          string         `json:"id"`
	FromAgentID string         `json:"from_agent_id"`
	ToAgentID   string         `json:"to_agent_id"`
	Type        ConnectionType `json:"type"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

func (s *Store) CreateConnection(c *Connection) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Active = true
	_, err := s.db.Exec(`
		INSERT INTO agent_connections (id, from_agent_id, to_agent_id, type, active, created_at, expires_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)`,
		c.ID, c.FromAgentID, c.ToAgentID, c.Type, c.CreatedAt.UTC(), c.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

// ListActiveConnections returns active connections that have not expired
// at now, newest first.
func (s *Store) ListActiveConnections(now time.Time) ([]Connection, error) {
	rows, err := s.db.Query(`
		SELECT id, from_agent_id, to_agent_id, type, active, created_at, expires_at
		FROM agent_connections
		WHERE active = 1 AND expires_at > ?
		ORDER BY created_at DESC`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var conns []Connection
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.ID, &c.FromAgentID, &c.ToAgentID, &c.Type, &c.Active, &c.CreatedAt, &c.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// DeactivateExpiredConnections flips active off for every connection that
// expired at or before now.
func (s *Store) DeactivateExpiredConnections(now time.Time) (int64, error) {
	res, err := s.db.Exec(`UPDATE agent_connections SET active = 0 WHERE active = 1 AND expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("deactivate connections: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
