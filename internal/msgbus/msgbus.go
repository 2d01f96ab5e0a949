// Package msgbus is the only write path for inter-agent messages,
// connections, agent status and the task audit log. Every successful write
// is also published on the NATS change feed.
package msgbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtzanidakis/agentcrew/internal/natsbus"
	"github.com/mtzanidakis/agentcrew/internal/registry"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

type Bus struct {
	store    *store.Store
	registry *registry.Registry
	client   *natsbus.Client
	ttl      time.Duration
	now      func() time.Time
}

// New creates a message bus. client may be nil, in which case nothing is
// published.
func New(s *store.Store, reg *registry.Registry, client *natsbus.Client, connectionTTL time.Duration) *Bus {
	if connectionTTL <= 0 {
		connectionTTL = 30 * time.Second
	}
	return &Bus{
		store:    s,
		registry: reg,
		client:   client,
		ttl:      connectionTTL,
		now:      time.Now,
	}
}

type SendParams struct {
	FromAgentID *string
	ToAgentID   *string
	TaskID      *string
	Type        store.MessageType
	Content     string
	Metadata    map[string]any
}

// Send appends a message. A nil ToAgentID broadcasts.
func (b *Bus) Send(p SendParams) (*store.Message, error) {
	msg := &store.Message{
		FromAgentID: p.FromAgentID,
		ToAgentID:   p.ToAgentID,
		TaskID:      p.TaskID,
		Type:        p.Type,
		Content:     p.Content,
	}
	if len(p.Metadata) > 0 {
		data, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		msg.Metadata = data
	}
	if err := b.store.SaveMessage(msg); err != nil {
		return nil, err
	}
	b.publish(natsbus.EventMessageCreated, msg)
	return msg, nil
}

// CreateConnection records a short-lived edge between two agents.
func (b *Bus) CreateConnection(fromAgentID, toAgentID string, typ store.ConnectionType) (*store.Connection, error) {
	now := b.now().UTC()
	c := &store.Connection{
		FromAgentID: fromAgentID,
		ToAgentID:   toAgentID,
		Type:        typ,
		CreatedAt:   now,
		ExpiresAt:   now.Add(b.ttl),
	}
	if err := b.store.CreateConnection(c); err != nil {
		return nil, err
	}
	b.publish(natsbus.EventConnectionCreated, c)
	return c, nil
}

// ResolveAgent looks an agent up by name. Unknown names return
// registry.ErrAgentNotFound.
func (b *Bus) ResolveAgent(name string) (*store.Agent, error) {
	return b.registry.GetByName(name)
}

// SetStatus changes an agent's status and current task together.
func (b *Bus) SetStatus(agentID string, status store.AgentStatus, ref store.TaskRef) error {
	if err := b.store.SetAgentStatus(agentID, status, ref); err != nil {
		return err
	}
	if b.client != nil {
		if a, err := b.store.GetAgent(agentID); err == nil && a != nil {
			b.publish(natsbus.EventAgentStatus, a)
		}
	}
	return nil
}

type LogParams struct {
	TaskID     string
	AgentID    *string
	Action     string
	Details    string
	TokensUsed int64
	CostUSD    float64
}

// LogAction appends an audit entry. Failures are logged and otherwise
// ignored.
func (b *Bus) LogAction(p LogParams) {
	l := &store.TaskLog{
		TaskID:     p.TaskID,
		AgentID:    p.AgentID,
		Action:     p.Action,
		Details:    p.Details,
		TokensUsed: p.TokensUsed,
		CostUSD:    p.CostUSD,
	}
	if err := b.store.SaveTaskLog(l); err != nil {
		slog.Warn("audit log append failed", "task", p.TaskID, "action", p.Action, "error", err)
		return
	}
	b.publish(natsbus.EventLogCreated, l)
}

// TaskCreated publishes a newly inserted task.
func (b *Bus) TaskCreated(t *store.Task) {
	b.publish(natsbus.EventTaskCreated, t)
}

// TaskChanged publishes the current state of a task after a mutation.
func (b *Bus) TaskChanged(taskID string) {
	if b.client == nil {
		return
	}
	t, err := b.store.GetTask(taskID)
	if err != nil || t == nil {
		return
	}
	b.publish(natsbus.EventTaskUpdated, t)
}

// Publish sends an arbitrary event on the change feed.
func (b *Bus) Publish(eventType string, data any) {
	b.publish(eventType, data)
}

func (b *Bus) publish(eventType string, data any) {
	if b.client == nil {
		return
	}
	if err := b.client.PublishEvent(eventType, data); err != nil {
		slog.Warn("publish event failed", "type", eventType, "error", err)
	}
}
