package natsbus

// Change notification event types. Each is published on "events.<type>".
const (
	EventTaskCreated        = "task.created"
	EventTaskUpdated        = "task.updated"
	EventMessageCreated     = "message.created"
	EventConnectionCreated  = "connection.created"
	EventAgentStatus        = "agent.status"
	EventLogCreated         = "log.created"
	EventOrchestrationPhase = "orchestration.phase"
	EventSweepCompleted     = "sweep.completed"
	EventSecretSaved        = "secret.saved"
	EventSecretDeleted      = "secret.deleted"
)

func TopicEvent(eventType string) string {
	return "events." + eventType
}

const (
	TopicEventsAll   = "events.>"
	TopicEventsTask  = "events.task.*"
	TopicEventsAgent = "events.agent.*"
)
