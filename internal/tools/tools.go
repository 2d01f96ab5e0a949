// Package tools is the catalog of actions an agent may request during an
// executor run: their names, schemas and the roles allowed to use them.
package tools

// Name identifies one tool. The set is closed; the executor switches over
// every value exhaustively.
type Name string

const (
	SendMessage      Name = "send_message"
	CreateSubtask    Name = "create_subtask"
	UpdateTaskStatus Name = "update_task_status"
	RequestReview    Name = "request_review"
	ApproveTask      Name = "approve_task"
	RejectTask       Name = "reject_task"
)

// Param describes one argument of a tool.
type Param struct {
	Name        string
	Type        string
	Description string
	Enum        []string
	Required    bool
}

// Schema is the provider-neutral description of a tool offered to a model.
type Schema struct {
	Name        Name
	Description string
	Params      []Param
}

// Properties returns the JSON-schema "properties" object.
func (s Schema) Properties() map[string]any {
	props := make(map[string]any, len(s.Params))
	for _, p := range s.Params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
	}
	return props
}

// Required returns the names of the required parameters.
func (s Schema) Required() []string {
	var req []string
	for _, p := range s.Params {
		if p.Required {
			req = append(req, p.Name)
		}
	}
	return req
}

// JSONSchema returns the full object schema for the tool's input.
func (s Schema) JSONSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": s.Properties(),
		"required":   s.Required(),
	}
}

var taskStatuses = []string{"in_progress", "review", "completed", "failed"}

var catalog = []Schema{
	{
		Name:        SendMessage,
		Description: "Send a message to another agent on the team.",
		Params: []Param{
			{Name: "to_agent", Type: "string", Description: "Name of the receiving agent.", Required: true},
			{Name: "content", Type: "string", Description: "Message content.", Required: true},
		},
	},
	{
		Name:        UpdateTaskStatus,
		Description: "Update the status of a task, optionally recording its result.",
		Params: []Param{
			{Name: "task_id", Type: "string", Description: "ID of the task.", Required: true},
			{Name: "status", Type: "string", Description: "New status.", Enum: taskStatuses, Required: true},
			{Name: "result", Type: "string", Description: "Result or output of the task."},
		},
	},
	{
		Name:        CreateSubtask,
		Description: "Create a subtask of the current task and assign it to a specific agent.",
		Params: []Param{
			{Name: "title", Type: "string", Description: "Title of the subtask.", Required: true},
			{Name: "description", Type: "string", Description: "Detailed description of what to do.", Required: true},
			{Name: "assign_to", Type: "string", Description: "Name of the agent that will do the work.", Required: true},
			{Name: "priority", Type: "string", Description: "Priority of the subtask.", Enum: []string{"low", "medium", "high", "urgent"}},
		},
	},
	{
		Name:        RequestReview,
		Description: "Ask the reviewer to check the work done on a task.",
		Params: []Param{
			{Name: "task_id", Type: "string", Description: "ID of the task to review.", Required: true},
			{Name: "summary", Type: "string", Description: "Summary of the work done.", Required: true},
		},
	},
	{
		Name:        ApproveTask,
		Description: "Approve a task after review.",
		Params: []Param{
			{Name: "task_id", Type: "string", Description: "ID of the task.", Required: true},
			{Name: "feedback", Type: "string", Description: "Review feedback.", Required: true},
		},
	},
	{
		Name:        RejectTask,
		Description: "Reject a task and send it back with the corrections needed.",
		Params: []Param{
			{Name: "task_id", Type: "string", Description: "ID of the task.", Required: true},
			{Name: "feedback", Type: "string", Description: "What needs to be corrected.", Required: true},
		},
	},
}

// All returns every tool schema in catalog order.
func All() []Schema {
	out := make([]Schema, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the schema for name.
func Lookup(name Name) (Schema, bool) {
	for _, s := range catalog {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}

// Argument payloads, decoded from the model's tool input.

type SendMessageArgs struct {
	ToAgent string `json:"to_agent" validate:"required"`
	Content string `json:"content" validate:"required"`
}

type CreateSubtaskArgs struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	AssignTo    string `json:"assign_to" validate:"required"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

type UpdateTaskStatusArgs struct {
	TaskID string `json:"task_id" validate:"required"`
	Status string `json:"status" validate:"required,oneof=in_progress review completed failed"`
	Result string `json:"result"`
}

type RequestReviewArgs struct {
	TaskID  string `json:"task_id" validate:"required"`
	Summary string `json:"summary" validate:"required"`
}

// ReviewArgs is shared by approve_task and reject_task.
type ReviewArgs struct {
	TaskID   string `json:"task_id" validate:"required"`
	Feedback string `json:"feedback" validate:"required"`
}

// Args returns a pointer to a zero argument struct for name.
func Args(name Name) (any, bool) {
	switch name {
	case SendMessage:
		return &SendMessageArgs{}, true
	case CreateSubtask:
		return &CreateSubtaskArgs{}, true
	case UpdateTaskStatus:
		return &UpdateTaskStatusArgs{}, true
	case RequestReview:
		return &RequestReviewArgs{}, true
	case ApproveTask, RejectTask:
		return &ReviewArgs{}, true
	}
	return nil, false
}
