package executor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/msgbus"
	"github.com/mtzanidakis/agentcrew/internal/store"
	"github.com/mtzanidakis/agentcrew/internal/tools"
)

var errNoReviewer = errors.New("no reviewer configured")

// dispatch performs one tool call. Every failure becomes an error result
// so the loop can continue.
func (e *Executor) dispatch(agent *store.Agent, role tools.Role, task *store.Task, call llm.ToolCall, opts Options) llm.ToolResult {
	name := tools.Name(call.Name)
	if _, ok := tools.Lookup(name); !ok {
		return llm.ToolResult{CallID: call.ID, Content: "Unknown tool: " + call.Name, IsError: true}
	}
	if !role.Allows(name) {
		return toolError(call, fmt.Errorf("tool %s is not available to role %s", name, role))
	}

	args, err := e.decodeArgs(name, call.Input)
	if err != nil {
		return toolError(call, err)
	}

	slog.Debug("tool call", "agent", agent.Name, "tool", name, "task", task.ID)

	var out string
	switch name {
	case tools.SendMessage:
		out, err = e.sendMessage(agent, task, args.(*tools.SendMessageArgs))
	case tools.CreateSubtask:
		out, err = e.createSubtask(agent, task, args.(*tools.CreateSubtaskArgs))
	case tools.UpdateTaskStatus:
		out, err = e.updateTaskStatus(agent, args.(*tools.UpdateTaskStatusArgs))
	case tools.RequestReview:
		out, err = e.requestReview(agent, args.(*tools.RequestReviewArgs), opts.ReviewerAgent)
	case tools.ApproveTask:
		out, err = e.approveTask(agent, args.(*tools.ReviewArgs))
	case tools.RejectTask:
		out, err = e.rejectTask(agent, args.(*tools.ReviewArgs))
	default:
		return llm.ToolResult{CallID: call.ID, Content: "Unknown tool: " + call.Name, IsError: true}
	}
	if err != nil {
		slog.Warn("tool call failed", "agent", agent.Name, "tool", name, "error", err)
		return toolError(call, err)
	}
	return llm.ToolResult{CallID: call.ID, Content: out}
}

func (e *Executor) decodeArgs(name tools.Name, input json.RawMessage) (any, error) {
	args, ok := tools.Args(name)
	if !ok {
		return nil, fmt.Errorf("no arguments defined for %s", name)
	}
	if len(bytes.TrimSpace(input)) > 0 {
		if err := json.Unmarshal(input, args); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}
	if err := e.validate.Struct(args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return args, nil
}

func (e *Executor) sendMessage(agent *store.Agent, task *store.Task, a *tools.SendMessageArgs) (string, error) {
	target, err := e.bus.ResolveAgent(a.ToAgent)
	if err != nil {
		return "", err
	}

	if err := e.bus.SetStatus(agent.ID, store.AgentTalking, store.KeepTask()); err != nil {
		slog.Warn("set agent talking failed", "agent", agent.Name, "error", err)
	}
	defer func() {
		if err := e.bus.SetStatus(agent.ID, store.AgentWorking, store.KeepTask()); err != nil {
			slog.Warn("set agent working failed", "agent", agent.Name, "error", err)
		}
	}()

	if _, err := e.bus.CreateConnection(agent.ID, target.ID, store.ConnectionCommunication); err != nil {
		return "", err
	}
	taskID := task.ID
	if _, err := e.bus.Send(msgbus.SendParams{
		FromAgentID: &agent.ID,
		ToAgentID:   &target.ID,
		TaskID:      &taskID,
		Type:        store.MessageChat,
		Content:     a.Content,
	}); err != nil {
		return "", err
	}
	return "Message sent to " + target.Name, nil
}

func (e *Executor) createSubtask(agent *store.Agent, task *store.Task, a *tools.CreateSubtaskArgs) (string, error) {
	assignee, err := e.bus.ResolveAgent(a.AssignTo)
	if err != nil {
		return "", err
	}

	priority := store.Priority(a.Priority)
	if priority == "" {
		priority = store.PriorityMedium
	}
	parentID := task.ID
	sub := &store.Task{
		ParentTaskID:    &parentID,
		Title:           a.Title,
		Description:     a.Description,
		Status:          store.TaskPending,
		Priority:        priority,
		AssignedAgentID: &assignee.ID,
		CreatedBy:       agent.Name,
	}
	if err := e.store.CreateTask(sub); err != nil {
		return "", err
	}
	e.bus.TaskCreated(sub)

	if _, err := e.bus.CreateConnection(agent.ID, assignee.ID, store.ConnectionTaskDelegation); err != nil {
		return "", err
	}
	subID := sub.ID
	if _, err := e.bus.Send(msgbus.SendParams{
		FromAgentID: &agent.ID,
		ToAgentID:   &assignee.ID,
		TaskID:      &subID,
		Type:        store.MessageTaskAssignment,
		Content:     fmt.Sprintf("I'm assigning you the task: %s\n\n%s", a.Title, a.Description),
		Metadata:    map[string]any{"parent_task_id": parentID, "priority": string(priority)},
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Subtask %q created and assigned to %s (ID: %s)", a.Title, assignee.Name, sub.ID), nil
}

func (e *Executor) updateTaskStatus(agent *store.Agent, a *tools.UpdateTaskStatusArgs) (string, error) {
	var result *string
	if a.Result != "" {
		result = &a.Result
	}
	if err := e.store.UpdateTaskStatus(a.TaskID, store.TaskStatus(a.Status), result); err != nil {
		return "", fmt.Errorf("update task %s: %w", a.TaskID, err)
	}
	e.bus.TaskChanged(a.TaskID)

	taskID := a.TaskID
	if _, err := e.bus.Send(msgbus.SendParams{
		FromAgentID: &agent.ID,
		TaskID:      &taskID,
		Type:        store.MessageStatusUpdate,
		Content:     fmt.Sprintf("%s updated the status to: %s", agent.Name, a.Status),
	}); err != nil {
		return "", err
	}
	return "Task status updated to: " + a.Status, nil
}

func (e *Executor) requestReview(agent *store.Agent, a *tools.RequestReviewArgs, reviewerName string) (string, error) {
	if reviewerName == "" {
		return "", errNoReviewer
	}
	reviewer, err := e.bus.ResolveAgent(reviewerName)
	if err != nil {
		return "", err
	}
	if err := e.store.UpdateTaskStatus(a.TaskID, store.TaskReview, nil); err != nil {
		return "", fmt.Errorf("update task %s: %w", a.TaskID, err)
	}
	e.bus.TaskChanged(a.TaskID)

	if _, err := e.bus.CreateConnection(agent.ID, reviewer.ID, store.ConnectionReview); err != nil {
		return "", err
	}
	taskID := a.TaskID
	if _, err := e.bus.Send(msgbus.SendParams{
		FromAgentID: &agent.ID,
		ToAgentID:   &reviewer.ID,
		TaskID:      &taskID,
		Type:        store.MessageReviewRequest,
		Content:     "Requesting review:\n\n" + a.Summary,
	}); err != nil {
		return "", err
	}
	return "Review requested from " + reviewer.Name, nil
}

func (e *Executor) approveTask(agent *store.Agent, a *tools.ReviewArgs) (string, error) {
	feedback := a.Feedback
	if err := e.store.UpdateTaskStatus(a.TaskID, store.TaskCompleted, &feedback); err != nil {
		return "", fmt.Errorf("update task %s: %w", a.TaskID, err)
	}
	e.bus.TaskChanged(a.TaskID)

	taskID := a.TaskID
	if _, err := e.bus.Send(msgbus.SendParams{
		FromAgentID: &agent.ID,
		TaskID:      &taskID,
		Type:        store.MessageReviewResult,
		Content:     "Approved: " + feedback,
		Metadata:    map[string]any{"approved": true},
	}); err != nil {
		return "", err
	}
	return "Task approved with feedback: " + feedback, nil
}

func (e *Executor) rejectTask(agent *store.Agent, a *tools.ReviewArgs) (string, error) {
	t, err := e.store.GetTask(a.TaskID)
	if err != nil {
		return "", fmt.Errorf("get task: %w", err)
	}
	if t == nil {
		return "", fmt.Errorf("%w: %s", store.ErrTaskNotFound, a.TaskID)
	}
	if err := e.store.UpdateTaskStatus(a.TaskID, store.TaskInProgress, nil); err != nil {
		return "", fmt.Errorf("update task %s: %w", a.TaskID, err)
	}
	e.bus.TaskChanged(a.TaskID)

	if t.AssignedAgentID != nil {
		taskID := a.TaskID
		if _, err := e.bus.Send(msgbus.SendParams{
			FromAgentID: &agent.ID,
			ToAgentID:   t.AssignedAgentID,
			TaskID:      &taskID,
			Type:        store.MessageReviewResult,
			Content:     "Rejected - corrections needed:\n\n" + a.Feedback,
			Metadata:    map[string]any{"approved": false},
		}); err != nil {
			return "", err
		}
	}
	return "Task rejected with feedback: " + a.Feedback, nil
}
