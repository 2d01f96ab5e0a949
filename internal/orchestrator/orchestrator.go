// Package orchestrator drives one goal from submission to a compiled result:
// the lead decomposes, assignees execute, the reviewer checks and the
// outcome is written back to the root task.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/executor"
	"github.com/mtzanidakis/agentcrew/internal/msgbus"
	"github.com/mtzanidakis/agentcrew/internal/natsbus"
	"github.com/mtzanidakis/agentcrew/internal/registry"
	"github.com/mtzanidakis/agentcrew/internal/store"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidGoal = errors.New("invalid goal")
	ErrStart       = errors.New("start orchestration")
)

const summaryResultLen = 100

type Goal struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

type SubtaskSummary struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Status          store.TaskStatus `json:"status"`
	Result          string           `json:"result,omitempty"`
	AssignedAgentID *string          `json:"assigned_agent_id,omitempty"`
}

// Outcome is returned to the caller of Run. Result is the lead's own text.
type Outcome struct {
	RunID      string           `json:"run_id"`
	RootTaskID string           `json:"root_task_id"`
	Result     string           `json:"result"`
	Subtasks   []SubtaskSummary `json:"subtasks"`
}

type Options struct {
	LeadAgent        string
	ReviewerAgent    string
	RunTimeout       time.Duration
	ParallelSubtasks bool
	MaxParallel      int
}

func OptionsFromConfig(cfg config.OrchestratorConfig) Options {
	return Options{
		LeadAgent:        cfg.LeadAgent,
		ReviewerAgent:    cfg.ReviewerAgent,
		RunTimeout:       cfg.RunTimeout,
		ParallelSubtasks: cfg.ParallelSubtasks,
		MaxParallel:      cfg.MaxParallel,
	}
}

type Orchestrator struct {
	exec     *executor.Executor
	bus      *msgbus.Bus
	registry *registry.Registry
	store    *store.Store
	validate *validator.Validate

	mu   sync.RWMutex
	opts Options
}

func New(exec *executor.Executor, bus *msgbus.Bus, reg *registry.Registry, s *store.Store, opts Options) *Orchestrator {
	return &Orchestrator{
		exec:     exec,
		bus:      bus,
		registry: reg,
		store:    s,
		validate: validator.New(),
		opts:     opts,
	}
}

// UpdateOptions replaces the settings used by subsequent runs.
func (o *Orchestrator) UpdateOptions(opts Options) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opts = opts
}

func (o *Orchestrator) options() Options {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.opts
}

// Run executes one orchestration. The only errors returned are
// ErrInvalidGoal and ErrStart; everything after the root task exists
// degrades into the outcome instead.
func (o *Orchestrator) Run(ctx context.Context, goal Goal) (*Outcome, error) {
	goal.Title = strings.TrimSpace(goal.Title)
	goal.Description = strings.TrimSpace(goal.Description)
	if err := o.validate.Struct(goal); err != nil {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidGoal)
	}
	opts := o.options()

	run := &store.OrchestrationRun{
		ID:        uuid.New().String(),
		Title:     goal.Title,
		Phase:     store.PhaseSubmitted,
		Status:    store.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	o.setPhase(run, store.PhaseSubmitted)

	lead, err := o.bus.ResolveAgent(opts.LeadAgent)
	if err != nil {
		o.fail(run, err)
		return nil, fmt.Errorf("%w: resolve lead: %w", ErrStart, err)
	}

	root := &store.Task{
		Title:           goal.Title,
		Description:     goal.Description,
		Status:          store.TaskInProgress,
		Priority:        store.PriorityHigh,
		AssignedAgentID: &lead.ID,
		CreatedBy:       "user",
	}
	if err := o.store.CreateTask(root); err != nil {
		o.fail(run, err)
		return nil, fmt.Errorf("%w: %w", ErrStart, err)
	}
	o.bus.TaskCreated(root)
	run.RootTaskID = root.ID
	slog.Info("orchestration started", "run", run.ID, "task", root.ID, "lead", lead.Name)

	o.send(msgbus.SendParams{
		TaskID:  &root.ID,
		Type:    store.MessageUserInput,
		Content: userInput(goal),
	})
	o.send(msgbus.SendParams{
		ToAgentID: &lead.ID,
		TaskID:    &root.ID,
		Type:      store.MessageSystem,
		Content:   fmt.Sprintf("%s has been assigned to coordinate: %s", lead.Name, goal.Title),
	})

	if opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.RunTimeout)
		defer cancel()
	}

	o.setPhase(run, store.PhaseDecomposing)
	leadRes := o.exec.Run(ctx, lead, root, "")
	if !leadRes.Success {
		slog.Warn("lead run failed, continuing without a plan", "run", run.ID, "result", leadRes.Result)
	}

	o.setPhase(run, store.PhaseDelegating)
	subtasks, err := o.store.ListSubtasks(root.ID)
	if err != nil {
		slog.Error("list subtasks failed", "run", run.ID, "error", err)
	}

	o.setPhase(run, store.PhaseExecuting)
	extra := fmt.Sprintf("Parent task: %s\nLead instructions: %s", goal.Title, leadRes.Result)
	if opts.ParallelSubtasks {
		o.executeParallel(ctx, subtasks, extra, opts.MaxParallel)
	} else {
		for i := range subtasks {
			o.executeSubtask(ctx, &subtasks[i], extra)
		}
	}

	o.setPhase(run, store.PhaseReviewing)
	o.review(ctx, root.ID, opts.ReviewerAgent)

	o.setPhase(run, store.PhaseCompiling)
	final, err := o.store.ListSubtasks(root.ID)
	if err != nil {
		slog.Error("list subtasks failed", "run", run.ID, "error", err)
	}
	summaries := make([]SubtaskSummary, 0, len(final))
	for _, t := range final {
		summaries = append(summaries, summarize(t))
	}

	compiled := fmt.Sprintf("Summary:\n%s\n\nSubtasks:\n%s", leadRes.Result, summaryText(summaries))
	if err := o.store.UpdateTaskStatus(root.ID, store.TaskCompleted, &compiled); err != nil {
		slog.Error("complete root task failed", "run", run.ID, "error", err)
	}
	o.bus.TaskChanged(root.ID)
	o.send(msgbus.SendParams{
		FromAgentID: &lead.ID,
		TaskID:      &root.ID,
		Type:        store.MessageStatusUpdate,
		Content:     fmt.Sprintf("Task completed. %d subtasks processed.", len(summaries)),
	})

	run.Subtasks = len(summaries)
	run.Status = store.RunCompleted
	if err := ctx.Err(); err != nil {
		run.Error = err.Error()
	}
	o.setPhase(run, store.PhaseDone)
	slog.Info("orchestration finished", "run", run.ID, "task", root.ID, "subtasks", len(summaries))

	return &Outcome{
		RunID:      run.ID,
		RootTaskID: root.ID,
		Result:     leadRes.Result,
		Subtasks:   summaries,
	}, nil
}

// executeSubtask runs the assignee of one subtask. Unresolvable assignees
// and subtasks already claimed elsewhere are skipped.
func (o *Orchestrator) executeSubtask(ctx context.Context, sub *store.Task, extra string) {
	if sub.AssignedAgentID == nil {
		return
	}
	ag, err := o.registry.Get(*sub.AssignedAgentID)
	if err != nil {
		slog.Warn("skipping subtask, assignee not found", "task", sub.ID, "error", err)
		return
	}
	if sub.Status == store.TaskPending {
		claimed, err := o.store.ClaimTask(sub.ID)
		if err != nil {
			slog.Warn("claim subtask failed", "task", sub.ID, "error", err)
			return
		}
		if !claimed {
			slog.Info("subtask already claimed", "task", sub.ID)
			return
		}
		o.bus.TaskChanged(sub.ID)
	}

	res := o.exec.Run(ctx, ag, sub, extra)
	if err := o.exec.Settle(sub.ID, res); err != nil {
		slog.Error("update subtask failed", "task", sub.ID, "error", err)
	}
}

// executeParallel runs subtasks grouped by assignee. Groups run
// concurrently, each in creation order.
func (o *Orchestrator) executeParallel(ctx context.Context, subtasks []store.Task, extra string, limit int) {
	var order []string
	groups := make(map[string][]*store.Task)
	for i := range subtasks {
		sub := &subtasks[i]
		if sub.AssignedAgentID == nil {
			continue
		}
		id := *sub.AssignedAgentID
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], sub)
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, id := range order {
		group := groups[id]
		g.Go(func() error {
			for _, sub := range group {
				o.executeSubtask(ctx, sub, extra)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) review(ctx context.Context, rootID, reviewerName string) {
	subtasks, err := o.store.ListSubtasks(rootID)
	if err != nil {
		slog.Error("list subtasks failed", "task", rootID, "error", err)
		return
	}
	var pending []store.Task
	for _, t := range subtasks {
		if t.Status == store.TaskReview {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return
	}

	reviewer, err := o.bus.ResolveAgent(reviewerName)
	if err != nil {
		slog.Warn("skipping reviews, reviewer not found", "reviewer", reviewerName, "error", err)
		return
	}
	for i := range pending {
		t := &pending[i]
		result := ""
		if t.Result != nil {
			result = *t.Result
		}
		o.exec.Run(ctx, reviewer, t, "Review the work done on this task. Current result: "+result)
	}
}

func (o *Orchestrator) send(p msgbus.SendParams) {
	if _, err := o.bus.Send(p); err != nil {
		slog.Error("send message failed", "type", p.Type, "error", err)
	}
}

func (o *Orchestrator) setPhase(run *store.OrchestrationRun, phase string) {
	run.Phase = phase
	if err := o.store.SaveRun(run); err != nil {
		slog.Warn("save run failed", "run", run.ID, "error", err)
	}
	o.bus.Publish(natsbus.EventOrchestrationPhase, run)
}

func (o *Orchestrator) fail(run *store.OrchestrationRun, err error) {
	run.Status = store.RunFailed
	run.Error = err.Error()
	o.setPhase(run, run.Phase)
	slog.Error("orchestration failed to start", "run", run.ID, "error", err)
}

func userInput(g Goal) string {
	if g.Description == "" {
		return g.Title
	}
	return g.Title + "\n\n" + g.Description
}

func summarize(t store.Task) SubtaskSummary {
	s := SubtaskSummary{
		ID:              t.ID,
		Title:           t.Title,
		Status:          t.Status,
		AssignedAgentID: t.AssignedAgentID,
	}
	if t.Result != nil {
		s.Result = *t.Result
	}
	return s
}

func summaryText(subs []SubtaskSummary) string {
	if len(subs) == 0 {
		return "No subtasks"
	}
	lines := make([]string, 0, len(subs))
	for _, s := range subs {
		line := fmt.Sprintf("- %s: %s", s.Title, s.Status)
		if s.Result != "" {
			r := []rune(s.Result)
			if len(r) > summaryResultLen {
				r = r[:summaryResultLen]
			}
			line += fmt.Sprintf(" (%s)", string(r))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
