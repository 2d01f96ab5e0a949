// Package executor runs one agent against one task: a bounded multi-turn
// tool-calling loop against an inference provider.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/msgbus"
	"github.com/mtzanidakis/agentcrew/internal/registry"
	"github.com/mtzanidakis/agentcrew/internal/store"
	"github.com/mtzanidakis/agentcrew/internal/tools"
)

const (
	placeholderResult = "Task completed."
	maxLogDetails     = 500
)

type Options struct {
	MaxTurns      int
	MaxTokens     int64
	ReviewerAgent string
}

// OptionsFromConfig picks the executor settings out of the full config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxTurns:      cfg.Orchestrator.MaxTurns,
		MaxTokens:     cfg.Inference.MaxTokens,
		ReviewerAgent: cfg.Orchestrator.ReviewerAgent,
	}
}

type Executor struct {
	provider llm.Provider
	bus      *msgbus.Bus
	registry *registry.Registry
	store    *store.Store
	pricing  llm.Pricing
	validate *validator.Validate
	locks    lockSet

	mu   sync.RWMutex
	opts Options
}

// Result is the outcome of one executor run.
type Result struct {
	Success      bool    `json:"success"`
	Result       string  `json:"result"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	Turns        int     `json:"turns"`
}

func New(p llm.Provider, bus *msgbus.Bus, reg *registry.Registry, s *store.Store, pricing llm.Pricing, opts Options) *Executor {
	if opts.MaxTurns < 1 {
		opts.MaxTurns = 10
	}
	if opts.MaxTokens < 1 {
		opts.MaxTokens = 4096
	}
	if pricing == nil {
		pricing = llm.NewPricing(nil)
	}
	return &Executor{
		provider: p,
		bus:      bus,
		registry: reg,
		store:    s,
		pricing:  pricing,
		validate: validator.New(),
		opts:     opts,
	}
}

// UpdateOptions replaces the settings used by subsequent runs.
func (e *Executor) UpdateOptions(opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if opts.MaxTurns >= 1 {
		e.opts.MaxTurns = opts.MaxTurns
	}
	if opts.MaxTokens >= 1 {
		e.opts.MaxTokens = opts.MaxTokens
	}
	if opts.ReviewerAgent != "" {
		e.opts.ReviewerAgent = opts.ReviewerAgent
	}
}

// UpdatePricing replaces the cost table.
func (e *Executor) UpdatePricing(p llm.Pricing) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pricing = p
}

func (e *Executor) options() (Options, llm.Pricing) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts, e.pricing
}

// Busy reports whether the agent is currently running a task.
func (e *Executor) Busy(agentID string) bool {
	l := e.locks.get(agentID)
	if !l.TryLock() {
		return true
	}
	l.Unlock()
	return false
}

// RunByID loads the agent and task and runs them. Unknown ids return
// registry.ErrAgentNotFound or store.ErrTaskNotFound.
func (e *Executor) RunByID(ctx context.Context, agentID, taskID, extra string) (Result, error) {
	ag, err := e.registry.Get(agentID)
	if err != nil {
		return Result{}, err
	}
	task, err := e.store.GetTask(taskID)
	if err != nil {
		return Result{}, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return Result{}, fmt.Errorf("%w: %s", store.ErrTaskNotFound, taskID)
	}
	return e.Run(ctx, ag, task, extra), nil
}

// Run executes agent against task. It never returns an error: failures are
// reported through Result. The agent always ends idle with no current task.
func (e *Executor) Run(ctx context.Context, agent *store.Agent, task *store.Task, extra string) Result {
	lock := e.locks.get(agent.ID)
	if err := lock.Lock(ctx); err != nil {
		return Result{Result: "Error: " + err.Error()}
	}
	defer lock.Unlock()

	opts, pricing := e.options()
	slog.Info("executor run started", "agent", agent.Name, "task", task.ID)

	if err := e.bus.SetStatus(agent.ID, store.AgentWorking, store.SetTask(task.ID)); err != nil {
		slog.Warn("set agent working failed", "agent", agent.Name, "error", err)
	}

	res, runErr := e.loop(ctx, agent, task, extra, opts)
	res.Cost = pricing.Cost(agent.Model, res.InputTokens, res.OutputTokens)

	action := "execute"
	if runErr != nil {
		res.Success = false
		res.Result = "Error: " + runErr.Error()
		action = "execute_failed"
		slog.Error("executor run failed", "agent", agent.Name, "task", task.ID, "error", runErr)
	} else {
		res.Success = true
		slog.Info("executor run finished", "agent", agent.Name, "task", task.ID,
			"turns", res.Turns, "tokens", res.InputTokens+res.OutputTokens)
	}

	agentID := agent.ID
	e.bus.LogAction(msgbus.LogParams{
		TaskID:     task.ID,
		AgentID:    &agentID,
		Action:     action,
		Details:    truncate(res.Result, maxLogDetails),
		TokensUsed: res.InputTokens + res.OutputTokens,
		CostUSD:    res.Cost,
	})

	if err := e.bus.SetStatus(agent.ID, store.AgentIdle, store.ClearTask()); err != nil {
		slog.Error("reset agent failed", "agent", agent.Name, "error", err)
	}
	return res
}

func (e *Executor) loop(ctx context.Context, agent *store.Agent, task *store.Task, extra string, opts Options) (Result, error) {
	var res Result
	role := tools.Role(agent.Role)

	roster, err := e.registry.Roster()
	if err != nil {
		slog.Warn("load roster failed", "error", err)
	}

	req := llm.Request{
		Model:     agent.Model,
		System:    systemPrompt(agent, role, roster, task, opts.ReviewerAgent),
		Tools:     role.Schemas(),
		MaxTokens: opts.MaxTokens,
		Turns:     []llm.Turn{{Role: llm.TurnUser, Text: userPrompt(task, extra)}},
	}

	var lastText, lastOutcome string
	for res.Turns < opts.MaxTurns {
		resp, err := e.provider.Complete(ctx, req)
		res.Turns++
		if err != nil {
			return res, fmt.Errorf("inference: %w", err)
		}
		res.InputTokens += resp.Usage.InputTokens
		res.OutputTokens += resp.Usage.OutputTokens
		if resp.Text != "" {
			lastText = resp.Text
		}

		if resp.Done() {
			res.Result = resp.Text
			if res.Result == "" {
				res.Result = placeholderResult
			}
			return res, nil
		}

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			out := e.dispatch(agent, role, task, call, opts)
			lastOutcome = out.Content
			results = append(results, out)
		}
		req.Turns = append(req.Turns,
			llm.Turn{Role: llm.TurnAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls},
			llm.Turn{Role: llm.TurnUser, ToolResults: results},
		)
	}

	slog.Warn("executor turn budget exhausted", "agent", agent.Name, "task", task.ID, "turns", res.Turns)
	switch {
	case lastText != "":
		res.Result = lastText
	case lastOutcome != "":
		res.Result = lastOutcome
	default:
		res.Result = placeholderResult
	}
	return res, nil
}

// Settle records a run's result on its task. A failed run marks the task
// failed. After a successful run, a status the agent's own tool calls
// already moved to review or a terminal state is kept and anything else
// becomes completed.
func (e *Executor) Settle(taskID string, res Result) error {
	status := store.TaskCompleted
	if !res.Success {
		status = store.TaskFailed
	}
	cur, err := e.store.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if cur == nil {
		return fmt.Errorf("%w: %s", store.ErrTaskNotFound, taskID)
	}
	switch cur.Status {
	case store.TaskReview, store.TaskCompleted, store.TaskFailed:
		if res.Success {
			status = cur.Status
		}
	}
	result := res.Result
	if err := e.store.UpdateTaskStatus(taskID, status, &result); err != nil {
		return err
	}
	e.bus.TaskChanged(taskID)
	return nil
}

// toolError converts a dispatch failure into text the model can read.
func toolError(call llm.ToolCall, err error) llm.ToolResult {
	return llm.ToolResult{CallID: call.ID, Content: "Error: " + err.Error(), IsError: true}
}
