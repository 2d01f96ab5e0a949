// Package scheduler runs the periodic sweep: pending tasks that already
// have an assignee are picked up and executed directly, and expired
// connections are deactivated.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/executor"
	"github.com/mtzanidakis/agentcrew/internal/msgbus"
	"github.com/mtzanidakis/agentcrew/internal/natsbus"
	"github.com/mtzanidakis/agentcrew/internal/registry"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

type Scheduler struct {
	store    *store.Store
	exec     *executor.Executor
	bus      *msgbus.Bus
	registry *registry.Registry
	reloadCh chan struct{}
	now      func() time.Time

	mu        sync.RWMutex
	trigger   Trigger
	batchSize int

	// sweeps never overlap
	sweepMu sync.Mutex
}

// TaskOutcome reports one task handled by a sweep.
type TaskOutcome struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

type SweepResult struct {
	Processed int           `json:"processed"`
	Tasks     []TaskOutcome `json:"tasks"`
	Expired   int64         `json:"expired_connections"`
}

func New(s *store.Store, exec *executor.Executor, bus *msgbus.Bus, reg *registry.Registry, cfg config.SchedulerConfig) (*Scheduler, error) {
	trigger, err := NewTrigger(cfg)
	if err != nil {
		return nil, err
	}
	batch := cfg.BatchSize
	if batch < 1 {
		batch = 3
	}
	return &Scheduler{
		store:     s,
		exec:      exec,
		bus:       bus,
		registry:  reg,
		reloadCh:  make(chan struct{}, 1),
		now:       time.Now,
		trigger:   trigger,
		batchSize: batch,
	}, nil
}

// UpdateConfig replaces the trigger and batch size, then signals the run
// loop to reschedule.
func (s *Scheduler) UpdateConfig(cfg config.SchedulerConfig) error {
	trigger, err := NewTrigger(cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.trigger = trigger
	if cfg.BatchSize >= 1 {
		s.batchSize = cfg.BatchSize
	}
	s.mu.Unlock()

	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
	return nil
}

// Trigger returns the active trigger.
func (s *Scheduler) Trigger() Trigger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trigger
}

func (s *Scheduler) Start(ctx context.Context) {
	trigger := s.Trigger()
	timer := time.NewTimer(time.Until(trigger.Next(s.now())))
	defer timer.Stop()

	slog.Info("scheduler started", "trigger", trigger.String())

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			trigger = s.Trigger()
			timer.Reset(time.Until(trigger.Next(s.now())))
			slog.Info("scheduler config reloaded", "trigger", trigger.String())
		case <-timer.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("sweep failed", "error", err)
			}
			trigger = s.Trigger()
			timer.Reset(time.Until(trigger.Next(s.now())))
		}
	}
}

// Sweep processes one batch of pending assigned tasks, oldest first, then
// deactivates expired connections. Concurrent calls are serialised.
func (s *Scheduler) Sweep(ctx context.Context) (*SweepResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	s.mu.RLock()
	batch := s.batchSize
	s.mu.RUnlock()

	tasks, err := s.store.PendingAssignedTasks(batch)
	if err != nil {
		return nil, err
	}

	res := &SweepResult{Tasks: []TaskOutcome{}}
	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		if out, ok := s.execute(ctx, &tasks[i]); ok {
			res.Tasks = append(res.Tasks, out)
			res.Processed++
		}
	}

	n, err := s.store.DeactivateExpiredConnections(s.now())
	if err != nil {
		slog.Error("deactivate connections failed", "error", err)
	}
	res.Expired = n

	if res.Processed > 0 || n > 0 {
		slog.Info("sweep completed", "processed", res.Processed, "expired_connections", n)
	}
	s.bus.Publish(natsbus.EventSweepCompleted, res)
	return res, nil
}

func (s *Scheduler) execute(ctx context.Context, task *store.Task) (TaskOutcome, bool) {
	agentID := *task.AssignedAgentID
	ag, err := s.registry.Get(agentID)
	if err != nil {
		slog.Warn("skipping task, assignee not found", "task", task.ID, "agent", agentID, "error", err)
		return TaskOutcome{}, false
	}

	claimed, err := s.store.ClaimTask(task.ID)
	if err != nil {
		slog.Error("claim task failed", "task", task.ID, "error", err)
		return TaskOutcome{}, false
	}
	if !claimed {
		return TaskOutcome{}, false
	}
	s.bus.TaskChanged(task.ID)

	slog.Info("executing queued task", "task", task.ID, "title", task.Title, "agent", ag.Name)
	r := s.exec.Run(ctx, ag, task, "")
	if err := s.exec.Settle(task.ID, r); err != nil {
		slog.Error("settle task failed", "task", task.ID, "error", err)
	}
	return TaskOutcome{
		TaskID:  task.ID,
		AgentID: ag.ID,
		Success: r.Success,
		Result:  r.Result,
	}, true
}
