package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mtzanidakis/agentcrew/internal/orchestrator"
	"github.com/mtzanidakis/agentcrew/internal/registry"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

const (
	defaultTaskLimit  = 100
	recentMessageSize = 10
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Orchestration
	mux.HandleFunc("POST /api/orchestrate", s.orchestrate)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.getRun)

	// Agents
	mux.HandleFunc("GET /api/agents", s.listAgents)
	mux.HandleFunc("GET /api/agents/{id}", s.getAgent)
	mux.HandleFunc("POST /api/agents/execute", s.executeAgent)

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("POST /api/tasks", s.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.getTask)
	mux.HandleFunc("GET /api/tasks/{id}/messages", s.getTaskMessages)
	mux.HandleFunc("GET /api/tasks/{id}/logs", s.getTaskLogs)

	mux.HandleFunc("GET /api/connections", s.listConnections)

	// Queue sweep, for external cron
	mux.HandleFunc("GET /api/cron/process-queue", s.processQueue)
	mux.HandleFunc("POST /api/cron/process-queue", s.processQueue)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

// detached keeps work running after the client goes away while still
// stopping with the server.
func (s *Server) detached(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	stop := context.AfterFunc(s.base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Server) orchestrate(w http.ResponseWriter, r *http.Request) {
	var goal orchestrator.Goal
	if err := json.NewDecoder(r.Body).Decode(&goal); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.detached(r)
	defer cancel()
	out, err := s.orch.Run(ctx, goal)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidGoal) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, out)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(queryLimit(r, 50))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.OrchestrationRun{}
	}
	jsonResponse(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, run)
}

type agentView struct {
	store.Agent
	Busy bool `json:"busy"`
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.registry.List()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]agentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentView{Agent: a, Busy: s.exec.Busy(a.ID)})
	}
	jsonResponse(w, out)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.registry.Get(r.PathValue("id"))
	if errors.Is(err, registry.ErrAgentNotFound) {
		jsonError(w, "agent not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, agentView{Agent: *a, Busy: s.exec.Busy(a.ID)})
}

func (s *Server) executeAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AgentID string `json:"agentId" validate:"required"`
		TaskID  string `json:"taskId" validate:"required"`
		Context string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		jsonError(w, "agentId and taskId are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.detached(r)
	defer cancel()
	res, err := s.exec.RunByID(ctx, body.AgentID, body.TaskID, body.Context)
	if errors.Is(err, registry.ErrAgentNotFound) || errors.Is(err, store.ErrTaskNotFound) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.exec.Settle(body.TaskID, res); err != nil {
		slog.Error("settle task failed", "task", body.TaskID, "error", err)
	}
	jsonResponse(w, res)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	f := store.TaskFilter{
		Status:   store.TaskStatus(r.URL.Query().Get("status")),
		ParentID: r.URL.Query().Get("parent_id"),
		Limit:    queryLimit(r, defaultTaskLimit),
	}
	if f.Status != "" && !f.Status.Valid() {
		jsonError(w, fmt.Sprintf("invalid status %q", f.Status), http.StatusBadRequest)
		return
	}
	tasks, err := s.store.ListTasks(f)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	jsonResponse(w, tasks)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title           string  `json:"title" validate:"required"`
		Description     string  `json:"description"`
		Priority        string  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
		AssignedAgentID *string `json:"assigned_agent_id"`
		ParentTaskID    *string `json:"parent_task_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	body.Title = strings.TrimSpace(body.Title)
	if err := s.validate.Struct(body); err != nil {
		jsonError(w, "title is required and priority must be low, medium, high or urgent", http.StatusBadRequest)
		return
	}
	if body.AssignedAgentID != nil {
		if _, err := s.registry.Get(*body.AssignedAgentID); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	t := &store.Task{
		Title:           body.Title,
		Description:     body.Description,
		Priority:        store.Priority(body.Priority),
		AssignedAgentID: body.AssignedAgentID,
		ParentTaskID:    body.ParentTaskID,
		CreatedBy:       "user",
	}
	if err := s.store.CreateTask(t); err != nil {
		if errors.Is(err, store.ErrParentNotFound) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.events.TaskCreated(t)
	jsonResponse(w, t)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.GetTask(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if t == nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	subtasks, err := s.store.ListSubtasks(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if subtasks == nil {
		subtasks = []store.Task{}
	}
	jsonResponse(w, struct {
		*store.Task
		Subtasks []store.Task `json:"subtasks"`
	}{t, subtasks})
}

func (s *Server) getTaskMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListMessages(store.MessageFilter{TaskID: r.PathValue("id"), Limit: queryLimit(r, 200)})
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	jsonResponse(w, msgs)
}

func (s *Server) getTaskLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.ListTaskLogs(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []store.TaskLog{}
	}
	jsonResponse(w, logs)
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.store.ListActiveConnections(time.Now())
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conns == nil {
		conns = []store.Connection{}
	}
	jsonResponse(w, conns)
}

func (s *Server) processQueue(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CronSecret != "" {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !secretEqual(token, s.cfg.CronSecret) {
			jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	if s.sched == nil {
		jsonError(w, "scheduler not configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := s.detached(r)
	defer cancel()
	res, err := s.sched.Sweep(ctx)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, res)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	agents, _ := s.registry.List()
	tasks, _ := s.store.ListTasks(store.TaskFilter{})
	usage, _ := s.store.GetUsageTotals()

	agentStatus := make(map[store.AgentStatus]int)
	agentNames := make(map[string]string, len(agents))
	for _, a := range agents {
		agentStatus[a.Status]++
		agentNames[a.ID] = a.Name
	}
	taskStatus := make(map[store.TaskStatus]int)
	for _, t := range tasks {
		taskStatus[t.Status]++
	}

	// Recent messages
	recentMsgs, _ := s.store.ListMessages(store.MessageFilter{Limit: recentMessageSize})
	recentOut := make([]map[string]string, 0, len(recentMsgs))
	for _, m := range recentMsgs {
		from := "user"
		if m.FromAgentID != nil {
			from = agentNames[*m.FromAgentID]
			if from == "" {
				from = *m.FromAgentID
			}
		}
		recentOut = append(recentOut, map[string]string{
			"id":   strconv.FormatInt(m.ID, 10),
			"from": from,
			"type": string(m.Type),
			"text": m.Content,
			"time": formatMessageTime(m.CreatedAt),
		})
	}

	status := map[string]any{
		"status":          "ok",
		"version":         s.version,
		"uptime":          formatUptime(time.Since(s.startedAt)),
		"agents":          len(agents),
		"agent_status":    agentStatus,
		"tasks":           len(tasks),
		"task_status":     taskStatus,
		"tokens_used":     usage.Tokens,
		"cost_usd":        usage.CostUSD,
		"recent_messages": recentOut,
		"ws_clients":      s.hub.Len(),
	}
	if s.sched != nil {
		status["schedule"] = s.sched.Trigger().String()
	}
	jsonResponse(w, status)
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func formatMessageTime(t time.Time) string {
	local := t.Local()
	now := time.Now()
	if local.Year() == now.Year() && local.YearDay() == now.YearDay() {
		return local.Format("15:04")
	}
	return local.Format("Jan 2 15:04")
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
