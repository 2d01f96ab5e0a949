package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/executor"
	"github.com/mtzanidakis/agentcrew/internal/llm/llmtest"
	"github.com/mtzanidakis/agentcrew/internal/msgbus"
	"github.com/mtzanidakis/agentcrew/internal/natsbus"
	"github.com/mtzanidakis/agentcrew/internal/orchestrator"
	"github.com/mtzanidakis/agentcrew/internal/registry"
	"github.com/mtzanidakis/agentcrew/internal/scheduler"
	"github.com/mtzanidakis/agentcrew/internal/store"
	"github.com/mtzanidakis/agentcrew/internal/vault"
)

type testEnv struct {
	srv      *Server
	ts       *httptest.Server
	store    *store.Store
	registry *registry.Registry
	provider *llmtest.Provider
}

type envOptions struct {
	web   config.WebConfig
	vault bool
	nats  *natsbus.Bus
}

func newTestEnv(t *testing.T, o envOptions) *testEnv {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	roster := config.DefaultRoster()
	for name, def := range roster {
		def.Model = name
		roster[name] = def
	}
	reg := registry.New(s, roster)
	if err := reg.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	var client *natsbus.Client
	if o.nats != nil {
		client, err = natsbus.NewClient(o.nats)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(client.Close)
	}

	p := llmtest.New()
	bus := msgbus.New(s, reg, client, 30*time.Second)
	exec := executor.New(p, bus, reg, s, nil, executor.Options{MaxTurns: 10, ReviewerAgent: "Sentinel"})
	orch := orchestrator.New(exec, bus, reg, s, orchestrator.Options{LeadAgent: "Nova", ReviewerAgent: "Sentinel"})
	sched, err := scheduler.New(s, exec, bus, reg, config.SchedulerConfig{PollInterval: time.Minute, BatchSize: 3})
	if err != nil {
		t.Fatal(err)
	}

	var v *vault.Vault
	if o.vault {
		v, err = vault.New("test-passphrase", s)
		if err != nil {
			t.Fatal(err)
		}
	}

	srv := NewServer(s, o.nats, bus, orch, exec, sched, reg, v, o.web, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, store: s, registry: reg, provider: p}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header http.Header) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestOrchestrate(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.provider.On("Nova", llmtest.Text("Nothing to split"))

	resp := env.do(t, "POST", "/api/orchestrate", map[string]string{"title": "Write docs"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	out := decode[orchestrator.Outcome](t, resp)
	if out.Result != "Nothing to split" || out.RootTaskID == "" {
		t.Errorf("unexpected outcome %+v", out)
	}

	resp = env.do(t, "GET", "/api/runs/"+out.RunID, nil, nil)
	run := decode[store.OrchestrationRun](t, resp)
	if run.Phase != store.PhaseDone {
		t.Errorf("expected done run, got %+v", run)
	}
}

func TestOrchestrateInvalidGoal(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	resp := env.do(t, "POST", "/api/orchestrate", map[string]string{"title": "  "}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestExecuteAgent(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	atlas, _ := env.registry.GetByName("Atlas")
	task := &store.Task{Title: "Add endpoint", AssignedAgentID: &atlas.ID, CreatedBy: "user"}
	if err := env.store.CreateTask(task); err != nil {
		t.Fatal(err)
	}
	env.provider.On("Atlas", llmtest.Text("endpoint added"))

	resp := env.do(t, "POST", "/api/agents/execute", map[string]string{
		"agentId": atlas.ID, "taskId": task.ID, "context": "use REST",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	res := decode[executor.Result](t, resp)
	if !res.Success || res.Result != "endpoint added" {
		t.Errorf("unexpected result %+v", res)
	}
	got, _ := env.store.GetTask(task.ID)
	if got.Status != store.TaskCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if !strings.Contains(env.provider.Requests[0].Turns[0].Text, "Additional context: use REST") {
		t.Error("expected extra context in the first turn")
	}
}

func TestExecuteAgentNotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	atlas, _ := env.registry.GetByName("Atlas")

	resp := env.do(t, "POST", "/api/agents/execute", map[string]string{"agentId": "nope", "taskId": "t1"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown agent: expected 404, got %d", resp.StatusCode)
	}
	resp = env.do(t, "POST", "/api/agents/execute", map[string]string{"agentId": atlas.ID, "taskId": "missing"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown task: expected 404, got %d", resp.StatusCode)
	}
	resp = env.do(t, "POST", "/api/agents/execute", map[string]string{"agentId": atlas.ID}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing task id: expected 400, got %d", resp.StatusCode)
	}
}

func TestAgents(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	resp := env.do(t, "GET", "/api/agents", nil, nil)
	agents := decode[[]agentView](t, resp)
	if len(agents) != len(config.DefaultRoster()) {
		t.Fatalf("expected %d agents, got %d", len(config.DefaultRoster()), len(agents))
	}

	resp = env.do(t, "GET", "/api/agents/"+agents[0].ID, nil, nil)
	a := decode[agentView](t, resp)
	if a.Name != agents[0].Name || a.Busy {
		t.Errorf("unexpected agent %+v", a)
	}

	resp = env.do(t, "GET", "/api/agents/ghost", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestTasks(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	pixel, _ := env.registry.GetByName("Pixel")

	resp := env.do(t, "POST", "/api/tasks", map[string]any{"title": "Landing page", "assigned_agent_id": pixel.ID}, nil)
	parent := decode[store.Task](t, resp)
	if parent.Status != store.TaskPending || parent.Priority != store.PriorityMedium {
		t.Errorf("unexpected defaults %+v", parent)
	}

	resp = env.do(t, "POST", "/api/tasks", map[string]any{"title": "Hero", "parent_task_id": parent.ID, "priority": "high"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"description": "x"}},
		{"bad priority", map[string]any{"title": "x", "priority": "whenever"}},
		{"unknown parent", map[string]any{"title": "x", "parent_task_id": "nope"}},
		{"unknown agent", map[string]any{"title": "x", "assigned_agent_id": "nope"}},
	}
	for _, tt := range tests {
		resp := env.do(t, "POST", "/api/tasks", tt.body, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tt.name, resp.StatusCode)
		}
	}

	resp = env.do(t, "GET", "/api/tasks/"+parent.ID, nil, nil)
	var detail struct {
		store.Task
		Subtasks []store.Task `json:"subtasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		t.Fatal(err)
	}
	if detail.Title != "Landing page" || len(detail.Subtasks) != 1 || detail.Subtasks[0].Title != "Hero" {
		t.Errorf("unexpected task detail %+v", detail)
	}

	resp = env.do(t, "GET", "/api/tasks?parent_id="+parent.ID, nil, nil)
	if tasks := decode[[]store.Task](t, resp); len(tasks) != 1 {
		t.Errorf("expected 1 child, got %d", len(tasks))
	}
	resp = env.do(t, "GET", "/api/tasks?status=bogus", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad status, got %d", resp.StatusCode)
	}
	resp = env.do(t, "GET", "/api/tasks/missing", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	resp = env.do(t, "GET", "/api/tasks/"+parent.ID+"/messages", nil, nil)
	if msgs := decode[[]store.Message](t, resp); len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

func TestProcessQueue(t *testing.T) {
	env := newTestEnv(t, envOptions{web: config.WebConfig{Auth: "pw", CronSecret: "cron-token"}})
	atlas, _ := env.registry.GetByName("Atlas")
	task := &store.Task{Title: "queued", AssignedAgentID: &atlas.ID, CreatedBy: "user"}
	if err := env.store.CreateTask(task); err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, "POST", "/api/cron/process-queue", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = env.do(t, "GET", "/api/cron/process-queue", nil, http.Header{"Authorization": {"Bearer cron-token"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	res := decode[scheduler.SweepResult](t, resp)
	if res.Processed != 1 {
		t.Errorf("expected 1 processed, got %d", res.Processed)
	}

	resp = env.do(t, "GET", "/api/tasks/"+task.ID+"/logs", nil, http.Header{"Authorization": {basicAuth("pw")}})
	if logs := decode[[]store.TaskLog](t, resp); len(logs) != 1 || logs[0].Action != "execute" {
		t.Errorf("unexpected logs %+v", logs)
	}
}

func basicAuth(pass string) string {
	req, _ := http.NewRequest("GET", "/", nil)
	req.SetBasicAuth("admin", pass)
	return req.Header.Get("Authorization")
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, envOptions{web: config.WebConfig{Auth: "pw"}})

	resp := env.do(t, "GET", "/api/status", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp = env.do(t, "GET", "/api/status", nil, http.Header{"Authorization": {basicAuth("pw")}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with basic auth, got %d", resp.StatusCode)
	}

	resp = env.do(t, "POST", "/api/login", map[string]string{"password": "wrong"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", resp.StatusCode)
	}
	resp = env.do(t, "POST", "/api/login", map[string]string{"password": "pw"}, nil)
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			session = c
		}
	}
	if session == nil {
		t.Fatal("expected session cookie")
	}
	cookie := http.Header{"Cookie": {session.Name + "=" + session.Value}}
	resp = env.do(t, "GET", "/api/connections", nil, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with session, got %d", resp.StatusCode)
	}

	env.do(t, "POST", "/api/logout", nil, cookie)
	resp = env.do(t, "GET", "/api/auth/check", nil, cookie)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected session gone after logout, got %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	resp := env.do(t, "GET", "/api/status", nil, nil)
	status := decode[map[string]any](t, resp)
	if status["version"] != "test" || status["schedule"] != "Every minute" {
		t.Errorf("unexpected status %+v", status)
	}
	if status["agents"].(float64) != float64(len(config.DefaultRoster())) {
		t.Errorf("unexpected agent count %v", status["agents"])
	}
}

func TestSecrets(t *testing.T) {
	env := newTestEnv(t, envOptions{vault: true})

	resp := env.do(t, "POST", "/api/secrets", map[string]string{"name": "openai", "value": "sk-123"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp = env.do(t, "POST", "/api/secrets", map[string]string{"name": "bad:name", "value": "x"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for colon in name, got %d", resp.StatusCode)
	}

	resp = env.do(t, "GET", "/api/secrets", nil, nil)
	raw := decode[[]map[string]any](t, resp)
	if len(raw) != 1 || raw[0]["name"] != "openai" {
		t.Fatalf("unexpected secrets %+v", raw)
	}
	if _, ok := raw[0]["value"]; ok {
		t.Error("secret value must not be listed")
	}

	resp = env.do(t, "DELETE", "/api/secrets/openai", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	resp = env.do(t, "DELETE", "/api/secrets/openai", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", resp.StatusCode)
	}
}

func TestSecretsWithoutVault(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	resp := env.do(t, "GET", "/api/secrets", nil, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestWebSocketFeed(t *testing.T) {
	bus, err := natsbus.New(config.NATSConfig{Port: 0})
	if err != nil {
		t.Fatalf("nats: %v", err)
	}
	defer bus.Close()

	env := newTestEnv(t, envOptions{nats: bus})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.srv.hub.Run(ctx)
	env.srv.subscribeEvents()
	defer env.srv.nats.Close()

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	env.do(t, "POST", "/api/tasks", map[string]string{"title": "Watch me"}, nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev struct {
		Type string     `json:"type"`
		Data store.Task `json:"data"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != natsbus.EventTaskCreated || ev.Data.Title != "Watch me" {
		t.Errorf("unexpected event %+v", ev)
	}
}
