package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/executor"
	"github.com/mtzanidakis/agentcrew/internal/orchestrator"
	"github.com/mtzanidakis/agentcrew/internal/store"
)

func init() {
	color.NoColor = true
}

// execute runs the root command against a config in dir and returns stdout.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(dir, "agentcrew.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func testDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AGENTCREW_STORE_PATH", filepath.Join(dir, "data", "agentcrew.db"))
	t.Setenv("AGENTCREW_VAULT_PASSPHRASE", "correct horse battery staple")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestVersion(t *testing.T) {
	out, err := execute(t, t.TempDir(), "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "agentcrew dev\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSecretCommands(t *testing.T) {
	dir := testDir(t)

	if _, err := execute(t, dir, "secret", "set", "anthropic", "--value", "sk-ant-1", "--description", "api key"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := execute(t, dir, "secret", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "anthropic") || !strings.Contains(out, "api key") || strings.Contains(out, "sk-ant-1") {
		t.Errorf("unexpected list output:\n%s", out)
	}

	if _, err := execute(t, dir, "secret", "delete", "anthropic"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := execute(t, dir, "secret", "delete", "anthropic"); err == nil {
		t.Error("expected error deleting a missing secret")
	}
}

func TestSecretRequiresPassphrase(t *testing.T) {
	dir := testDir(t)
	t.Setenv("AGENTCREW_VAULT_PASSPHRASE", "")
	if _, err := execute(t, dir, "secret", "list"); err == nil {
		t.Error("expected error without passphrase")
	}
}

func TestBackupAndRestore(t *testing.T) {
	dir := testDir(t)
	cfgFile := filepath.Join(dir, "agentcrew.yaml")
	if err := os.WriteFile(cfgFile, []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, dir, "secret", "set", "token", "--value", "abc"); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(t.TempDir(), "backup.tar.zst")
	out, err := execute(t, dir, "backup", "-f", archive)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !strings.Contains(out, "Backup complete: 2 files") {
		t.Errorf("unexpected backup output %q", out)
	}

	if _, err := execute(t, dir, "restore", "-f", archive); err == nil {
		t.Error("expected restore to refuse existing files")
	}

	target := testDir(t)
	out, err = execute(t, target, "restore", "-f", archive)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !strings.Contains(out, "Restore complete: 2 files") {
		t.Errorf("unexpected restore output %q", out)
	}
	if _, err := os.Stat(filepath.Join(target, "agentcrew.yaml")); err != nil {
		t.Errorf("config not restored: %v", err)
	}
	out, err = execute(t, target, "secret", "list")
	if err != nil || !strings.Contains(out, "token") {
		t.Errorf("secret not restored: %q %v", out, err)
	}
}

func TestExecuteUnknownAgent(t *testing.T) {
	dir := testDir(t)
	if _, err := execute(t, dir, "execute", "--agent", "Nobody", "--task", "t1"); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestSweepEmpty(t *testing.T) {
	dir := testDir(t)
	out, err := execute(t, dir, "sweep")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Processed 0 tasks") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestResolveSecrets(t *testing.T) {
	cfg := &config.Config{Web: config.WebConfig{Auth: "plain"}, Telegram: config.TelegramConfig{Token: "secret:tg"}}
	if err := resolveSecrets(cfg, nil); err == nil {
		t.Error("expected error resolving a reference without a vault")
	}
	cfg.Telegram.Token = "literal"
	if err := resolveSecrets(cfg, nil); err != nil || cfg.Web.Auth != "plain" {
		t.Errorf("literals should pass through: %v", err)
	}
}

func TestPrintOutcome(t *testing.T) {
	compiled := "Summary:\nPlan\n\nSubtasks:\n- UI: completed (ok)"
	var buf bytes.Buffer
	printOutcome(&buf, &orchestrator.Outcome{
		RunID:    "r1",
		Result:   "Plan",
		Subtasks: []orchestrator.SubtaskSummary{{Title: "UI", Status: store.TaskCompleted}},
	}, &store.Task{Result: &compiled})

	want := "Run r1\n\n" + compiled + "\n\n  completed   UI\n"
	if buf.String() != want {
		t.Errorf("got:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, "Atlas", executor.Result{Success: true, Result: "done", Turns: 1, InputTokens: 10, OutputTokens: 5})
	if !strings.HasPrefix(buf.String(), "✓ Atlas finished in 1 turn\n\ndone\n") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
