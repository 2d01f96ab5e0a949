package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/executor"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/llm/anthropic"
	"github.com/mtzanidakis/agentcrew/internal/llm/openai"
	"github.com/mtzanidakis/agentcrew/internal/msgbus"
	"github.com/mtzanidakis/agentcrew/internal/natsbus"
	"github.com/mtzanidakis/agentcrew/internal/orchestrator"
	"github.com/mtzanidakis/agentcrew/internal/registry"
	"github.com/mtzanidakis/agentcrew/internal/scheduler"
	"github.com/mtzanidakis/agentcrew/internal/store"
	"github.com/mtzanidakis/agentcrew/internal/vault"
)

// app holds the components shared by the gateway and the one-shot
// commands.
type app struct {
	cfg      *config.Config
	store    *store.Store
	nats     *natsbus.Bus
	client   *natsbus.Client
	vault    *vault.Vault
	registry *registry.Registry
	bus      *msgbus.Bus
	exec     *executor.Executor
	orch     *orchestrator.Orchestrator
	sched    *scheduler.Scheduler
}

// loadConfig reads the config file named by --config and installs the
// logger it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Log))
	return cfg, nil
}

// newApp opens the store and wires the engine. With withNATS the embedded
// server is started and change events are published.
func newApp(cfg *config.Config, withNATS bool) (*app, error) {
	a := &app{cfg: cfg}

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.store = db
	slog.Debug("store initialized", "path", cfg.Store.Path)

	if withNATS {
		bus, err := natsbus.New(cfg.NATS)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init nats: %w", err)
		}
		a.nats = bus
		client, err := natsbus.NewClient(bus)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("nats client: %w", err)
		}
		a.client = client
		slog.Info("nats started", "url", bus.ClientURL())
	}

	a.vault, err = openVault(cfg, db)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry = registry.New(db, cfg.Agents)
	if err := a.registry.Sync(); err != nil {
		a.Close()
		return nil, fmt.Errorf("sync agent registry: %w", err)
	}

	provider, err := newProvider(cfg.Inference, a.vault)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.bus = msgbus.New(db, a.registry, a.client, cfg.Orchestrator.ConnectionTTL)
	a.exec = executor.New(provider, a.bus, a.registry, db, llm.NewPricing(cfg.Inference.Pricing), executor.OptionsFromConfig(cfg))
	a.orch = orchestrator.New(a.exec, a.bus, a.registry, db, orchestrator.OptionsFromConfig(cfg.Orchestrator))
	a.sched, err = scheduler.New(db, a.exec, a.bus, a.registry, cfg.Scheduler)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	return a, nil
}

func (a *app) Close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.nats != nil {
		a.nats.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// openVault returns nil when no passphrase is configured.
func openVault(cfg *config.Config, db *store.Store) (*vault.Vault, error) {
	if cfg.Vault.Passphrase == "" {
		return nil, nil
	}
	v, err := vault.New(cfg.Vault.Passphrase, db)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}
	return v, nil
}

// newProvider builds the model router. A family without a key is left
// out, so only agents on the other family can run.
func newProvider(cfg config.InferenceConfig, v *vault.Vault) (llm.Provider, error) {
	anthropicKey, err := v.Resolve(cfg.AnthropicAPIKey)
	if err != nil {
		return nil, fmt.Errorf("anthropic api key: %w", err)
	}
	openaiKey, err := v.Resolve(cfg.OpenAIAPIKey)
	if err != nil {
		return nil, fmt.Errorf("openai api key: %w", err)
	}

	var ap, op llm.Provider
	if anthropicKey != "" {
		ap = anthropic.New(anthropicKey)
	}
	if openaiKey != "" {
		op = openai.New(openaiKey)
	}
	if ap == nil && op == nil {
		slog.Warn("no inference api key configured, agent runs will fail")
	}
	return llm.NewRouter(ap, op), nil
}

// resolveSecrets replaces "secret:<name>" references in the surface
// credentials with vault values.
func resolveSecrets(cfg *config.Config, v *vault.Vault) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"web.auth", &cfg.Web.Auth},
		{"web.cron_secret", &cfg.Web.CronSecret},
		{"telegram.token", &cfg.Telegram.Token},
	}
	for _, f := range fields {
		resolved, err := v.Resolve(*f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = resolved
	}
	return nil
}

// findAgent accepts an agent id or name.
func (a *app) findAgent(ref string) (*store.Agent, error) {
	ag, err := a.registry.GetByName(ref)
	if err == nil {
		return ag, nil
	}
	if !errors.Is(err, registry.ErrAgentNotFound) {
		return nil, err
	}
	return a.registry.Get(ref)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
