package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/executor"
	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/orchestrator"
	"github.com/mtzanidakis/agentcrew/internal/router"
	"github.com/mtzanidakis/agentcrew/internal/telegram"
	"github.com/mtzanidakis/agentcrew/internal/web"
	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the gateway: web API, scheduler and Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGateway()
	},
}

func runGateway() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting agentcrew gateway", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := resolveSecrets(cfg, a.vault); err != nil {
		return err
	}

	agents, _ := a.registry.List()
	slog.Info("agent roster synced", "agents", len(agents))

	// Scheduler
	if cfg.Scheduler.Enabled {
		go a.sched.Start(ctx)
	} else {
		slog.Info("scheduler disabled")
	}

	// Telegram bot
	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram, router.New(a.registry), a.orch, a.exec, a.store)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		go func() {
			if err := bot.Start(ctx); err != nil {
				slog.Error("telegram bot error", "error", err)
			}
		}()
	} else {
		slog.Warn("telegram token not set, bot disabled")
	}

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(a.store, a.nats, a.bus, a.orch, a.exec, a.sched, a.registry, a.vault, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
				cancel()
			}
		}()
	}

	// Config hot reload
	go func() {
		if err := config.Watch(ctx, configPath, cfg, func(newCfg *config.Config, diff config.ConfigDiff) {
			a.reload(newCfg, diff)
		}); err != nil {
			slog.Warn("config watch disabled", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// reload applies the reloadable parts of a changed config file.
func (a *app) reload(cfg *config.Config, diff config.ConfigDiff) {
	if diff.RosterChanged() {
		if err := a.registry.Update(cfg.Agents); err != nil {
			slog.Error("roster reload failed", "error", err)
		} else {
			slog.Info("agent roster reloaded",
				"added", diff.AgentsAdded, "removed", diff.AgentsRemoved, "changed", diff.AgentsChanged)
		}
	}
	if diff.OrchestratorChanged {
		a.orch.UpdateOptions(orchestrator.OptionsFromConfig(diff.NewOrchestrator))
		a.exec.UpdateOptions(executor.OptionsFromConfig(cfg))
		slog.Info("orchestrator settings reloaded")
	}
	if diff.SchedulerChanged {
		if err := a.sched.UpdateConfig(diff.NewScheduler); err != nil {
			slog.Error("scheduler reload failed", "error", err)
		}
	}
	if diff.PricingChanged {
		a.exec.UpdatePricing(llm.NewPricing(cfg.Inference.Pricing))
		slog.Info("model pricing reloaded")
	}
	for _, field := range diff.NonReloadable {
		slog.Warn("config change requires restart", "field", field)
	}
}
