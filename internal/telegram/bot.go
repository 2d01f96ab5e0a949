// Package telegram lets allowed users submit goals from a chat. The first
// line of a message is the goal title, the rest its description. A message
// starting with "@Name" goes straight to that agent.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/config"
	"github.com/mtzanidakis/agentcrew/internal/executor"
	"github.com/mtzanidakis/agentcrew/internal/orchestrator"
	"github.com/mtzanidakis/agentcrew/internal/router"
	"github.com/mtzanidakis/agentcrew/internal/store"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	maxMessageLen = 4096
	helpText      = "Send me a goal. The first line is the title, anything below it is the description.\nStart with @Name to hand it to one agent."
)

// Runner runs one orchestration.
type Runner interface {
	Run(ctx context.Context, goal orchestrator.Goal) (*orchestrator.Outcome, error)
}

// Executor runs one agent against one task.
type Executor interface {
	Run(ctx context.Context, agent *store.Agent, task *store.Task, extra string) executor.Result
	Settle(taskID string, res executor.Result) error
}

type Bot struct {
	bot     *telego.Bot
	handler *th.BotHandler
	router  *router.Router
	orch    Runner
	exec    Executor
	store   *store.Store
	cfg     config.TelegramConfig
	cancel  context.CancelFunc
}

func NewBot(cfg config.TelegramConfig, rtr *router.Router, orch Runner, exec Executor, s *store.Store) (*Bot, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Bot{
		bot:    bot,
		router: rtr,
		orch:   orch,
		exec:   exec,
		store:  s,
		cfg:    cfg,
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	updates, err := b.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.bot, updates)
	if err != nil {
		cancel()
		return fmt.Errorf("create handler: %w", err)
	}
	b.handler = handler

	handler.HandleMessage(func(hctx *th.Context, message telego.Message) error {
		b.handleMessage(ctx, message)
		return nil
	})

	go handler.Start()
	slog.Info("telegram bot started")

	<-ctx.Done()
	_ = handler.Stop()
	return nil
}

func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.handler != nil {
		_ = b.handler.Stop()
	}
}

func (b *Bot) allowed(userID int64) bool {
	return len(b.cfg.AllowFrom) == 0 || slices.Contains(b.cfg.AllowFrom, userID)
}

func (b *Bot) handleMessage(ctx context.Context, msg telego.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if !b.allowed(userID) {
		slog.Warn("unauthorized telegram user", "user_id", userID, "chat_id", chatID)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.HasPrefix(text, "/start") || strings.HasPrefix(text, "/help") {
		_ = b.SendMessage(ctx, chatID, helpText)
		return
	}
	route, err := b.route(text)
	if err != nil {
		return
	}

	// Send thinking indicator
	_ = b.sendChatAction(ctx, chatID, "typing")

	var reply string
	if route.Direct() {
		slog.Info("telegram task received", "user_id", userID, "agent", route.Agent.Name, "title", route.Goal.Title)
		reply = b.direct(ctx, route.Agent, route.Goal)
	} else {
		slog.Info("telegram goal received", "user_id", userID, "title", route.Goal.Title)
		reply = b.orchestrate(ctx, route.Goal)
	}
	if err := b.SendMessage(ctx, chatID, reply); err != nil {
		slog.Error("failed to send telegram message", "chat", chatID, "error", err)
	}
}

// orchestrate runs goal and returns the reply text.
func (b *Bot) orchestrate(ctx context.Context, goal orchestrator.Goal) string {
	out, err := b.orch.Run(ctx, goal)
	if err != nil {
		slog.Error("telegram orchestration failed", "title", goal.Title, "error", err)
		if errors.Is(err, orchestrator.ErrInvalidGoal) {
			return helpText
		}
		return "Sorry, I couldn't start working on that: " + err.Error()
	}

	if b.store != nil {
		root, err := b.store.GetTask(out.RootTaskID)
		if err == nil && root != nil && root.Result != nil {
			return *root.Result
		}
	}
	return formatOutcome(out)
}

func (b *Bot) route(text string) (router.Route, error) {
	if b.router == nil {
		goal, ok := router.ParseGoal(text)
		if !ok {
			return router.Route{}, router.ErrEmpty
		}
		return router.Route{Goal: goal}, nil
	}
	return b.router.Route(text)
}

// direct creates a task for agent, runs it and returns the agent's answer.
func (b *Bot) direct(ctx context.Context, agent *store.Agent, goal orchestrator.Goal) string {
	task := &store.Task{
		Title:           goal.Title,
		Description:     goal.Description,
		AssignedAgentID: &agent.ID,
		CreatedBy:       "telegram",
	}
	if err := b.store.CreateTask(task); err != nil {
		slog.Error("telegram task create failed", "agent", agent.Name, "error", err)
		return "Sorry, I couldn't create that task: " + err.Error()
	}

	res := b.exec.Run(ctx, agent, task, "")
	if err := b.exec.Settle(task.ID, res); err != nil {
		slog.Error("telegram task settle failed", "task", task.ID, "error", err)
	}
	if !res.Success {
		return fmt.Sprintf("%s couldn't finish: %s", agent.Name, res.Result)
	}
	return res.Result
}

func formatOutcome(out *orchestrator.Outcome) string {
	var sb strings.Builder
	sb.WriteString(out.Result)
	if len(out.Subtasks) == 0 {
		return sb.String()
	}
	sb.WriteString("\n\n**Subtasks**")
	for _, st := range out.Subtasks {
		fmt.Fprintf(&sb, "\n- %s: %s", st.Title, st.Status)
	}
	return sb.String()
}

// SendMessage sends text in chunks, as Markdown when Telegram accepts it
// and as plain text otherwise.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range chunkMessage(text, maxMessageLen) {
		msg := tu.Message(tu.ID(chatID), toTelegramMarkdown(chunk)).WithParseMode(telego.ModeMarkdown)
		if _, err := b.bot.SendMessage(ctx, msg); err == nil {
			continue
		}
		if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func (b *Bot) sendChatAction(ctx context.Context, chatID int64, action string) error {
	return b.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), action))
}
