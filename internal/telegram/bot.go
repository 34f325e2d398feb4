package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/nerrad567/airrelay/internal/bridge"
	"github.com/nerrad567/airrelay/internal/infrastructure/config"
)

// ErrNoToken is returned by New when no bot token is configured.
var ErrNoToken = errors.New("telegram: bot token is required")

// Handler receives chat traffic. Satisfied by *bridge.Service.
type Handler interface {
	HandleCommand(ctx context.Context, cmd bridge.Command) string
	HandleReply(ctx context.Context, r bridge.Reply) (string, error)
}

// Logger defines the logging interface used by the bot.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bot connects the bridge to a Telegram supergroup with forum topics. It
// implements bridge.Platform.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Bot struct {
	api *tgbot.Bot

	mu      sync.RWMutex
	handler Handler
	logger  Logger
}

// New creates a bot for cfg.Token. Extra options are passed to the client
// library; tests use them to point it at a fake server.
func New(cfg config.TelegramConfig, opts ...tgbot.Option) (*Bot, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}

	b := &Bot{logger: noopLogger{}}
	all := append([]tgbot.Option{
		tgbot.WithDefaultHandler(b.onUpdate),
		tgbot.WithErrorsHandler(func(err error) {
			b.getLogger().Warn("telegram polling error", "error", err)
		}),
	}, opts...)

	api, err := tgbot.New(cfg.Token, all...)
	if err != nil {
		return nil, fmt.Errorf("creating telegram client: %w", err)
	}
	b.api = api
	return b, nil
}

// SetHandler sets where commands and replies are dispatched. Updates that
// arrive before a handler is set are dropped.
func (b *Bot) SetHandler(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// SetLogger sets the logger for the bot.
func (b *Bot) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

func (b *Bot) getLogger() Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}

func (b *Bot) getHandler() Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handler
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.getLogger().Info("telegram polling started")
	b.api.Start(ctx)
	b.getLogger().Info("telegram polling stopped")
}

func (b *Bot) onUpdate(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	h := b.getHandler()
	if h == nil {
		return
	}

	act := route(update)
	switch {
	case act.command != nil:
		reply := h.HandleCommand(ctx, *act.command)
		if reply == "" {
			return
		}
		if _, err := b.SendMessage(ctx, bridge.OutboundMessage{
			GroupID: act.command.GroupID,
			TopicID: act.command.TopicID,
			ReplyTo: act.command.MessageID,
			Text:    reply,
		}); err != nil {
			b.getLogger().Warn("command reply failed", "command", act.command.Name, "error", err)
		}
	case act.reply != nil:
		if _, err := h.HandleReply(ctx, *act.reply); err != nil {
			b.getLogger().Warn("reply not relayed",
				"group_id", act.reply.GroupID,
				"topic_id", act.reply.TopicID,
				"error", err,
			)
		}
	}
}

// action is what an update asks of the bridge. At most one field is set.
type action struct {
	command *bridge.Command
	reply   *bridge.Reply
}

// route maps an update to a command or a topic reply. Messages from bots,
// without text, or posted outside a topic are ignored unless they are
// commands.
func route(update *models.Update) action {
	if update == nil || update.Message == nil {
		return action{}
	}
	msg := update.Message
	if msg.From == nil || msg.From.IsBot || strings.TrimSpace(msg.Text) == "" {
		return action{}
	}

	var topicID int64
	if msg.IsTopicMessage {
		topicID = int64(msg.MessageThreadID)
	}

	if cmd, ok := bridge.ParseCommand(msg.Text); ok {
		cmd.GroupID = msg.Chat.ID
		cmd.TopicID = topicID
		cmd.UserID = msg.From.ID
		cmd.MessageID = int64(msg.ID)
		return action{command: &cmd}
	}

	if topicID == 0 {
		return action{}
	}
	return action{reply: &bridge.Reply{
		GroupID:   msg.Chat.ID,
		TopicID:   topicID,
		MessageID: int64(msg.ID),
		Text:      msg.Text,
	}}
}

// CreateTopic implements bridge.Platform.
func (b *Bot) CreateTopic(ctx context.Context, groupID int64, title string) (int64, bool, error) {
	topic, err := b.api.CreateForumTopic(ctx, &tgbot.CreateForumTopicParams{
		ChatID: groupID,
		Name:   title,
	})
	if err != nil {
		return 0, false, fmt.Errorf("creating topic in %d: %w", groupID, err)
	}
	if topic == nil || topic.MessageThreadID == 0 {
		return 0, false, nil
	}
	return int64(topic.MessageThreadID), true, nil
}

// SendMessage implements bridge.Platform.
func (b *Bot) SendMessage(ctx context.Context, msg bridge.OutboundMessage) (int64, error) {
	params := &tgbot.SendMessageParams{
		ChatID:          msg.GroupID,
		MessageThreadID: int(msg.TopicID),
		Text:            msg.Text,
	}
	if msg.ReplyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                int(msg.ReplyTo),
			AllowSendingWithoutReply: true,
		}
	}

	sent, err := b.api.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("sending message to %d: %w", msg.GroupID, err)
	}
	return int64(sent.ID), nil
}

// ResolveUser implements bridge.Platform. Numeric references are user ids;
// @usernames are looked up through the Bot API.
func (b *Bot) ResolveUser(ctx context.Context, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	if !strings.HasPrefix(ref, "@") || len(ref) == 1 {
		return 0, fmt.Errorf("invalid user reference %q", ref)
	}

	chat, err := b.api.GetChat(ctx, &tgbot.GetChatParams{ChatID: ref})
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", ref, err)
	}
	return chat.ID, nil
}
