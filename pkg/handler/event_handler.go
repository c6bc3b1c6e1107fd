package handler

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/savaki/slack-dify-bot/pkg/apperr"
	"github.com/savaki/slack-dify-bot/pkg/config"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/models"
	"github.com/slack-go/slack"
)

// ApologyText replaces the AI answer whenever the backend produced nothing
const ApologyText = "Sorry, I couldn't get an answer right now. Please try again in a moment."

// MentionHintText is posted when a mention carries no question
const MentionHintText = "Hi! Mention me with a question and I'll do my best to answer."

// MessagePoster defines the interface for posting replies to Slack
type MessagePoster interface {
	Send(ctx context.Context, channelID, text string)
}

// SlashResponder delivers a deferred slash command reply to its response_url
type SlashResponder interface {
	Respond(ctx context.Context, responseURL string, msg *slack.Msg) error
}

// AIBackend defines the interface for the conversational AI service
type AIBackend interface {
	Query(ctx context.Context, text, user, conversationID string) (*models.AIReply, error)
}

// ConversationStore maps Slack users onto AI backend conversation ids
type ConversationStore interface {
	Get(ctx context.Context, userID string) (string, bool, error)
	Set(ctx context.Context, userID, conversationID string) error
}

var mentionPattern = regexp.MustCompile(`^\s*<@([A-Z0-9]+)(?:\|[^>]*)?>`)

// Options tune the EventHandler
type Options struct {
	// Mode is config.ModeAI or config.ModeCanned
	Mode string
	// BotUserID restricts mention stripping to the bot's own id when known
	BotUserID     string
	AskCommand    string
	StatusCommand string
	PublicURL     string
	// Responder and AsyncSlash together let the ask command acknowledge at
	// once and post its answer to the response_url later
	Responder  SlashResponder
	AsyncSlash bool
	Logger     *slog.Logger
}

// EventHandler handles Slack events
type EventHandler struct {
	poster MessagePoster
	ai     AIBackend
	store  ConversationStore
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewEventHandler creates a new event handler
func NewEventHandler(poster MessagePoster, ai AIBackend, store ConversationStore, opts Options) *EventHandler {
	if opts.Mode == "" {
		opts.Mode = config.ModeAI
	}
	if opts.AskCommand == "" {
		opts.AskCommand = "/ask"
	}
	if opts.StatusCommand == "" {
		opts.StatusCommand = "/sample"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{
		poster: poster,
		ai:     ai,
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// HandleEvent dispatches the inner event of an event_callback. Event types
// other than message and app_mention are acknowledged without action.
func (h *EventHandler) HandleEvent(ctx context.Context, event models.SlackEventBody) {
	logger := logging.FromContext(ctx, h.logger)

	switch event.Type {
	case models.EventMessage:
		if event.IsSelfOriginated() {
			logger.Debug("ignoring bot message", "bot_id", event.BotID, "channel", event.Channel)
			return
		}
		h.HandleChannelMessage(ctx, event.User, event.Channel, event.Text)

	case models.EventAppMention:
		h.HandleAppMention(ctx, event.User, event.Channel, StripMention(event.Text, h.opts.BotUserID))

	default:
		logger.Debug("ignoring event type", "type", event.Type)
	}
}

// HandleChannelMessage answers a direct or channel message
func (h *EventHandler) HandleChannelMessage(ctx context.Context, userID, channelID, text string) {
	logger := logging.FromContext(ctx, h.logger)
	logger.Info("handling message", "user", userID, "channel", channelID)

	if strings.TrimSpace(text) == "" {
		logger.Debug("ignoring message without text", "channel", channelID)
		return
	}

	reply, _ := h.answer(ctx, userID, text)
	h.poster.Send(ctx, channelID, reply)
}

// HandleAppMention answers a mention; text must already have the leading
// mention token removed
func (h *EventHandler) HandleAppMention(ctx context.Context, userID, channelID, text string) {
	logger := logging.FromContext(ctx, h.logger)
	logger.Info("handling app mention", "user", userID, "channel", channelID)

	if strings.TrimSpace(text) == "" {
		h.poster.Send(ctx, channelID, MentionHintText)
		return
	}

	reply, _ := h.answer(ctx, userID, text)
	h.poster.Send(ctx, channelID, reply)
}

// answer produces the reply for one user turn. The bool is false when the
// apology was substituted.
func (h *EventHandler) answer(ctx context.Context, userID, text string) (string, bool) {
	if h.opts.Mode == config.ModeCanned {
		return cannedReply(text), true
	}

	logger := logging.FromContext(ctx, h.logger)

	conversationID, _, err := h.store.Get(ctx, userID)
	if err != nil {
		logger.Warn("failed to load conversation id, starting a new conversation", "user", userID, "error", err)
		conversationID = ""
	}

	reply, err := h.ai.Query(ctx, text, userID, conversationID)
	if err != nil {
		if apperr.Is(err, apperr.BackendUnavailable) {
			logger.Warn("AI backend unavailable", "user", userID, "error", err)
		} else {
			logger.Error("AI backend failed", "user", userID, "kind", apperr.KindOf(err), "error", err)
		}
		return ApologyText, false
	}

	if reply.ConversationID != "" {
		if err := h.store.Set(ctx, userID, reply.ConversationID); err != nil {
			logger.Warn("failed to save conversation id", "user", userID, "error", err)
		}
	}

	if strings.TrimSpace(reply.Answer) == "" {
		logger.Warn("AI backend returned an empty answer", "user", userID)
		return ApologyText, false
	}

	return reply.Answer, true
}

// Wait blocks until every deferred slash command reply has been delivered
func (h *EventHandler) Wait() {
	h.wg.Wait()
}

// StripMention removes a leading <@USERID> token. When botUserID is known
// only the bot's own mention is removed.
func StripMention(text, botUserID string) string {
	m := mentionPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return strings.TrimSpace(text)
	}
	if botUserID != "" && text[m[2]:m[3]] != botUserID {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[m[1]:])
}
