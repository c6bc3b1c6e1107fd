package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/savaki/slack-dify-bot/pkg/config"
	"github.com/savaki/slack-dify-bot/pkg/conversation"
	"github.com/savaki/slack-dify-bot/pkg/dify"
	"github.com/savaki/slack-dify-bot/pkg/dynamodb"
	"github.com/savaki/slack-dify-bot/pkg/handler"
	"github.com/savaki/slack-dify-bot/pkg/server"
	slackclient "github.com/savaki/slack-dify-bot/pkg/slack"
	"github.com/savaki/slack-dify-bot/pkg/socket"
)

const botUserIDLookupTimeout = 5 * time.Second

// App wires the configured components together. It owns the process-wide
// HTTP client shared by the Slack and Dify clients.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Slack     *slackclient.Client
	Events    *handler.EventHandler
	Router    *handler.Router
	BotUserID string

	httpClient *http.Client
}

// New builds the application from cfg. Missing credentials only disable the
// features that need them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	httpClient := &http.Client{}

	slack := slackclient.NewClient(slackclient.ClientConfig{
		BotToken:    cfg.SlackBotToken,
		AppToken:    cfg.SlackAppToken,
		HTTPClient:  httpClient,
		PostTimeout: cfg.SlackPostTimeout,
		Logger:      logger,
	})

	store, err := newConversationStore(ctx, cfg, logger)
	if err != nil {
		httpClient.CloseIdleConnections()
		return nil, err
	}

	ai := dify.NewClient(httpClient, cfg.DifyBaseURL, cfg.DifyAPIKey, cfg.DifyTimeout, logger)
	botUserID := resolveBotUserID(ctx, cfg, slack, logger)

	events := handler.NewEventHandler(slack, ai, store, handler.Options{
		Mode:          cfg.BotMode,
		BotUserID:     botUserID,
		AskCommand:    cfg.AskCommand,
		StatusCommand: cfg.StatusCommand,
		PublicURL:     cfg.PublicURL.Value(),
		Responder:     slack,
		AsyncSlash:    cfg.AsyncSlashCommands,
		Logger:        logger,
	})

	router := handler.NewRouter(handler.NewVerifier(cfg.SlackSigningSecret), events, cfg.IgnoreSlackRetries, logger)

	logger.Info("application configured",
		"bot_mode", cfg.BotMode,
		"conversation_store", cfg.ConversationStore,
		"dify_configured", cfg.DifyConfigured(),
		"slack_enabled", slack.Enabled(),
		"environment", cfg.Environment,
	)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Slack:      slack,
		Events:     events,
		Router:     router,
		BotUserID:  botUserID,
		httpClient: httpClient,
	}, nil
}

// Server returns the HTTP transport for the webhook path
func (a *App) Server() *server.Server {
	return server.New(a.Router, a.Logger)
}

// SocketRunner returns the Socket Mode transport. It requires SLACK_APP_TOKEN
// and SLACK_BOT_TOKEN.
func (a *App) SocketRunner() (*socket.Runner, error) {
	if !a.Config.SlackAppToken.IsSet() {
		return nil, fmt.Errorf("socket mode requires SLACK_APP_TOKEN")
	}
	if !a.Slack.Enabled() {
		return nil, fmt.Errorf("socket mode requires SLACK_BOT_TOKEN")
	}
	return socket.NewRunner(a.Slack.GetRawClient(), a.Events, a.Logger), nil
}

// Close waits for deferred slash command replies, then releases the shared
// HTTP client's idle connections
func (a *App) Close() {
	a.Events.Wait()
	a.httpClient.CloseIdleConnections()
	a.Logger.Info("application closed")
}

func newConversationStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (handler.ConversationStore, error) {
	switch cfg.ConversationStore {
	case config.StoreDynamoDB:
		client, err := dynamodb.NewClient(ctx, cfg.AWSRegion.Value())
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		logger.Info("using dynamodb conversation store", "table", cfg.ConversationsTable)
		return dynamodb.NewConversationStore(client, cfg.ConversationsTable, cfg.GetConversationTTL(), logger), nil
	default:
		return conversation.NewMemoryStore(), nil
	}
}

// resolveBotUserID prefers SLACK_BOT_USER_ID and falls back to auth.test.
// An empty result means any leading mention is stripped.
func resolveBotUserID(ctx context.Context, cfg *config.Config, slack *slackclient.Client, logger *slog.Logger) string {
	if id, ok := cfg.SlackBotUserID.Get(); ok {
		return id
	}
	if !slack.Enabled() {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, botUserIDLookupTimeout)
	defer cancel()

	id, err := slack.GetBotUserID(ctx)
	if err != nil {
		logger.Warn("could not resolve bot user id, stripping any leading mention", "error", err)
		return ""
	}
	logger.Info("resolved bot user id", "bot_user_id", id)
	return id
}
