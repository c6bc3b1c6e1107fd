package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/savaki/slack-dify-bot/pkg/apperr"
	"github.com/savaki/slack-dify-bot/pkg/config"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/slack-go/slack"
)

// DefaultPostTimeout bounds a single chat.postMessage call
const DefaultPostTimeout = 10 * time.Second

// ClientConfig configures the Slack client.
type ClientConfig struct {
	BotToken config.Optional
	// AppToken is only needed for Socket Mode
	AppToken config.Optional
	// HTTPClient is the process-wide client shared with the AI backend
	HTTPClient  *http.Client
	APIURL      string
	PostTimeout time.Duration
	Logger      *slog.Logger
}

// Client wraps the Slack SDK client for use throughout the application
type Client struct {
	client      *slack.Client
	httpClient  *http.Client
	enabled     bool
	postTimeout time.Duration
	logger      *slog.Logger
}

// NewClient creates a new Slack client. Without a bot token the client is
// disabled and every post is a logged no-op.
func NewClient(cfg ClientConfig) *Client {
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = DefaultPostTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	opts := []slack.Option{slack.OptionHTTPClient(cfg.HTTPClient)}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	if token, ok := cfg.AppToken.Get(); ok {
		opts = append(opts, slack.OptionAppLevelToken(token))
	}

	return &Client{
		client:      slack.New(cfg.BotToken.Value(), opts...),
		httpClient:  cfg.HTTPClient,
		enabled:     cfg.BotToken.IsSet(),
		postTimeout: cfg.PostTimeout,
		logger:      cfg.Logger,
	}
}

// Enabled reports whether a bot token is configured
func (c *Client) Enabled() bool {
	return c.enabled
}

// GetRawClient returns the underlying slack.Client for advanced operations like Socket Mode
func (c *Client) GetRawClient() *slack.Client {
	return c.client
}

// PostMessage posts a message to a Slack channel
func (c *Client) PostMessage(ctx context.Context, channelID string, opts ...slack.MsgOption) (string, error) {
	if !c.enabled {
		return "", apperr.New(apperr.DeliveryFailure, "slack bot token not configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.postTimeout)
	defer cancel()

	_, timestamp, err := c.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", apperr.New(apperr.DeliveryFailure, "post message", err)
	}

	return timestamp, nil
}

// Send posts text to a channel and only logs failures: by the time a reply is
// sent the inbound webhook has already been accepted, so there is nobody to
// report the error to.
func (c *Client) Send(ctx context.Context, channelID, text string) {
	logger := logging.FromContext(ctx, c.logger)

	if !c.enabled {
		logger.Warn("SLACK_BOT_TOKEN not set, cannot send message", "channel", channelID)
		return
	}

	ts, err := c.PostMessage(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		logger.Error("failed to send slack message", "channel", channelID, "error", err)
		return
	}

	logger.Debug("sent slack message", "channel", channelID, "ts", ts)
}

// Respond delivers a slash command reply to its response_url. No bot token
// is needed: the URL itself authorizes the post.
func (c *Client) Respond(ctx context.Context, responseURL string, msg *slack.Msg) error {
	if responseURL == "" {
		return apperr.New(apperr.DeliveryFailure, "slash command has no response_url", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.postTimeout)
	defer cancel()

	webhook := &slack.WebhookMessage{
		Text:         msg.Text,
		Attachments:  msg.Attachments,
		ResponseType: msg.ResponseType,
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, c.httpClient, webhook); err != nil {
		return apperr.New(apperr.DeliveryFailure, "post to response_url", err)
	}

	logging.FromContext(ctx, c.logger).Debug("sent slash command reply", "response_type", msg.ResponseType)
	return nil
}

// AuthTest verifies the bot token is valid
func (c *Client) AuthTest(ctx context.Context) (*slack.AuthTestResponse, error) {
	resp, err := c.client.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth test: %w", err)
	}

	return resp, nil
}

// GetBotUserID gets the bot's user ID for stripping mentions
func (c *Client) GetBotUserID(ctx context.Context) (string, error) {
	if !c.enabled {
		return "", fmt.Errorf("get bot user id: slack bot token not configured")
	}

	resp, err := c.AuthTest(ctx)
	if err != nil {
		return "", fmt.Errorf("get bot user id: %w", err)
	}

	return resp.UserID, nil
}
