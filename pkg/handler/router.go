package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"runtime/debug"

	"github.com/savaki/slack-dify-bot/pkg/apperr"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/models"
	"github.com/slack-go/slack"
)

// Slack request headers consumed by the router
const (
	HeaderRequestTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature        = "X-Slack-Signature"
	HeaderRetryNum         = "X-Slack-Retry-Num"
	HeaderRetryReason      = "X-Slack-Retry-Reason"
)

const internalErrorMessage = "Internal server error"

// Response is what the router hands back to the transport: a status code and
// a JSON-serializable body
type Response struct {
	StatusCode int
	Body       any
}

// Router classifies inbound Slack payloads and dispatches them
type Router struct {
	verifier      *Verifier
	events        *EventHandler
	ignoreRetries bool
	logger        *slog.Logger
}

// NewRouter creates a router. When the verifier is disabled a warning is
// logged once here rather than on every request.
func NewRouter(verifier *Verifier, events *EventHandler, ignoreRetries bool, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if !verifier.Enabled() {
		logger.Warn("SLACK_SIGNING_SECRET not set, skipping request signature verification")
	}
	return &Router{
		verifier:      verifier,
		events:        events,
		ignoreRetries: ignoreRetries,
		logger:        logger,
	}
}

// Route handles one raw Slack request. It never returns an error: every
// failure is already translated into a Response.
func (r *Router) Route(ctx context.Context, body []byte, headers http.Header) (resp Response) {
	logger := logging.FromContext(ctx, r.logger)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic while handling slack request", "panic", p, "stack", string(debug.Stack()))
			resp = errorResponse(apperr.Internal, internalErrorMessage)
		}
	}()

	// 1. Parse
	payload, slash, err := parsePayload(body, headers.Get("Content-Type"))
	if err != nil {
		logger.Warn("failed to parse slack payload", "error", err)
		return errorResponse(apperr.InvalidPayload, "Invalid JSON")
	}

	// 2. Verify
	if !r.verifier.Verify(body, headers.Get(HeaderRequestTimestamp), headers.Get(HeaderSignature)) {
		logger.Warn("invalid slack signature")
		return errorResponse(apperr.SignatureInvalid, "Invalid request signature")
	}

	// 3. Handshake
	if payload.Type == models.PayloadURLVerification {
		logger.Info("responding to slack url verification challenge")
		return Response{StatusCode: http.StatusOK, Body: models.ChallengeResponse{Challenge: payload.Challenge}}
	}

	// 4. Events
	if payload.Type == models.PayloadEventCallback {
		if retry := headers.Get(HeaderRetryNum); retry != "" && r.ignoreRetries {
			logger.Info("ignoring slack retry", "retry_num", retry, "reason", headers.Get(HeaderRetryReason), "event_id", payload.EventID)
			return okResponse()
		}
		if len(payload.Event) == 0 {
			return okResponse()
		}

		var event models.SlackEventBody
		if err := json.Unmarshal(payload.Event, &event); err != nil {
			logger.Warn("failed to parse inner event", "error", err)
			return errorResponse(apperr.InvalidPayload, "Invalid event format")
		}

		r.events.HandleEvent(ctx, event)
		return okResponse()
	}

	// 5. Slash commands
	if slash != nil {
		return Response{StatusCode: http.StatusOK, Body: r.events.HandleSlashCommand(ctx, *slash)}
	}

	// 6. Anything else
	logger.Debug("acknowledging unrecognized payload", "type", payload.Type)
	return okResponse()
}

// parsePayload decodes a JSON event body or a form-encoded slash command.
// slash is non-nil whenever the body carries a command key.
func parsePayload(body []byte, contentType string) (*models.InboundPayload, *slack.SlashCommand, error) {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/x-www-form-urlencoded" {
		req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		if err != nil {
			return nil, nil, fmt.Errorf("build form request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)

		cmd, err := slack.SlashCommandParse(req)
		if err != nil {
			return nil, nil, fmt.Errorf("parse form: %w", err)
		}
		payload := &models.InboundPayload{}
		if cmd.Command == "" {
			return payload, nil, nil
		}
		payload.Command = &cmd.Command
		return payload, &cmd, nil
	}

	var payload models.InboundPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if payload.Command == nil {
		return &payload, nil, nil
	}

	return &payload, &slack.SlashCommand{
		Token:       payload.Token,
		TeamID:      payload.TeamID,
		ChannelID:   payload.ChannelID,
		ChannelName: payload.ChannelName,
		UserID:      payload.UserID,
		UserName:    payload.UserName,
		Command:     *payload.Command,
		Text:        payload.Text,
		ResponseURL: payload.ResponseURL,
		TriggerID:   payload.TriggerID,
		APIAppID:    payload.APIAppID,
	}, nil
}

func okResponse() Response {
	return Response{StatusCode: http.StatusOK, Body: models.StatusResponse{Status: "ok"}}
}

func errorResponse(kind apperr.Kind, message string) Response {
	return Response{
		StatusCode: kind.StatusCode(),
		Body:       models.ErrorResponse{Error: kind.String(), Message: message},
	}
}
