package models

import "encoding/json"

// Payload types sent by the Slack Events API
const (
	PayloadURLVerification = "url_verification"
	PayloadEventCallback   = "event_callback"
)

// Inner event types handled by the bot
const (
	EventMessage    = "message"
	EventAppMention = "app_mention"
)

// SubTypeBotMessage marks messages posted by integrations rather than users
const SubTypeBotMessage = "bot_message"

// InboundPayload is the JSON body Slack posts to the events endpoint.
// Command is non-nil only when the body carries a "command" key, which is how
// slash commands delivered as JSON are recognised. Challenge is kept raw so
// the handshake echoes whatever JSON value Slack sent.
type InboundPayload struct {
	Type      string          `json:"type"`
	Token     string          `json:"token,omitempty"`
	Challenge json.RawMessage `json:"challenge,omitempty"`
	TeamID    string          `json:"team_id,omitempty"`
	APIAppID  string          `json:"api_app_id,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`

	Command     *string `json:"command,omitempty"`
	Text        string  `json:"text,omitempty"`
	UserID      string  `json:"user_id,omitempty"`
	UserName    string  `json:"user_name,omitempty"`
	ChannelID   string  `json:"channel_id,omitempty"`
	ChannelName string  `json:"channel_name,omitempty"`
	ResponseURL string  `json:"response_url,omitempty"`
	TriggerID   string  `json:"trigger_id,omitempty"`
}

// SlackEventBody represents the actual event details
type SlackEventBody struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Channel  string `json:"channel"`
	BotID    string `json:"bot_id,omitempty"`
	SubType  string `json:"subtype,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// IsSelfOriginated reports whether a message event was posted by a bot, which
// must never be answered to avoid reply loops
func (e SlackEventBody) IsSelfOriginated() bool {
	return e.BotID != "" || e.SubType == SubTypeBotMessage
}

// ChallengeResponse answers the Slack URL verification handshake
type ChallengeResponse struct {
	Challenge json.RawMessage `json:"challenge"`
}

// StatusResponse is the default acknowledgment body
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body returned for rejected requests
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthCheck is the body returned by the health endpoint
type HealthCheck struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Message string `json:"message"`
}
