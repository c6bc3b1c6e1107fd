package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Bot modes
const (
	ModeAI     = "ai"
	ModeCanned = "canned"
)

// Conversation store backends
const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
)

// Config holds application configuration loaded from environment variables,
// an optional config file, and command line flags
type Config struct {
	// Slack
	SlackSigningSecret Optional
	SlackBotToken      Optional
	SlackAppToken      Optional
	SlackBotUserID     Optional
	SlackPostTimeout   time.Duration
	AskCommand         string
	StatusCommand      string
	IgnoreSlackRetries bool
	AsyncSlashCommands bool

	// Dify
	DifyAPIKey  Optional
	DifyBaseURL Optional
	DifyTimeout time.Duration

	// Conversation store
	ConversationStore   string
	ConversationsTable  string
	ConversationTTLDays int
	AWSRegion           Optional

	// Server
	Addr      string
	PublicURL Optional
	BotMode   string

	// Logging
	LogLevel  string
	LogFormat string

	// Environment
	Environment string
}

// NewViper returns a viper instance bound to the process environment with
// every default applied. Optional keys deliberately have no default so that
// IsSet distinguishes "absent" from "empty".
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("slack_post_timeout", "10s")
	v.SetDefault("slack_ask_command", "/ask")
	v.SetDefault("slack_status_command", "/sample")
	v.SetDefault("ignore_slack_retries", true)
	v.SetDefault("slack_async_slash", true)
	v.SetDefault("dify_timeout", "30s")
	v.SetDefault("conversation_store", StoreMemory)
	v.SetDefault("conversations_table", "slack-dify-conversations")
	v.SetDefault("conversation_ttl_days", 0)
	v.SetDefault("addr", ":8000")
	v.SetDefault("bot_mode", ModeAI)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("environment", "dev")
	return v
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return LoadFrom(NewViper())
}

// LoadFrom builds a Config from an already populated viper instance
func LoadFrom(v *viper.Viper) (*Config, error) {
	difyTimeout, err := getDuration(v, "dify_timeout")
	if err != nil {
		return nil, err
	}
	postTimeout, err := getDuration(v, "slack_post_timeout")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SlackSigningSecret:  getOptional(v, "slack_signing_secret"),
		SlackBotToken:       getOptional(v, "slack_bot_token"),
		SlackAppToken:       getOptional(v, "slack_app_token"),
		SlackBotUserID:      getOptional(v, "slack_bot_user_id"),
		SlackPostTimeout:    postTimeout,
		AskCommand:          strings.TrimSpace(v.GetString("slack_ask_command")),
		StatusCommand:       strings.TrimSpace(v.GetString("slack_status_command")),
		IgnoreSlackRetries:  v.GetBool("ignore_slack_retries"),
		AsyncSlashCommands:  v.GetBool("slack_async_slash"),
		DifyAPIKey:          getOptional(v, "dify_api_key"),
		DifyBaseURL:         getOptional(v, "dify_base_url"),
		DifyTimeout:         difyTimeout,
		ConversationStore:   strings.ToLower(strings.TrimSpace(v.GetString("conversation_store"))),
		ConversationsTable:  strings.TrimSpace(v.GetString("conversations_table")),
		ConversationTTLDays: v.GetInt("conversation_ttl_days"),
		AWSRegion:           getOptional(v, "aws_region"),
		Addr:                strings.TrimSpace(v.GetString("addr")),
		PublicURL:           getOptional(v, "public_url"),
		BotMode:             strings.ToLower(strings.TrimSpace(v.GetString("bot_mode"))),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
		Environment:         v.GetString("environment"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values that cannot be degraded gracefully. Missing
// credentials are not errors; see Warnings.
func (c *Config) Validate() error {
	switch c.BotMode {
	case ModeAI, ModeCanned:
	default:
		return fmt.Errorf("BOT_MODE must be %q or %q, got %q", ModeAI, ModeCanned, c.BotMode)
	}

	switch c.ConversationStore {
	case StoreMemory:
	case StoreDynamoDB:
		if c.ConversationsTable == "" {
			return fmt.Errorf("CONVERSATIONS_TABLE is required for the dynamodb conversation store")
		}
	default:
		return fmt.Errorf("CONVERSATION_STORE must be %q or %q, got %q", StoreMemory, StoreDynamoDB, c.ConversationStore)
	}

	if c.DifyTimeout <= 0 {
		return fmt.Errorf("DIFY_TIMEOUT must be positive")
	}
	if c.SlackPostTimeout <= 0 {
		return fmt.Errorf("SLACK_POST_TIMEOUT must be positive")
	}
	if c.ConversationTTLDays < 0 {
		return fmt.Errorf("CONVERSATION_TTL_DAYS must not be negative")
	}
	if c.AskCommand == "" || c.StatusCommand == "" {
		return fmt.Errorf("slash command names must not be empty")
	}
	return nil
}

// Warnings lists the features that are disabled because a setting is unset
func (c *Config) Warnings() []string {
	var warnings []string
	if !c.SlackSigningSecret.IsSet() {
		warnings = append(warnings, "SLACK_SIGNING_SECRET not set, request signature verification is disabled")
	}
	if !c.SlackBotToken.IsSet() {
		warnings = append(warnings, "SLACK_BOT_TOKEN not set, replies will not be posted to Slack")
	}
	if c.BotMode == ModeAI && !c.DifyConfigured() {
		warnings = append(warnings, "DIFY_API_KEY or DIFY_BASE_URL not set, every AI reply will fall back to the apology message")
	}
	return warnings
}

// DifyConfigured reports whether both Dify credentials are present
func (c *Config) DifyConfigured() bool {
	return c.DifyAPIKey.IsSet() && c.DifyBaseURL.IsSet()
}

// GetConversationTTL returns the TTL duration for stored conversation ids,
// zero meaning entries never expire
func (c *Config) GetConversationTTL() time.Duration {
	return time.Duration(c.ConversationTTLDays*24) * time.Hour
}

// Helper functions

func getOptional(v *viper.Viper, key string) Optional {
	if !v.IsSet(key) {
		return Optional{}
	}
	return NewOptional(v.GetString(key))
}

// getDuration accepts Go duration strings ("30s") or a bare number of seconds
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, fmt.Errorf("%s is empty", strings.ToUpper(key))
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", strings.ToUpper(key), err)
	}
	return d, nil
}
