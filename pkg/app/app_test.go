package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/savaki/slack-dify-bot/pkg/config"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/server"
)

func testConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()

	for _, key := range []string{"SLACK_SIGNING_SECRET", "SLACK_BOT_TOKEN", "SLACK_APP_TOKEN", "SLACK_BOT_USER_ID", "DIFY_API_KEY", "DIFY_BASE_URL"} {
		t.Setenv(key, "")
	}

	v := config.NewViper()
	for k, val := range overrides {
		v.Set(k, val)
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	return cfg
}

func TestNewWithoutCredentials(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, nil), logging.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Slack.Enabled() {
		t.Error("Slack should be disabled without a bot token")
	}
	if a.BotUserID != "" {
		t.Errorf("BotUserID = %q, want empty", a.BotUserID)
	}
	if _, err := a.SocketRunner(); err == nil {
		t.Error("SocketRunner() should fail without SLACK_APP_TOKEN")
	}
}

func TestNewUsesConfiguredBotUserID(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, map[string]any{
		"slack_bot_user_id": "UBOT42",
	}), logging.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.BotUserID != "UBOT42" {
		t.Errorf("BotUserID = %q, want UBOT42", a.BotUserID)
	}
}

func TestSocketRunnerRequiresBotToken(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, map[string]any{
		"slack_app_token":   "xapp-test",
		"slack_bot_user_id": "UBOT",
	}), logging.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if _, err := a.SocketRunner(); err == nil {
		t.Error("SocketRunner() should fail without SLACK_BOT_TOKEN")
	}
}

func TestServerHandshakeEndToEnd(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, nil), logging.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	req := httptest.NewRequest(http.MethodPost, server.EventsPath, strings.NewReader(`{"type":"url_verification","challenge":"handshake"}`))
	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"challenge":"handshake"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestServerMessageWithoutDifyAcknowledges(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, nil), logging.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	body := `{"type":"event_callback","event":{"type":"message","user":"U1","channel":"C1","text":"hello"}}`
	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, server.EventsPath, strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}
