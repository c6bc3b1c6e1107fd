package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/savaki/slack-dify-bot/pkg/apperr"
	"github.com/savaki/slack-dify-bot/pkg/config"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/slack-go/slack"
)

func newTestClient(srv *httptest.Server, token string) *Client {
	return NewClient(ClientConfig{
		BotToken:    config.NewOptional(token),
		HTTPClient:  srv.Client(),
		APIURL:      srv.URL + "/",
		PostTimeout: time.Second,
		Logger:      logging.Discard(),
	})
}

func TestSendPostsMessage(t *testing.T) {
	var (
		gotChannel string
		gotText    string
		calls      int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Errorf("path = %s, want /chat.postMessage", r.URL.Path)
		}
		atomic.AddInt32(&calls, 1)
		r.ParseForm()
		gotChannel = r.FormValue("channel")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv, "xoxb-test")
	client.Send(context.Background(), "C123", "hello there")

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("chat.postMessage called %d times, want 1", calls)
	}
	if gotChannel != "C123" {
		t.Errorf("channel = %s, want C123", gotChannel)
	}
	if gotText != "hello there" {
		t.Errorf("text = %s, want hello there", gotText)
	}
}

func TestSendWithoutTokenIsNoop(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	client := newTestClient(srv, "")
	if client.Enabled() {
		t.Error("Enabled() = true without a bot token")
	}

	client.Send(context.Background(), "C123", "hello")

	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("slack API called %d times, want 0", calls)
	}
}

func TestPostMessageFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "slack api error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
			},
		},
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := newTestClient(srv, "xoxb-test")

			_, err := client.PostMessage(context.Background(), "C123", slack.MsgOptionText("hi", false))
			if !apperr.Is(err, apperr.DeliveryFailure) {
				t.Errorf("PostMessage() error = %v, want DeliveryFailure", err)
			}

			// Send must swallow the same failure
			client.Send(context.Background(), "C123", "hi")
		})
	}
}

func TestGetBotUserID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth.test" {
			t.Errorf("path = %s, want /auth.test", r.URL.Path)
		}
		w.Write([]byte(`{"ok":true,"url":"https://example.slack.com/","team":"Example","user":"difybot","team_id":"T1","user_id":"UBOT123"}`))
	}))
	defer srv.Close()

	id, err := newTestClient(srv, "xoxb-test").GetBotUserID(context.Background())
	if err != nil {
		t.Fatalf("GetBotUserID() error = %v", err)
	}
	if id != "UBOT123" {
		t.Errorf("GetBotUserID() = %s, want UBOT123", id)
	}
}

func TestGetBotUserIDWithoutToken(t *testing.T) {
	client := NewClient(ClientConfig{Logger: logging.Discard()})

	if _, err := client.GetBotUserID(context.Background()); err == nil {
		t.Error("GetBotUserID() should fail without a bot token")
	}
}

func TestRespondPostsToResponseURL(t *testing.T) {
	var got slack.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/commands/T1/123" {
			t.Errorf("path = %s, want /commands/T1/123", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// response_url posts need no bot token
	client := newTestClient(srv, "")
	err := client.Respond(context.Background(), srv.URL+"/commands/T1/123", &slack.Msg{
		ResponseType: slack.ResponseTypeInChannel,
		Text:         "the answer",
		Attachments:  []slack.Attachment{{Title: "Question: why"}},
	})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	if got.Text != "the answer" || got.ResponseType != slack.ResponseTypeInChannel {
		t.Errorf("webhook = %+v", got)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Title != "Question: why" {
		t.Errorf("attachments = %+v", got.Attachments)
	}
}

func TestRespondFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv, "xoxb-test")

	tests := []struct {
		name string
		url  string
	}{
		{name: "missing url", url: ""},
		{name: "expired url", url: srv.URL + "/commands/expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Respond(context.Background(), tt.url, &slack.Msg{Text: "hi"})
			if !apperr.Is(err, apperr.DeliveryFailure) {
				t.Errorf("Respond() error = %v, want DeliveryFailure", err)
			}
		})
	}
}
