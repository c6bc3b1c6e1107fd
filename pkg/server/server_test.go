package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/savaki/slack-dify-bot/pkg/handler"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/models"
	"github.com/savaki/slack-dify-bot/pkg/version"
)

// MockRouter mocks the Router interface for testing
type MockRouter struct {
	RouteFunc func(ctx context.Context, body []byte, headers http.Header) handler.Response
}

var _ Router = (*MockRouter)(nil)

func (m *MockRouter) Route(ctx context.Context, body []byte, headers http.Header) handler.Response {
	if m.RouteFunc != nil {
		return m.RouteFunc(ctx, body, headers)
	}
	return handler.Response{StatusCode: http.StatusOK, Body: models.StatusResponse{Status: "ok"}}
}

func TestHealth(t *testing.T) {
	srv := New(&MockRouter{}, logging.Discard())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body models.HealthCheck
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "healthy" || body.Version != version.Version || body.Message != healthMessage {
		t.Errorf("body = %+v", body)
	}
}

func TestEventsPassesBodyAndHeaders(t *testing.T) {
	var (
		gotBody      string
		gotSignature string
		gotRequestID string
	)
	router := &MockRouter{RouteFunc: func(ctx context.Context, body []byte, headers http.Header) handler.Response {
		gotBody = string(body)
		gotSignature = headers.Get(handler.HeaderSignature)
		gotRequestID = logging.RequestID(ctx)
		return handler.Response{StatusCode: http.StatusOK, Body: models.ChallengeResponse{Challenge: json.RawMessage(`"xyz"`)}}
	}}

	req := httptest.NewRequest(http.MethodPost, EventsPath, strings.NewReader(`{"type":"url_verification","challenge":"xyz"}`))
	req.Header.Set("x-slack-signature", "v0=abc")
	rec := httptest.NewRecorder()

	New(router, logging.Discard()).Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotBody != `{"type":"url_verification","challenge":"xyz"}` {
		t.Errorf("router body = %s", gotBody)
	}
	if gotSignature != "v0=abc" {
		t.Errorf("signature header = %q, want v0=abc", gotSignature)
	}
	if gotRequestID == "" || rec.Header().Get(RequestIDHeader) != gotRequestID {
		t.Errorf("request id = %q, header = %q", gotRequestID, rec.Header().Get(RequestIDHeader))
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"challenge":"xyz"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestEventsRouterStatusIsForwarded(t *testing.T) {
	router := &MockRouter{RouteFunc: func(context.Context, []byte, http.Header) handler.Response {
		return handler.Response{StatusCode: http.StatusBadRequest, Body: models.ErrorResponse{Error: "signature_invalid", Message: "Invalid request signature"}}
	}}

	rec := httptest.NewRecorder()
	New(router, logging.Discard()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, EventsPath, strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEventsBodyTooLarge(t *testing.T) {
	called := false
	router := &MockRouter{RouteFunc: func(context.Context, []byte, http.Header) handler.Response {
		called = true
		return handler.Response{StatusCode: http.StatusOK}
	}}

	body := strings.Repeat("a", MaxBodyBytes+1)
	rec := httptest.NewRecorder()
	New(router, logging.Discard()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, EventsPath, strings.NewReader(body)))

	if called {
		t.Error("router should not see an oversized body")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUnknownRoutes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "unknown path", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
		{name: "wrong method", method: http.MethodGet, path: EventsPath, wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			New(&MockRouter{}, logging.Discard()).Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := New(&MockRouter{}, logging.Discard()).ListenAndServe(ctx, "127.0.0.1:0", time.Second); err != nil {
		t.Errorf("ListenAndServe() error = %v", err)
	}
}
