package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/savaki/slack-dify-bot/pkg/apperr"
	"github.com/savaki/slack-dify-bot/pkg/handler"
	"github.com/savaki/slack-dify-bot/pkg/logging"
	"github.com/savaki/slack-dify-bot/pkg/models"
	"github.com/savaki/slack-dify-bot/pkg/version"
)

// MaxBodyBytes caps the size of an inbound Slack request
const MaxBodyBytes = 1 << 20

// EventsPath and HealthPath are the routes exposed by the server
const (
	EventsPath = "/slack/events"
	HealthPath = "/health"
)

const healthMessage = "Slack Dify bot is running"

// Router is the subset of handler.Router the server depends on
type Router interface {
	Route(ctx context.Context, body []byte, headers http.Header) handler.Response
}

// Server exposes the Slack events endpoint and a health check over HTTP
type Server struct {
	router Router
	logger *slog.Logger
}

// New creates a server for the given router
func New(router Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{router: router, logger: logger}
}

// Handler returns the routed HTTP handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+EventsPath, s.handleEvents)
	mux.HandleFunc("GET "+HealthPath, s.handleHealth)

	return chainMiddlewares(mux,
		withLogging(s.logger),
		withRequestID,
	)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Warn("failed to read request body", "error", err)
		kind := apperr.InvalidPayload
		writeJSON(w, kind.StatusCode(), models.ErrorResponse{Error: kind.String(), Message: "Invalid request body"})
		return
	}

	resp := s.router.Route(r.Context(), body, r.Header)
	writeJSON(w, resp.StatusCode, resp.Body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthBody())
}

func healthBody() models.HealthCheck {
	return models.HealthCheck{
		Status:  "healthy",
		Version: version.Version,
		Message: healthMessage,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
