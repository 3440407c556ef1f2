package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"faff-crm/internal/metrics"
	"faff-crm/internal/pipeline"
	"faff-crm/internal/realtime"
	"faff-crm/internal/repo"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies exposes core dependencies to the dashboard handlers.
type Dependencies struct {
	Store   repo.Store
	Channel pipeline.Channel
	Hub     *realtime.Hub
	Inviter Inviter
}

// Server wraps an http.Server with the webhook, dashboard and realtime
// routes mounted.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
}

// New creates a new HTTP server listening on addr. The webhook handler is
// injected because it owns its own verification and pipelines.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, webhook http.Handler, deps Dependencies) *Server {
	server := &Server{
		logger:  logger.With("component", "http"),
		metrics: metricRegistry,
		deps:    deps,
	}
	if server.deps.Inviter == nil {
		server.deps.Inviter = LogInviter{Logger: server.logger}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/api/webhook", webhook)
	if deps.Hub != nil {
		mux.Handle("GET /ws", deps.Hub)
	}

	mux.HandleFunc("GET /api/chats", server.handleListChats)
	mux.HandleFunc("GET /api/messages/{phone}", server.handleListMessages)
	mux.HandleFunc("POST /api/send-message", server.handleSendMessage)
	mux.HandleFunc("POST /api/update-status", server.handleUpdateStatus)
	mux.HandleFunc("POST /api/update-subscription", server.handleUpdateSubscription)
	mux.HandleFunc("GET /api/user-notes/{phone}", server.handleListNotes)
	mux.HandleFunc("POST /api/user-notes/{phone}", server.handleAddNote)
	mux.HandleFunc("GET /api/activity-logs", server.handleActivityLogs)
	mux.HandleFunc("GET /api/referrals", server.handleReferrals)
	mux.HandleFunc("POST /api/schedule-call", server.handleScheduleCall)

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
