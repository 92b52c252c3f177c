// Package web is the HTTP surface of the registration backend: the chat and
// photo-upload endpoints the club's web widget talks to, the payment-provider
// webhook, and the operational endpoints.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/regdesk/regdesk/internal/dispatch"
	"github.com/regdesk/regdesk/internal/observability"
	"github.com/regdesk/regdesk/internal/photo"
	"github.com/regdesk/regdesk/internal/sessions"
	"github.com/regdesk/regdesk/internal/webhook"
)

// HealthProbe is anything whose reachability the /health endpoint reports.
type HealthProbe interface {
	Health(ctx context.Context) error
}

// PaymentURLMinter opens a fresh hosted payment flow for an existing billing
// request. Backs the persistent /reg_setup links printed on club letters.
type PaymentURLMinter interface {
	CreatePaymentURL(ctx context.Context, billingRequestID string) (string, error)
}

// Config wires the server's collaborators.
type Config struct {
	Dispatcher *dispatch.Dispatcher
	Sessions   sessions.Store
	Pipeline   *photo.Pipeline
	Webhooks   *webhook.Processor
	Payments   PaymentURLMinter

	// Probes are the named dependencies /health reports on.
	Probes map[string]HealthProbe

	// AsyncPhoto makes /upload enqueue instead of processing inline, so the
	// widget gets a fast 202 and polls /upload-status. /upload-async always
	// enqueues regardless.
	AsyncPhoto bool

	Logger  *observability.Logger
	Metrics *observability.Metrics
	DevMode bool

	ModelName string
}

// Server is the HTTP API server.
type Server struct {
	cfg     Config
	mux     *http.ServeMux
	logger  *observability.Logger
	started time.Time
}

// NewServer builds the router.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		logger:  logger,
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("POST /upload-async", s.handleUploadAsync)
	s.mux.HandleFunc("GET /upload-status/{session_id}", s.handleUploadStatus)
	s.mux.HandleFunc("POST /clear", s.handleClear)
	s.mux.HandleFunc("GET /agent/status", s.handleAgentStatus)
	s.mux.HandleFunc("POST /agent/mode", s.handleAgentMode)
	s.mux.HandleFunc("POST /webhooks/payment-provider", s.handleWebhook)
	s.mux.HandleFunc("GET /reg_setup/{billing_request_id}", s.handleRegSetup)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return RecoverMiddleware(s.logger)(RequestIDMiddleware(LoggingMiddleware(s.logger)(s.mux)))
}

// ListenAndServe runs the server until ctx is cancelled, then drains with a
// short grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
