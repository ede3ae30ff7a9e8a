// Package server exposes the HTTP surface of the service: document
// generation, export, health, and the ops investigation trigger. All
// responses are JSON; failures follow a single error envelope with a
// stable code per failure class.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sungjin9288/DecisionDoc-AI/internal/config"
	"github.com/sungjin9288/DecisionDoc-AI/internal/generation"
	"github.com/sungjin9288/DecisionDoc-AI/internal/maintenance"
	"github.com/sungjin9288/DecisionDoc-AI/internal/ops"
)

// Server wires the middleware stack and the route handlers.
type Server struct {
	cfg    *config.Config
	log    *zap.Logger
	gen    *generation.Service
	inv    *ops.Investigator
	maint  *maintenance.Watcher
	events EventSink

	httpSrv *http.Server
}

// New assembles a server. maint and events may be nil; the corresponding
// behavior is then off.
func New(cfg *config.Config, log *zap.Logger, gen *generation.Service, inv *ops.Investigator, maint *maintenance.Watcher, events EventSink) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		log:    log,
		gen:    gen,
		inv:    inv,
		maint:  maint,
		events: events,
	}
	s.httpSrv = &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler builds the full route table with the middleware stack applied.
// Health sits outside maintenance and auth so probes keep working while
// the service is closed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	apiKey := s.cfg.Server.APIKey
	opsKey := s.cfg.Server.OpsKey

	mux.Handle("POST /generate",
		s.withMaintenance(s.withKeyAuth(HeaderAPIKey, apiKey, http.HandlerFunc(s.handleGenerate))))
	mux.Handle("POST /generate/export",
		s.withMaintenance(s.withKeyAuth(HeaderAPIKey, apiKey, http.HandlerFunc(s.handleExport))))
	mux.Handle("POST /ops/investigate",
		s.withMaintenance(s.withKeyAuth(HeaderOpsKey, opsKey, http.HandlerFunc(s.handleInvestigate))))

	return withRequestID(s.withObservability(mux))
}

// Start runs the HTTP server until ctx is cancelled, then drains it.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, apiErr apiError) {
	if meta := metaFromContext(r.Context()); meta != nil {
		meta.errorCode = apiErr.code
	}
	s.writeJSON(w, apiErr.status, errorBody{
		Code:      apiErr.code,
		Message:   apiErr.message,
		RequestID: RequestIDFromContext(r.Context()),
		Details:   apiErr.details,
	})
}
