// Package server exposes the HTTP surface of the runtime: the inbound
// webhook ingress, a health endpoint, and whatever extra handlers the
// caller mounts (metrics, debug).
package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tideway/tideway/pkg/connector/core"
	"github.com/tideway/tideway/pkg/connector/registry"
	"github.com/tideway/tideway/pkg/errors"
	"github.com/tideway/tideway/pkg/json"
)

// maxWebhookBody bounds inbound payloads; providers send small events.
const maxWebhookBody = 1 << 20

// Config configures the HTTP server.
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
}

// Server routes inbound webhook requests to the registered connectors.
type Server struct {
	config   Config
	registry *registry.Registry
	logger   *zap.Logger
	mux      *http.ServeMux
	httpSrv  *http.Server
}

// New creates the server and mounts the built-in routes.
func New(config Config, reg *registry.Registry, logger *zap.Logger) *Server {
	if config.Listen == "" {
		config.Listen = ":8080"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		config:   config,
		registry: reg,
		logger:   logger.With(zap.String("component", "server")),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /webhooks/{provider}", s.handleWebhook)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /connectors", s.handleConnectors)

	s.httpSrv = &http.Server{
		Addr:              config.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handle mounts an extra handler on the server mux.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("listening", zap.String("addr", s.config.Listen))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, errors.ErrorTypeConnection, "http server failed")
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// handleWebhook verifies and normalizes one inbound webhook request. The
// connector owns verification; an invalid signature surfaces as 401 and
// the payload is never processed.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	connector, err := s.registry.Get(provider)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, errors.ErrorTypeValidation, "failed to read request body"))
		return
	}

	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	cctx := core.ConnectorContext{Metadata: core.Metadata{Provider: provider}}
	events, err := connector.HandleWebhook(r.Context(), cctx, headers, body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.IsType(err, errors.ErrorTypeAuthorization) {
			status = http.StatusUnauthorized
		}
		s.logger.Warn("webhook rejected",
			zap.String("provider", provider),
			zap.Int("status", status),
			zap.Error(err))
		s.writeError(w, status, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": len(events),
		"events":   events,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"connectors": s.registry.List(),
	})
}

func (s *Server) handleConnectors(w http.ResponseWriter, r *http.Request) {
	feature := r.URL.Query().Get("feature")

	var defs []registry.Definition
	if feature != "" {
		defs = s.registry.ByFeature(feature)
	} else {
		for _, id := range s.registry.List() {
			if def, err := s.registry.Definition(id); err == nil {
				defs = append(defs, def)
			}
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"connectors": defs})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}
