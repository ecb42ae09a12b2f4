// Package api provides the HTTP admin and webhook surface for FlowDesk.
//
// It exposes endpoints for inspecting flows and tenants, reading and
// resetting conversation state, and injecting inbound messages (used both
// for simulation and as a channel webhook).
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/flowdesk/flowdesk/internal/flow"
	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/store"
	"github.com/flowdesk/flowdesk/internal/tenant"
)

// Default server timeouts.
const (
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
)

// CollaboratorResolver supplies the external collaborators for a tenant's
// turn. A nil resolver means no collaborators (flows degrade to their
// fallback texts).
type CollaboratorResolver func(t *models.Tenant) flow.Collaborators

// Server hosts the HTTP API.
type Server struct {
	flows     *flow.Registry
	tenants   *tenant.Registry
	convos    store.ConversationStore
	interp    *flow.Interpreter
	resolve   CollaboratorResolver
	addr      string
	httpServe *http.Server
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// NewServer creates an API server over the given registries, store and
// interpreter.
func NewServer(flows *flow.Registry, tenants *tenant.Registry, convos store.ConversationStore, interp *flow.Interpreter, resolve CollaboratorResolver, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		flows:   flows,
		tenants: tenants,
		convos:  convos,
		interp:  interp,
		resolve: resolve,
		addr:    cfg.Addr,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/flows", s.listFlowsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/flows/{id}", s.getFlowHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/tenants", s.listTenantsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/tenants/{tenant}/conversations", s.listConversationsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/tenants/{tenant}/conversations/{user}", s.getConversationHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/tenants/{tenant}/conversations/{user}", s.resetConversationHandler).Methods(http.MethodDelete)
	r.HandleFunc("/v1/tenants/{tenant}/messages", s.inboundMessageHandler).Methods(http.MethodPost)
	return r
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.httpServe = &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := s.httpServe.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server failed", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.httpServe == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return s.httpServe.Shutdown(ctx)
}
