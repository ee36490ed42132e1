// Package server exposes the publishing engine over HTTP. It is a trigger
// surface only: every POST to the process endpoint runs one processing
// pass and returns its summary.
package server

import (
	"context"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teranos/crosspost/logger"
	"github.com/teranos/crosspost/pulse/engine"
)

// Processor runs one processing pass. *engine.Processor implements it.
type Processor interface {
	ProcessDueJobs(ctx context.Context) engine.Summary
}

// Server serves the trigger and health endpoints.
type Server struct {
	processor  Processor
	logger     *zap.SugaredLogger
	mux        *http.ServeMux
	httpServer *http.Server
	state      atomic.Int32
	inFlight   atomic.Int32 // processing passes currently running
}

// New creates a server around p. Routes are registered immediately; call
// Start to listen.
func New(p Processor, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = logger.Logger
	}
	s := &Server{
		processor: p,
		logger:    log.Named("server"),
		mux:       http.NewServeMux(),
	}
	s.state.Store(int32(ServerStateRunning))
	s.setupHTTPRoutes()
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}
