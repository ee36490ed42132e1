package server

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/teranos/crosspost/errors"
)

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", newState.String())
}

// Start listens on port and serves until ctx is cancelled, then shuts
// down gracefully. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", port)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("HTTP server listening", "addr", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop drains in-flight passes and shuts the listener down.
func (s *Server) Stop() error {
	s.logger.Infow("Initiating server shutdown", "passes_in_flight", s.inFlight.Load())
	s.setState(ServerStateDraining)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var err error
	if s.httpServer != nil {
		if err = s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("HTTP shutdown timed out, forcing close",
				"timeout", ShutdownTimeout,
				"error", err)
			_ = s.httpServer.Close()
			err = errors.Wrap(err, "graceful shutdown")
		}
	}

	s.setState(ServerStateStopped)
	s.logger.Infow("Server shutdown complete")
	return err
}
