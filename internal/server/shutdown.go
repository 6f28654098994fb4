package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// httpServer pairs the running http.Server with its listener so Addr
// is known even when listening on port 0.
type httpServer struct {
	server   *http.Server
	listener net.Listener
}

// Shutdown gracefully shuts the server down. Calling it before the
// server has started is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpServerMu.RLock()
	hs := s.httpServer
	s.httpServerMu.RUnlock()

	if hs == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

// Addr returns the listen address, or "" before the server has started.
func (s *Server) Addr() string {
	s.httpServerMu.RLock()
	defer s.httpServerMu.RUnlock()

	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.listener.Addr().String()
}

// ListenAndServeWithShutdown serves until SIGINT/SIGTERM or a
// programmatic Shutdown, then drains in-flight requests with a 30s
// grace period. It returns nil on a clean shutdown.
func (s *Server) ListenAndServeWithShutdown() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	hs := &httpServer{
		server:   &http.Server{Handler: s.Handler()},
		listener: listener,
	}
	s.httpServerMu.Lock()
	s.httpServer = hs
	s.httpServerMu.Unlock()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	served := make(chan error, 1)
	go func() {
		if err := hs.server.Serve(listener); err != http.ErrServerClosed {
			served <- err
			return
		}
		served <- nil
	}()

	log.Printf("Server listening on %s", listener.Addr())
	close(s.ready)

	select {
	case sig := <-signals:
		log.Printf("Received %v, shutting down", sig)
	case err := <-served:
		// Serve returned on its own: a listener error, or Shutdown
		// was called programmatically.
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := hs.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	<-served
	log.Println("Server shutdown complete")
	return nil
}
