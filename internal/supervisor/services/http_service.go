// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/marquee/internal/logging"
)

// DefaultShutdownTimeout bounds connection draining when none is configured.
const DefaultShutdownTimeout = 10 * time.Second

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	Serve(ln net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPOptions configures an HTTPServerService.
type HTTPOptions struct {
	// Addr is the listen address. ":0" picks a free port; see Addr.
	Addr string

	// ShutdownTimeout bounds Shutdown. Default: DefaultShutdownTimeout
	ShutdownTimeout time.Duration

	// DrainDelay keeps accepting requests after cancellation so load
	// balancers can observe OnDrain through the readiness probe.
	DrainDelay time.Duration

	// OnDrain runs once per shutdown, before DrainDelay.
	OnDrain func()
}

// HTTPServerService runs the Marquee API under suture. Each Serve binds a
// fresh listener, so a port that is still busy fails that run and the
// supervisor retries it. Cancellation marks the server as draining, waits
// DrainDelay, then shuts down gracefully.
//
//	svc := services.NewHTTPServerService(server, services.HTTPOptions{
//	    Addr:            cfg.Server.Addr(),
//	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
//	    DrainDelay:      cfg.Server.DrainDelay,
//	    OnDrain:         handler.BeginDrain,
//	})
//	tree.AddServingService(svc)
type HTTPServerService struct {
	server HTTPServer
	opts   HTTPOptions
	listen func(network, addr string) (net.Listener, error)

	mu    sync.Mutex
	bound net.Addr
}

// NewHTTPServerService wraps server.
func NewHTTPServerService(server HTTPServer, opts HTTPOptions) *HTTPServerService {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.DrainDelay < 0 {
		opts.DrainDelay = 0
	}
	return &HTTPServerService{server: server, opts: opts, listen: net.Listen}
}

// Addr returns the address of the current listener, or nil before the first
// successful bind.
func (h *HTTPServerService) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

// Serve implements suture.Service. A bind or serve failure is returned so
// the supervisor restarts the server; a completed shutdown returns ctx.Err().
func (h *HTTPServerService) Serve(ctx context.Context) error {
	ln, err := h.listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.opts.Addr, err)
	}
	h.mu.Lock()
	h.bound = ln.Addr()
	h.mu.Unlock()
	logging.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")

	served := make(chan error, 1)
	go func() {
		err := h.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()

	select {
	case err := <-served:
		if err == nil {
			return fmt.Errorf("http server on %s stopped unexpectedly", ln.Addr())
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	if h.opts.OnDrain != nil {
		h.opts.OnDrain()
	}
	if h.opts.DrainDelay > 0 {
		logging.Info().Dur("drain_delay", h.opts.DrainDelay).Msg("HTTP server draining")
		time.Sleep(h.opts.DrainDelay)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	if err := <-served; err != nil {
		return fmt.Errorf("http server failed during shutdown: %w", err)
	}
	logging.Info().Msg("HTTP server stopped")
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (h *HTTPServerService) String() string { return "http-server" }
