// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds configuration for the supervisor tree.
type TreeConfig struct {
	// FailureThreshold is the number of failures before backoff is triggered.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Layer names, in start order. Shutdown runs in the reverse order.
const (
	StorageLayer  = "storage"
	PipelineLayer = "pipeline"
	ServingLayer  = "serving"
)

type layer struct {
	name  string
	sup   *suture.Supervisor
	token suture.ServiceToken
}

// SupervisorTree is the process supervision hierarchy for Marquee.
//
// Layers:
//   - storage: event store garbage collection and the peer index sweeper
//   - pipeline: the event recorder and topic followers
//   - serving: the result cache sweeper and the HTTP server
//
// A crashing recorder restarts inside its own layer and never takes the
// HTTP server down with it. On shutdown the serving layer stops first, so no
// request can record an impression after the recorder has drained, and the
// storage layer stops last.
type SupervisorTree struct {
	root   *suture.Supervisor
	layers []*layer // storage, pipeline, serving
	logger *slog.Logger
	config TreeConfig
}

// NewSupervisorTree creates a supervisor tree. Zero config fields take the
// DefaultTreeConfig values.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}
	spec := func(hook suture.EventHook) suture.Spec {
		return suture.Spec{
			EventHook:        hook,
			FailureThreshold: config.FailureThreshold,
			FailureDecay:     config.FailureDecay,
			FailureBackoff:   config.FailureBackoff,
			Timeout:          config.ShutdownTimeout,
		}
	}

	t := &SupervisorTree{
		// Layers inherit the root's hook when added.
		root:   suture.New("marquee", spec(handler.MustHook())),
		logger: logger,
		config: config,
	}
	for _, name := range []string{StorageLayer, PipelineLayer, ServingLayer} {
		l := &layer{name: name, sup: suture.New(name, spec(nil))}
		l.token = t.root.Add(l.sup)
		t.layers = append(t.layers, l)
	}
	return t, nil
}

// Root returns the root supervisor.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// Config returns the effective configuration after defaults.
func (t *SupervisorTree) Config() TreeConfig {
	return t.config
}

// AddStorageService adds a service that owns persisted state, such as the
// event store's garbage collector.
func (t *SupervisorTree) AddStorageService(svc suture.Service) suture.ServiceToken {
	return t.add(t.layers[0], svc)
}

// AddPipelineService adds a service that moves events, such as the recorder.
func (t *SupervisorTree) AddPipelineService(svc suture.Service) suture.ServiceToken {
	return t.add(t.layers[1], svc)
}

// AddServingService adds a service on the request path.
func (t *SupervisorTree) AddServingService(svc suture.Service) suture.ServiceToken {
	return t.add(t.layers[2], svc)
}

func (t *SupervisorTree) add(l *layer, svc suture.Service) suture.ServiceToken {
	t.logger.Debug("adding service", "layer", l.name, "service", serviceName(svc))
	return l.sup.Add(svc)
}

// Serve runs the tree until ctx is canceled, then stops it layer by layer.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return <-t.ServeBackground(ctx)
}

// ServeBackground runs the tree in a goroutine. When ctx is canceled the
// layers are stopped serving first, then pipeline, then storage, each given
// ShutdownTimeout. The returned channel receives the result exactly once.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	rootCtx, cancel := context.WithCancel(context.Background())
	rootErr := t.root.ServeBackground(rootCtx)

	out := make(chan error, 1)
	go func() {
		defer cancel()
		select {
		case err := <-rootErr:
			out <- err
			return
		case <-ctx.Done():
		}

		for i := len(t.layers) - 1; i >= 0; i-- {
			l := t.layers[i]
			if err := t.root.RemoveAndWait(l.token, t.config.ShutdownTimeout); err != nil {
				t.logger.Warn("layer did not stop in time", "layer", l.name, "error", err)
				continue
			}
			t.logger.Debug("layer stopped", "layer", l.name)
		}
		cancel()
		<-rootErr
		out <- ctx.Err()
	}()
	return out
}

// UnstoppedServiceReport lists services that did not stop within
// ShutdownTimeout. Call it only after Serve has returned.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	var report []suture.UnstoppedService
	for _, l := range t.layers {
		r, err := l.sup.UnstoppedServiceReport()
		if err != nil {
			return report, err
		}
		report = append(report, r...)
	}
	return report, nil
}

// RemoveAndWait removes a service and waits up to timeout for it to stop.
// The token must come from one of the Add methods.
func (t *SupervisorTree) RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error {
	err := suture.ErrWrongSupervisor
	for _, l := range t.layers {
		if err = l.sup.RemoveAndWait(token, timeout); !errors.Is(err, suture.ErrWrongSupervisor) {
			return err
		}
	}
	return err
}

func serviceName(svc suture.Service) string {
	if s, ok := svc.(interface{ String() string }); ok {
		return s.String()
	}
	return "unnamed"
}
