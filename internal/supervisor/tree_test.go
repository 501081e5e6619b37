// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/cache"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitStarted(t *testing.T, svc *mockService) {
	t.Helper()
	select {
	case <-svc.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("service %s did not start", svc.name)
	}
}

func TestSupervisorTreeConstruction(t *testing.T) {
	t.Parallel()

	t.Run("keeps explicit config", func(t *testing.T) {
		t.Parallel()
		tree, err := NewSupervisorTree(quietLogger(), TreeConfig{
			FailureThreshold: 3,
			FailureDecay:     10,
			FailureBackoff:   time.Second,
			ShutdownTimeout:  2 * time.Second,
		})
		if err != nil {
			t.Fatalf("NewSupervisorTree: %v", err)
		}
		if tree.Root() == nil {
			t.Fatal("root supervisor is nil")
		}
		cfg := tree.Config()
		if cfg.FailureThreshold != 3 || cfg.FailureDecay != 10 || cfg.FailureBackoff != time.Second || cfg.ShutdownTimeout != 2*time.Second {
			t.Errorf("config = %+v", cfg)
		}
	})

	t.Run("fills zero values with defaults", func(t *testing.T) {
		t.Parallel()
		tree, err := NewSupervisorTree(nil, TreeConfig{})
		if err != nil {
			t.Fatalf("NewSupervisorTree: %v", err)
		}
		if got := tree.Config(); got != DefaultTreeConfig() {
			t.Errorf("config = %+v, want %+v", got, DefaultTreeConfig())
		}
	})
}

func TestSupervisorTreeLifecycle(t *testing.T) {
	t.Parallel()

	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	data := newMockService("mock-storage")
	messaging := newMockService("mock-pipeline")
	api := newMockService("mock-serving")
	tree.AddStorageService(data)
	tree.AddPipelineService(messaging)
	tree.AddServingService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*mockService{data, messaging, api} {
		waitStarted(t, svc)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ServeBackground result = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}

	report, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatalf("UnstoppedServiceReport: %v", err)
	}
	if len(report) != 0 {
		t.Errorf("unstopped services: %v", report)
	}
}

func TestSupervisorTreeStopsLayersInReverse(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	log := &stopLog{}
	storage := newMockService("event-store-gc")
	pipeline := newMockService("quality-recorder")
	serving := newMockService("http-server")
	for _, svc := range []*mockService{storage, pipeline, serving} {
		svc.stopLog = log
		svc.stopDelay = 20 * time.Millisecond
	}
	tree.AddStorageService(storage)
	tree.AddPipelineService(pipeline)
	tree.AddServingService(serving)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	for _, svc := range []*mockService{storage, pipeline, serving} {
		waitStarted(t, svc)
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}

	got := log.order()
	want := []string{"http-server", "quality-recorder", "event-store-gc"}
	if len(got) != len(want) {
		t.Fatalf("stop order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stop order = %v, want %v", got, want)
			break
		}
	}
}

func TestSupervisorTreeRestartsFailingService(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := newMockService("failing")
	failing.setFailCount(2)
	stable := newMockService("stable")

	tree.AddPipelineService(failing)
	tree.AddServingService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	defer func() {
		cancel()
		<-errCh
	}()

	deadline := time.Now().Add(2 * time.Second)
	for failing.startCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := failing.startCount(); got < 3 {
		t.Errorf("failing service starts = %d, want at least 3", got)
	}
	waitStarted(t, stable)
	if got := stable.startCount(); got != 1 {
		t.Errorf("stable service starts = %d, want 1", got)
	}
}

func TestSupervisorTreeRemoveAndWait(t *testing.T) {
	t.Parallel()

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svc := newMockService("removable")
	token := tree.AddPipelineService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	defer func() {
		cancel()
		<-errCh
	}()

	waitStarted(t, svc)
	if err := tree.RemoveAndWait(token, time.Second); err != nil {
		t.Fatalf("RemoveAndWait: %v", err)
	}
}

func TestSupervisorTreeRunsCacheSweeper(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var skew atomic.Int64
	store := cache.New(cache.Options{
		Name:          "supervised",
		SweepInterval: 10 * time.Millisecond,
		Clock:         func() time.Time { return now.Add(time.Duration(skew.Load())) },
	})
	store.Put("expired", 1, time.Minute)
	skew.Store(int64(time.Hour))

	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	tree.AddServingService(store)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	defer func() {
		cancel()
		<-errCh
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.Len() != 0 {
		t.Errorf("cache entries = %d after sweep, want 0", store.Len())
	}
}
