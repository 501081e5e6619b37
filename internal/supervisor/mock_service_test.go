// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errMockFailure = errors.New("mock failure")

// mockService is a suture.Service that can be told to fail its first N runs.
type mockService struct {
	name      string
	starts    atomic.Int32
	failCount atomic.Int32
	started   chan struct{}

	// stopLog, when set, records the service name once Serve returns.
	stopLog *stopLog
	// stopDelay holds Serve open after cancellation.
	stopDelay time.Duration
}

// stopLog records the order in which services stop.
type stopLog struct {
	mu    sync.Mutex
	names []string
}

func (l *stopLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *stopLog) order() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func newMockService(name string) *mockService {
	return &mockService{name: name, started: make(chan struct{}, 16)}
}

func (m *mockService) setFailCount(n int32) { m.failCount.Store(n) }

func (m *mockService) startCount() int { return int(m.starts.Load()) }

func (m *mockService) Serve(ctx context.Context) error {
	m.starts.Add(1)
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.failCount.Load() > 0 {
		m.failCount.Add(-1)
		return errMockFailure
	}
	<-ctx.Done()
	if m.stopDelay > 0 {
		time.Sleep(m.stopDelay)
	}
	if m.stopLog != nil {
		m.stopLog.add(m.name)
	}
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }
