// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/propdesk/pulse/internal/logging"
)

// signalService reports each Serve invocation and blocks until canceled.
type signalService struct {
	starts  atomic.Int64
	started chan struct{}
}

func newSignalService() *signalService {
	return &signalService{started: make(chan struct{}, 16)}
}

func (s *signalService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	s.started <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeAppliesDefaults(t *testing.T) {
	t.Parallel()

	tree := NewTree(logging.NewSlogLogger(), TreeConfig{})
	def := DefaultTreeConfig()
	if tree.config != def {
		t.Errorf("config = %+v, want defaults %+v", tree.config, def)
	}
}

func TestTreeRunsAndStopsServices(t *testing.T) {
	t.Parallel()

	tree := NewTree(logging.NewSlogLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svc := newSignalService()
	tree.AddPipelineService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := tree.ServeBackground(ctx)

	select {
	case <-svc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("service never started under supervision")
	}

	cancel()
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tree stopped with %v, want nil or context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree never stopped after cancellation")
	}
}

func TestTreeRestartsCrashedService(t *testing.T) {
	t.Parallel()

	tree := NewTree(logging.NewSlogLogger(), TreeConfig{
		FailureThreshold: 100,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	var starts atomic.Int64
	crashOnce := &crashingService{starts: &starts}
	tree.AddPipelineService(crashOnce)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := tree.ServeBackground(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if starts.Load() >= 2 {
			cancel()
			<-errChan
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("crashed service was never restarted")
}

// crashingService fails its first run and blocks on subsequent runs.
type crashingService struct {
	starts *atomic.Int64
}

func (s *crashingService) Serve(ctx context.Context) error {
	if s.starts.Add(1) == 1 {
		return errors.New("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}
