package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"booking-platform/internal/calls"
)

type countingSweeper struct {
	runs atomic.Int32
	err  error
}

func (s *countingSweeper) Run(ctx context.Context) (calls.SweepResult, error) {
	s.runs.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return calls.SweepResult{}, errors.New("expected a bounded context")
	}
	return calls.SweepResult{}, s.err
}

func TestCronManager_RejectsBadSchedule(t *testing.T) {
	cm := NewCronManager(nil)
	if err := cm.AddCallSweep("not a schedule", &countingSweeper{}, time.Second); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}

func TestCronManager_RunsSweep(t *testing.T) {
	var buf bytes.Buffer
	cm := NewCronManager(slog.New(slog.NewJSONHandler(&buf, nil)))
	sw := &countingSweeper{}
	if err := cm.AddCallSweep("@every 1s", sw, time.Second); err != nil {
		t.Fatalf("add: %v", err)
	}
	cm.Start()
	defer cm.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for sw.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if sw.runs.Load() == 0 {
		t.Fatalf("expected sweep to run")
	}
}
