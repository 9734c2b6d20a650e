package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())

	id, err := s.AddJob("outreach", "0 9 * * 1-5", func() {})
	if err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	next := s.Next(id)
	if next.IsZero() || !next.After(time.Now()) {
		t.Errorf("expected a future next run, got %v", next)
	}
	if next.Hour() != 9 || next.Minute() != 0 {
		t.Errorf("expected 09:00 activation, got %v", next)
	}

	s.Remove(id)
	if !s.Next(id).IsZero() {
		t.Error("expected removed job to have no next run")
	}
}

func TestSchedulerRejectsInvalidExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())

	for _, expr := range []string{"", "every day", "61 * * * *", "* * * * * *"} {
		if _, err := s.AddJob("bad", expr, func() {}); err == nil {
			t.Errorf("AddJob(%q) expected error", expr)
		}
	}
}

func TestSchedulerRunsDescriptorJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop(context.Background())

	var runs atomic.Int32
	if _, err := s.AddJob("tick", "@every 1s", func() { runs.Add(1) }); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("expected job to run within 3s")
	}
}

func TestSchedulerStopWaitsForContext(t *testing.T) {
	s := NewScheduler()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}
