package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jcnm/ipb-sub001/point"
)

// fakeClock lets tests drive MonotonicNs() deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, c.advance(0)) }

func (c *fakeClock) MonotonicNs() int64 { return c.advance(0) }

func (c *fakeClock) advance(delta int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += delta
	return c.now
}

func (c *fakeClock) set(ns int64) {
	c.mu.Lock()
	c.now = ns
	c.mu.Unlock()
}

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s := New(cfg)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestEDFOrdersByDeadline(t *testing.T) {
	clock := &fakeClock{}
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.Clock = clock
	s := newTestScheduler(t, cfg)

	var mu sync.Mutex
	var order []string
	record := func(name string) Work {
		return func() error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	done := make(chan struct{})
	var remaining int32 = 3

	onDone := func(*Task) {
		if atomic.AddInt32(&remaining, -1) == 0 {
			close(done)
		}
	}

	now := clock.MonotonicNs()
	// Submitted out of deadline order; worker should still run them
	// earliest-deadline-first.
	if _, err := s.submit("late", record("late"), now+30, PriorityNormal, onDone, 0, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.submit("early", record("early"), now+10, PriorityNormal, onDone, 0, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.submit("mid", record("mid"), now+20, PriorityNormal, onDone, 0, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// A task becomes due once its deadline is <= now; move the clock past
	// all three so the worker drains them.
	clock.set(now + 30)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tasks to complete")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"early", "mid", "late"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDeadlineMissStillCompletesWithFlagAndCallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1

	var missed int32
	cfg.OnDeadlineMiss = func(tk *Task) {
		atomic.AddInt32(&missed, 1)
	}
	s := newTestScheduler(t, cfg)

	done := make(chan *Task, 1)
	deadline := s.clock.MonotonicNs() + int64(time.Millisecond)
	_, err := s.SubmitWithCallback(func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}, deadline, func(tk *Task) {
		done <- tk
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var tk *Task
	select {
	case tk = <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion")
	}

	if tk.State() != StateCompleted {
		t.Fatalf("State() = %v, want %v", tk.State(), StateCompleted)
	}
	if tk.DeadlineMet() {
		t.Fatal("DeadlineMet() = true, want false")
	}
	if atomic.LoadInt32(&missed) != 1 {
		t.Fatalf("OnDeadlineMiss invoked %d times, want 1", missed)
	}
}

func TestCancelPendingTaskNeverRuns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1
	s := newTestScheduler(t, cfg)

	ran := make(chan struct{}, 1)
	far := s.clock.MonotonicNs() + int64(500*time.Millisecond)
	tk, err := s.Submit(func() error {
		ran <- struct{}{}
		return nil
	}, far)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := s.Cancel(tk.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if tk.State() != StateCancelled {
		t.Fatalf("State() = %v, want %v", tk.State(), StateCancelled)
	}

	select {
	case <-ran:
		t.Fatal("cancelled task executed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOverflowDropLowestEvictsLowerPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 0 // no workers: inspect the heap directly before anything drains
	cfg.MaxPending = 2
	cfg.Overflow = OverflowDropLowest
	s := New(cfg)
	// Do not Start(): keep tasks pending so capacity accounting is exact.

	now := s.clock.MonotonicNs()
	low, err := s.submit("low", func() error { return nil }, now+100, PriorityLow, nil, 0, 0)
	if err != nil {
		t.Fatalf("submit low: %v", err)
	}
	if _, err := s.submit("normal", func() error { return nil }, now+100, PriorityNormal, nil, 0, 0); err != nil {
		t.Fatalf("submit normal: %v", err)
	}
	if _, err := s.submit("high", func() error { return nil }, now+100, PriorityHigh, nil, 0, 0); err != nil {
		t.Fatalf("submit high: %v", err)
	}

	if low.State() != StateCancelled {
		t.Fatalf("low priority task State() = %v, want %v (evicted)", low.State(), StateCancelled)
	}
	if len(s.heap) != 2 {
		t.Fatalf("heap has %d entries, want 2", len(s.heap))
	}
}

func TestOverflowRejectFailsSubmit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 0
	cfg.MaxPending = 1
	cfg.Overflow = OverflowReject
	s := New(cfg)

	now := s.clock.MonotonicNs()
	if _, err := s.submit("first", func() error { return nil }, now+100, PriorityNormal, nil, 0, 0); err != nil {
		t.Fatalf("submit first: %v", err)
	}
	if _, err := s.submit("second", func() error { return nil }, now+100, PriorityNormal, nil, 0, 0); err == nil {
		t.Fatal("expected second submit to be rejected")
	}
	if s.stats.Rejected() != 1 {
		t.Fatalf("Rejected() = %d, want 1", s.stats.Rejected())
	}
}

func TestSubmitPeriodicReschedulesUntilCancelled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1
	s := newTestScheduler(t, cfg)

	var runs int32
	tk, err := s.SubmitPeriodic(func() error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, time.Millisecond)
	if err != nil {
		t.Fatalf("SubmitPeriodic: %v", err)
	}

	for atomic.LoadInt32(&runs) < 3 {
		time.Sleep(time.Millisecond)
	}
	s.CancelPeriodic(tk.PeriodicID)
	seenAfterCancel := atomic.LoadInt32(&runs)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&runs) > seenAfterCancel+1 {
		t.Fatalf("periodic task kept running after CancelPeriodic: %d -> %d", seenAfterCancel, runs)
	}
}

var _ point.Clock = (*fakeClock)(nil)
