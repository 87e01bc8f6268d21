package scheduler

import (
	"container/heap"
	"runtime"
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/jcnm/ipb-sub001/ipberr"
	"github.com/jcnm/ipb-sub001/point"
)

// OverflowPolicy decides what Submit does when the heap is already at
// Config.MaxPending.
type OverflowPolicy uint8

const (
	// OverflowReject fails the submit outright.
	OverflowReject OverflowPolicy = iota
	// OverflowDropLowest evicts the lowest-priority pending task (ties
	// broken toward the furthest deadline) to make room.
	OverflowDropLowest
	// OverflowDropFurthest evicts the pending task with the furthest
	// deadline to make room.
	OverflowDropFurthest
)

// State is the scheduler's lifecycle state.
type State uint32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config controls a Scheduler instance.
type Config struct {
	// Workers is the worker goroutine count. Defaults to
	// runtime.NumCPU() ("hardware concurrency").
	Workers int
	// MaxPending bounds the heap size; 0 means unbounded. Overflow beyond
	// this triggers OverflowPolicy.
	MaxPending int
	// Overflow selects the eviction policy on a full heap.
	Overflow OverflowPolicy
	// Clock supplies monotonic deadlines. Defaults to point.SystemClock.
	Clock point.Clock
	// OnDeadlineMiss is invoked, in addition to a task's own OnComplete,
	// for any executed task whose terminal state has DeadlineMet() == false.
	OnDeadlineMiss OnComplete
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    runtime.NumCPU(),
		MaxPending: 0,
		Overflow:   OverflowReject,
		Clock:      point.SystemClock{},
	}
}

// Stats tracks scheduler-wide counters.
type Stats struct {
	submitted       atomix.Uint64
	rejected        atomix.Uint64
	completed       atomix.Uint64
	failed          atomix.Uint64
	cancelled       atomix.Uint64
	deadlinesMet    atomix.Uint64
	deadlinesMissed atomix.Uint64
}

func (s *Stats) Submitted() uint64       { return s.submitted.LoadAcquire() }
func (s *Stats) Rejected() uint64        { return s.rejected.LoadAcquire() }
func (s *Stats) Completed() uint64       { return s.completed.LoadAcquire() }
func (s *Stats) Failed() uint64          { return s.failed.LoadAcquire() }
func (s *Stats) Cancelled() uint64       { return s.cancelled.LoadAcquire() }
func (s *Stats) DeadlinesMet() uint64    { return s.deadlinesMet.LoadAcquire() }
func (s *Stats) DeadlinesMissed() uint64 { return s.deadlinesMissed.LoadAcquire() }

// Scheduler is the earliest-deadline-first task scheduler: a single
// mutex-guarded binary heap drained by Config.Workers goroutines, each
// woken by a condition variable on submission or on the current head's
// deadline expiring.
type Scheduler struct {
	cfg   Config
	clock point.Clock

	mu   sync.Mutex
	cond *sync.Cond
	heap taskHeap
	byID map[uint64]*Task

	idGen      atomix.Uint64
	periodicID atomix.Uint64
	cancelled  map[uint64]bool // periodic ids cancelled mid-flight

	state atomix.Uint64
	stop  chan struct{}
	wg    sync.WaitGroup

	stats Stats
}

// New constructs a Scheduler in the Created state.
func New(cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Clock == nil {
		cfg.Clock = point.SystemClock{}
	}
	s := &Scheduler{
		cfg:       cfg,
		clock:     cfg.Clock,
		byID:      make(map[uint64]*Task),
		cancelled: make(map[uint64]bool),
		stop:      make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.LoadAcquire()) }

// Stats returns the scheduler's running counters.
func (s *Scheduler) Stats() *Stats { return &s.stats }

// Start spins up the worker pool.
func (s *Scheduler) Start() error {
	if !s.state.CompareAndSwapAcqRel(uint64(StateCreated), uint64(StateRunning)) {
		return ipberr.New(ipberr.InvalidArgument, "scheduler.start", "scheduler is not in the created state")
	}
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.workerLoop()
	}
	return nil
}

// Stop transitions Running -> Stopping: submissions are rejected
// thereafter, in-flight tasks run to completion, pending tasks are left
// for workers to drain (they observe the closed stop channel only between
// tasks), and once every worker has exited the state flips to Stopped.
func (s *Scheduler) Stop() error {
	if !s.state.CompareAndSwapAcqRel(uint64(StateRunning), uint64(StateStopping)) {
		return ipberr.New(ipberr.InvalidArgument, "scheduler.stop", "scheduler is not running")
	}
	close(s.stop)
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
	s.state.StoreRelease(uint64(StateStopped))
	return nil
}

func (s *Scheduler) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Submit schedules work with an absolute deadline (monotonic nanoseconds,
// comparable with Config.Clock.MonotonicNs()).
func (s *Scheduler) Submit(work Work, deadlineNs int64) (*Task, error) {
	return s.submit("", work, deadlineNs, PriorityNormal, nil, 0, 0)
}

// SubmitAfter schedules work with a deadline offset from now.
func (s *Scheduler) SubmitAfter(work Work, offset time.Duration) (*Task, error) {
	return s.submit("", work, s.clock.MonotonicNs()+int64(offset), PriorityNormal, nil, 0, 0)
}

// SubmitWithPriority is Submit with an explicit tie-break priority instead
// of the PriorityNormal default.
func (s *Scheduler) SubmitWithPriority(work Work, deadlineNs int64, priority Priority) (*Task, error) {
	return s.submit("", work, deadlineNs, priority, nil, 0, 0)
}

// SubmitNamed is Submit with a diagnostic name attached.
func (s *Scheduler) SubmitNamed(name string, work Work, deadlineNs int64) (*Task, error) {
	return s.submit(name, work, deadlineNs, PriorityNormal, nil, 0, 0)
}

// SubmitWithCallback is Submit plus a completion callback.
func (s *Scheduler) SubmitWithCallback(work Work, deadlineNs int64, onComplete OnComplete) (*Task, error) {
	return s.submit("", work, deadlineNs, PriorityNormal, onComplete, 0, 0)
}

// SubmitPeriodic schedules work to run every period, re-enqueuing itself at
// completion with deadline last_deadline + period. Returns the first
// instance; CancelPeriodic(periodicID) (via the returned Task's PeriodicID)
// stops future instances.
func (s *Scheduler) SubmitPeriodic(work Work, period time.Duration) (*Task, error) {
	periodicID := s.periodicID.AddAcqRel(1)
	deadline := s.clock.MonotonicNs() + int64(period)
	return s.submit("", work, deadline, PriorityNormal, nil, int64(period), periodicID)
}

func (s *Scheduler) submit(name string, work Work, deadlineNs int64, priority Priority, onComplete OnComplete, periodNs int64, periodicID uint64) (*Task, error) {
	if s.State() != StateRunning && s.State() != StateCreated {
		return nil, ipberr.New(ipberr.Cancelled, "scheduler.submit", "scheduler is stopping or stopped")
	}
	if work == nil {
		return nil, ipberr.New(ipberr.InvalidArgument, "scheduler.submit", "work must not be nil")
	}

	t := &Task{
		ID:         s.idGen.AddAcqRel(1),
		Name:       name,
		DeadlineNs: deadlineNs,
		ArrivalNs:  s.clock.MonotonicNs(),
		Priority:   priority,
		Work:       work,
		OnComplete: onComplete,
		PeriodNs:   periodNs,
		PeriodicID: periodicID,
	}

	s.mu.Lock()
	if s.cfg.MaxPending > 0 && len(s.heap) >= s.cfg.MaxPending {
		if !s.evictLocked() {
			s.mu.Unlock()
			s.stats.rejected.AddAcqRel(1)
			return nil, ipberr.New(ipberr.QueueFull, "scheduler.submit", "scheduler at max pending capacity")
		}
	}
	heap.Push(&s.heap, t)
	s.byID[t.ID] = t
	s.stats.submitted.AddAcqRel(1)
	s.cond.Broadcast()
	s.mu.Unlock()
	return t, nil
}

// evictLocked applies Config.Overflow to make room for one more task.
// Caller holds s.mu. Returns false if OverflowReject (or the heap is
// somehow empty) leaves no room.
func (s *Scheduler) evictLocked() bool {
	if s.cfg.Overflow == OverflowReject || len(s.heap) == 0 {
		return s.cfg.Overflow != OverflowReject
	}
	victimIdx := 0
	for i := 1; i < len(s.heap); i++ {
		switch s.cfg.Overflow {
		case OverflowDropLowest:
			if s.heap[i].Priority < s.heap[victimIdx].Priority ||
				(s.heap[i].Priority == s.heap[victimIdx].Priority && s.heap[i].DeadlineNs > s.heap[victimIdx].DeadlineNs) {
				victimIdx = i
			}
		case OverflowDropFurthest:
			if s.heap[i].DeadlineNs > s.heap[victimIdx].DeadlineNs {
				victimIdx = i
			}
		}
	}
	victim := heap.Remove(&s.heap, victimIdx).(*Task)
	delete(s.byID, victim.ID)
	victim.setState(StateCancelled)
	s.stats.cancelled.AddAcqRel(1)
	if victim.OnComplete != nil {
		victim.OnComplete(victim)
	}
	return true
}

// Cancel removes a PENDING task from the heap and transitions it to
// Cancelled. A task already RUNNING runs to completion; its terminal
// state is only overwritten if it was still somehow Pending, guarding
// against a concurrent dequeue-and-cancel race.
func (s *Scheduler) Cancel(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return ipberr.New(ipberr.NotFound, "scheduler.cancel", "no such task")
	}
	if !t.casPending(StateCancelled) {
		return nil // already running or terminal: nothing to do
	}
	if t.heapIndex >= 0 && t.heapIndex < len(s.heap) && s.heap[t.heapIndex] == t {
		heap.Remove(&s.heap, t.heapIndex)
	}
	delete(s.byID, id)
	s.stats.cancelled.AddAcqRel(1)
	return nil
}

// CancelPeriodic stops future re-enqueues of a periodic task without
// disturbing its currently-pending or currently-running instance.
func (s *Scheduler) CancelPeriodic(periodicID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled[periodicID] = true
}

func (s *Scheduler) periodicCancelled(periodicID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[periodicID]
}

// Task looks up a previously submitted task by id.
func (s *Scheduler) Task(id uint64) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	return t, ok
}

// workerLoop implements the peek/wait/pop/execute cycle. The condition
// variable has no native timed wait in Go, so a
// head-deadline timer is armed alongside it and torn down whenever the
// loop re-checks the heap — a new submission with an earlier deadline
// wakes the waiter via the same Broadcast path Submit already uses.
func (s *Scheduler) workerLoop() {
	defer s.wg.Done()
	for {
		task, ok := s.next()
		if !ok {
			return
		}
		s.execute(task)
	}
}

func (s *Scheduler) next() (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if len(s.heap) == 0 {
			if s.stopping() {
				return nil, false
			}
			s.cond.Wait()
			continue
		}
		head := s.heap[0]
		now := s.clock.MonotonicNs()
		if head.DeadlineNs <= now {
			t := heap.Pop(&s.heap).(*Task)
			delete(s.byID, t.ID)
			if !t.casPending(StateRunning) {
				continue // lost a race with Cancel; pick the next head
			}
			return t, true
		}
		if s.stopping() {
			// Drain whatever is left without waiting out future
			// deadlines: execute it now rather than discard it.
			t := heap.Pop(&s.heap).(*Task)
			delete(s.byID, t.ID)
			if !t.casPending(StateRunning) {
				continue
			}
			return t, true
		}

		wait := time.Duration(head.DeadlineNs - now)
		timer := time.AfterFunc(wait, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		s.cond.Wait()
		timer.Stop()
	}
}

func (s *Scheduler) execute(t *Task) {
	start := s.clock.MonotonicNs()
	err := t.Work()
	end := s.clock.MonotonicNs()
	t.recordRun(start, end, err)

	if err != nil {
		s.stats.failed.AddAcqRel(1)
	} else {
		s.stats.completed.AddAcqRel(1)
	}
	if t.DeadlineMet() {
		s.stats.deadlinesMet.AddAcqRel(1)
	} else {
		s.stats.deadlinesMissed.AddAcqRel(1)
		if s.cfg.OnDeadlineMiss != nil {
			s.cfg.OnDeadlineMiss(t)
		}
	}
	if t.OnComplete != nil {
		t.OnComplete(t)
	}

	if t.PeriodNs > 0 && !s.periodicCancelled(t.PeriodicID) {
		next := &Task{
			ID:         s.idGen.AddAcqRel(1),
			Name:       t.Name,
			DeadlineNs: t.DeadlineNs + t.PeriodNs,
			ArrivalNs:  s.clock.MonotonicNs(),
			Priority:   t.Priority,
			Work:       t.Work,
			OnComplete: t.OnComplete,
			PeriodNs:   t.PeriodNs,
			PeriodicID: t.PeriodicID,
		}
		s.mu.Lock()
		if s.State() == StateRunning {
			heap.Push(&s.heap, next)
			s.byID[next.ID] = next
			s.stats.submitted.AddAcqRel(1)
			s.cond.Broadcast()
		}
		s.mu.Unlock()
	}
}
