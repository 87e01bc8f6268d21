package registry

import (
	"sync"
	"testing"

	"github.com/jcnm/ipb-sub001/point"
)

// fakeSink is a minimal Sink for registry tests: configurable health and
// write outcome, counts calls.
type fakeSink struct {
	mu      sync.Mutex
	healthy bool
	failing bool
	writes  int
}

func (s *fakeSink) Initialize(any) error { return nil }
func (s *fakeSink) Start() error         { return nil }
func (s *fakeSink) Stop() error          { return nil }
func (s *fakeSink) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}
func (s *fakeSink) Metrics() Metrics { return Metrics{} }
func (s *fakeSink) Write(sample point.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failing {
		return errWrite
	}
	return nil
}
func (s *fakeSink) WriteBatch(samples []point.Sample) error {
	for _, sm := range samples {
		if err := s.Write(sm); err != nil {
			return err
		}
	}
	return nil
}

type writeErr struct{}

func (writeErr) Error() string { return "write failed" }

var errWrite = writeErr{}

func markHealthy(descs ...*SinkDescriptor) {
	for _, d := range descs {
		d.setHealth(HealthHealthy, 1)
	}
}

func TestSinkRegistryRoundRobinVisitsEachWithinNCalls(t *testing.T) {
	r := NewSinkRegistry(DefaultConfig())
	sinks := make([]*fakeSink, 3)
	for i := range sinks {
		sinks[i] = &fakeSink{healthy: true}
		if err := r.Register(string(rune('a'+i)), sinks[i], 1, 0); err != nil {
			t.Fatalf("Register: %v", err)
		}
		d, _ := r.Get(string(rune('a' + i)))
		markHealthy(d)
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		d, err := r.Select(RoundRobin, nil, "")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		seen[d.ID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("round robin visited %d distinct sinks in 3 calls, want 3", len(seen))
	}
}

func TestSinkRegistryWeightedRoundRobinRespectsWeights(t *testing.T) {
	r := NewSinkRegistry(DefaultConfig())
	a := &fakeSink{healthy: true}
	b := &fakeSink{healthy: true}
	if err := r.Register("a", a, 1, 0); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := r.Register("b", b, 3, 0); err != nil {
		t.Fatalf("Register b: %v", err)
	}
	da, _ := r.Get("a")
	db, _ := r.Get("b")
	markHealthy(da, db)

	counts := map[string]int{}
	for i := 0; i < 8; i++ {
		d, err := r.Select(WeightedRoundRobin, nil, "")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		counts[d.ID]++
	}
	if counts["a"] != 2 || counts["b"] != 6 {
		t.Fatalf("counts = %+v, want a=2 b=6", counts)
	}
}

func TestSinkRegistryHashBasedIsStableForEqualKeys(t *testing.T) {
	r := NewSinkRegistry(DefaultConfig())
	for _, id := range []string{"a", "b", "c"} {
		s := &fakeSink{healthy: true}
		if err := r.Register(id, s, 1, 0); err != nil {
			t.Fatalf("Register %s: %v", id, err)
		}
		d, _ := r.Get(id)
		markHealthy(d)
	}

	first, err := r.Select(HashBased, nil, "plant/line1/temp")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	for i := 0; i < 10; i++ {
		d, err := r.Select(HashBased, nil, "plant/line1/temp")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if d.ID != first.ID {
			t.Fatalf("hash-based selection drifted: %s then %s", first.ID, d.ID)
		}
	}
}

func TestSinkRegistryFailoverPicksLowestPriorityHealthy(t *testing.T) {
	r := NewSinkRegistry(DefaultConfig())
	primary := &fakeSink{healthy: true}
	backup := &fakeSink{healthy: true}
	if err := r.Register("primary", primary, 1, 0); err != nil {
		t.Fatalf("Register primary: %v", err)
	}
	if err := r.Register("backup", backup, 1, 10); err != nil {
		t.Fatalf("Register backup: %v", err)
	}
	dp, _ := r.Get("primary")
	db, _ := r.Get("backup")
	markHealthy(dp, db)

	d, err := r.Select(Failover, nil, "")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.ID != "primary" {
		t.Fatalf("Failover picked %s, want primary", d.ID)
	}

	dp.setHealth(HealthUnhealthy, 2)
	d, err = r.Select(Failover, nil, "")
	if err != nil {
		t.Fatalf("Select after primary down: %v", err)
	}
	if d.ID != "backup" {
		t.Fatalf("Failover picked %s after primary went unhealthy, want backup", d.ID)
	}
}

func TestSinkRegistrySelectExcludesUnhealthy(t *testing.T) {
	r := NewSinkRegistry(DefaultConfig())
	good := &fakeSink{healthy: true}
	bad := &fakeSink{healthy: false}
	if err := r.Register("good", good, 1, 0); err != nil {
		t.Fatalf("Register good: %v", err)
	}
	if err := r.Register("bad", bad, 1, 0); err != nil {
		t.Fatalf("Register bad: %v", err)
	}
	dgood, _ := r.Get("good")
	dbad, _ := r.Get("bad")
	markHealthy(dgood)
	dbad.setHealth(HealthUnhealthy, 1)

	for i := 0; i < 5; i++ {
		d, err := r.Select(RoundRobin, nil, "")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if d.ID != "good" {
			t.Fatalf("Select returned unhealthy sink %s", d.ID)
		}
	}
}

func TestWriteToSinkUpdatesCountersOnSuccessAndFailure(t *testing.T) {
	r := NewSinkRegistry(DefaultConfig())
	s := &fakeSink{healthy: true}
	if err := r.Register("s", s, 1, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sample, err := point.NewSample("plant/line1/temp", 1, point.DoubleValue(1), point.QualityGood, 1)
	if err != nil {
		t.Fatalf("NewSample: %v", err)
	}
	if err := r.WriteToSink("s", sample); err != nil {
		t.Fatalf("WriteToSink: %v", err)
	}
	d, _ := r.Get("s")
	if d.Counters.Sent() != 1 {
		t.Fatalf("Sent() = %d, want 1", d.Counters.Sent())
	}

	s.mu.Lock()
	s.failing = true
	s.mu.Unlock()

	if err := r.WriteToSink("s", sample); err == nil {
		t.Fatal("expected write error to propagate")
	}
	if d.Counters.Failed() != 1 {
		t.Fatalf("Failed() = %d, want 1", d.Counters.Failed())
	}
}

func TestSelectAllBroadcastsToEveryHealthyCandidate(t *testing.T) {
	r := NewSinkRegistry(DefaultConfig())
	for _, id := range []string{"a", "b"} {
		s := &fakeSink{healthy: true}
		if err := r.Register(id, s, 1, 0); err != nil {
			t.Fatalf("Register %s: %v", id, err)
		}
		d, _ := r.Get(id)
		markHealthy(d)
	}

	all := r.SelectAll(nil)
	if len(all) != 2 {
		t.Fatalf("SelectAll returned %d candidates, want 2", len(all))
	}
}
