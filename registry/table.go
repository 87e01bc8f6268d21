package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/jcnm/ipb-sub001/ipberr"
	"github.com/jcnm/ipb-sub001/point"
)

// entry is the constraint every descriptor pointer type Table works over
// must satisfy: access to the shared Descriptor fields health-checking
// and load balancing need, regardless of whether it wraps a Sink or a
// Scoop.
type entry interface {
	base() *Descriptor
}

func (d *SinkDescriptor) base() *Descriptor  { return &d.Descriptor }
func (d *ScoopDescriptor) base() *Descriptor { return &d.Descriptor }

// Table is the generic registry core shared by SinkRegistry and
// ScoopRegistry: a map from id to descriptor guarded by a
// reader-writer lock, plus a health-check goroutine that probes every
// enabled entry on a fixed interval.
type Table[D entry] struct {
	cfg   Config
	clock point.Clock
	probe func(D) bool

	mu      sync.RWMutex
	entries map[string]D

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewTable constructs a Table. probe is called for each entry on every
// health-check sweep and should perform the capability's own IsHealthy
// check (a Sink's or Scoop's, depending on which this Table holds).
func NewTable[D entry](cfg Config, probe func(D) bool) *Table[D] {
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 5 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = point.SystemClock{}
	}
	return &Table[D]{
		cfg:     cfg,
		clock:   cfg.Clock,
		probe:   probe,
		entries: make(map[string]D),
		stop:    make(chan struct{}),
	}
}

// Register adds a new descriptor. Returns AlreadyExists if id is taken.
func (t *Table[D]) Register(id string, d D) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		return ipberr.New(ipberr.AlreadyExists, "registry.register", "id already registered: "+id)
	}
	t.entries[id] = d
	return nil
}

// Unregister removes a descriptor. Returns NotFound if id is unknown.
func (t *Table[D]) Unregister(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return ipberr.New(ipberr.NotFound, "registry.unregister", "no such id: "+id)
	}
	delete(t.entries, id)
	return nil
}

// Get returns the descriptor registered under id.
func (t *Table[D]) Get(id string) (D, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.entries[id]
	return d, ok
}

// List returns every registered descriptor in unspecified order.
func (t *Table[D]) List() []D {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]D, 0, len(t.entries))
	for _, d := range t.entries {
		out = append(out, d)
	}
	return out
}

// Healthy returns every registered, enabled descriptor currently in
// HealthHealthy state, in the order the ids slice names. A nil or empty
// ids slice selects candidates from the whole table, ordered by id.
func (t *Table[D]) Healthy(ids []string) []D {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var candidates []D
	if len(ids) == 0 {
		for _, d := range t.entries {
			candidates = append(candidates, d)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].base().ID < candidates[j].base().ID })
	} else {
		for _, id := range ids {
			if d, ok := t.entries[id]; ok {
				candidates = append(candidates, d)
			}
		}
	}
	out := make([]D, 0, len(candidates))
	for _, d := range candidates {
		b := d.base()
		if b.Enabled && b.Health() == HealthHealthy {
			out = append(out, d)
		}
	}
	return out
}

// Start spins up the health-check worker.
func (t *Table[D]) Start() {
	t.wg.Add(1)
	go t.healthCheckLoop()
}

// Stop halts the health-check worker and waits for it to exit.
func (t *Table[D]) Stop() {
	close(t.stop)
	t.wg.Wait()
}

func (t *Table[D]) healthCheckLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Table[D]) sweep() {
	t.mu.RLock()
	snapshot := make([]D, 0, len(t.entries))
	for _, d := range t.entries {
		snapshot = append(snapshot, d)
	}
	t.mu.RUnlock()

	now := t.clock.MonotonicNs()
	for _, d := range snapshot {
		b := d.base()
		if !b.Enabled {
			continue
		}
		ok := t.probe(d)
		b.recordProbe(ok, t.cfg.FailureThreshold, now)
	}
}
