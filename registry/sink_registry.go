package registry

import (
	"time"

	"github.com/jcnm/ipb-sub001/ipberr"
	"github.com/jcnm/ipb-sub001/point"
)

// SinkRegistry tracks output sinks: registration, health supervision, and
// load-balanced selection for the write path.
type SinkRegistry struct {
	table    *Table[*SinkDescriptor]
	balancer Balancer
	clock    point.Clock
}

// NewSinkRegistry constructs a SinkRegistry. The health-check worker is
// not started until Start is called.
func NewSinkRegistry(cfg Config) *SinkRegistry {
	if cfg.Clock == nil {
		cfg.Clock = point.SystemClock{}
	}
	r := &SinkRegistry{clock: cfg.Clock}
	r.table = NewTable[*SinkDescriptor](cfg, func(d *SinkDescriptor) bool {
		return d.Sink != nil && d.Sink.IsHealthy()
	})
	return r
}

// Start spins up the health-check worker.
func (r *SinkRegistry) Start() { r.table.Start() }

// Stop halts the health-check worker.
func (r *SinkRegistry) Stop() { r.table.Stop() }

// Register adds a sink under id. New entries start HealthUnknown until the
// first health-check sweep runs.
func (r *SinkRegistry) Register(id string, sink Sink, weight, priority int) error {
	d := &SinkDescriptor{
		Descriptor: Descriptor{
			ID:       id,
			Type:     "sink",
			Weight:   weight,
			Priority: priority,
			Enabled:  true,
		},
		Sink: sink,
	}
	return r.table.Register(id, d)
}

// Unregister removes a sink.
func (r *SinkRegistry) Unregister(id string) error { return r.table.Unregister(id) }

// Get returns the descriptor registered under id.
func (r *SinkRegistry) Get(id string) (*SinkDescriptor, bool) { return r.table.Get(id) }

// List returns every registered sink descriptor.
func (r *SinkRegistry) List() []*SinkDescriptor { return r.table.List() }

// Select applies strategy over the HEALTHY subset of ids (or the whole
// table when ids is empty) and returns the winning descriptor.
// Strategy Broadcast is rejected; call SelectAll for that case.
func (r *SinkRegistry) Select(strategy Strategy, ids []string, hashKey string) (*SinkDescriptor, error) {
	healthy := r.table.Healthy(ids)
	return Select(&r.balancer, strategy, healthy, hashKey)
}

// SelectAll returns every HEALTHY candidate among ids (or the whole table
// when ids is empty) — the BROADCAST strategy's selection set.
func (r *SinkRegistry) SelectAll(ids []string) []*SinkDescriptor {
	return SelectAll(r.table.Healthy(ids))
}

// WriteToSink writes sample to the sink registered under id, measuring
// latency and updating its counters. A write error increments the failed
// counter and is surfaced to the caller as a typed error. It does not change
// the descriptor's health: only the health-check probe (the sink's
// IsHealthy) sets that.
func (r *SinkRegistry) WriteToSink(id string, sample point.Sample) error {
	d, ok := r.table.Get(id)
	if !ok {
		return ipberr.New(ipberr.NotFound, "registry.write_to_sink", "no such sink: "+id)
	}
	if d.Sink == nil {
		return ipberr.New(ipberr.InvalidArgument, "registry.write_to_sink", "sink has no capability bound: "+id)
	}

	d.Counters.pending.AddAcqRel(1)
	defer d.Counters.pending.AddAcqRel(-1)

	start := r.clock.MonotonicNs()
	err := d.Sink.Write(sample)
	elapsed := time.Duration(r.clock.MonotonicNs() - start)

	if err != nil {
		d.Counters.recordFailure()
		return ipberr.Wrap(ipberr.Unavailable, "registry.write_to_sink", "sink write failed: "+id, err)
	}
	d.Counters.recordSuccess(elapsed, sampleByteSize(sample))
	return nil
}

// sampleByteSize approximates the wire size of a Sample for the bytes
// counter; the core never serializes samples itself, so this is a coarse
// accounting figure rather than an exact wire length.
func sampleByteSize(sample point.Sample) int {
	const fixedOverhead = 8 + 4 + 1 + 8 // protocol id + kind/quality + timestamp, roughly
	return fixedOverhead + len(sample.Address.String())
}
