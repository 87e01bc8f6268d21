package registry

import (
	"github.com/jcnm/ipb-sub001/ipberr"
	"github.com/jcnm/ipb-sub001/point"
)

// ScoopRegistry tracks input sources: registration, subscription
// management, and health supervision. Symmetric to SinkRegistry; it does
// not select among scoops the way a sink write does, since a scoop emits
// samples on its own schedule rather than being called on demand.
type ScoopRegistry struct {
	table *Table[*ScoopDescriptor]
}

// NewScoopRegistry constructs a ScoopRegistry. The health-check worker is
// not started until Start is called.
func NewScoopRegistry(cfg Config) *ScoopRegistry {
	r := &ScoopRegistry{}
	r.table = NewTable[*ScoopDescriptor](cfg, func(d *ScoopDescriptor) bool {
		return d.Scoop != nil && d.Scoop.IsHealthy()
	})
	return r
}

// Start spins up the health-check worker.
func (r *ScoopRegistry) Start() { r.table.Start() }

// Stop halts the health-check worker.
func (r *ScoopRegistry) Stop() { r.table.Stop() }

// Register adds a scoop under id.
func (r *ScoopRegistry) Register(id string, scoop Scoop, strategy ReadStrategy) error {
	d := &ScoopDescriptor{
		Descriptor: Descriptor{
			ID:      id,
			Type:    "scoop",
			Enabled: true,
		},
		Scoop:    scoop,
		Strategy: strategy,
	}
	return r.table.Register(id, d)
}

// Unregister removes a scoop.
func (r *ScoopRegistry) Unregister(id string) error { return r.table.Unregister(id) }

// Get returns the descriptor registered under id.
func (r *ScoopRegistry) Get(id string) (*ScoopDescriptor, bool) { return r.table.Get(id) }

// List returns every registered scoop descriptor.
func (r *ScoopRegistry) List() []*ScoopDescriptor { return r.table.List() }

// Subscribe asks the scoop registered under id to subscribe to
// topicPattern, recording a failure against its counters if the scoop
// rejects the subscription.
func (r *ScoopRegistry) Subscribe(id, topicPattern string, callback func(point.Sample)) (Subscription, error) {
	d, ok := r.table.Get(id)
	if !ok {
		return nil, ipberr.New(ipberr.NotFound, "registry.subscribe", "no such scoop: "+id)
	}
	if d.Scoop == nil {
		return nil, ipberr.New(ipberr.InvalidArgument, "registry.subscribe", "scoop has no capability bound: "+id)
	}
	sub, err := d.Scoop.Subscribe(topicPattern, callback)
	if err != nil {
		d.Counters.recordFailure()
		return nil, ipberr.Wrap(ipberr.Unavailable, "registry.subscribe", "scoop subscribe failed: "+id, err)
	}
	return sub, nil
}
