package bus

import (
	"sync"

	"code.hybscloud.com/atomix"

	"github.com/jcnm/ipb-sub001/lfq"
)

// ChannelStats tracks per-topic counters.
type ChannelStats struct {
	published    atomix.Uint64
	delivered    atomix.Uint64
	dropped      atomix.Uint64
	overflows    atomix.Uint64
	noSubscriber atomix.Uint64
}

func (s *ChannelStats) Published() uint64    { return s.published.LoadAcquire() }
func (s *ChannelStats) Delivered() uint64    { return s.delivered.LoadAcquire() }
func (s *ChannelStats) Dropped() uint64      { return s.dropped.LoadAcquire() }
func (s *ChannelStats) Overflows() uint64    { return s.overflows.LoadAcquire() }
func (s *ChannelStats) NoSubscriber() uint64 { return s.noSubscriber.LoadAcquire() }

// Channel is a single topic's ring buffer plus its subscriber list. It
// wraps an lfq.MPMC[Envelope], since a topic may have any number of
// publishing scoops and any number of draining dispatcher workers.
type Channel struct {
	Topic string
	ring  *lfq.MPMC[Envelope]
	drop  lfq.DropPolicy
	stats ChannelStats
	seq   atomix.Uint64

	// pendingRealtime counts REALTIME envelopes currently sitting in the
	// ring. The dispatcher uses it to service this channel ahead of the
	// plain round-robin order, approximating a "head envelope is
	// REALTIME" priority override without requiring a peek operation the
	// underlying MPMC ring does not support.
	pendingRealtime atomix.Int64

	subMu sync.RWMutex
	subs  map[uint64]*Subscription
}

// newChannel constructs a Channel with the given ring capacity and overflow
// policy.
func newChannel(topic string, capacity int, drop lfq.DropPolicy) *Channel {
	return &Channel{
		Topic: topic,
		ring:  lfq.NewMPMC[Envelope](capacity),
		drop:  drop,
		subs:  make(map[uint64]*Subscription),
	}
}

// NextSequence returns the next envelope sequence number for this channel.
// Sequence numbers are scoped to the channel rather than to an individual
// publisher handle, since the bus does not model publisher identity; this
// still gives subscribers a monotonically increasing counter to detect
// gaps within one topic.
func (c *Channel) NextSequence() uint64 { return c.seq.AddAcqRel(1) }

// Publish enqueues env according to the channel's overflow policy. Returns
// whether the envelope was retained, whether an existing entry was dropped
// to make room, and an error when the policy itself rejects the write
// (Block/Reject on overflow).
func (c *Channel) Publish(env Envelope) (retained, dropped bool, err error) {
	retained, dropped, err = lfq.EnqueueWithPolicy(c.ring, &env, c.drop)
	c.stats.published.AddAcqRel(1)
	if dropped {
		c.stats.dropped.AddAcqRel(1)
		c.stats.overflows.AddAcqRel(1)
	}
	if retained && env.Priority == PriorityRealtime {
		c.pendingRealtime.AddAcqRel(1)
	}
	return retained, dropped, err
}

// Drain removes and returns one envelope, or (zero, false) if the channel
// is currently empty.
func (c *Channel) Drain() (Envelope, bool) {
	env, err := c.ring.Dequeue()
	if err != nil {
		return Envelope{}, false
	}
	c.stats.delivered.AddAcqRel(1)
	if env.Priority == PriorityRealtime {
		c.pendingRealtime.AddAcqRel(-1)
	}
	return env, true
}

// HasPendingRealtime reports whether a REALTIME envelope is currently
// queued, per the dispatcher's priority-override rule.
func (c *Channel) HasPendingRealtime() bool { return c.pendingRealtime.LoadAcquire() > 0 }

// Pending estimates the number of envelopes still awaiting dispatch. It is
// a best-effort heuristic (published minus delivered minus dropped) used
// only to decide when a drain-on-stop loop can stop polling early; it is
// not load-bearing for correctness.
func (c *Channel) Pending() int64 {
	return int64(c.stats.Published()) - int64(c.stats.Delivered()) - int64(c.stats.Dropped())
}

// Cap returns the channel's ring capacity.
func (c *Channel) Cap() int { return c.ring.Cap() }

// Stats returns the channel's running counters.
func (c *Channel) Stats() *ChannelStats { return &c.stats }

func (c *Channel) addSubscription(sub *Subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs[sub.id] = sub
}

func (c *Channel) removeSubscription(id uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subs, id)
}

// subscribers returns a snapshot slice of currently active subscriptions.
func (c *Channel) subscribers() []*Subscription {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	return out
}

func (c *Channel) recordNoSubscriber() {
	c.stats.noSubscriber.AddAcqRel(1)
}
