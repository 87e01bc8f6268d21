package bus

import (
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/jcnm/ipb-sub001/ipberr"
	"github.com/jcnm/ipb-sub001/lfq"
	"github.com/jcnm/ipb-sub001/point"
)

// State is the bus's lifecycle state:
// Created -> Running -> Stopping -> Stopped.
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

// Config controls a Bus instance.
type Config struct {
	// ChannelCapacity is the ring capacity each per-topic channel is
	// created with. Rounded up to a power of two by lfq.NewMPMC.
	ChannelCapacity int
	// MaxChannels bounds the number of distinct topics the bus will
	// create channels for; further publishes to a new topic fail closed.
	MaxChannels int
	// DropPolicy governs what happens to a channel publish on overflow.
	DropPolicy lfq.DropPolicy
	// Dispatchers is the number of dispatcher goroutines draining
	// channels.
	Dispatchers int
	// DrainDeadline bounds how long Stop waits for outstanding envelopes
	// to be dispatched before discarding the rest.
	DrainDeadline time.Duration
	// Clock supplies envelope timestamps.
	Clock point.Clock
}

// DefaultConfig returns reasonable defaults for a single-process bus.
func DefaultConfig() Config {
	return Config{
		ChannelCapacity: 4096,
		MaxChannels:     4096,
		DropPolicy:      lfq.DropNewest,
		Dispatchers:     4,
		DrainDeadline:   500 * time.Millisecond,
		Clock:           point.SystemClock{},
	}
}

// Stats is a point-in-time aggregate snapshot across every channel.
type Stats struct {
	Published    uint64
	Delivered    uint64
	Dropped      uint64
	Overflows    uint64
	NoSubscriber uint64
	Channels     int
}

// Bus is the topic-routed, lock-free message bus: a topic registry mapping
// topic strings to per-topic MPMC channels, plus a pool of dispatcher
// goroutines that drain them and fan out to subscribers.
type Bus struct {
	cfg   Config
	clock point.Clock

	state atomix.Uint64

	mu        sync.RWMutex
	channels  map[string]*Channel
	wildcards map[uint64]*Subscription

	subIDs atomix.Uint64

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Bus in the Created state. Call Start to begin
// dispatching.
func New(cfg Config) *Bus {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 4096
	}
	if cfg.Dispatchers <= 0 {
		cfg.Dispatchers = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = point.SystemClock{}
	}
	return &Bus{
		cfg:       cfg,
		clock:     cfg.Clock,
		channels:  make(map[string]*Channel),
		wildcards: make(map[uint64]*Subscription),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
}

// State returns the bus's current lifecycle state.
func (b *Bus) State() State { return State(b.state.LoadAcquire()) }

// Start transitions Created -> Running and spins up the dispatcher pool.
func (b *Bus) Start() error {
	if !b.state.CompareAndSwapAcqRel(uint64(StateCreated), uint64(StateRunning)) {
		return ipberr.New(ipberr.InvalidArgument, "bus.start", "bus is not in the created state")
	}
	for i := 0; i < b.cfg.Dispatchers; i++ {
		b.wg.Add(1)
		go b.dispatchLoop()
	}
	return nil
}

// Stop transitions Running -> Stopping, drains outstanding envelopes up to
// Config.DrainDeadline, then discards the rest and flips to Stopped.
func (b *Bus) Stop() error {
	return b.StopWithDeadline(b.cfg.DrainDeadline)
}

// StopWithDeadline is Stop with a caller-supplied drain deadline,
// overriding Config.DrainDeadline for this one shutdown — the orchestrator
// uses this to honor a caller-supplied shutdown grace period.
func (b *Bus) StopWithDeadline(drainDeadline time.Duration) error {
	if !b.state.CompareAndSwapAcqRel(uint64(StateRunning), uint64(StateStopping)) {
		return ipberr.New(ipberr.InvalidArgument, "bus.stop", "bus is not running")
	}

	deadline := time.Now().Add(drainDeadline)
	ticker := time.NewTicker(time.Millisecond)
	for time.Now().Before(deadline) {
		if b.totalPending() <= 0 {
			break
		}
		<-ticker.C
	}
	ticker.Stop()

	close(b.stop)
	b.wg.Wait()
	b.state.StoreRelease(uint64(StateStopped))
	return nil
}

func (b *Bus) totalPending() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for _, ch := range b.channels {
		total += ch.Pending()
	}
	return total
}

// Publish resolves topic to a channel (creating one on first publish, up
// to Config.MaxChannels), enqueues the sample as a point envelope, and
// wakes the dispatcher pool. Overflow is handled per Config.DropPolicy.
func (b *Bus) Publish(topic string, sample point.Sample, priority Priority) error {
	if b.State() != StateRunning {
		return ipberr.New(ipberr.Cancelled, "bus.publish", "bus is not running")
	}
	ch, err := b.resolveChannel(topic)
	if err != nil {
		return err
	}

	env := NewPointEnvelope(topic, sample, priority, b.clock)
	env.Sequence = ch.NextSequence()

	_, _, err = ch.Publish(env)
	b.signalWake()
	if err != nil {
		return ipberr.QueueFullFrom("bus.publish", err)
	}
	return nil
}

// PublishBatch is the batch-envelope counterpart of Publish.
func (b *Bus) PublishBatch(topic string, samples []point.Sample, priority Priority) error {
	if b.State() != StateRunning {
		return ipberr.New(ipberr.Cancelled, "bus.publish_batch", "bus is not running")
	}
	ch, err := b.resolveChannel(topic)
	if err != nil {
		return err
	}

	env := NewBatchEnvelope(topic, samples, priority, b.clock)
	env.Sequence = ch.NextSequence()

	_, _, err = ch.Publish(env)
	b.signalWake()
	if err != nil {
		return ipberr.QueueFullFrom("bus.publish_batch", err)
	}
	return nil
}

// Subscribe registers callback (optionally gated by filter) against every
// channel currently matching pattern. Exact (non-wildcard) patterns create
// the channel immediately if it does not yet exist; wildcard patterns
// ('+' for one segment, '#' for a trailing suffix) are expanded lazily —
// they also bind to channels created by later publishes.
func (b *Bus) Subscribe(pattern string, callback Callback, filter Filter) (*Subscription, error) {
	if callback == nil {
		return nil, ipberr.New(ipberr.InvalidArgument, "bus.subscribe", "callback must not be nil")
	}
	sub := &Subscription{
		id:       b.subIDs.AddAcqRel(1),
		pattern:  pattern,
		callback: callback,
		filter:   filter,
		bus:      b,
	}

	if isWildcardPattern(pattern) {
		b.mu.Lock()
		b.wildcards[sub.id] = sub
		for _, ch := range b.channels {
			if matchTopic(pattern, ch.Topic) {
				sub.bind(ch)
			}
		}
		b.mu.Unlock()
		return sub, nil
	}

	ch, err := b.resolveChannel(pattern)
	if err != nil {
		return nil, err
	}
	sub.bind(ch)
	return sub, nil
}

func (b *Bus) removeWildcard(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.wildcards, id)
}

// resolveChannel returns the channel for topic, creating it (and binding
// any matching wildcard subscriptions) if this is the first reference,
// subject to Config.MaxChannels.
func (b *Bus) resolveChannel(topic string) (*Channel, error) {
	b.mu.RLock()
	ch, ok := b.channels[topic]
	b.mu.RUnlock()
	if ok {
		return ch, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.channels[topic]; ok {
		return ch, nil
	}
	if len(b.channels) >= b.cfg.MaxChannels && b.cfg.MaxChannels > 0 {
		return nil, ipberr.New(ipberr.InvalidArgument, "bus.resolve_channel", "channel cap reached")
	}
	ch = newChannel(topic, b.cfg.ChannelCapacity, b.cfg.DropPolicy)
	b.channels[topic] = ch
	for _, sub := range b.wildcards {
		if matchTopic(sub.pattern, topic) {
			sub.bind(ch)
		}
	}
	return ch, nil
}

func (b *Bus) signalWake() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop is run by each of Config.Dispatchers goroutines. It wakes on
// publish, on a short idle poll, or on Stop, and drains every channel each
// time it wakes.
func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	idle := time.NewTicker(5 * time.Millisecond)
	defer idle.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-b.wake:
		case <-idle.C:
		}
		b.dispatchOnce()
	}
}

// dispatchOnce drains every channel once, serving channels with a pending
// REALTIME envelope ahead of the rest, otherwise round-robin in snapshot
// order.
func (b *Bus) dispatchOnce() {
	b.mu.RLock()
	realtime := make([]*Channel, 0, len(b.channels))
	rest := make([]*Channel, 0, len(b.channels))
	for _, ch := range b.channels {
		if ch.HasPendingRealtime() {
			realtime = append(realtime, ch)
		} else {
			rest = append(rest, ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range realtime {
		b.drainChannel(ch)
	}
	for _, ch := range rest {
		b.drainChannel(ch)
	}
}

func (b *Bus) drainChannel(ch *Channel) {
	for {
		env, ok := ch.Drain()
		if !ok {
			return
		}
		subs := ch.subscribers()
		if len(subs) == 0 {
			ch.recordNoSubscriber()
			continue
		}
		for _, sub := range subs {
			sub.invoke(env)
		}
	}
}

// Snapshot aggregates counters across every channel the bus currently
// owns.
func (b *Bus) Snapshot() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var s Stats
	s.Channels = len(b.channels)
	for _, ch := range b.channels {
		st := ch.Stats()
		s.Published += st.Published()
		s.Delivered += st.Delivered()
		s.Dropped += st.Dropped()
		s.Overflows += st.Overflows()
		s.NoSubscriber += st.NoSubscriber()
	}
	return s
}

// Channel returns the channel bound to topic, if one exists.
func (b *Bus) Channel(topic string) (*Channel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ch, ok := b.channels[topic]
	return ch, ok
}
