// Package orchestrator owns and wires together every subsystem of the
// routing fabric: the message bus, the EDF scheduler, the pattern cache,
// the rule engine, and the sink/scoop registries. It holds non-owning
// pointers downward only — no subsystem ever references the orchestrator
// back — and exposes the control-plane surface callers use to install
// rules, register endpoints, and drive the lifecycle.
//
// Modeled on jhkimqd-chaos-utils/pkg/core/orchestrator/orchestrator.go: a
// typed state enum with a String() stringer, a struct holding pointers to
// each owned subsystem, explicit lifecycle methods.
package orchestrator

import (
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/jcnm/ipb-sub001/bus"
	"github.com/jcnm/ipb-sub001/internal/obslog"
	"github.com/jcnm/ipb-sub001/ipberr"
	"github.com/jcnm/ipb-sub001/pattern"
	"github.com/jcnm/ipb-sub001/point"
	"github.com/jcnm/ipb-sub001/registry"
	"github.com/jcnm/ipb-sub001/rules"
	"github.com/jcnm/ipb-sub001/scheduler"
)

// State is the orchestrator's lifecycle state.
type State int

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Config controls the subsystems an Orchestrator constructs.
type Config struct {
	Bus       bus.Config
	Scheduler scheduler.Config
	Pattern   pattern.Config
	Registry  registry.Config
	Logger    *obslog.Logger
	Clock     point.Clock
}

// DefaultConfig returns a complete default configuration for every owned
// subsystem.
func DefaultConfig() Config {
	return Config{
		Bus:       bus.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Pattern:   pattern.DefaultConfig(),
		Registry:  registry.DefaultConfig(),
		Logger:    obslog.Nop(),
		Clock:     point.SystemClock{},
	}
}

// Metrics is a point-in-time snapshot across every owned subsystem.
type Metrics struct {
	Bus        bus.Stats
	Scheduler  schedulerSnapshot
	PatternHit float64
	Sinks      []*registry.SinkDescriptor
	Scoops     []*registry.ScoopDescriptor

	// NoRoute counts samples for which no rule produced a destination.
	NoRoute uint64
	// NoHealthyDestination counts destination groups where every
	// candidate sink was unhealthy, disabled, or unregistered.
	NoHealthyDestination uint64
	// FailoverEvents counts FAILOVER selections made while at least one of
	// the rule's candidates was excluded (unhealthy, disabled, or
	// unregistered), whatever that candidate's priority.
	FailoverEvents uint64
}

type schedulerSnapshot struct {
	Submitted       uint64
	Completed       uint64
	Failed          uint64
	Cancelled       uint64
	DeadlinesMet    uint64
	DeadlinesMissed uint64
}

// Orchestrator owns every subsystem by non-owning-handle composition and
// is the single place the routing path (scoop publish -> rule match ->
// scheduled sink write) is wired together.
type Orchestrator struct {
	cfg    Config
	clock  point.Clock
	logger *obslog.Logger

	mu    sync.RWMutex
	state State

	bus       *bus.Bus
	scheduler *scheduler.Scheduler
	cache     *pattern.Cache
	engine    *rules.Engine
	sinks     *registry.SinkRegistry
	scoops    *registry.ScoopRegistry

	routeSub *bus.Subscription

	noRoute              atomix.Uint64
	noHealthyDestination atomix.Uint64
	failoverEvents       atomix.Uint64
}

// New constructs every owned subsystem from cfg but does not start any of
// them; call Start to bring the fabric up.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = obslog.Nop()
	}
	if cfg.Clock == nil {
		cfg.Clock = point.SystemClock{}
	}
	cfg.Bus.Clock = cfg.Clock
	cfg.Scheduler.Clock = cfg.Clock
	cfg.Registry.Clock = cfg.Clock

	cache := pattern.New(cfg.Pattern)
	return &Orchestrator{
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("orchestrator"),
		state:     StateCreated,
		bus:       bus.New(cfg.Bus),
		scheduler: scheduler.New(cfg.Scheduler),
		cache:     cache,
		engine:    rules.NewEngine(cache),
		sinks:     registry.NewSinkRegistry(cfg.Registry),
		scoops:    registry.NewScoopRegistry(cfg.Registry),
	}
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Start brings up every owned subsystem and wires the bus's wildcard
// "#" topic subscription into the rule engine and scheduler, then begins
// routing. Start is not idempotent: calling it twice on a running
// orchestrator returns a typed error.
func (o *Orchestrator) Start() error {
	if o.State() != StateCreated && o.State() != StateStopped {
		return ipberr.New(ipberr.InvalidArgument, "orchestrator.start", "orchestrator already starting or running")
	}
	o.setState(StateStarting)

	if err := o.bus.Start(); err != nil {
		o.setState(StateFailed)
		return ipberr.Wrap(ipberr.InternalError, "orchestrator.start", "bus failed to start", err)
	}
	if err := o.scheduler.Start(); err != nil {
		o.setState(StateFailed)
		return ipberr.Wrap(ipberr.InternalError, "orchestrator.start", "scheduler failed to start", err)
	}
	o.sinks.Start()
	o.scoops.Start()

	sub, err := o.bus.Subscribe("#", o.route, nil)
	if err != nil {
		o.setState(StateFailed)
		return ipberr.Wrap(ipberr.InternalError, "orchestrator.start", "failed to install routing subscription", err)
	}
	o.routeSub = sub

	o.setState(StateRunning)
	o.logger.Info("orchestrator started", nil)
	return nil
}

// Shutdown stops every owned subsystem, giving in-flight work up to grace
// before forcing a stop. Shutdown is cooperative: no new publish,
// subscribe, or submit call is accepted once stopping begins.
func (o *Orchestrator) Shutdown(grace time.Duration) error {
	if o.State() != StateRunning {
		return ipberr.New(ipberr.InvalidArgument, "orchestrator.shutdown", "orchestrator is not running")
	}
	o.setState(StateStopping)

	if o.routeSub != nil {
		o.routeSub.Cancel()
	}

	if err := o.bus.StopWithDeadline(grace); err != nil {
		o.logger.Warn("bus stop returned an error", map[string]any{"error": err.Error()})
	}
	if err := o.scheduler.Stop(); err != nil {
		o.logger.Warn("scheduler stop returned an error", map[string]any{"error": err.Error()})
	}
	o.sinks.Stop()
	o.scoops.Stop()

	o.setState(StateStopped)
	o.logger.Info("orchestrator stopped", nil)
	return nil
}

// Stop is Shutdown with no grace period.
func (o *Orchestrator) Stop() error { return o.Shutdown(0) }

// route is the bus callback invoked for every envelope matching the
// wildcard "#" subscription: it evaluates the rule engine against the
// sample, resolves each matching rule's destination list down to the
// registry's HEALTHY winner(s) via its configured load-balancer strategy,
// and submits one scheduled sink write per winner.
func (o *Orchestrator) route(env bus.Envelope) {
	if env.Kind != bus.KindPoint {
		return
	}
	destinations := o.engine.Evaluate(env.Sample)
	if len(destinations) == 0 {
		o.noRoute.AddAcqRel(1)
		return
	}

	deadline := o.clock.MonotonicNs() + deadlineOffsetFor(env.Priority)
	for _, group := range groupByRule(destinations) {
		o.dispatchGroup(group, env.Sample, deadline)
	}
}

// ruleGroup is one rule's contiguous run of destinations from a single
// Evaluate call: the unit the registry's load balancer selects over.
type ruleGroup struct {
	strategy     registry.Strategy
	destinations []rules.Destination
}

// groupByRule splits a flattened Evaluate result back into per-rule runs.
// Evaluate always appends one rule's destinations contiguously, so a
// single linear pass suffices.
func groupByRule(destinations []rules.Destination) []ruleGroup {
	var groups []ruleGroup
	i := 0
	for i < len(destinations) {
		j := i + 1
		for j < len(destinations) && destinations[j].RuleName == destinations[i].RuleName {
			j++
		}
		groups = append(groups, ruleGroup{
			strategy:     destinations[i].Strategy,
			destinations: destinations[i:j],
		})
		i = j
	}
	return groups
}

// dispatchGroup resolves one rule's destination list to its HEALTHY
// winner(s) per its configured strategy and schedules a sink write for
// each. Broadcast (the default) writes to every HEALTHY destination;
// every other strategy writes to exactly one.
func (o *Orchestrator) dispatchGroup(group ruleGroup, sample point.Sample, deadline int64) {
	ids := make([]string, len(group.destinations))
	byID := make(map[string]rules.Destination, len(group.destinations))
	for i, d := range group.destinations {
		ids[i] = d.SinkID
		byID[d.SinkID] = d
	}

	if group.strategy == registry.Broadcast {
		winners := o.sinks.SelectAll(ids)
		if len(winners) == 0 {
			o.noHealthyDestination.AddAcqRel(1)
			return
		}
		for _, w := range winners {
			o.scheduleWrite(w.ID, byID[w.ID].Priority, sample, deadline)
		}
		return
	}

	// Measured before Select so a FAILOVER made while some candidate was
	// excluded can be counted separately from one over a fully healthy
	// candidate set.
	unhealthyBefore := unhealthyAmong(o.sinks, ids)
	winner, err := o.sinks.Select(group.strategy, ids, sample.Address.String())
	if err != nil {
		o.noHealthyDestination.AddAcqRel(1)
		return
	}
	if group.strategy == registry.Failover && unhealthyBefore > 0 {
		o.failoverEvents.AddAcqRel(1)
	}
	o.scheduleWrite(winner.ID, byID[winner.ID].Priority, sample, deadline)
}

// unhealthyAmong counts how many of ids are currently excluded from the
// registry's healthy set (unregistered, disabled, or not HEALTHY).
func unhealthyAmong(sinks *registry.SinkRegistry, ids []string) int {
	healthy := make(map[string]bool, len(ids))
	for _, d := range sinks.SelectAll(ids) {
		healthy[d.ID] = true
	}
	n := 0
	for _, id := range ids {
		if !healthy[id] {
			n++
		}
	}
	return n
}

// scheduleWrite submits one EDF-scheduled write to sinkID.
func (o *Orchestrator) scheduleWrite(sinkID string, rulePriority int, sample point.Sample, deadline int64) {
	priority := schedulerPriorityFor(rulePriority)
	_, err := o.scheduler.SubmitWithPriority(func() error {
		return o.sinks.WriteToSink(sinkID, sample)
	}, deadline, priority)
	if err != nil {
		o.logger.Warn("failed to schedule sink write", map[string]any{
			"sink":  sinkID,
			"error": err.Error(),
		})
	}
}

// deadlineOffsetFor maps an envelope's transport priority to an EDF
// deadline budget: REALTIME envelopes get the tightest window, so their
// destinations preempt everything else the scheduler's heap is holding.
func deadlineOffsetFor(p bus.Priority) int64 {
	switch p {
	case bus.PriorityRealtime:
		return int64(time.Millisecond)
	case bus.PriorityHigh:
		return int64(10 * time.Millisecond)
	case bus.PriorityLow:
		return int64(500 * time.Millisecond)
	default:
		return int64(100 * time.Millisecond)
	}
}

// schedulerPriorityFor maps a rule destination's declarative priority hint
// onto the scheduler's tie-break priority scale.
func schedulerPriorityFor(rulePriority int) scheduler.Priority {
	switch {
	case rulePriority >= 3:
		return scheduler.PriorityRealtime
	case rulePriority == 2:
		return scheduler.PriorityHigh
	case rulePriority == 1:
		return scheduler.PriorityNormal
	default:
		return scheduler.PriorityLow
	}
}

// InstallRule adds or replaces a routing rule.
func (o *Orchestrator) InstallRule(rule *rules.Rule) error { return o.engine.Install(rule) }

// UninstallRule removes a routing rule by name.
func (o *Orchestrator) UninstallRule(name string) error { return o.engine.Uninstall(name) }

// ReloadRules atomically replaces the entire rule set.
func (o *Orchestrator) ReloadRules(newRules []*rules.Rule) error { return o.engine.Reload(newRules) }

// RegisterSink adds a sink endpoint to the sink registry.
func (o *Orchestrator) RegisterSink(id string, sink registry.Sink, weight, priority int) error {
	return o.sinks.Register(id, sink, weight, priority)
}

// UnregisterSink removes a sink endpoint.
func (o *Orchestrator) UnregisterSink(id string) error { return o.sinks.Unregister(id) }

// RegisterScoop adds a scoop endpoint to the scoop registry and starts it.
// It does not subscribe the scoop to any topic; ScoopRegistry.Subscribe
// does that.
func (o *Orchestrator) RegisterScoop(id string, scoop registry.Scoop, strategy registry.ReadStrategy) error {
	if err := o.scoops.Register(id, scoop, strategy); err != nil {
		return err
	}
	return scoop.Start()
}

// UnregisterScoop removes a scoop endpoint.
func (o *Orchestrator) UnregisterScoop(id string) error { return o.scoops.Unregister(id) }

// Publish forwards to the owned bus, letting external callers (typically
// a scoop's own emission path) inject samples without holding a bus
// reference directly.
func (o *Orchestrator) Publish(topic string, sample point.Sample, priority bus.Priority) error {
	return o.bus.Publish(topic, sample, priority)
}

// MetricsSnapshot aggregates counters across every owned subsystem.
func (o *Orchestrator) MetricsSnapshot() Metrics {
	st := o.scheduler.Stats()
	return Metrics{
		Bus: o.bus.Snapshot(),
		Scheduler: schedulerSnapshot{
			Submitted:       st.Submitted(),
			Completed:       st.Completed(),
			Failed:          st.Failed(),
			Cancelled:       st.Cancelled(),
			DeadlinesMet:    st.DeadlinesMet(),
			DeadlinesMissed: st.DeadlinesMissed(),
		},
		PatternHit:           o.cache.Stats().HitRate(),
		Sinks:                o.sinks.List(),
		Scoops:               o.scoops.List(),
		NoRoute:              o.noRoute.LoadAcquire(),
		NoHealthyDestination: o.noHealthyDestination.LoadAcquire(),
		FailoverEvents:       o.failoverEvents.LoadAcquire(),
	}
}

// Bus returns the owned message bus, for collaborators (scoops) that need
// to publish directly rather than through Orchestrator.Publish.
func (o *Orchestrator) Bus() *bus.Bus { return o.bus }
