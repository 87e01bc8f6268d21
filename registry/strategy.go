package registry

import (
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"

	"code.hybscloud.com/atomix"

	"github.com/jcnm/ipb-sub001/ipberr"
)

// Strategy selects how a registry picks one (or all) HEALTHY candidates
// for a write or read.
type Strategy uint8

const (
	// Broadcast is the zero value: a Rule that never sets Strategy keeps
	// the pre-load-balancing behavior of writing to every one of its
	// destinations.
	Broadcast Strategy = iota
	RoundRobin
	WeightedRoundRobin
	LeastConnections
	LeastLatency
	HashBased
	Random
	Failover
)

func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "round_robin"
	case WeightedRoundRobin:
		return "weighted_round_robin"
	case LeastConnections:
		return "least_connections"
	case LeastLatency:
		return "least_latency"
	case HashBased:
		return "hash_based"
	case Random:
		return "random"
	case Failover:
		return "failover"
	case Broadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Balancer holds the counter state a RoundRobin/WeightedRoundRobin
// selection needs to advance across calls. One Balancer per registry
// (SinkRegistry holds one) — strategy state is scoped to
// the registry, not to an individual rule, so concurrent rules selecting
// against the same registry still advance a single shared cycle, matching
// "round-robin over N healthy sinks visits each sink within N consecutive
// selections" measured registry-wide.
type Balancer struct {
	rrCounter  atomix.Uint64
	wrrCounter atomix.Uint64
}

// Select applies strategy over candidates (already filtered to the
// HEALTHY set the caller cares about) and returns one winner. key is the
// value HashBased hashes (typically the sample's address); it is ignored
// by every other strategy. Broadcast is rejected here — callers that want
// every candidate should call SelectAll instead.
func Select[D entry](b *Balancer, strategy Strategy, candidates []D, key string) (D, error) {
	var zero D
	if len(candidates) == 0 {
		return zero, ipberr.New(ipberr.Unavailable, "registry.select", "no healthy candidates")
	}

	switch strategy {
	case RoundRobin:
		idx := b.rrCounter.AddAcqRel(1) - 1
		return candidates[idx%uint64(len(candidates))], nil

	case WeightedRoundRobin:
		total := 0
		for _, c := range candidates {
			w := c.base().Weight
			if w <= 0 {
				w = 1
			}
			total += w
		}
		if total == 0 {
			return zero, ipberr.New(ipberr.Unavailable, "registry.select", "all candidate weights are zero")
		}
		counter := b.wrrCounter.AddAcqRel(1) - 1
		bucket := int(counter % uint64(total))
		cum := 0
		for _, c := range candidates {
			w := c.base().Weight
			if w <= 0 {
				w = 1
			}
			cum += w
			if bucket < cum {
				return c, nil
			}
		}
		return candidates[len(candidates)-1], nil

	case LeastConnections:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if lessByPendingThenID(c, best) {
				best = c
			}
		}
		return best, nil

	case LeastLatency:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if lessByLatencyThenID(c, best) {
				best = c
			}
		}
		return best, nil

	case HashBased:
		h := xxhash.Sum64String(key)
		return candidates[h%uint64(len(candidates))], nil

	case Random:
		return candidates[rand.IntN(len(candidates))], nil

	case Failover:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.base().Priority < best.base().Priority {
				best = c
			}
		}
		return best, nil

	case Broadcast:
		return zero, ipberr.New(ipberr.InvalidArgument, "registry.select", "use SelectAll for BROADCAST")

	default:
		return zero, ipberr.New(ipberr.InvalidArgument, "registry.select", "unknown strategy")
	}
}

// SelectAll implements BROADCAST: every candidate, unchanged.
func SelectAll[D entry](candidates []D) []D { return candidates }

func lessByPendingThenID[D entry](a, b D) bool {
	pa, pb := a.base().Counters.Pending(), b.base().Counters.Pending()
	if pa != pb {
		return pa < pb
	}
	return a.base().ID < b.base().ID
}

func lessByLatencyThenID[D entry](a, b D) bool {
	la, lb := a.base().Counters.AvgLatencyUs(), b.base().Counters.AvgLatencyUs()
	if la != lb {
		return la < lb
	}
	return a.base().ID < b.base().ID
}
