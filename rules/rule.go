// Package rules implements the routing rule engine: a copy-on-write set of
// address/protocol/quality filters, each producing an ordered destination
// list for a matching sample.
package rules

import (
	"strings"

	"github.com/bits-and-blooms/bitset"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/jcnm/ipb-sub001/pattern"
	"github.com/jcnm/ipb-sub001/point"
	"github.com/jcnm/ipb-sub001/registry"
)

// Action controls how evaluation continues once a rule matches.
type Action uint8

const (
	// Forward routes the sample to the rule's destinations and stops
	// evaluating subsequent rules.
	Forward Action = iota
	// ForwardAndContinue routes the sample to the rule's destinations and
	// keeps evaluating subsequent rules, so later rules may add further
	// destinations for the same sample.
	ForwardAndContinue
	// Stop ends evaluation: the Stop entry adds no destination, and no
	// further destinations or rules are evaluated. Destinations collected
	// before it are kept.
	Stop
)

func (a Action) String() string {
	switch a {
	case Forward:
		return "forward"
	case ForwardAndContinue:
		return "forward_and_continue"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Destination names one sink a matched sample should be written to, along
// with the priority and weight its registry load balancer should consider.
//
// RuleName and Strategy are not set by callers: Engine.Evaluate stamps them
// from the owning Rule so the dispatcher can regroup a flattened
// destination slice back into the per-rule candidate sets the registry's
// load balancer selects over.
type Destination struct {
	SinkID   string
	Priority int
	Weight   int
	Action   Action

	RuleName string
	Strategy registry.Strategy
}

// maxProtocolID bounds the bitset-backed protocol whitelist. Protocol ids in
// this fabric are small dense integers (Modbus function codes, DNP3 object
// groups and the like), so a bitset gives O(1) membership at a fraction of
// a map's memory.
const maxProtocolID = 4096

// Source is the match predicate a Rule evaluates against an incoming
// sample: an address pattern plus optional protocol and quality
// whitelists. A nil/empty whitelist means "no restriction" on that axis.
type Source struct {
	AddressPattern string
	Protocols      *bitset.BitSet
	Qualities      mapset.Set[point.Quality]

	compiled *pattern.Cache // shared cache, not owned
}

// Matches reports whether sample satisfies this source's filters.
func (s *Source) Matches(sample point.Sample) bool {
	if s.Protocols != nil && s.Protocols.Count() > 0 {
		if sample.ProtocolID >= maxProtocolID || !s.Protocols.Test(uint(sample.ProtocolID)) {
			return false
		}
	}
	if s.Qualities != nil && s.Qualities.Cardinality() > 0 {
		if !s.Qualities.Contains(sample.Quality) {
			return false
		}
	}
	if s.AddressPattern == "" {
		return true
	}
	entry, ok := s.compiled.Get(s.AddressPattern)
	if !ok {
		// Installation always precompiles; a miss here means the pattern
		// was never installed through Install, which is a caller bug, not
		// a recoverable runtime condition. Fail closed.
		return false
	}
	return entry.Matches(sample.Address.String())
}

// Rule is one routing rule: a name, an enabled flag, a source filter, and
// an ordered list of destinations to apply when the filter matches.
//
// Strategy governs how the dispatcher selects among this rule's own
// destinations, operating over the current set of HEALTHY candidates in
// the list. The zero value, registry.Broadcast, writes to every HEALTHY
// destination in the list — the right default for a rule whose
// destinations are deliberately distinct targets rather than equivalent
// replicas. Set it to RoundRobin/WeightedRoundRobin/Failover/HashBased/
// etc. to have the dispatcher pick exactly one winner per sample from the
// list instead.
type Rule struct {
	Name         string
	Enabled      bool
	Source       Source
	Destinations []Destination
	Strategy     registry.Strategy
}

// NewProtocolWhitelist builds a bitset-backed protocol whitelist from a list
// of protocol ids.
func NewProtocolWhitelist(ids ...uint32) *bitset.BitSet {
	b := bitset.New(maxProtocolID)
	for _, id := range ids {
		if id < maxProtocolID {
			b.Set(uint(id))
		}
	}
	return b
}

// NewQualityWhitelist builds a quality whitelist set.
func NewQualityWhitelist(qualities ...point.Quality) mapset.Set[point.Quality] {
	return mapset.NewSet(qualities...)
}

// normalizeAddressPattern trims surrounding whitespace; patterns are stored
// and matched verbatim otherwise, including any leading/trailing '*'
// glob markers pattern.Cache's simple-pattern classifier understands.
func normalizeAddressPattern(p string) string {
	return strings.TrimSpace(p)
}
