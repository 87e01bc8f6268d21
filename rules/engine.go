package rules

import (
	"sync"
	"sync/atomic"

	"github.com/jcnm/ipb-sub001/ipberr"
	"github.com/jcnm/ipb-sub001/pattern"
	"github.com/jcnm/ipb-sub001/point"
)

// Engine holds the installed rule set and evaluates samples against it.
//
// The rule set itself is a copy-on-write snapshot behind a
// sync/atomic.Pointer: every Evaluate call loads one pointer with no lock
// at all, and Install/Uninstall/Reload build a new slice and swap it in.
// Go's generic atomic.Pointer[T] covers this outright — none of the pack's
// third-party atomics packages (atomix included) offer a pointer-width
// atomic, since atomix is scoped to scalar integers/bools — so this is the
// one place the engine reaches for the standard library over an ecosystem
// package.
type Engine struct {
	snapshot atomic.Pointer[[]*Rule]
	cache    *pattern.Cache

	// installMu serializes writers; readers never take it.
	installMu sync.Mutex
}

// NewEngine constructs an empty Engine backed by cache for address pattern
// compilation.
func NewEngine(cache *pattern.Cache) *Engine {
	e := &Engine{cache: cache}
	empty := make([]*Rule, 0)
	e.snapshot.Store(&empty)
	return e
}

// Install adds rule to the engine, precompiling its address pattern (if
// any) before it becomes visible to Evaluate. Returns a typed error if the
// pattern fails validation or compilation; the rule set is left unchanged
// in that case.
func (e *Engine) Install(rule *Rule) error {
	if rule.Source.AddressPattern != "" {
		p := normalizeAddressPattern(rule.Source.AddressPattern)
		rule.Source.AddressPattern = p
		if err := e.cache.Precompile(p); err != nil {
			return ipberr.Wrap(ipberr.InvalidArgument, "rules.install", "address pattern rejected", err)
		}
	}
	rule.Source.compiled = e.cache

	e.installMu.Lock()
	defer e.installMu.Unlock()

	old := *e.snapshot.Load()
	next := make([]*Rule, 0, len(old)+1)
	for _, r := range old {
		if r.Name == rule.Name {
			continue // replace an existing rule with the same name
		}
		next = append(next, r)
	}
	next = append(next, rule)
	e.snapshot.Store(&next)
	return nil
}

// Uninstall removes the named rule. Returns NotFound if no such rule is
// installed.
func (e *Engine) Uninstall(name string) error {
	e.installMu.Lock()
	defer e.installMu.Unlock()

	old := *e.snapshot.Load()
	next := make([]*Rule, 0, len(old))
	found := false
	for _, r := range old {
		if r.Name == name {
			found = true
			continue
		}
		next = append(next, r)
	}
	if !found {
		return ipberr.New(ipberr.NotFound, "rules.uninstall", "no such rule: "+name)
	}
	e.snapshot.Store(&next)
	return nil
}

// Reload atomically replaces the entire rule set. Every rule's address
// pattern is precompiled before the swap; if any fails, the existing rule
// set is left untouched and the first error is returned.
func (e *Engine) Reload(newRules []*Rule) error {
	for _, r := range newRules {
		if r.Source.AddressPattern != "" {
			p := normalizeAddressPattern(r.Source.AddressPattern)
			r.Source.AddressPattern = p
			if err := e.cache.Precompile(p); err != nil {
				return ipberr.Wrap(ipberr.InvalidArgument, "rules.reload", "address pattern rejected for rule "+r.Name, err)
			}
		}
		r.Source.compiled = e.cache
	}

	e.installMu.Lock()
	defer e.installMu.Unlock()
	snap := append([]*Rule(nil), newRules...)
	e.snapshot.Store(&snap)
	return nil
}

// Rules returns a snapshot of the currently installed rules. The returned
// slice must not be mutated.
func (e *Engine) Rules() []*Rule {
	return *e.snapshot.Load()
}

// Evaluate walks the installed rules in order, collecting destinations from
// every enabled rule whose source matches sample. Evaluation stops at the
// first Forward or Stop action; ForwardAndContinue keeps walking so later
// rules can add more destinations for the same sample.
func (e *Engine) Evaluate(sample point.Sample) []Destination {
	snap := *e.snapshot.Load()
	var out []Destination
	for _, rule := range snap {
		if !rule.Enabled {
			continue
		}
		if !rule.Source.Matches(sample) {
			continue
		}

		terminal := false
		for _, dest := range rule.Destinations {
			dest.RuleName = rule.Name
			dest.Strategy = rule.Strategy
			switch dest.Action {
			case Stop:
				return out
			case Forward:
				out = append(out, dest)
				terminal = true
			case ForwardAndContinue:
				out = append(out, dest)
			}
		}
		if terminal {
			return out
		}
	}
	return out
}
