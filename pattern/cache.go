package pattern

import (
	"container/list"
	"regexp"
	"strings"
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/jcnm/ipb-sub001/ipberr"
)

// Stats tracks cache-wide counters via explicit-ordering atomics, matching
// the style lfq and pool use for hot-path counters.
type Stats struct {
	hits                   atomix.Uint64
	misses                 atomix.Uint64
	compilations           atomix.Uint64
	compilationFailures    atomix.Uint64
	validationRejections   atomix.Uint64
	timeoutRejections      atomix.Uint64
	evictions              atomix.Uint64
	totalCompilationTimeNs atomix.Int64
}

func (s *Stats) Hits() uint64                 { return s.hits.LoadAcquire() }
func (s *Stats) Misses() uint64               { return s.misses.LoadAcquire() }
func (s *Stats) Compilations() uint64         { return s.compilations.LoadAcquire() }
func (s *Stats) CompilationFailures() uint64  { return s.compilationFailures.LoadAcquire() }
func (s *Stats) ValidationRejections() uint64 { return s.validationRejections.LoadAcquire() }
func (s *Stats) TimeoutRejections() uint64    { return s.timeoutRejections.LoadAcquire() }
func (s *Stats) Evictions() uint64            { return s.evictions.LoadAcquire() }

// HitRate returns Hits / (Hits + Misses), or 0 when nothing was looked up.
func (s *Stats) HitRate() float64 {
	hits := s.hits.LoadAcquire()
	total := hits + s.misses.LoadAcquire()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// AvgCompilationTime returns the mean time spent in regexp.Compile across
// every compilation recorded so far, failed compilations included.
func (s *Stats) AvgCompilationTime() time.Duration {
	count := s.compilations.LoadAcquire()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalCompilationTimeNs.LoadAcquire() / int64(count))
}

// Config controls cache capacity and compilation limits.
type Config struct {
	MaxSize            int
	MaxPatternLength   int
	MaxComplexity      int
	CompilationTimeout time.Duration
	EnableValidation   bool
}

// DefaultConfig mirrors the defaults the rule engine's spec calls for.
func DefaultConfig() Config {
	return Config{
		MaxSize:            10000,
		MaxPatternLength:   1024,
		MaxComplexity:      50,
		CompilationTimeout: 100 * time.Millisecond,
		EnableValidation:   true,
	}
}

// simpleKind classifies patterns that can be matched without invoking the
// regex engine at all: exact strings and prefix/suffix/contains globs built
// from a single leading/trailing '*'. These make up most address filters in
// practice, and skipping regexp entirely removes it from the hot path.
type simpleKind uint8

const (
	simpleNone simpleKind = iota
	simpleExact
	simplePrefix
	simpleSuffix
	simpleContains
)

type compiledEntry struct {
	pattern         string
	re              *regexp.Regexp
	simple          simpleKind
	simpleLiteral   string
	compiledAt      time.Time
	compilationTime time.Duration
	complexity      int
	useCount        atomix.Uint64
}

// Matches reports whether s satisfies the compiled pattern, preferring the
// literal shortcut when one applies.
func (e *compiledEntry) Matches(s string) bool {
	e.useCount.AddAcqRel(1)
	switch e.simple {
	case simpleExact:
		return s == e.simpleLiteral
	case simplePrefix:
		return strings.HasPrefix(s, e.simpleLiteral)
	case simpleSuffix:
		return strings.HasSuffix(s, e.simpleLiteral)
	case simpleContains:
		return strings.Contains(s, e.simpleLiteral)
	default:
		return e.re.MatchString(s)
	}
}

// Cache is a thread-safe, size-bounded LRU cache of compiled patterns,
// fronted by a Validator that rejects unsafe input before it ever reaches
// regexp.Compile.
//
// No third-party LRU library appears anywhere in the retrieved corpus, so
// the eviction list is a plain container/list + map pair behind a
// sync.RWMutex, the same primitives the standard library groupcache-style
// LRU implementations use.
type Cache struct {
	cfg       Config
	validator *Validator

	mu      sync.RWMutex
	entries map[string]*list.Element // pattern -> element wrapping *compiledEntry
	order   *list.List               // front = most recently used

	stats Stats
}

// New constructs a Cache from cfg.
func New(cfg Config) *Cache {
	return &Cache{
		cfg:       cfg,
		validator: &Validator{MaxLength: cfg.MaxPatternLength, MaxComplexity: cfg.MaxComplexity},
		entries:   make(map[string]*list.Element),
		order:     list.New(),
	}
}

// Get returns the already-compiled entry for pattern, or (nil, false) on a
// cache miss. It never compiles.
func (c *Cache) Get(pattern string) (*compiledEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[pattern]
	if !ok {
		c.stats.misses.AddAcqRel(1)
		return nil, false
	}
	c.order.MoveToFront(el)
	c.stats.hits.AddAcqRel(1)
	return el.Value.(*compiledEntry), true
}

// GetOrCompile returns the cached entry for pattern, compiling and
// inserting it first if necessary. Validation failures and compile
// timeouts are returned as *ipberr.Error.
func (c *Cache) GetOrCompile(pattern string) (*compiledEntry, error) {
	if e, ok := c.Get(pattern); ok {
		return e, nil
	}

	if c.cfg.EnableValidation {
		result := c.validator.Validate(pattern)
		if !result.Safe {
			c.stats.validationRejections.AddAcqRel(1)
			return nil, ipberr.New(ipberr.PatternUnsafe, "pattern.compile", result.Reason)
		}
	}

	entry, err := c.compile(pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[pattern]; ok {
		// Lost the race against another compiler; keep the existing entry.
		c.order.MoveToFront(el)
		return el.Value.(*compiledEntry), nil
	}
	c.insertLocked(pattern, entry)
	return entry, nil
}

// Precompile validates and compiles pattern, inserting it into the cache
// without requiring a matching Get. Intended for rule-install time, so the
// first matching hot-path lookup is always a hit.
func (c *Cache) Precompile(pattern string) error {
	_, err := c.GetOrCompile(pattern)
	return err
}

// Remove evicts pattern from the cache if present.
func (c *Cache) Remove(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[pattern]; ok {
		c.order.Remove(el)
		delete(c.entries, pattern)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns the cache's running counters.
func (c *Cache) Stats() *Stats { return &c.stats }

// Len returns the number of patterns currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

func (c *Cache) insertLocked(pattern string, entry *compiledEntry) {
	if c.order.Len() >= c.cfg.MaxSize {
		c.evictLocked()
	}
	el := c.order.PushFront(entry)
	c.entries[pattern] = el
}

func (c *Cache) evictLocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	entry := el.Value.(*compiledEntry)
	c.order.Remove(el)
	delete(c.entries, entry.pattern)
	c.stats.evictions.AddAcqRel(1)
}

// compile classifies pattern as a literal/glob shortcut when possible,
// otherwise hands it to regexp.Compile under a timeout. The timeout is
// enforced by racing the compile against a timer on its own goroutine:
// regexp.Compile has no context-aware variant, and RE2 compilation itself
// is linear in pattern length, so this exists to bound cache-stall latency
// under a burst of large or adversarial patterns, not to stop a runaway
// engine.
func (c *Cache) compile(pattern string) (*compiledEntry, error) {
	if kind, literal, ok := classifySimple(pattern); ok {
		return &compiledEntry{
			pattern:       pattern,
			simple:        kind,
			simpleLiteral: literal,
			compiledAt:    c.now(),
		}, nil
	}

	type result struct {
		re  *regexp.Regexp
		err error
	}
	done := make(chan result, 1)
	start := time.Now()

	// A single '*' between literal text (e.g. "plant/*/temp") is a glob
	// wildcard matching any run of characters, the same reading the
	// shortcuts above give a leading or trailing '*'.
	expr := pattern
	if pre, post, found := strings.Cut(pattern, "*"); found && !strings.ContainsAny(pre+post, ".+*?()[]{}|^$\\") {
		expr = regexp.QuoteMeta(pre) + ".*" + regexp.QuoteMeta(post)
	}

	go func() {
		// Anchored to a full-string match: the original's
		// compiled_pattern_cache matches an address against a pattern with
		// std::regex_match (whole-string), not std::regex_search
		// (substring), so "line1.*" must not match inside
		// "plant/line1/temp" via an unanchored search. Wrapping in a
		// non-capturing group keeps this correct even if pattern already
		// carries its own ^/$ anchors.
		re, err := regexp.Compile("^(?:" + expr + ")$")
		done <- result{re: re, err: err}
	}()

	var timeout <-chan time.Time
	if c.cfg.CompilationTimeout > 0 {
		timer := time.NewTimer(c.cfg.CompilationTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-done:
		elapsed := time.Since(start)
		c.stats.compilations.AddAcqRel(1)
		c.stats.totalCompilationTimeNs.AddAcqRel(elapsed.Nanoseconds())
		if r.err != nil {
			c.stats.compilationFailures.AddAcqRel(1)
			return nil, ipberr.Wrap(ipberr.InvalidArgument, "pattern.compile", "regexp compile failed", r.err)
		}
		return &compiledEntry{
			pattern:         pattern,
			re:              r.re,
			compiledAt:      c.now(),
			compilationTime: elapsed,
		}, nil
	case <-timeout:
		c.stats.timeoutRejections.AddAcqRel(1)
		return nil, ipberr.New(ipberr.PatternCompileTimeout, "pattern.compile", "pattern compilation exceeded timeout")
	}
}

func (c *Cache) now() time.Time { return time.Now() }

// classifySimple recognizes exact strings and single-wildcard glob shapes
// (*suffix, prefix*, *contains*) that do not need the regexp engine at all.
func classifySimple(pattern string) (simpleKind, string, bool) {
	if !strings.ContainsAny(pattern, ".+*?()[]{}|^$\\") {
		return simpleExact, pattern, true
	}
	if strings.Count(pattern, "*") == 1 {
		switch {
		case strings.HasPrefix(pattern, "*") && !strings.ContainsAny(pattern[1:], ".+?()[]{}|^$\\*"):
			return simpleSuffix, pattern[1:], true
		case strings.HasSuffix(pattern, "*") && !strings.ContainsAny(pattern[:len(pattern)-1], ".+?()[]{}|^$\\*"):
			return simplePrefix, pattern[:len(pattern)-1], true
		}
	}
	if strings.Count(pattern, "*") == 2 && strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
		inner := pattern[1 : len(pattern)-1]
		if !strings.ContainsAny(inner, ".+*?()[]{}|^$\\") {
			return simpleContains, inner, true
		}
	}
	return simpleNone, "", false
}
