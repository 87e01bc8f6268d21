// Package pool provides tiered, lock-free memory pools for byte-buffer
// scratch space, sized for the allocations a protocol adapter (a Scoop or
// Sink, see package registry) would otherwise make on every sample it
// encodes or decodes.
//
// Each size class is a fixed-capacity Treiber stack (lock-free LIFO
// free-list) addressed by slot index rather than pointer, so the free-list
// head can live in a single atomix.Uint64 and use CAS for both the push and
// the pop. The index is packed with a generation tag that increments on
// every push, which is the ABA guard: a stale head value read by one
// goroutine can never be re-installed by a racing CAS once the slot has
// cycled, because the tag will have moved on.
//
// A pool that is exhausted falls back to a plain heap allocation; Put on an
// object that did not come from the pool's own backing array is simply
// dropped (returned to the garbage collector) rather than rejected.
package pool

import (
	"code.hybscloud.com/atomix"
)

// Stats tracks the lifetime behavior of a single size-class pool.
type Stats struct {
	allocations   atomix.Uint64
	deallocations atomix.Uint64
	hits          atomix.Uint64
	misses        atomix.Uint64
	inUse         atomix.Int64
	highWaterMark atomix.Uint64
}

// Allocations returns the number of Get calls served.
func (s *Stats) Allocations() uint64 { return s.allocations.LoadAcquire() }

// Deallocations returns the number of Put calls served.
func (s *Stats) Deallocations() uint64 { return s.deallocations.LoadAcquire() }

// Hits returns the number of Get calls satisfied from the free-list.
func (s *Stats) Hits() uint64 { return s.hits.LoadAcquire() }

// Misses returns the number of Get calls that fell back to heap allocation.
func (s *Stats) Misses() uint64 { return s.misses.LoadAcquire() }

// InUse returns the current number of objects checked out of the pool.
func (s *Stats) InUse() int64 { return s.inUse.LoadAcquire() }

// HighWaterMark returns the peak value InUse has ever reached.
func (s *Stats) HighWaterMark() uint64 { return s.highWaterMark.LoadAcquire() }

// HitRate returns Hits / (Hits + Misses), or 0 when nothing has been
// allocated yet.
func (s *Stats) HitRate() float64 {
	hits := s.hits.LoadAcquire()
	total := hits + s.misses.LoadAcquire()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (s *Stats) recordHit() {
	s.allocations.AddAcqRel(1)
	s.hits.AddAcqRel(1)
	s.bumpInUse()
}

func (s *Stats) recordMiss() {
	s.allocations.AddAcqRel(1)
	s.misses.AddAcqRel(1)
}

func (s *Stats) bumpInUse() {
	n := s.inUse.AddAcqRel(1)
	for {
		hw := s.highWaterMark.LoadAcquire()
		if uint64(n) <= hw {
			return
		}
		if s.highWaterMark.CompareAndSwapAcqRel(hw, uint64(n)) {
			return
		}
	}
}

func (s *Stats) recordPut() {
	s.deallocations.AddAcqRel(1)
	s.inUse.AddAcqRel(-1)
}

// taggedHead packs a free-list slot index (low 32 bits) with a generation
// tag (high 32 bits). The tag increments on every successful push, closing
// the ABA window a plain index-only CAS would leave open.
type taggedHead uint64

const nilSlot uint32 = 0xFFFFFFFF

func pack(index uint32, tag uint32) taggedHead {
	return taggedHead(uint64(tag)<<32 | uint64(index))
}

func (h taggedHead) index() uint32 { return uint32(h) }
func (h taggedHead) tag() uint32   { return uint32(h >> 32) }

// Class is a fixed-capacity Treiber-stack free-list for objects of a single
// pooled size. T is the pooled element type (for example a fixed-size byte
// array sized to the class, or a struct whose zero value is always safe to
// hand back out).
type Class[T any] struct {
	head  atomix.Uint64 // packed taggedHead
	slots []slot[T]
	stats Stats
}

type slot[T any] struct {
	value T
	next  uint32 // index of next free slot, or nilSlot
}

// NewClass creates a size class pre-populated with capacity free objects.
func NewClass[T any](capacity int) *Class[T] {
	if capacity <= 0 {
		capacity = 1
	}
	c := &Class[T]{
		slots: make([]slot[T], capacity),
	}
	for i := range c.slots {
		if i == len(c.slots)-1 {
			c.slots[i].next = nilSlot
		} else {
			c.slots[i].next = uint32(i + 1)
		}
	}
	c.head.StoreRelease(uint64(pack(0, 0)))
	return c
}

// Ref is a handle to an object checked out of a Class. A Ref with pooled
// false denotes a heap fallback allocation that must not be returned to
// any pool.
type Ref[T any] struct {
	value  *T
	index  uint32
	pooled bool
}

// Value returns the pointer to the checked-out object.
func (r Ref[T]) Value() *T { return r.value }

// Pooled reports whether the object came from the free-list (true) or is a
// heap fallback (false). Put is a no-op for non-pooled refs.
func (r Ref[T]) Pooled() bool { return r.pooled }

// Get removes an object from the free-list, falling back to a fresh heap
// allocation when the class is exhausted.
func (c *Class[T]) Get() Ref[T] {
	for {
		raw := c.head.LoadAcquire()
		head := taggedHead(raw)
		idx := head.index()
		if idx == nilSlot {
			c.stats.recordMiss()
			var zero T
			return Ref[T]{value: &zero, pooled: false}
		}
		next := c.slots[idx].next
		newHead := pack(next, head.tag()+1)
		if c.head.CompareAndSwapAcqRel(raw, uint64(newHead)) {
			c.stats.recordHit()
			return Ref[T]{value: &c.slots[idx].value, index: idx, pooled: true}
		}
	}
}

// Put returns a checked-out object to the free-list. Refs that came from a
// heap fallback (Pooled() == false) are silently dropped.
func (c *Class[T]) Put(ref Ref[T]) {
	if !ref.pooled {
		return
	}
	var zero T
	*ref.value = zero
	for {
		raw := c.head.LoadAcquire()
		head := taggedHead(raw)
		c.slots[ref.index].next = head.index()
		newHead := pack(ref.index, head.tag()+1)
		if c.head.CompareAndSwapAcqRel(raw, uint64(newHead)) {
			c.stats.recordPut()
			return
		}
	}
}

// Stats returns the class's allocation statistics.
func (c *Class[T]) Stats() *Stats { return &c.stats }

// Cap returns the number of objects the class was constructed with.
func (c *Class[T]) Cap() int { return len(c.slots) }
