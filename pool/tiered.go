package pool

// Tier identifies a size class in a Tiered pool.
type Tier int

const (
	// Tier64 holds buffers up to 64 bytes — room for a point.FixedString's
	// 64-byte inline storage.
	Tier64 Tier = iota
	// Tier256 holds buffers up to 256 bytes — a handful of samples, or one
	// destination set.
	Tier256
	// Tier1024 holds buffers up to 1024 bytes — a small batch envelope.
	Tier1024
	// tierHeap is not a pooled tier: anything larger falls straight to the
	// heap and is never returned to a Class.
	tierHeap
)

const (
	tier64Bytes   = 64
	tier256Bytes  = 256
	tier1024Bytes = 1024
)

// Buffer is a pooled byte buffer. len(Bytes) is the size the caller asked
// for; cap(Bytes) may be larger (the backing array is sized to the tier,
// not the request).
type Buffer struct {
	Bytes []byte
	tier  Tier
	ref   any
}

// Tiered is a byte-buffer pool with three fixed size classes plus an
// unpooled heap fallback for anything larger than the largest class. It
// exists for Scoop/Sink implementations that need a scratch buffer for
// wire-format encoding or decoding (protocol adapters outside this module,
// which only defines the Scoop/Sink interfaces); nothing in this module's
// own hot path serializes to bytes, so it allocates none itself today.
type Tiered struct {
	t64   *Class[[tier64Bytes]byte]
	t256  *Class[[tier256Bytes]byte]
	t1024 *Class[[tier1024Bytes]byte]
}

// TieredConfig sizes each tier's backing Class.
type TieredConfig struct {
	Capacity64   int
	Capacity256  int
	Capacity1024 int
}

// DefaultTieredConfig returns sane defaults for a single bus instance.
func DefaultTieredConfig() TieredConfig {
	return TieredConfig{Capacity64: 4096, Capacity256: 2048, Capacity1024: 512}
}

// NewTiered constructs a tiered pool from cfg.
func NewTiered(cfg TieredConfig) *Tiered {
	return &Tiered{
		t64:   NewClass[[tier64Bytes]byte](cfg.Capacity64),
		t256:  NewClass[[tier256Bytes]byte](cfg.Capacity256),
		t1024: NewClass[[tier1024Bytes]byte](cfg.Capacity1024),
	}
}

// TierFor returns which tier a request of n bytes lands in.
func TierFor(n int) Tier {
	switch {
	case n <= tier64Bytes:
		return Tier64
	case n <= tier256Bytes:
		return Tier256
	case n <= tier1024Bytes:
		return Tier1024
	default:
		return tierHeap
	}
}

// Get returns a buffer with at least n bytes of capacity, from the smallest
// tier that fits or from the heap if n exceeds every tier.
func (t *Tiered) Get(n int) Buffer {
	switch TierFor(n) {
	case Tier64:
		ref := t.t64.Get()
		return Buffer{Bytes: ref.value[:n], tier: Tier64, ref: ref}
	case Tier256:
		ref := t.t256.Get()
		return Buffer{Bytes: ref.value[:n], tier: Tier256, ref: ref}
	case Tier1024:
		ref := t.t1024.Get()
		return Buffer{Bytes: ref.value[:n], tier: Tier1024, ref: ref}
	default:
		return Buffer{Bytes: make([]byte, n), tier: tierHeap}
	}
}

// Put returns b to its originating tier. Heap-fallback buffers are dropped.
func (t *Tiered) Put(b Buffer) {
	switch b.tier {
	case Tier64:
		t.t64.Put(b.ref.(Ref[[tier64Bytes]byte]))
	case Tier256:
		t.t256.Put(b.ref.(Ref[[tier256Bytes]byte]))
	case Tier1024:
		t.t1024.Put(b.ref.(Ref[[tier1024Bytes]byte]))
	}
}

// StatsFor returns the Stats for a given tier, or nil for tierHeap.
func (t *Tiered) StatsFor(tier Tier) *Stats {
	switch tier {
	case Tier64:
		return t.t64.Stats()
	case Tier256:
		return t.t256.Stats()
	case Tier1024:
		return t.t1024.Stats()
	default:
		return nil
	}
}
