package point

import "time"

// Clock supplies monotonic and wall-clock readings. The core never calls
// time.Now directly so that EDF ordering and latency properties can be
// driven deterministically in tests, injecting controllable timing the
// way a fake clock would.
type Clock interface {
	// Now returns the wall-clock time, used for on-the-wire timestamps.
	Now() time.Time
	// MonotonicNs returns a monotonically non-decreasing nanosecond
	// timestamp, used for deadlines and latency measurement.
	MonotonicNs() int64
}

// SystemClock is the default Clock, backed by the real wall and monotonic
// clocks.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// monoBase anchors MonotonicNs to the Unix-epoch nanosecond scale; elapsed
// time since it comes from the monotonic reading time.Time carries.
var monoBase = time.Now()

// MonotonicNs implements Clock.
func (SystemClock) MonotonicNs() int64 { return monoBase.UnixNano() + int64(time.Since(monoBase)) }
