// Package point defines the value-typed telemetry sample that flows through
// the routing fabric, and the small allocation-free helpers (FixedString,
// Clock) the hot path is built on.
package point

// FixedStringCap is the inline capacity for addresses and topic names on
// the hot path, matching the 64-byte cap in ipb/common/fixed_string.hpp.
const FixedStringCap = 64

// FixedString is a stack-allocated, fixed-capacity string used for sample
// addresses and short topic names. It never allocates on the heap and is
// safe to copy by value.
type FixedString struct {
	data [FixedStringCap]byte
	n    uint8
}

// NewFixedString builds a FixedString from s, truncating at FixedStringCap.
// Overflow is reported so callers on the hot path can fall back to interning
// rather than silently losing bytes.
func NewFixedString(s string) (FixedString, bool) {
	var fs FixedString
	fits := len(s) <= FixedStringCap
	n := copy(fs.data[:], s)
	fs.n = uint8(n)
	return fs, fits
}

// String returns the stored value.
func (f FixedString) String() string {
	return string(f.data[:f.n])
}

// Len returns the stored length in bytes.
func (f FixedString) Len() int {
	return int(f.n)
}

// Empty reports whether the string holds zero bytes.
func (f FixedString) Empty() bool {
	return f.n == 0
}

// Equal compares two FixedStrings by value.
func (f FixedString) Equal(other FixedString) bool {
	return f.n == other.n && f.data == other.data
}
