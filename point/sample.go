package point

import "fmt"

// Quality reflects the trustworthiness of a Sample's value, as reported by
// the originating scoop.
type Quality uint8

const (
	QualityGood Quality = iota
	QualityBad
	QualityUncertain
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "GOOD"
	case QualityBad:
		return "BAD"
	case QualityUncertain:
		return "UNCERTAIN"
	default:
		return "UNKNOWN"
	}
}

// Kind tags which field of Value is inhabited. Exactly one slot is valid for
// any given Value — this is the Go stand-in for the tagged union
// ipb::common::Value uses in the C++ prototype.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindUint
	KindDouble
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindDouble:
		return "double"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// BytesCap bounds the inline short-blob variant so Value stays a small,
// copyable, stack-friendly value type (no heap slice on the hot path).
const BytesCap = 16

// Value is a tagged union over the protocol value types a Sample can carry.
// It is copyable and trivially destructible; there is no heap allocation
// associated with any variant.
type Value struct {
	kind     Kind
	b        bool
	i        int64
	u        uint64
	f        float64
	bytes    [BytesCap]byte
	bytesLen uint8
}

// BoolValue constructs a boolean-valued Value.
func BoolValue(v bool) Value { return Value{kind: KindBool, b: v} }

// IntValue constructs a signed-integer-valued Value.
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// UintValue constructs an unsigned-integer-valued Value.
func UintValue(v uint64) Value { return Value{kind: KindUint, u: v} }

// DoubleValue constructs a floating-point-valued Value.
func DoubleValue(v float64) Value { return Value{kind: KindDouble, f: v} }

// BytesValue constructs a short-blob-valued Value. b is truncated to
// BytesCap; ok reports whether it fit without truncation.
func BytesValue(b []byte) (v Value, ok bool) {
	v.kind = KindBytes
	n := copy(v.bytes[:], b)
	v.bytesLen = uint8(n)
	return v, n == len(b)
}

// Kind reports which variant is inhabited.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean variant and whether the Value actually holds one.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int returns the signed-integer variant and whether the Value holds one.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Uint returns the unsigned-integer variant and whether the Value holds one.
func (v Value) Uint() (uint64, bool) { return v.u, v.kind == KindUint }

// Double returns the floating-point variant and whether the Value holds one.
func (v Value) Double() (float64, bool) { return v.f, v.kind == KindDouble }

// Bytes returns the short-blob variant and whether the Value holds one.
func (v Value) Bytes() ([]byte, bool) {
	return v.bytes[:v.bytesLen], v.kind == KindBytes
}

// String renders the inhabited variant for logging and debugging.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindUint:
		return fmt.Sprintf("%d", v.u)
	case KindDouble:
		return fmt.Sprintf("%g", v.f)
	case KindBytes:
		return fmt.Sprintf("% x", v.bytes[:v.bytesLen])
	default:
		return "<invalid>"
	}
}

// Sample is one telemetry reading from a field device at an instant.
// Samples are value-typed, copyable, and trivially destructible: they are
// created by scoops and die by ring-slot reuse once every subscriber has
// consumed them, with no heap reference counting on the hot path.
type Sample struct {
	Address    FixedString
	ProtocolID uint32
	Value      Value
	Quality    Quality
	// TimestampNs is a monotonic nanosecond timestamp, non-decreasing within
	// a single source.
	TimestampNs int64
}

// NewSample builds a Sample. address must be non-empty — the zero Sample is
// never a valid Sample.
func NewSample(address string, protocolID uint32, value Value, quality Quality, timestampNs int64) (Sample, error) {
	if address == "" {
		return Sample{}, fmt.Errorf("point: sample address must not be empty")
	}
	fs, _ := NewFixedString(address)
	return Sample{
		Address:     fs,
		ProtocolID:  protocolID,
		Value:       value,
		Quality:     quality,
		TimestampNs: timestampNs,
	}, nil
}
