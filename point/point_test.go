package point

import "testing"

func TestNewSampleRejectsEmptyAddress(t *testing.T) {
	if _, err := NewSample("", 1, IntValue(1), QualityGood, 1); err == nil {
		t.Fatal("NewSample with empty address succeeded, want error")
	}
}

func TestNewSampleRoundTripsAddress(t *testing.T) {
	s, err := NewSample("plant/line1/temp", 7, DoubleValue(23.5), QualityGood, 42)
	if err != nil {
		t.Fatalf("NewSample: %v", err)
	}
	if s.Address.String() != "plant/line1/temp" {
		t.Fatalf("Address = %q, want plant/line1/temp", s.Address.String())
	}
	if s.ProtocolID != 7 || s.TimestampNs != 42 {
		t.Fatalf("unexpected sample fields: %+v", s)
	}
	v, ok := s.Value.Double()
	if !ok || v != 23.5 {
		t.Fatalf("Value.Double() = %v, %v, want 23.5, true", v, ok)
	}
}

func TestValueExactlyOneVariantInhabited(t *testing.T) {
	v := IntValue(5)
	if _, ok := v.Bool(); ok {
		t.Fatal("IntValue reports Bool() ok, want false")
	}
	if _, ok := v.Uint(); ok {
		t.Fatal("IntValue reports Uint() ok, want false")
	}
	if _, ok := v.Double(); ok {
		t.Fatal("IntValue reports Double() ok, want false")
	}
	iv, ok := v.Int()
	if !ok || iv != 5 {
		t.Fatalf("Int() = %v, %v, want 5, true", iv, ok)
	}
}

func TestBytesValueReportsTruncation(t *testing.T) {
	fits := make([]byte, BytesCap)
	_, ok := BytesValue(fits)
	if !ok {
		t.Fatal("BytesValue at exactly BytesCap reported truncation")
	}

	overflow := make([]byte, BytesCap+1)
	_, ok = BytesValue(overflow)
	if ok {
		t.Fatal("BytesValue over BytesCap did not report truncation")
	}
}

func TestFixedStringTruncatesAndReportsOverflow(t *testing.T) {
	long := make([]byte, FixedStringCap+10)
	for i := range long {
		long[i] = 'a'
	}
	fs, fits := NewFixedString(string(long))
	if fits {
		t.Fatal("NewFixedString over cap reported fits=true")
	}
	if fs.Len() != FixedStringCap {
		t.Fatalf("Len() = %d, want %d", fs.Len(), FixedStringCap)
	}
}

func TestFixedStringEqual(t *testing.T) {
	a, _ := NewFixedString("plant/line1/temp")
	b, _ := NewFixedString("plant/line1/temp")
	c, _ := NewFixedString("plant/line2/temp")
	if !a.Equal(b) {
		t.Fatal("identical FixedStrings compared unequal")
	}
	if a.Equal(c) {
		t.Fatal("different FixedStrings compared equal")
	}
}

func TestFixedStringEmpty(t *testing.T) {
	var fs FixedString
	if !fs.Empty() {
		t.Fatal("zero-value FixedString.Empty() = false, want true")
	}
}

func TestSystemClockMonotonicNonDecreasing(t *testing.T) {
	c := SystemClock{}
	a := c.MonotonicNs()
	b := c.MonotonicNs()
	if b < a {
		t.Fatalf("MonotonicNs went backwards: %d then %d", a, b)
	}
}
