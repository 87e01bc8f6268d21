package pattern

import (
	"testing"
)

func TestValidatorRejectsNestedQuantifiers(t *testing.T) {
	v := NewValidator()
	cases := []string{"(a+)+", "(a*)*", "(a+)*b", "(a*)+b"}
	for _, p := range cases {
		r := v.Validate(p)
		if r.Safe {
			t.Errorf("Validate(%q).Safe = true, want false (nested quantifier)", p)
		}
		if !r.HasNestedQuantifier {
			t.Errorf("Validate(%q).HasNestedQuantifier = false, want true", p)
		}
	}
}

func TestValidatorRejectsBackreferences(t *testing.T) {
	v := NewValidator()
	r := v.Validate(`(a)\1`)
	if r.Safe {
		t.Fatal("Validate backreference: Safe = true, want false")
	}
	if !r.HasBackreferences {
		t.Fatal("Validate backreference: HasBackreferences = false, want true")
	}
}

func TestValidatorRejectsOverLengthPattern(t *testing.T) {
	v := &Validator{MaxLength: 8, MaxComplexity: 50}
	r := v.Validate("123456789")
	if r.Safe {
		t.Fatal("Validate over-length pattern: Safe = true, want false")
	}
}

func TestValidatorAcceptsSimplePatterns(t *testing.T) {
	v := NewValidator()
	for _, p := range []string{"plant/line1/temp", "plant/*/temp", "^plant/[0-9]+/temp$"} {
		r := v.Validate(p)
		if !r.Safe {
			t.Errorf("Validate(%q).Safe = false, want true (reason: %s)", p, r.Reason)
		}
	}
}

func TestGetOrCompileAgreesWithValidate(t *testing.T) {
	c := New(DefaultConfig())
	v := NewValidator()

	unsafe := "(a+)+b"
	_, err := c.GetOrCompile(unsafe)
	validated := v.Validate(unsafe)
	if (err == nil) != validated.Safe {
		t.Fatalf("GetOrCompile success=%v but Validate.Safe=%v for %q", err == nil, validated.Safe, unsafe)
	}

	safe := "plant/line1/temp"
	_, err = c.GetOrCompile(safe)
	validated = v.Validate(safe)
	if (err == nil) != validated.Safe {
		t.Fatalf("GetOrCompile success=%v but Validate.Safe=%v for %q", err == nil, validated.Safe, safe)
	}
}

func TestGetOrCompileReturnsSameEntryOnRepeat(t *testing.T) {
	c := New(DefaultConfig())
	e1, err := c.GetOrCompile("plant/+/temp")
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	e2, err := c.GetOrCompile("plant/+/temp")
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if e1 != e2 {
		t.Fatal("GetOrCompile returned a different entry pointer on the second call")
	}
}

func TestCacheSizeNeverExceedsCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 4
	c := New(cfg)
	for i := 0; i < 20; i++ {
		if _, err := c.GetOrCompile(string(rune('a' + i))); err != nil {
			t.Fatalf("GetOrCompile(%d): %v", i, err)
		}
		if c.Len() > cfg.MaxSize {
			t.Fatalf("cache len %d exceeds cap %d after %d inserts", c.Len(), cfg.MaxSize, i+1)
		}
	}
	if c.Stats().Evictions() == 0 {
		t.Fatal("expected at least one eviction once the cache exceeded its cap")
	}
}

func TestSimplePatternShortCircuitsMatching(t *testing.T) {
	c := New(DefaultConfig())

	exact, err := c.GetOrCompile("plant/line1/temp")
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if !exact.Matches("plant/line1/temp") || exact.Matches("plant/line2/temp") {
		t.Fatal("exact pattern matched incorrectly")
	}

	prefix, err := c.GetOrCompile("plant/line1/*")
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if !prefix.Matches("plant/line1/temp") || prefix.Matches("plant/line2/temp") {
		t.Fatal("prefix pattern matched incorrectly")
	}

	suffix, err := c.GetOrCompile("*/temp")
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if !suffix.Matches("plant/line1/temp") || suffix.Matches("plant/line1/pressure") {
		t.Fatal("suffix pattern matched incorrectly")
	}
}

func TestRegexPatternMatches(t *testing.T) {
	c := New(DefaultConfig())
	e, err := c.GetOrCompile(`^plant/line[0-9]+/temp$`)
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if !e.Matches("plant/line1/temp") {
		t.Fatal("expected match for plant/line1/temp")
	}
	if e.Matches("plant/lineX/temp") {
		t.Fatal("unexpected match for plant/lineX/temp")
	}
}

func TestRemoveAndClear(t *testing.T) {
	c := New(DefaultConfig())
	if _, err := c.GetOrCompile("a"); err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	c.Remove("a")
	if c.Len() != 0 {
		t.Fatalf("Len() after Remove = %d, want 0", c.Len())
	}
	if _, err := c.GetOrCompile("a"); err != nil {
		t.Fatalf("GetOrCompile after Remove: %v", err)
	}
	if _, err := c.GetOrCompile("b"); err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", c.Len())
	}
}
