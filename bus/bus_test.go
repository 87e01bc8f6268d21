package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/jcnm/ipb-sub001/lfq"
	"github.com/jcnm/ipb-sub001/point"
)

func mustSample(t *testing.T, addr string) point.Sample {
	t.Helper()
	s, err := point.NewSample(addr, 1, point.DoubleValue(23.5), point.QualityGood, 1)
	if err != nil {
		t.Fatalf("NewSample: %v", err)
	}
	return s
}

func TestPublishSubscribeExactTopic(t *testing.T) {
	b := New(DefaultConfig())
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	var mu sync.Mutex
	var got []point.Sample
	done := make(chan struct{}, 1)
	_, err := b.Subscribe("plant/line1/temp", func(env Envelope) {
		mu.Lock()
		got = append(got, env.Sample)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sample := mustSample(t, "plant/line1/temp")
	if err := b.Publish("plant/line1/temp", sample, PriorityNormal); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Address.String() != "plant/line1/temp" {
		t.Fatalf("unexpected delivery: %+v", got)
	}
}

func TestWildcardSubscriptionMatchesLaterTopic(t *testing.T) {
	b := New(DefaultConfig())
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	received := make(chan Envelope, 4)
	_, err := b.Subscribe("plant/+/temp", func(env Envelope) {
		received <- env
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for _, topic := range []string{"plant/line1/temp", "plant/line2/temp", "plant/line1/pressure"} {
		if err := b.Publish(topic, mustSample(t, topic), PriorityNormal); err != nil {
			t.Fatalf("Publish %s: %v", topic, err)
		}
	}

	matched := 0
	timeout := time.After(time.Second)
	for matched < 2 {
		select {
		case env := <-received:
			if env.Topic == "plant/line1/pressure" {
				t.Fatalf("unexpected delivery for non-matching topic: %s", env.Topic)
			}
			matched++
		case <-timeout:
			t.Fatalf("only matched %d of 2 expected envelopes", matched)
		}
	}
}

// TestOverflowDropNewestRetainsOldest publishes past capacity directly
// against a Channel, bypassing the Bus dispatcher pool so the ring is
// guaranteed to still hold its contents when inspected.
func TestOverflowDropNewestRetainsOldest(t *testing.T) {
	ch := newChannel("plant/line1/temp", 4, lfq.DropNewest)

	for i := 0; i < 6; i++ {
		ch.Publish(Envelope{Kind: KindPoint, Topic: ch.Topic, Sequence: uint64(i)})
	}

	if got := ch.Stats().Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}

	retained := 0
	for {
		env, ok := ch.Drain()
		if !ok {
			break
		}
		if env.Sequence != uint64(retained) {
			t.Fatalf("drained Sequence %d at position %d, want the oldest envelopes in order", env.Sequence, retained)
		}
		retained++
	}
	if retained != 4 {
		t.Fatalf("retained %d envelopes, want 4", retained)
	}
}

func TestSubscriptionCancelStopsDelivery(t *testing.T) {
	b := New(DefaultConfig())
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	var calls int
	var mu sync.Mutex
	sub, err := b.Subscribe("plant/line1/temp", func(Envelope) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub.Cancel()

	if err := b.Publish("plant/line1/temp", mustSample(t, "plant/line1/temp"), PriorityNormal); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("callback invoked %d times after Cancel", calls)
	}
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"plant/+/temp", "plant/line1/temp", true},
		{"plant/+/temp", "plant/line1/line2/temp", false},
		{"plant/#", "plant/line1/temp", true},
		{"plant/#", "plant", true},
		{"plant/line1/#", "plant/line1", true},
		{"plant/line1/#", "plant/line1/temp/raw", true},
		{"plant/line1/temp", "plant/line1/temp", true},
		{"plant/line1/temp", "plant/line1/pressure", false},
	}
	for _, c := range cases {
		if got := matchTopic(c.pattern, c.topic); got != c.want {
			t.Errorf("matchTopic(%q, %q) = %v, want %v", c.pattern, c.topic, got, c.want)
		}
	}
}
