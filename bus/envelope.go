// Package bus implements the lock-free, topic-routed message bus that
// carries samples (and control/heartbeat/scheduler traffic) between scoops,
// the rule engine, and sinks.
package bus

import (
	"github.com/jcnm/ipb-sub001/point"
)

// Kind distinguishes envelope payload shapes for dispatch.
type Kind uint8

const (
	KindPoint Kind = iota
	KindBatch
	KindControl
	KindHeartbeat
	KindDeadlineTask
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindBatch:
		return "batch"
	case KindControl:
		return "control"
	case KindHeartbeat:
		return "heartbeat"
	case KindDeadlineTask:
		return "deadline_task"
	default:
		return "unknown"
	}
}

// Priority ranks envelopes for dispatch. Within a channel dispatch is FIFO;
// REALTIME envelopes preempt the round-robin dispatcher ordering across
// channels.
type Priority uint8

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 64
	PriorityHigh     Priority = 128
	PriorityRealtime Priority = 255
)

// Envelope is the unit of transport on the bus. It is a plain value type so
// it can be copied into and out of an lfq queue slot without allocation.
type Envelope struct {
	Kind        Kind
	Priority    Priority
	SourceID    point.FixedString
	Topic       string
	Sample      point.Sample
	Batch       []point.Sample
	DeadlineNs  int64
	Sequence    uint64
	TimestampNs int64
}

// NewPointEnvelope builds an envelope carrying a single sample.
func NewPointEnvelope(topic string, sample point.Sample, priority Priority, clock point.Clock) Envelope {
	return Envelope{
		Kind:        KindPoint,
		Priority:    priority,
		Topic:       topic,
		Sample:      sample,
		TimestampNs: clock.MonotonicNs(),
	}
}

// NewBatchEnvelope builds an envelope carrying a batch of samples.
func NewBatchEnvelope(topic string, batch []point.Sample, priority Priority, clock point.Clock) Envelope {
	return Envelope{
		Kind:        KindBatch,
		Priority:    priority,
		Topic:       topic,
		Batch:       batch,
		TimestampNs: clock.MonotonicNs(),
	}
}
