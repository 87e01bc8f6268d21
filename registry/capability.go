package registry

import (
	"time"

	"github.com/jcnm/ipb-sub001/point"
)

// Metrics is the counter snapshot a Sink or Scoop reports. Lifecycle calls
// report failure through their returned error; there is no separate result
// type.
type Metrics struct {
	Sent    uint64
	Failed  uint64
	Bytes   uint64
	Pending int64
}

// Subscription is the minimal handle a Scoop's Subscribe returns. It
// mirrors bus.Subscription's cancel contract without importing package
// bus, which would create an import cycle (bus is a collaborator of the
// orchestrator, not of registry).
type Subscription interface {
	Cancel()
}

// Scoop is an input adapter: a source of samples. The registry only calls
// lifecycle and health methods; Scoop implementations emit samples by
// invoking a bus Publish directly, outside this interface.
type Scoop interface {
	Initialize(config any) error
	Start() error
	Stop() error
	Shutdown() error
	Subscribe(topicPattern string, callback func(point.Sample)) (Subscription, error)
	IsHealthy() bool
	Metrics() Metrics
}

// Sink is an output adapter: a destination for samples.
type Sink interface {
	Initialize(config any) error
	Start() error
	Stop() error
	Write(sample point.Sample) error
	WriteBatch(samples []point.Sample) error
	IsHealthy() bool
	Metrics() Metrics
}

// Config controls a Table's health-check worker.
type Config struct {
	// HealthCheckInterval is the period between probe sweeps. Defaults to
	// 5s.
	HealthCheckInterval time.Duration
	// FailureThreshold is the number of consecutive failed probes before
	// an entry is demoted to UNHEALTHY. Defaults to 3.
	FailureThreshold int
	// Clock supplies probe timestamps.
	Clock point.Clock
}

// DefaultConfig returns the registry's default health-check configuration.
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval: 5 * time.Second,
		FailureThreshold:    3,
		Clock:               point.SystemClock{},
	}
}
