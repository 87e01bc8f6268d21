// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lfq provides the bounded, lock-free FIFO queues that back the
// routing fabric's hot paths: the per-topic channels inside the message
// bus, and any other producer/consumer handoff that must never block or
// allocate.
//
// Three specializations are provided, chosen by the access pattern the
// caller actually has:
//
//   - SPSC: single-producer single-consumer (Lamport ring buffer, wait-free)
//   - MPSC: multi-producer single-consumer (FAA/SCQ)
//   - MPMC: multi-producer multi-consumer (FAA/SCQ) — what bus.Channel uses
//
// # Quick start
//
//	ch := lfq.NewMPMC[bus.Envelope](4096)
//
//	env := bus.Envelope{Topic: "plant/line1/temp"}
//	if err := ch.Enqueue(&env); err != nil {
//	    // ErrWouldBlock: channel is full, apply the configured DropPolicy
//	}
//
//	env, err := ch.Dequeue()
//	if err == nil {
//	    dispatch(env)
//	}
//
// # Algorithm notes
//
// MPSC and MPMC use Nikolaev's Scalable Circular Queue (SCQ, DISC 2019):
// producers and consumers blindly Fetch-And-Add a position counter and
// claim the corresponding slot, trading 2n physical slots (for capacity n)
// for contention scalability that beats CAS-based alternatives under load.
// Each slot carries a cycle counter for ABA-safe validation: a slot is full
// when its cycle matches the expected round for the current position, empty
// when it lags by exactly one round, and the queue is full/empty when
// neither holds.
//
// SPSC needs none of that: with exactly one producer and one consumer, a
// classic Lamport ring with cached cross-core indices is both simpler and
// faster, and uses only n physical slots.
//
// # Graceful shutdown
//
// FAA-based queues (MPSC, MPMC) carry a threshold to prevent livelock under
// heavy contention; this can make Dequeue report ErrWouldBlock even with
// items still queued, while producers are quiet. Once all producers have
// stopped, call Drain to let consumers empty the queue without waiting on
// producer activity:
//
//	producerWg.Wait()
//	if d, ok := any(ch).(lfq.Drainer); ok {
//	    d.Drain()
//	}
//
// # Thread safety
//
// Each type enforces its own access pattern; using a queue outside its
// documented pattern (e.g. two producers on an SPSC) is undefined behavior,
// not a checked error.
//
// # Race detection
//
// Go's race detector tracks explicit synchronization (mutexes, channels,
// WaitGroups) but cannot observe the happens-before relationships these
// algorithms establish purely through acquire/release atomics on separate
// variables. Concurrent correctness here is verified by stress testing and
// by invariant checks (subsequence property, no double-pop, non-negative
// counters), not by the race detector. RaceEnabled reports whether the
// current build has the race detector on; this package's tests do not
// consult it.
//
// # Dependencies
//
// This package uses code.hybscloud.com/iox for semantic errors,
// code.hybscloud.com/atomix for atomics with explicit memory ordering, and
// code.hybscloud.com/spin for CPU-pause backoff in retry loops.
package lfq
