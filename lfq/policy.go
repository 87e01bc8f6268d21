// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfq

// DropPolicy selects what an overflowing bounded queue does when Enqueue
// would block: the raw queues only report ErrWouldBlock and leave the
// decision to the caller — this is that caller-side policy, used by the
// message bus's channel publish path.
type DropPolicy uint8

const (
	// DropNewest discards the envelope that triggered the overflow.
	DropNewest DropPolicy = iota
	// DropOldest evicts the queue's oldest entry to make room by dequeuing
	// it, then retries the enqueue once.
	DropOldest
	// Block is prohibited on the real-time path; present only so callers
	// that explicitly opt into REJECT semantics (control-plane submission,
	// never the hot path) can request it.
	Block
)

// EnqueueWithPolicy applies policy to a bounded MPMC queue's Enqueue,
// returning whether the element was retained and whether an existing entry
// was dropped to make room for it.
func EnqueueWithPolicy[T any](q *MPMC[T], elem *T, policy DropPolicy) (retained, dropped bool, err error) {
	err = q.Enqueue(elem)
	if err == nil {
		return true, false, nil
	}
	if !IsWouldBlock(err) {
		return false, false, err
	}
	switch policy {
	case DropNewest:
		return false, true, nil
	case DropOldest:
		if _, derr := q.Dequeue(); derr == nil {
			if err = q.Enqueue(elem); err == nil {
				return true, true, nil
			}
		}
		return false, true, nil
	default: // Block / Reject: the hot path never uses this, caller rejects.
		return false, false, err
	}
}
