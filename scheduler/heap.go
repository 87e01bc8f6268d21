package scheduler

// taskHeap is a container/heap.Interface ordered earliest-deadline-first,
// tie-broken by higher priority, then by earlier arrival.
//
// No third-party priority-queue library appears anywhere in the retrieved
// corpus, so this is a mutex-guarded stdlib container/heap baseline
// (O(log n) push/pop).
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.DeadlineNs != b.DeadlineNs {
		return a.DeadlineNs < b.DeadlineNs
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ArrivalNs < b.ArrivalNs
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}
