package tracker

import "container/heap"

// scheduler is a deadline-ordered queue of pending resolutions. Groups with
// equal deadlines fire in insertion order, which keeps resolution order
// deterministic under synthetic time in tests.
type scheduler struct {
	items deadlineHeap
	seq   uint64
}

type deadlineItem struct {
	deadline float64
	seq      uint64
	key      string
}

func (s *scheduler) schedule(key string, deadline float64) {
	s.seq++
	heap.Push(&s.items, deadlineItem{deadline: deadline, seq: s.seq, key: key})
}

// next returns the earliest pending deadline.
func (s *scheduler) next() (float64, bool) {
	if len(s.items) == 0 {
		return 0, false
	}
	return s.items[0].deadline, true
}

// pop removes and returns the key of the earliest entry due at or before now.
func (s *scheduler) pop(now float64) (string, bool) {
	if len(s.items) == 0 || s.items[0].deadline > now {
		return "", false
	}
	item := heap.Pop(&s.items).(deadlineItem)
	return item.key, true
}

func (s *scheduler) len() int {
	return len(s.items)
}

type deadlineHeap []deadlineItem

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h deadlineHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) {
	*h = append(*h, x.(deadlineItem))
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
