package queue

import "container/heap"

// messageHeap orders *Message by priority descending, then by FIFO seq
// ascending within a priority tier (§5.1 batch selection).
type messageHeap []*Message

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) {
	*h = append(*h, x.(*Message))
}

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// readyQueue wraps a messageHeap with the standard container/heap
// interface calls, plus a removal path for TTL expiry sweeps.
type readyQueue struct {
	items messageHeap
	nextSeq uint64
}

func newReadyQueue() *readyQueue {
	rq := &readyQueue{items: messageHeap{}}
	heap.Init(&rq.items)
	return rq
}

func (rq *readyQueue) push(m *Message) {
	rq.nextSeq++
	m.seq = rq.nextSeq
	heap.Push(&rq.items, m)
}

func (rq *readyQueue) pop() (*Message, bool) {
	if rq.items.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&rq.items).(*Message), true
}

func (rq *readyQueue) len() int { return rq.items.Len() }

// removeExpired drops every message for which isExpired returns true and
// returns the removed messages.
func (rq *readyQueue) removeExpired(isExpired func(*Message) bool) []*Message {
	var kept messageHeap
	var expired []*Message
	for _, m := range rq.items {
		if isExpired(m) {
			expired = append(expired, m)
		} else {
			kept = append(kept, m)
		}
	}
	rq.items = kept
	heap.Init(&rq.items)
	return expired
}
