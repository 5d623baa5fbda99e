package sim

import (
	"container/heap"
	"sync"
)

// queueItem pairs an event with an insertion sequence number. The sequence
// keeps the heap ordering stable for events sharing a timestamp, so two runs
// with the same inputs pop in the same order.
type queueItem struct {
	event Event
	seq   uint64
}

// eventHeap implements container/heap. Admin events sort before everything
// else; among the rest, earlier time wins, then earlier insertion.
type eventHeap []queueItem

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	aAdmin := a.event.Kind == KindAdmin
	bAdmin := b.event.Kind == KindAdmin
	if aAdmin != bAdmin {
		return aAdmin
	}
	if !aAdmin && a.event.Time != b.event.Time {
		return a.event.Time < b.event.Time
	}
	return a.seq < b.seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// eventQueue is the only shared mutable state in the simulation: the main
// loop pops from it and the admin listener goroutine pushes into it. The
// mutex is scoped to a single push or pop.
type eventQueue struct {
	mu      sync.Mutex
	heap    eventHeap
	nextSeq uint64
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	heap.Init(&q.heap)
	return q
}

// push adds an event to the queue.
func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.heap, queueItem{event: e, seq: q.nextSeq})
	q.nextSeq++
}

// pop removes and returns the highest-priority event, or ok=false when the
// queue is empty.
func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return Event{}, false
	}
	item := heap.Pop(&q.heap).(queueItem)
	return item.event, true
}

// len reports the number of queued events.
func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
