package qlog

import "sync"

// transitEvent is a decoded record waiting in the backend's priority queue
// for its turn in the global timestamp order.
type transitEvent struct {
	ctx       *threadContext
	desc      *Descriptor
	logger    *Logger
	timestamp uint64
	seq       uint64 // per-context arrival order
	threadID  int64  // producer goroutine id, kept past context reclamation
	formatted []byte
	flushID   uint64 // only for EventFlush
}

var transitPool = sync.Pool{
	New: func() any { return &transitEvent{formatted: make([]byte, 0, 256)} },
}

func newTransitEvent() *transitEvent {
	return transitPool.Get().(*transitEvent)
}

func releaseTransitEvent(ev *transitEvent) {
	ev.ctx = nil
	ev.desc = nil
	ev.logger = nil
	ev.formatted = ev.formatted[:0]
	transitPool.Put(ev)
}

// transitHeap is a min-heap of transit events. Events order by timestamp;
// equal timestamps break ties deterministically by context identity, then
// by arrival order within the context's queue.
type transitHeap []*transitEvent

func (h transitHeap) Len() int { return len(h) }

func (h transitHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.timestamp != b.timestamp {
		return a.timestamp < b.timestamp
	}
	if a.ctx != b.ctx {
		return a.ctx.regID < b.ctx.regID
	}
	return a.seq < b.seq
}

func (h transitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *transitHeap) Push(x any) { *h = append(*h, x.(*transitEvent)) }

func (h *transitHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
