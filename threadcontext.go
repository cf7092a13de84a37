package qlog

import (
	"sync/atomic"
)

// threadContext is the per-producer-goroutine logging state: the queue the
// goroutine writes records into, its drop accounting and its liveness.
// Only the owning goroutine writes to the queue; only the backend reads it.
type threadContext struct {
	queue byteQueue

	// gid is the owning goroutine's id, kept for diagnostics
	gid int64

	// regID orders contexts deterministically when timestamps tie
	regID uint64

	// dropped counts records rejected by a full bounded queue
	dropped atomic.Uint64

	// invalid is raised when the owning goroutine detaches. The context
	// is reclaimed only once its queue is drained and the backend holds
	// no event that still references it.
	invalid atomic.Bool

	// Backend-only bookkeeping
	reportedDropped uint64 // drops already sent to the error handler
	pendingEvents   int    // events of this context still in the heap
	arrivalSeq      uint64 // per-context arrival counter for tie-breaks
}

// newThreadContext builds a context with the queue variant the engine was
// configured with.
func newThreadContext(gid int64, regID uint64, bounded bool, capacity int) *threadContext {
	tc := &threadContext{gid: gid, regID: regID}
	if bounded {
		tc.queue = newBoundedQueue(capacity)
	} else {
		tc.queue = newUnboundedQueue(capacity)
	}
	return tc
}

// peekTimestamp returns the timestamp of the oldest still-queued record
func (tc *threadContext) peekTimestamp() (uint64, bool) {
	b := tc.queue.prepareRead()
	if len(b) < headerSize {
		return 0, false
	}
	return peekTimestamp(b), true
}
