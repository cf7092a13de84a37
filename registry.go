package qlog

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// contextRegistry tracks every live thread context so the backend can
// discover producer queues. Registration and reaping take a lock; the
// backend's per-iteration view is a lock-free snapshot load.
type contextRegistry struct {
	mu    sync.Mutex
	byGid sync.Map // goroutine id -> *threadContext
	snap  atomic.Pointer[[]*threadContext]

	nextRegID atomic.Uint64

	bounded  bool
	capacity int
}

func newContextRegistry(bounded bool, capacity int) *contextRegistry {
	r := &contextRegistry{bounded: bounded, capacity: capacity}
	empty := make([]*threadContext, 0)
	r.snap.Store(&empty)
	return r
}

// current returns the calling goroutine's context, creating and
// registering it on first use.
func (r *contextRegistry) current() *threadContext {
	gid := goid.Get()
	if v, ok := r.byGid.Load(gid); ok {
		return v.(*threadContext)
	}
	return r.register(gid)
}

// register is the slow path of current
func (r *contextRegistry) register(gid int64) *threadContext {
	tc := newThreadContext(gid, r.nextRegID.Add(1), r.bounded, r.capacity)

	r.mu.Lock()
	r.byGid.Store(gid, tc)
	old := *r.snap.Load()
	next := make([]*threadContext, len(old)+1)
	copy(next, old)
	next[len(old)] = tc
	r.snap.Store(&next)
	r.mu.Unlock()
	return tc
}

// snapshot returns the current set of contexts. It includes every context
// registered before the call and is safe to iterate without locking.
func (r *contextRegistry) snapshot() []*threadContext {
	return *r.snap.Load()
}

// release invalidates the calling goroutine's context. The context stays
// visible to the backend until its queue is drained and reaped.
func (r *contextRegistry) release() {
	gid := goid.Get()
	if v, ok := r.byGid.LoadAndDelete(gid); ok {
		v.(*threadContext).invalid.Store(true)
	}
}

// releaseAll invalidates every context; used on engine stop
func (r *contextRegistry) releaseAll() {
	r.byGid.Range(func(key, value any) bool {
		r.byGid.Delete(key)
		value.(*threadContext).invalid.Store(true)
		return true
	})
}

// reap removes contexts that are invalidated, drained and unreferenced by
// the backend. The backend calls it only when its priority queue is empty,
// which guarantees no pending event can still point at a reaped context.
func (r *contextRegistry) reap() {
	r.mu.Lock()
	old := *r.snap.Load()
	next := old[:0:0]
	for _, tc := range old {
		if tc.invalid.Load() && tc.pendingEvents == 0 && tc.queue.empty() {
			continue
		}
		next = append(next, tc)
	}
	if len(next) != len(old) {
		r.snap.Store(&next)
	}
	r.mu.Unlock()
}
