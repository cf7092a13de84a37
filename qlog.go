// Package qlog is an asynchronous, low-latency structured logging engine.
// A logging call costs a level check, a bounded binary serialization into
// the calling goroutine's single-producer queue and one publish; all
// formatting, timestamp rendering and handler I/O happens on a dedicated
// backend goroutine that merges every producer's stream into one global
// timestamp order.
package qlog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrStarted is returned by Start when the engine is already running
	ErrStarted = errors.New("qlog: engine already started")
	// ErrNotStarted is returned by operations that need a running engine
	ErrNotStarted = errors.New("qlog: engine not started")
)

// Engine is the process-wide logging runtime: the producer context
// registry, the time source, the logger table and the backend goroutine.
// Exactly one engine runs at a time; Start and Stop manage it explicitly.
type Engine struct {
	cfg      config
	clock    *timeSource
	registry *contextRegistry
	running  atomic.Bool

	loggerMu   sync.Mutex
	loggerByNm map[string]*Logger
	loggerList atomic.Pointer[[]*Logger]

	flush flushTable

	root    *Logger
	control *Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// engine is the running engine, nil when stopped
var engine atomic.Pointer[Engine]

// Start initializes the engine and launches the backend goroutine. The
// time source is calibrated here: cycle-counter mode when the platform
// supports it, wall clock otherwise. Returns ErrStarted when already
// running.
func Start(opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		cfg:        cfg,
		clock:      newTimeSource(cfg.wallClock),
		registry:   newContextRegistry(cfg.bounded, cfg.queueCapacity),
		loggerByNm: make(map[string]*Logger),
	}
	e.flush.init()

	// The control logger carries flush records; it has no handlers and no
	// public name.
	e.control = e.newLogger("", nil)
	rootHandlers := cfg.rootHandlers
	if rootHandlers == nil {
		rootHandlers = []Handler{StdoutHandler()}
	}
	e.root = e.newLogger("root", rootHandlers)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.group, ctx = errgroup.WithContext(ctx)

	worker := newBackendWorker(e)
	e.running.Store(true)
	e.group.Go(func() error { return worker.run(ctx) })
	if e.clock.mode == clockCycles {
		e.group.Go(func() error { return resyncLoop(ctx, e.clock, cfg.resyncEvery) })
	}

	if !engine.CompareAndSwap(nil, e) {
		// Another engine won the race; tear this one down
		e.running.Store(false)
		cancel()
		_ = e.group.Wait()
		return ErrStarted
	}
	return nil
}

// Stop shuts the engine down: producers are cut off, the backend drains
// every queue to empty, dispatches everything in order, reaps the
// contexts and exits. Returns ErrNotStarted when not running.
func Stop() error {
	e := engine.Load()
	if e == nil || !engine.CompareAndSwap(e, nil) {
		return ErrNotStarted
	}
	e.running.Store(false)
	e.cancel()
	err := e.group.Wait()
	e.registry.releaseAll()
	return err
}

// GetLogger returns the named logger, creating it with the given handlers
// on first use. Handlers passed for an existing logger are ignored.
// Returns nil when the engine is not running.
func GetLogger(name string, handlers ...Handler) *Logger {
	e := engine.Load()
	if e == nil {
		return nil
	}
	e.loggerMu.Lock()
	defer e.loggerMu.Unlock()
	if l, ok := e.loggerByNm[name]; ok {
		return l
	}
	return e.addLoggerLocked(name, handlers)
}

// newLogger creates and registers a logger without first looking for an
// existing logger of the same name; used during Start.
func (e *Engine) newLogger(name string, handlers []Handler) *Logger {
	e.loggerMu.Lock()
	defer e.loggerMu.Unlock()
	return e.addLoggerLocked(name, handlers)
}

func (e *Engine) addLoggerLocked(name string, handlers []Handler) *Logger {
	var old []*Logger
	if p := e.loggerList.Load(); p != nil {
		old = *p
	}
	l := newLogger(e, name, uint32(len(old)), handlers)
	next := make([]*Logger, len(old)+1)
	copy(next, old)
	next[len(old)] = l
	e.loggerList.Store(&next)
	if name != "" {
		e.loggerByNm[name] = l
	}
	return l
}

// loggerByID resolves a header identity back to its logger
func (e *Engine) loggerByID(id uint32) *Logger {
	p := e.loggerList.Load()
	if p == nil || int(id) >= len(*p) {
		return nil
	}
	return (*p)[id]
}

// Flush blocks until the backend has dispatched every record enqueued
// before the call and flushed all handlers. The flush request rides the
// calling goroutine's queue as an ordinary control record, so it is
// ordered after everything the caller already logged.
func Flush() error {
	e := engine.Load()
	if e == nil {
		return ErrNotStarted
	}
	id, ch := e.flush.register()
	if !e.running.Load() {
		e.flush.cancel(id)
		return ErrNotStarted
	}
	e.control.write(flushDesc, []Arg{Uint64(id)})
	<-ch
	return nil
}

// ReleaseThreadContext invalidates the calling goroutine's logging
// context. Call it before a producer goroutine exits so the backend can
// reclaim the context once its queue is drained. Logging again from the
// same goroutine creates a fresh context.
func ReleaseThreadContext() {
	if e := engine.Load(); e != nil {
		e.registry.release()
	}
}

// DroppedRecords returns the total number of records dropped by full
// bounded queues across all live producer contexts.
func DroppedRecords() uint64 {
	e := engine.Load()
	if e == nil {
		return 0
	}
	var total uint64
	for _, tc := range e.registry.snapshot() {
		total += tc.dropped.Load()
	}
	return total
}

// flushTable hands out flush-signal handles and wakes their waiters
type flushTable struct {
	mu   sync.Mutex
	next uint64
	m    map[uint64]chan struct{}
}

func (t *flushTable) init() {
	t.m = make(map[uint64]chan struct{})
}

func (t *flushTable) register() (uint64, chan struct{}) {
	t.mu.Lock()
	t.next++
	id := t.next
	ch := make(chan struct{})
	t.m[id] = ch
	t.mu.Unlock()
	return id, ch
}

// signal wakes the waiter of id; signalling an unknown or already
// signalled id is a no-op, which makes repeated flushes idempotent.
func (t *flushTable) signal(id uint64) {
	t.mu.Lock()
	if ch, ok := t.m[id]; ok {
		delete(t.m, id)
		close(ch)
	}
	t.mu.Unlock()
}

// cancel abandons a registered handle without waking anyone
func (t *flushTable) cancel(id uint64) {
	t.mu.Lock()
	delete(t.m, id)
	t.mu.Unlock()
}

// signalAll wakes every remaining waiter; used on engine shutdown
func (t *flushTable) signalAll() {
	t.mu.Lock()
	for id, ch := range t.m {
		delete(t.m, id)
		close(ch)
	}
	t.mu.Unlock()
}
