package qlog

import (
	"container/heap"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"
)

// backendWorker runs the drain loop on its own goroutine. Every iteration
// polls a bounded number of records from each producer queue into a
// timestamp-ordered priority queue, commits the events that are provably
// next in the global order, and dispatches them to the owning logger's
// handlers.
type backendWorker struct {
	e          *Engine
	events     transitHeap
	backtraces backtraceStorage

	// entry is reused for every dispatch; handlers must not retain it
	entry Entry

	hasUnflushed bool
}

func newBackendWorker(e *Engine) *backendWorker {
	return &backendWorker{
		e:          e,
		events:     make(transitHeap, 0, 256),
		backtraces: make(backtraceStorage),
	}
}

// run drains until the context is cancelled, then empties every queue,
// dispatches the remainder in order, reaps and exits.
func (w *backendWorker) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.exit()
			return nil
		default:
		}
		if !w.iterate() {
			w.sleep(ctx)
		}
	}
}

// iterate performs one drain pass; reports whether any work was done
func (w *backendWorker) iterate() bool {
	contexts := w.e.registry.snapshot()
	polled := w.poll(contexts, false)

	processed := 0
	if len(w.events) > 0 {
		bound := w.commitBound(contexts)
		for len(w.events) > 0 && w.events[0].timestamp <= bound {
			w.process(heap.Pop(&w.events).(*transitEvent))
			processed++
		}
	}

	if len(w.events) == 0 && polled == 0 {
		// Every queue is drained; flush what the handlers buffered,
		// account drops and reclaim detached contexts.
		w.forceFlush()
		w.reportDropped(contexts)
		w.e.registry.reap()
	}
	return polled > 0 || processed > 0
}

// exit drains everything after the stop signal
func (w *backendWorker) exit() {
	for {
		contexts := w.e.registry.snapshot()
		polled := w.poll(contexts, true)
		if polled == 0 && len(w.events) == 0 {
			w.forceFlush()
			w.reportDropped(contexts)
			w.e.registry.reap()
			w.e.flush.signalAll()
			return
		}
		// Everything still pending is in the heap now; the heap order is
		// the global order.
		for len(w.events) > 0 {
			w.process(heap.Pop(&w.events).(*transitEvent))
		}
	}
}

func (w *backendWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.e.cfg.sleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// poll decodes up to the configured limit of records from every producer
// queue into the priority queue. Returns the number of records decoded.
func (w *backendWorker) poll(contexts []*threadContext, terminating bool) int {
	limit := w.e.cfg.pollLimit
	if terminating {
		limit = math.MaxInt
	}
	total := 0
	for _, tc := range contexts {
		for i := 0; i < limit; i++ {
			if !w.readOne(tc) {
				break
			}
			total++
		}
	}
	return total
}

// readOne decodes a single record from tc's queue, formats it and inserts
// the transit event into the priority queue.
func (w *backendWorker) readOne(tc *threadContext) bool {
	b := tc.queue.prepareRead()
	if b == nil {
		return false
	}
	if len(b) < headerSize {
		w.fatal(fmt.Errorf("qlog: short record of %d bytes in context %d", len(b), tc.gid))
	}

	descID, loggerID, timestamp := readHeader(b)
	d := descriptorByID(descID)
	l := w.e.loggerByID(loggerID)
	if d == nil || l == nil {
		w.fatal(fmt.Errorf("qlog: record references unknown descriptor %d or logger %d", descID, loggerID))
	}

	ev := newTransitEvent()
	ev.ctx = tc
	ev.desc = d
	ev.logger = l
	ev.timestamp = timestamp
	ev.threadID = tc.gid

	consumed := headerSize
	if d.Metadata.Event == EventFlush {
		// The flush-signal handle is read directly; it is never formatted
		if len(b) < headerSize+8 {
			w.fatal(fmt.Errorf("qlog: truncated flush record in context %d", tc.gid))
		}
		ev.flushID = binary.LittleEndian.Uint64(b[headerSize:])
		consumed = headerSize + 8
	} else {
		var argv [MaxArgs]Arg
		n, err := decodeArgs(b, d.kinds, &argv)
		if err != nil {
			w.fatal(err)
		}
		ev.formatted = appendFormat(ev.formatted[:0], d.Metadata.Format, argv[:len(d.kinds)])
		consumed = n
	}
	tc.queue.finishRead(consumed)

	tc.arrivalSeq++
	ev.seq = tc.arrivalSeq
	tc.pendingEvents++
	heap.Push(&w.events, ev)
	return true
}

// commitBound computes the highest timestamp that can be dispatched now:
// the minimum over all producers of the oldest still-queued record, or a
// refreshed "now" for producers whose queue is empty. Events at or below
// the bound can no longer be preceded by anything not yet seen.
func (w *backendWorker) commitBound(contexts []*threadContext) uint64 {
	bound := uint64(math.MaxUint64)
	anyEmpty := len(contexts) == 0
	for _, tc := range contexts {
		if ts, ok := tc.peekTimestamp(); ok {
			if ts < bound {
				bound = ts
			}
		} else {
			anyEmpty = true
		}
	}
	if anyEmpty {
		if now := w.e.clock.now(); now < bound {
			bound = now
		}
	}
	return bound
}

// process dispatches one committed transit event
func (w *backendWorker) process(ev *transitEvent) {
	ev.ctx.pendingEvents--
	ev.ctx = nil

	md := &ev.desc.Metadata
	switch md.Event {
	case EventLog:
		if md.Level == LevelBacktrace {
			// Low-level event recorded for deferred replay
			w.backtraces.store(ev.logger.id, ev)
			return
		}
		w.dispatch(ev)
		if fl := ev.logger.backtraceFlushLevel(); fl != LevelNone && md.Level >= fl {
			w.flushBacktrace(ev.logger)
		}

	case EventInitBacktrace:
		capacity, err := strconv.Atoi(string(ev.formatted))
		if err != nil || capacity < 0 {
			w.fatal(fmt.Errorf("qlog: bad backtrace capacity %q", ev.formatted))
		}
		w.backtraces.setCapacity(ev.logger.id, capacity)

	case EventFlushBacktrace:
		w.flushBacktrace(ev.logger)

	case EventFlush:
		w.forceFlush()
		w.e.flush.signal(ev.flushID)
	}
	releaseTransitEvent(ev)
}

// dispatch formats the entry and hands it to every handler of the event's
// logger. Handler failures are isolated: the remaining handlers still run
// and the failure goes to the diagnostic side-channel.
func (w *backendWorker) dispatch(ev *transitEvent) {
	w.entry.Timestamp = w.e.clock.wallTime(ev.timestamp)
	w.entry.LoggerName = ev.logger.name
	w.entry.ThreadID = ev.threadID
	w.entry.Metadata = &ev.desc.Metadata
	w.entry.Message = ev.formatted

	for _, h := range ev.logger.Handlers() {
		if err := h.Write(&w.entry); err != nil {
			w.e.cfg.errorHandler(fmt.Errorf("handler write: %w", err))
		}
	}
	w.hasUnflushed = true
}

// flushBacktrace replays the logger's stored events in insertion order
func (w *backendWorker) flushBacktrace(l *Logger) {
	w.backtraces.flush(l.id, func(ev *transitEvent) {
		w.dispatch(ev)
	})
}

// forceFlush flushes every handler of every logger once
func (w *backendWorker) forceFlush() {
	if !w.hasUnflushed {
		return
	}
	p := w.e.loggerList.Load()
	if p != nil {
		for _, l := range *p {
			for _, h := range l.Handlers() {
				if err := h.Flush(); err != nil {
					w.e.cfg.errorHandler(fmt.Errorf("handler flush: %w", err))
				}
			}
		}
	}
	w.hasUnflushed = false
}

// reportDropped sends new bounded-queue drop counts to the diagnostic
// side-channel; called only when all queues are empty.
func (w *backendWorker) reportDropped(contexts []*threadContext) {
	for _, tc := range contexts {
		if d := tc.dropped.Load(); d > tc.reportedDropped {
			w.e.cfg.errorHandler(fmt.Errorf("dropped %d records from goroutine %d (queue full)", d-tc.reportedDropped, tc.gid))
			tc.reportedDropped = d
		}
	}
}

// fatal reports a stream-corrupting fault and aborts. Continuing after a
// decode invariant violation would misalign every subsequent record.
func (w *backendWorker) fatal(err error) {
	w.e.cfg.errorHandler(err)
	panic(err)
}

// resyncLoop periodically refreshes the cycle-counter anchor
func resyncLoop(ctx context.Context, ts *timeSource, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			ts.resync()
		}
	}
}
