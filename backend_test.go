package qlog

import (
	"container/heap"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// capturedLine is one dispatched statement as recorded by captureHandler
type capturedLine struct {
	level    Level
	logger   string
	threadID int64
	msg      string
	ts       time.Time
}

// captureHandler records every dispatched entry for assertions
type captureHandler struct {
	mu      sync.Mutex
	lines   []capturedLine
	flushes int
	fail    error
}

func (h *captureHandler) Write(e *Entry) error {
	if h.fail != nil {
		return h.fail
	}
	h.mu.Lock()
	h.lines = append(h.lines, capturedLine{
		level:    e.Level(),
		logger:   e.LoggerName,
		threadID: e.ThreadID,
		msg:      string(e.Message),
		ts:       e.Timestamp,
	})
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) Flush() error {
	h.mu.Lock()
	h.flushes++
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.lines))
	for i, l := range h.lines {
		out[i] = l.msg
	}
	return out
}

func (h *captureHandler) snapshot() []capturedLine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]capturedLine(nil), h.lines...)
}

// newTestEngine builds a wall-clock engine without launching the backend,
// so tests can drive the drain loop by hand.
func newTestEngine(h Handler, bounded bool, capacity int) *Engine {
	cfg := defaultConfig()
	cfg.errorHandler = func(error) {}
	e := &Engine{
		cfg:        cfg,
		clock:      &timeSource{mode: clockWall},
		registry:   newContextRegistry(bounded, capacity),
		loggerByNm: make(map[string]*Logger),
	}
	e.flush.init()
	e.control = e.newLogger("", nil)
	e.root = e.newLogger("root", []Handler{h})
	e.running.Store(true)
	return e
}

// enqueue writes one record with an explicit timestamp into tc's queue
func enqueue(t *testing.T, tc *threadContext, d *Descriptor, l *Logger, ts uint64, args ...Arg) {
	t.Helper()
	var scratch [MaxArgs]int
	total := recordSize(args, &scratch)
	b := tc.queue.prepareWrite(total)
	if b == nil {
		t.Fatal("queue rejected the record")
	}
	n := encodeRecord(b, d.id, l.id, ts, args, &scratch)
	tc.queue.commitWrite(n)
}

// drainAll runs drain iterations until the worker reports no work
func drainAll(w *backendWorker) {
	for w.iterate() {
	}
}

var mergeDesc = RegisterCallSite(LevelInfo, "{}", KindInt64)

func TestTwoProducerMerge(t *testing.T) {
	h := &captureHandler{}
	e := newTestEngine(h, false, minQueueCapacity)
	w := newBackendWorker(e)

	t1 := e.registry.register(1)
	t2 := e.registry.register(2)
	enqueue(t, t1, mergeDesc, e.root, 100, Int(100))
	enqueue(t, t1, mergeDesc, e.root, 300, Int(300))
	enqueue(t, t2, mergeDesc, e.root, 200, Int(200))
	enqueue(t, t2, mergeDesc, e.root, 400, Int(400))

	drainAll(w)

	want := []string{"100", "200", "300", "400"}
	got := h.messages()
	if len(got) != len(want) {
		t.Fatalf("dispatched %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch order %v, want %v", got, want)
		}
	}
}

func TestCommitBoundHoldsBackNewerEvents(t *testing.T) {
	h := &captureHandler{}
	e := newTestEngine(h, false, minQueueCapacity)
	e.cfg.pollLimit = 1
	w := newBackendWorker(e)

	t1 := e.registry.register(1)
	t2 := e.registry.register(2)
	enqueue(t, t1, mergeDesc, e.root, 200, Int(200))
	enqueue(t, t2, mergeDesc, e.root, 150, Int(150))
	enqueue(t, t2, mergeDesc, e.root, 160, Int(160))

	// First pass decodes one record per context. The event at 200 cannot
	// commit yet: context 2 still holds a record at 160.
	w.iterate()
	if got := h.messages(); len(got) != 1 || got[0] != "150" {
		t.Fatalf("first pass dispatched %v, want [150]", got)
	}

	drainAll(w)
	want := []string{"150", "160", "200"}
	got := h.messages()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("final order %v, want %v", got, want)
		}
	}
}

func TestTimestampTieBreak(t *testing.T) {
	h := &captureHandler{}
	e := newTestEngine(h, false, minQueueCapacity)
	w := newBackendWorker(e)

	// Register in a fixed order; ties resolve by registration identity,
	// then by arrival order within a context.
	t1 := e.registry.register(10)
	t2 := e.registry.register(20)
	enqueue(t, t2, mergeDesc, e.root, 500, Int(21))
	enqueue(t, t2, mergeDesc, e.root, 500, Int(22))
	enqueue(t, t1, mergeDesc, e.root, 500, Int(11))
	enqueue(t, t1, mergeDesc, e.root, 500, Int(12))

	drainAll(w)

	want := []string{"11", "12", "21", "22"}
	got := h.messages()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie-break order %v, want %v", got, want)
		}
	}
}

func TestReapSafety(t *testing.T) {
	h := &captureHandler{}
	e := newTestEngine(h, false, minQueueCapacity)
	w := newBackendWorker(e)

	tc := e.registry.register(5)
	enqueue(t, tc, mergeDesc, e.root, 100, Int(1))
	tc.invalid.Store(true)

	// Decoded into the priority queue but not yet dispatched: the context
	// must survive the reap.
	w.poll(e.registry.snapshot(), false)
	e.registry.reap()
	if len(e.registry.snapshot()) != 1 {
		t.Fatal("context reclaimed while referenced by the priority queue")
	}

	for len(w.events) > 0 {
		w.process(heap.Pop(&w.events).(*transitEvent))
	}
	e.registry.reap()
	if len(e.registry.snapshot()) != 0 {
		t.Fatal("drained and invalidated context was not reclaimed")
	}
	if got := h.messages(); len(got) != 1 || got[0] != "1" {
		t.Fatalf("record lost during reap: %v", got)
	}
}

func TestBoundedDropAccounting(t *testing.T) {
	h := &captureHandler{}
	e := newTestEngine(h, true, minQueueCapacity)
	w := newBackendWorker(e)

	l := e.root
	// Each record is 16 bytes of header plus a 401-byte string, reserved
	// as 424 bytes: exactly two fit in a 1024-byte queue.
	payload := strings.Repeat("x", 400)
	d := RegisterCallSite(LevelInfo, "{}", KindString)
	for i := 0; i < 5; i++ {
		l.Log(d, String(fmt.Sprintf("%s%d", payload, i)))
	}

	tc := e.registry.current()
	if got := tc.dropped.Load(); got != 3 {
		t.Fatalf("dropped counter = %d, want 3", got)
	}

	drainAll(w)
	got := h.messages()
	if len(got) != 2 {
		t.Fatalf("dispatched %d records, want the 2 that fit", len(got))
	}
	for i, msg := range got {
		if !strings.HasSuffix(msg, fmt.Sprintf("%d", i)) {
			t.Fatalf("record %d out of order: %q", i, msg)
		}
	}
	if DroppedRecords() == 3 {
		// DroppedRecords counts only the running engine's contexts; this
		// test engine is not installed globally.
		t.Fatal("test engine leaked into the global accessor")
	}
}

func TestHandlerFailureIsolation(t *testing.T) {
	bad := &captureHandler{fail: fmt.Errorf("disk gone")}
	good := &captureHandler{}
	var faults int
	e := newTestEngine(bad, false, minQueueCapacity)
	e.cfg.errorHandler = func(error) { faults++ }
	e.root.SetHandlers(bad, good)
	w := newBackendWorker(e)

	tc := e.registry.register(1)
	enqueue(t, tc, mergeDesc, e.root, 100, Int(1))
	drainAll(w)

	if got := good.messages(); len(got) != 1 || got[0] != "1" {
		t.Fatalf("second handler starved: %v", got)
	}
	if faults != 1 {
		t.Fatalf("error handler called %d times, want 1", faults)
	}
}

func TestDroppedReporting(t *testing.T) {
	var reports []string
	h := &captureHandler{}
	e := newTestEngine(h, true, minQueueCapacity)
	e.cfg.errorHandler = func(err error) { reports = append(reports, err.Error()) }
	w := newBackendWorker(e)

	tc := e.registry.register(1)
	tc.dropped.Store(4)
	drainAll(w)

	if len(reports) != 1 || !strings.Contains(reports[0], "dropped 4 records") {
		t.Fatalf("drop report missing: %v", reports)
	}

	// No new drops, no new report
	drainAll(w)
	if len(reports) != 1 {
		t.Fatalf("drop report repeated: %v", reports)
	}
}
