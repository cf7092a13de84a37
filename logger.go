package qlog

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrBacktraceLevel is returned when LevelBacktrace is used where only an
// external severity is valid.
var ErrBacktraceLevel = errors.New("qlog: LevelBacktrace is internal and cannot be used here")

// Static descriptors for control records. Registered once at process init;
// the backend recognizes them by event kind.
var (
	initBacktraceDesc  = registerDescriptor(controlMetadata("{}", LevelCritical, EventInitBacktrace), []ArgKind{KindUint32})
	flushBacktraceDesc = registerDescriptor(controlMetadata("", LevelCritical, EventFlushBacktrace), nil)
	flushDesc          = registerDescriptor(controlMetadata("", LevelCritical, EventFlush), []ArgKind{KindUint64})
)

// Logger is the public entry point of the engine. A logger gates on its
// level, serializes call-site arguments into the calling goroutine's queue
// and publishes them for the backend. Loggers are obtained from GetLogger
// and are safe for concurrent use.
type Logger struct {
	name string
	id   uint32
	e    *Engine

	level        atomic.Uint32
	btFlushLevel atomic.Uint32
	handlers     atomic.Pointer[[]Handler]
}

func newLogger(e *Engine, name string, id uint32, handlers []Handler) *Logger {
	l := &Logger{name: name, id: id, e: e}
	l.level.Store(uint32(LevelInfo))
	l.btFlushLevel.Store(uint32(LevelNone))
	l.handlers.Store(&handlers)
	return l
}

// Name returns the logger name
func (l *Logger) Name() string { return l.name }

// Level returns the logger threshold
func (l *Logger) Level() Level { return Level(l.level.Load()) }

// SetLevel sets the logger threshold. LevelBacktrace is rejected.
func (l *Logger) SetLevel(level Level) error {
	if level == LevelBacktrace {
		return ErrBacktraceLevel
	}
	l.level.Store(uint32(level))
	return nil
}

// ShouldLog reports whether a statement at the given level passes the
// threshold.
//
//go:inline
func (l *Logger) ShouldLog(level Level) bool {
	return level >= Level(l.level.Load())
}

// Handlers returns the logger's current handler list
func (l *Logger) Handlers() []Handler {
	return *l.handlers.Load()
}

// SetHandlers replaces the handler list. Swaps are copy-on-write: a
// dispatch already under way finishes on the previous list, and every
// record dispatched after the swap goes to the new one.
func (l *Logger) SetHandlers(handlers ...Handler) {
	hs := make([]Handler, len(handlers))
	copy(hs, handlers)
	l.handlers.Store(&hs)
}

func (l *Logger) backtraceFlushLevel() Level {
	return Level(l.btFlushLevel.Load())
}

// Log serializes a statement through a pre-registered call-site
// descriptor. This is the fastest entry: no caller lookup, no argument
// conversion. The argument kinds must match the descriptor's tuple.
func (l *Logger) Log(d *Descriptor, args ...Arg) {
	md := &d.Metadata
	if md.Event == EventLog && md.Level != LevelBacktrace && !l.ShouldLog(md.Level) {
		return
	}
	if len(args) != len(d.kinds) {
		panic("qlog: argument count does not match the call-site descriptor")
	}
	l.write(d, args)
}

// write is the serialization driver shared by every entry point. It runs
// entirely on the calling goroutine: size precomputation, one reservation,
// header + argument encoding, one publish.
func (l *Logger) write(d *Descriptor, args []Arg) {
	e := l.e
	if !e.running.Load() {
		return
	}
	tc := e.registry.current()

	var scratch [MaxArgs]int
	total := recordSize(args, &scratch)

	buf := tc.queue.prepareWrite(total)
	if buf == nil {
		tc.dropped.Add(1)
		return
	}
	n := encodeRecord(buf, d.id, l.id, e.clock.now(), args, &scratch)
	tc.queue.commitWrite(n)
}

// logf is the shared slow-ish convenience path: gate, convert arguments,
// resolve the call-site descriptor from the caller's pc, serialize.
func (l *Logger) logf(level Level, format string, values []any) {
	if !l.ShouldLog(level) {
		return
	}
	var argv [MaxArgs]Arg
	args, key := captureArgs(values, &argv)

	pc, _, _, _ := runtime.Caller(2)
	d := callSiteDescriptor(pc, key, len(args), 2, format, level, EventLog)
	l.write(d, args)
}

// TraceL3 logs at the most verbose trace level
func (l *Logger) TraceL3(format string, args ...any) { l.logf(LevelTraceL3, format, args) }

// TraceL2 logs at the middle trace level
func (l *Logger) TraceL2(format string, args ...any) { l.logf(LevelTraceL2, format, args) }

// TraceL1 logs at the least verbose trace level
func (l *Logger) TraceL1(format string, args ...any) { l.logf(LevelTraceL1, format, args) }

// Debug logs a debug statement
func (l *Logger) Debug(format string, args ...any) { l.logf(LevelDebug, format, args) }

// Info logs an info statement
func (l *Logger) Info(format string, args ...any) { l.logf(LevelInfo, format, args) }

// Warning logs a warning statement
func (l *Logger) Warning(format string, args ...any) { l.logf(LevelWarning, format, args) }

// Error logs an error statement
func (l *Logger) Error(format string, args ...any) { l.logf(LevelError, format, args) }

// Critical logs a critical statement
func (l *Logger) Critical(format string, args ...any) { l.logf(LevelCritical, format, args) }

// LogBacktrace records a statement on the backtrace path. It bypasses the
// level gate: the backend stores it in the logger's backtrace ring instead
// of dispatching it, and replays it on FlushBacktrace or when a statement
// at or above the configured flush level is dispatched. Without a
// configured ring the statement is discarded.
func (l *Logger) LogBacktrace(format string, args ...any) {
	var argv [MaxArgs]Arg
	args2, key := captureArgs(args, &argv)

	pc, _, _, _ := runtime.Caller(1)
	d := callSiteDescriptor(pc, key, len(args2), 1, format, LevelBacktrace, EventLog)
	l.write(d, args2)
}

// InitBacktrace configures this logger's backtrace ring: up to capacity
// backtrace statements are retained and replayed when a statement at or
// above flushLevel is dispatched. Use LevelNone to only flush on demand.
// The capacity travels to the backend as an ordinary control record, so it
// takes effect in stream order.
func (l *Logger) InitBacktrace(capacity uint32, flushLevel Level) error {
	if flushLevel == LevelBacktrace {
		return ErrBacktraceLevel
	}
	l.btFlushLevel.Store(uint32(flushLevel))
	l.write(initBacktraceDesc, []Arg{Uint32(capacity)})
	return nil
}

// FlushBacktrace replays this logger's stored backtrace statements in
// insertion order and empties the ring.
func (l *Logger) FlushBacktrace() {
	l.write(flushBacktraceDesc, nil)
}
