package qlog

// Default returns the root logger of the running engine, or nil when the
// engine is stopped. The root logger is created at Start with the
// configured root handlers.
func Default() *Logger {
	e := engine.Load()
	if e == nil {
		return nil
	}
	return e.root
}

// Global logging functions that use the root logger. They are no-ops when
// the engine is not running.

// TraceL3 logs at the most verbose trace level using the root logger
func TraceL3(format string, args ...any) {
	if l := Default(); l != nil {
		l.logf(LevelTraceL3, format, args)
	}
}

// TraceL2 logs at the middle trace level using the root logger
func TraceL2(format string, args ...any) {
	if l := Default(); l != nil {
		l.logf(LevelTraceL2, format, args)
	}
}

// TraceL1 logs at the least verbose trace level using the root logger
func TraceL1(format string, args ...any) {
	if l := Default(); l != nil {
		l.logf(LevelTraceL1, format, args)
	}
}

// Debug logs a debug statement using the root logger
func Debug(format string, args ...any) {
	if l := Default(); l != nil {
		l.logf(LevelDebug, format, args)
	}
}

// Info logs an info statement using the root logger
func Info(format string, args ...any) {
	if l := Default(); l != nil {
		l.logf(LevelInfo, format, args)
	}
}

// Warning logs a warning statement using the root logger
func Warning(format string, args ...any) {
	if l := Default(); l != nil {
		l.logf(LevelWarning, format, args)
	}
}

// Error logs an error statement using the root logger
func Error(format string, args ...any) {
	if l := Default(); l != nil {
		l.logf(LevelError, format, args)
	}
}

// Critical logs a critical statement using the root logger
func Critical(format string, args ...any) {
	if l := Default(); l != nil {
		l.logf(LevelCritical, format, args)
	}
}

// SetLevel sets the root logger threshold
func SetLevel(level Level) error {
	l := Default()
	if l == nil {
		return ErrNotStarted
	}
	return l.SetLevel(level)
}
