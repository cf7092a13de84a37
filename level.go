package qlog

import (
	"fmt"
	"strings"
)

// Level represents log severity. Levels are ordered from the most verbose
// trace level up to None; a statement is dispatched when its level is
// greater than or equal to the logger threshold.
type Level uint8

const (
	LevelTraceL3 Level = iota
	LevelTraceL2
	LevelTraceL1
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
	// LevelBacktrace marks statements recorded through the backtrace path.
	// It is internal and is rejected as a logger threshold.
	LevelBacktrace
	// LevelNone disables all statements.
	LevelNone
)

// Pre-allocated level names, indexed by Level
var levelStrings = [10]string{
	"TRACE_L3",
	"TRACE_L2",
	"TRACE_L1",
	"DEBUG",
	"INFO",
	"WARNING",
	"ERROR",
	"CRITICAL",
	"BACKTRACE",
	"NONE",
}

// Short level identifiers, indexed by Level
var levelShortStrings = [10]string{"T3", "T2", "T1", "D", "I", "W", "E", "C", "BT", "N"}

// String returns the name of the level
func (l Level) String() string {
	if l > LevelNone {
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
	return levelStrings[l]
}

// ShortString returns the short identifier of the level
func (l Level) ShortString() string {
	if l > LevelNone {
		return "?"
	}
	return levelShortStrings[l]
}

// ParseLevel converts a level name to a Level. Both long names ("WARNING")
// and short identifiers ("W") are accepted, case-insensitively.
func ParseLevel(s string) (Level, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range levelStrings {
		if u == name || u == levelShortStrings[i] {
			return Level(i), nil
		}
	}
	return LevelNone, fmt.Errorf("qlog: unknown level %q", s)
}
