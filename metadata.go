package qlog

import (
	"strconv"

	"github.com/go-stack/stack"
)

// Event is the kind of record a call site produces. Everything except
// EventLog is a control record consumed by the backend itself.
type Event uint8

const (
	EventLog Event = iota
	EventInitBacktrace
	EventFlushBacktrace
	EventFlush
)

// MacroMetadata is the immutable description of one logging call site:
// where it lives in the source, its format string, its severity and its
// event kind. It is captured once, when the call site's descriptor is
// registered, and is never mutated afterwards.
type MacroMetadata struct {
	Path     string // full source file path
	File     string // file name portion of Path
	Function string
	Line     string
	Format   string
	Level    Level
	Event    Event
}

// captureMetadata builds the metadata for the logging call skip frames up
// the stack from the caller of captureMetadata.
func captureMetadata(skip int, format string, level Level, event Event) MacroMetadata {
	frame := stack.Caller(skip + 1).Frame()
	return MacroMetadata{
		Path:     frame.File,
		File:     extractFileName(frame.File),
		Function: frame.Function,
		Line:     strconv.Itoa(frame.Line),
		Format:   format,
		Level:    level,
		Event:    event,
	}
}

// controlMetadata is the metadata attached to internally generated control
// records. They never render a source location.
func controlMetadata(format string, level Level, event Event) MacroMetadata {
	return MacroMetadata{
		Path:     "",
		File:     "",
		Function: "",
		Line:     "0",
		Format:   format,
		Level:    level,
		Event:    event,
	}
}

// extractFileName returns everything after the last path delimiter
func extractFileName(path string) string {
	file := path
	for i := 0; i < len(path); i++ {
		if path[i] == '/' || path[i] == '\\' {
			file = path[i+1:]
		}
	}
	return file
}
