package qlog

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Entry is one dispatched log statement as handlers see it: the formatted
// message plus its metadata. The backend reuses the Entry between calls;
// handlers must not retain it or the Message bytes past Write.
type Entry struct {
	Timestamp  time.Time
	LoggerName string
	ThreadID   int64 // producer goroutine id
	Metadata   *MacroMetadata
	Message    []byte
}

// Level returns the severity the statement was recorded with
func (e *Entry) Level() Level { return e.Metadata.Level }

// Handler receives formatted log statements. Handlers are invoked only
// from the backend goroutine, so implementations need no locking of their
// own. A Write error is reported to the engine's error handler; the other
// handlers of the same statement still run.
type Handler interface {
	Write(e *Entry) error
	Flush() error
}

const entryTimeFormat = "15:04:05.000000000"

// Color codes for terminal output
const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[37m"
	colorBold    = "\x1b[1m"
)

// Per-level colors, indexed by Level
var levelColors = [10]string{
	colorGray,
	colorGray,
	colorGray,
	colorCyan,
	colorGreen,
	colorYellow,
	colorRed,
	colorBold + colorRed,
	colorMagenta,
	"",
}

// appendEntry renders the default line layout:
//
//	15:04:05.000000000 [gid] file:line LEVEL logger - message
func appendEntry(buf []byte, e *Entry, color bool) []byte {
	buf = e.Timestamp.AppendFormat(buf, entryTimeFormat)
	buf = append(buf, ' ', '[')
	buf = appendInt(buf, e.ThreadID)
	buf = append(buf, ']', ' ')
	if e.Metadata.File != "" {
		buf = append(buf, e.Metadata.File...)
		buf = append(buf, ':')
		buf = append(buf, e.Metadata.Line...)
		buf = append(buf, ' ')
	}
	level := e.Metadata.Level
	if color && level <= LevelNone {
		buf = append(buf, levelColors[level]...)
		buf = append(buf, level.String()...)
		buf = append(buf, colorReset...)
	} else {
		buf = append(buf, level.String()...)
	}
	buf = append(buf, ' ')
	if e.LoggerName != "" {
		buf = append(buf, e.LoggerName...)
		buf = append(buf, ' ')
	}
	buf = append(buf, '-', ' ')
	buf = append(buf, e.Message...)
	return append(buf, '\n')
}

// appendInt writes v in decimal without allocation
func appendInt(buf []byte, v int64) []byte {
	if v < 0 {
		buf = append(buf, '-')
		v = -v
	}
	if v == 0 {
		return append(buf, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte(v%10) + '0'
		v /= 10
	}
	return append(buf, tmp[i:]...)
}

// StreamHandler writes rendered lines to an io.Writer. The zero color
// setting is plain text; NewConsoleHandler enables colors when the stream
// is a terminal.
type StreamHandler struct {
	out   io.Writer
	color bool

	// Pre-allocated line buffer, reused for each write
	buf []byte
}

// NewStreamHandler creates a handler writing plain lines to out
func NewStreamHandler(out io.Writer) *StreamHandler {
	return &StreamHandler{out: out, buf: make([]byte, 0, 2048)}
}

// NewConsoleHandler creates a handler for a console stream. Colors are
// enabled when f is a terminal, and the stream is wrapped so escape
// sequences survive on every platform.
func NewConsoleHandler(f *os.File) *StreamHandler {
	h := &StreamHandler{buf: make([]byte, 0, 2048)}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		h.color = true
		h.out = colorable.NewColorable(f)
	} else {
		h.out = f
	}
	return h
}

// StdoutHandler creates a console handler for stdout
func StdoutHandler() *StreamHandler { return NewConsoleHandler(os.Stdout) }

// StderrHandler creates a console handler for stderr
func StderrHandler() *StreamHandler { return NewConsoleHandler(os.Stderr) }

// Write renders the entry and writes one line
func (h *StreamHandler) Write(e *Entry) error {
	h.buf = appendEntry(h.buf[:0], e, h.color)
	_, err := h.out.Write(h.buf)
	return err
}

// Flush is a no-op for unbuffered streams
func (h *StreamHandler) Flush() error { return nil }
