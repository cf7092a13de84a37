package qlog

import (
	"bufio"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileHandler writes rendered lines to a file through a buffer. Flush
// drains the buffer and syncs the file.
type FileHandler struct {
	f   *os.File
	w   *bufio.Writer
	buf []byte
}

// NewFileHandler opens (or creates) path for logging. With truncate the
// file is emptied first, otherwise lines append.
func NewFileHandler(path string, truncate bool) (*FileHandler, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileHandler{
		f:   f,
		w:   bufio.NewWriterSize(f, 64*1024),
		buf: make([]byte, 0, 2048),
	}, nil
}

// Write renders the entry and buffers one line
func (h *FileHandler) Write(e *Entry) error {
	h.buf = appendEntry(h.buf[:0], e, false)
	_, err := h.w.Write(h.buf)
	return err
}

// Flush drains the buffer to the OS and syncs the file
func (h *FileHandler) Flush() error {
	if err := h.w.Flush(); err != nil {
		return err
	}
	return h.f.Sync()
}

// Close flushes and closes the file
func (h *FileHandler) Close() error {
	if err := h.Flush(); err != nil {
		return err
	}
	return h.f.Close()
}

// RotatingFileHandler writes rendered lines to a size-rotated file, with
// an optional cron schedule for time-based rotation on top.
type RotatingFileHandler struct {
	lj   *lumberjack.Logger
	cron *cron.Cron
	buf  []byte
}

// RotatingOption configures a RotatingFileHandler
type RotatingOption func(*RotatingFileHandler)

// WithRotateSchedule adds a time-based rotation on a cron schedule, e.g.
// "0 0 * * *" for midnight.
func WithRotateSchedule(spec string) RotatingOption {
	return func(h *RotatingFileHandler) {
		if h.cron == nil {
			h.cron = cron.New()
		}
		h.cron.AddFunc(spec, func() { _ = h.lj.Rotate() })
	}
}

// NewRotatingFileHandler creates a handler that rotates path once it
// exceeds maxSizeMB megabytes, keeping up to maxBackups rotated files.
func NewRotatingFileHandler(path string, maxSizeMB, maxBackups int, opts ...RotatingOption) *RotatingFileHandler {
	h := &RotatingFileHandler{
		lj: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
		},
		buf: make([]byte, 0, 2048),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cron != nil {
		h.cron.Start()
	}
	return h
}

// Write renders the entry and writes one line
func (h *RotatingFileHandler) Write(e *Entry) error {
	h.buf = appendEntry(h.buf[:0], e, false)
	_, err := h.lj.Write(h.buf)
	return err
}

// Flush is a no-op; the rotation backend does not buffer
func (h *RotatingFileHandler) Flush() error { return nil }

// Close stops the rotation schedule and closes the file
func (h *RotatingFileHandler) Close() error {
	if h.cron != nil {
		h.cron.Stop()
	}
	return h.lj.Close()
}
