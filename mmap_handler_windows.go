//go:build windows

package qlog

import "fmt"

// MMapHandler is not supported on Windows
type MMapHandler struct{}

// NewMMapHandler always fails on Windows; use FileHandler instead
func NewMMapHandler(path string, size int64) (*MMapHandler, error) {
	return nil, fmt.Errorf("mmap handler is not supported on windows")
}

func (h *MMapHandler) Write(e *Entry) error { return nil }

func (h *MMapHandler) Flush() error { return nil }

func (h *MMapHandler) Close() error { return nil }
