//go:build !windows

package qlog

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MMapHandler appends rendered lines into a memory-mapped file: no write
// syscall per line, the kernel pages the data out. The mapping grows by
// doubling when it fills; Close truncates the file to the bytes actually
// written.
type MMapHandler struct {
	file   *os.File
	data   []byte
	offset int
	buf    []byte
}

// NewMMapHandler creates a memory-mapped log file of the given initial
// size in bytes.
func NewMMapHandler(path string, size int64) (*MMapHandler, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap size must be positive")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &MMapHandler{file: f, data: data, buf: make([]byte, 0, 2048)}, nil
}

// Write renders the entry into the mapping
func (h *MMapHandler) Write(e *Entry) error {
	h.buf = appendEntry(h.buf[:0], e, false)
	if h.offset+len(h.buf) > len(h.data) {
		if err := h.grow(h.offset + len(h.buf)); err != nil {
			return err
		}
	}
	copy(h.data[h.offset:], h.buf)
	h.offset += len(h.buf)
	return nil
}

// grow remaps the file at double the size until need fits
func (h *MMapHandler) grow(need int) error {
	size := len(h.data) * 2
	for size < need {
		size *= 2
	}
	if err := unix.Munmap(h.data); err != nil {
		return err
	}
	if err := h.file.Truncate(int64(size)); err != nil {
		return err
	}
	data, err := unix.Mmap(int(h.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	h.data = data
	return nil
}

// Flush asks the kernel to write the dirty pages back
func (h *MMapHandler) Flush() error {
	return unix.Msync(h.data, unix.MS_ASYNC)
}

// Close syncs the mapping, unmaps it and trims the file to the written
// length.
func (h *MMapHandler) Close() error {
	if err := unix.Msync(h.data, unix.MS_SYNC); err != nil {
		return err
	}
	if err := unix.Munmap(h.data); err != nil {
		return err
	}
	if err := h.file.Truncate(int64(h.offset)); err != nil {
		return err
	}
	return h.file.Close()
}
