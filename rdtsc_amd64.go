//go:build amd64

package qlog

// rdtsc returns the current value of the CPU time-stamp counter.
func rdtsc() uint64

// rdtscSupported reports whether cycle-counter timestamps are available.
func rdtscSupported() bool { return true }
