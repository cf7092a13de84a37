//go:build !amd64

package qlog

// rdtsc is unavailable on this platform; the engine falls back to the wall
// clock at startup.
func rdtsc() uint64 { return 0 }

func rdtscSupported() bool { return false }
