package qlog

import (
	"fmt"
	"os"
	"time"
)

const (
	defaultQueueCapacity = 128 * 1024
	defaultPollLimit     = 128
	defaultResyncEvery   = 700 * time.Millisecond
	defaultSleep         = 300 * time.Microsecond
)

// config carries the engine settings fixed at Start
type config struct {
	bounded       bool
	queueCapacity int
	wallClock     bool
	pollLimit     int
	resyncEvery   time.Duration
	sleep         time.Duration
	errorHandler  func(error)
	rootHandlers  []Handler
}

func defaultConfig() config {
	return config{
		queueCapacity: defaultQueueCapacity,
		pollLimit:     defaultPollLimit,
		resyncEvery:   defaultResyncEvery,
		sleep:         defaultSleep,
		errorHandler: func(err error) {
			fmt.Fprintf(os.Stderr, "qlog: %v\n", err)
		},
	}
}

// Option configures the engine at Start
type Option func(*config)

// WithBoundedQueue selects fixed-capacity producer queues. A full queue
// drops the record and increments the producer's dropped counter; the
// capacity is rounded up to a power of two.
func WithBoundedQueue(capacity int) Option {
	return func(c *config) {
		c.bounded = true
		c.queueCapacity = capacity
	}
}

// WithUnboundedQueue selects growing producer queues (the default) with
// the given initial capacity per producer.
func WithUnboundedQueue(initialCapacity int) Option {
	return func(c *config) {
		c.bounded = false
		c.queueCapacity = initialCapacity
	}
}

// WithWallClock forces wall-clock timestamps even where the cycle counter
// is available.
func WithWallClock() Option {
	return func(c *config) { c.wallClock = true }
}

// WithPollLimit bounds how many records the backend decodes from a single
// producer queue per drain iteration, preserving fairness across
// producers.
func WithPollLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.pollLimit = n
		}
	}
}

// WithResyncInterval sets how often the cycle-counter anchor is refreshed
func WithResyncInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.resyncEvery = d
		}
	}
}

// WithSleepDuration sets how long the backend sleeps when every producer
// queue is empty.
func WithSleepDuration(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.sleep = d
		}
	}
}

// WithErrorHandler installs the diagnostic side-channel for backend
// faults: handler failures, dropped-record reports. The handler is called
// only from the backend goroutine.
func WithErrorHandler(f func(error)) Option {
	return func(c *config) {
		if f != nil {
			c.errorHandler = f
		}
	}
}

// WithRootHandlers sets the handlers of the root logger created at Start.
// The default is a console handler on stdout.
func WithRootHandlers(handlers ...Handler) Option {
	return func(c *config) { c.rootHandlers = handlers }
}
