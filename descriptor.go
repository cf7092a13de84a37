package qlog

import (
	"sync"
	"sync/atomic"
)

// Descriptor ties the metadata of one logging call site to the argument
// kind tuple its records carry. A distinct descriptor exists per
// (call site, kind tuple); its id is written into every record header and
// is stable for the life of the process. The backend trusts the descriptor
// as the only source of truth for decoding.
type Descriptor struct {
	Metadata MacroMetadata
	kinds    []ArgKind
	id       uint32
}

// ID returns the stable identity of the descriptor
func (d *Descriptor) ID() uint32 { return d.id }

// descriptorTable is the process-wide append-only descriptor registry.
// Lookups by id are a lock-free slice load; registration takes a lock.
var descriptorTable struct {
	mu   sync.Mutex
	list atomic.Pointer[[]*Descriptor]
}

// registerDescriptor appends a new descriptor and returns it. Descriptors
// are never mutated or removed afterwards.
func registerDescriptor(md MacroMetadata, kinds []ArgKind) *Descriptor {
	descriptorTable.mu.Lock()
	var old []*Descriptor
	if p := descriptorTable.list.Load(); p != nil {
		old = *p
	}
	d := &Descriptor{Metadata: md, kinds: kinds, id: uint32(len(old))}
	next := make([]*Descriptor, len(old)+1)
	copy(next, old)
	next[len(old)] = d
	descriptorTable.list.Store(&next)
	descriptorTable.mu.Unlock()
	return d
}

// descriptorByID resolves a header identity back to its descriptor.
// Returns nil for an id that was never registered.
func descriptorByID(id uint32) *Descriptor {
	p := descriptorTable.list.Load()
	if p == nil || int(id) >= len(*p) {
		return nil
	}
	return (*p)[id]
}

// callSiteKey identifies one (call site, kind tuple) pair. The tuple is
// packed 4 bits per kind, with the argument count alongside.
type callSiteKey struct {
	pc    uintptr
	kinds uint64
	n     uint8
}

var callSites sync.Map // callSiteKey -> *Descriptor

// callSiteDescriptor returns the descriptor for the logging call at pc,
// registering it on first use. skip is the stack depth from the caller of
// callSiteDescriptor to the logging call itself.
func callSiteDescriptor(pc uintptr, kindsKey uint64, n int, skip int, format string, level Level, event Event) *Descriptor {
	key := callSiteKey{pc: pc, kinds: kindsKey, n: uint8(n)}
	if v, ok := callSites.Load(key); ok {
		return v.(*Descriptor)
	}

	kinds := make([]ArgKind, n)
	for i := 0; i < n; i++ {
		kinds[i] = ArgKind((kindsKey >> (4 * i)) & 0xf)
	}
	md := captureMetadata(skip+1, format, level, event)
	d := registerDescriptor(md, kinds)
	if v, loaded := callSites.LoadOrStore(key, d); loaded {
		return v.(*Descriptor)
	}
	return d
}

// RegisterCallSite eagerly registers a logging call site with an explicit
// kind tuple, so the first call through the returned descriptor pays no
// registration cost. The captured source location is the caller of
// RegisterCallSite.
func RegisterCallSite(level Level, format string, kinds ...ArgKind) *Descriptor {
	md := captureMetadata(1, format, level, EventLog)
	return registerDescriptor(md, kinds)
}
