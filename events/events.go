// Package events implements the condition-flag broadcast point asynchronous
// channels expose. A Source has zero or more registered Listeners; the only
// mutation path is Broadcast, which concrete drivers call from interrupt or
// other asynchronous contexts. Broadcast therefore takes no locks, performs
// no allocation, and never blocks: it works on an atomic snapshot of the
// listener set, accumulates flags with an atomic OR, and signals through a
// capacity-one edge-notify channel.
package events

import (
	"sync"
	"sync/atomic"
)

// Flags is a bitmask of I/O condition flags.
type Flags uint32

// Condition flags carried by channel event sources.
const (
	NoError         Flags = 0
	Connected       Flags = 1  // connection established
	Disconnected    Flags = 2  // connection lost or closed
	InputAvailable  Flags = 4  // incoming data ready to read
	OutputEmpty     Flags = 8  // transmit queue drained
	TransmissionEnd Flags = 16 // physical transmission finished
	ParityError     Flags = 32
	FramingError    Flags = 64
	NoiseError      Flags = 128
	OverrunError    Flags = 256
	IdleDetected    Flags = 512
	BreakDetected   Flags = 1024
	BufferFull      Flags = 2048 // receive queue overflow
)

// AnyError selects the error-class flags.
const AnyError = ParityError | FramingError | NoiseError | OverrunError | BufferFull

// Listener is one registration against a Source. Flags accumulate in the
// listener until fetched; Notify fires on the empty-to-pending edge, so a
// single wake can cover several broadcasts.
type Listener struct {
	src     *Source
	mask    Flags
	pending atomic.Uint32
	notify  chan struct{}
}

// Notify returns the wake channel. It carries at most one token; after a
// receive, drain accumulated flags with Fetch.
func (l *Listener) Notify() <-chan struct{} { return l.notify }

// Fetch returns and clears the accumulated flags.
func (l *Listener) Fetch() Flags {
	return Flags(l.pending.Swap(0))
}

// Pending reports the accumulated flags without clearing them.
func (l *Listener) Pending() Flags {
	return Flags(l.pending.Load())
}

// Unregister detaches the listener from its source. Flags already
// accumulated remain fetchable.
func (l *Listener) Unregister() { l.src.unregister(l) }

// Source is a broadcast point for condition flags. The zero value is ready
// to use and may be embedded in driver structs.
type Source struct {
	mu        sync.Mutex // guards registration only, never held by Broadcast
	listeners atomic.Pointer[[]*Listener]
}

// Register attaches a listener interested in the masked flags. A broadcast
// already in flight against the previous snapshot will not see it.
func (s *Source) Register(mask Flags) *Listener {
	l := &Listener{
		src:    s,
		mask:   mask,
		notify: make(chan struct{}, 1),
	}
	s.mu.Lock()
	old := s.listeners.Load()
	var next []*Listener
	if old != nil {
		next = append(next, *old...)
	}
	next = append(next, l)
	s.listeners.Store(&next)
	s.mu.Unlock()
	return l
}

func (s *Source) unregister(l *Listener) {
	s.mu.Lock()
	old := s.listeners.Load()
	if old != nil {
		next := make([]*Listener, 0, len(*old))
		for _, x := range *old {
			if x != l {
				next = append(next, x)
			}
		}
		s.listeners.Store(&next)
	}
	s.mu.Unlock()
}

// Broadcast merges flags into every listener whose mask intersects them and
// wakes the ones that were idle. Safe from interrupt/asynchronous context:
// lock-free, allocation-free, non-blocking.
func (s *Source) Broadcast(flags Flags) {
	snap := s.listeners.Load()
	if snap == nil {
		return
	}
	for _, l := range *snap {
		hit := flags & l.mask
		if hit == 0 {
			continue
		}
		l.pending.Or(uint32(hit))
		select {
		case l.notify <- struct{}{}:
		default:
		}
	}
}
