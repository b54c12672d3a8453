// Package ioring provides the single-producer single-consumer byte queue
// backing buffered channel drivers. Indices are monotonic atomics masked into
// a power-of-two buffer, so the producer and consumer never share a lock.
// Edge-notify channels signal the empty-to-readable and full-to-writable
// transitions; a reset gate tears the queue down under waiters, which is how
// blocked channel operations observe the RESET condition.
package ioring

import (
	"sync"
	"sync/atomic"
)

// Ring is a resettable SPSC byte queue. One goroutine may produce
// (TryWrite) and one may consume (TryRead) concurrently; Reset and
// Reactivate may be called from either side.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // empty -> non-empty edge
	writable chan struct{} // full -> non-full edge

	rmu   sync.Mutex // guards gate replacement
	reset atomic.Bool
	gate  chan struct{} // closed while the ring is reset
}

// New allocates a ring of the given power-of-two size (>= 2).
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("ioring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		gate:     make(chan struct{}),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

// Len reports the bytes currently queued.
func (r *Ring) Len() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Free reports the space currently available to the producer.
func (r *Ring) Free() int {
	return int(r.size() - (r.wr.Load() - r.rd.Load()))
}

// TryWrite queues as many bytes of src as fit and returns the count without
// waiting. It returns 0 when the ring is full or reset.
func (r *Ring) TryWrite(src []byte) int {
	if len(src) == 0 || r.reset.Load() {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	wasEmpty := wr == rd
	n := int(r.size() - (wr - rd))
	if n <= 0 {
		return 0
	}
	if n > len(src) {
		n = len(src)
	}

	idx := wr & r.mask
	first := int(r.size() - idx)
	if first > n {
		first = n
	}
	copy(r.buf[idx:idx+uint32(first)], src[:first])
	if rest := n - first; rest > 0 {
		copy(r.buf[:rest], src[first:n])
	}
	r.wr.Store(wr + uint32(n))

	if wasEmpty {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// TryRead dequeues up to len(dst) bytes and returns the count without
// waiting. It returns 0 when the ring is empty or reset.
func (r *Ring) TryRead(dst []byte) int {
	if len(dst) == 0 || r.reset.Load() {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	n := int(wr - rd)
	if n <= 0 {
		return 0
	}
	wasFull := uint32(n) == r.size()
	if n > len(dst) {
		n = len(dst)
	}

	idx := rd & r.mask
	first := int(r.size() - idx)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[idx:idx+uint32(first)])
	if rest := n - first; rest > 0 {
		copy(dst[first:n], r.buf[:rest])
	}
	r.rd.Store(rd + uint32(n))

	if wasFull {
		select {
		case r.writable <- struct{}{}:
		default:
		}
	}
	return n
}

// Readable signals the empty-to-readable edge. A waiter that drains the ring
// must re-check Len before waiting again.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// Writable signals the full-to-writable edge.
func (r *Ring) Writable() <-chan struct{} { return r.writable }

// IsReset reports whether the ring is currently torn down.
func (r *Ring) IsReset() bool { return r.reset.Load() }

// ResetGate returns a channel that is closed while the ring is reset.
// Blocked operations select on it alongside the edge-notify channels.
func (r *Ring) ResetGate() <-chan struct{} {
	r.rmu.Lock()
	ch := r.gate
	r.rmu.Unlock()
	return ch
}

// Reset tears the queue down: queued bytes are discarded and every current
// and future waiter observes the reset until Reactivate. Idempotent.
func (r *Ring) Reset() {
	r.rmu.Lock()
	if !r.reset.Load() {
		r.reset.Store(true)
		close(r.gate)
	}
	r.rmu.Unlock()
}

// Reactivate returns a reset ring to service with empty indices. Calling it
// on a live ring is a no-op.
func (r *Ring) Reactivate() {
	r.rmu.Lock()
	if r.reset.Load() {
		r.rd.Store(0)
		r.wr.Store(0)
		// Drop stale edge tokens from before the reset.
		select {
		case <-r.readable:
		default:
		}
		select {
		case <-r.writable:
		default:
		}
		r.gate = make(chan struct{})
		r.reset.Store(false)
	}
	r.rmu.Unlock()
}
