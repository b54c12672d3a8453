// Package object provides the reference-counted base shared by all driver
// objects. Polymorphic dispatch is carried by Go interface values, so this
// package only holds what the compiler cannot enforce: the reference counter
// and the dispose-exactly-once discipline.
package object

import "sync/atomic"

// Disposer is the finalization hook. Leaf types may use NopDisposer;
// descendants release their own resources before delegating upward.
type Disposer interface {
	Dispose()
}

// NopDisposer is a Disposer that does nothing.
type NopDisposer struct{}

func (NopDisposer) Dispose() {}

// Referenced is the embeddable reference-counted core. Construction (InitRef)
// hands the creator the first reference. AddRef/Release are atomic with
// respect to each other, so disposal never races a concurrent AddRef on a
// correctly counted object.
//
// The zero value is not usable; call InitRef exactly once before sharing.
type Referenced struct {
	refs     atomic.Uint32
	disposer Disposer
}

// InitRef initialises the counter to one and records the disposal hook.
// A nil disposer is allowed and treated as a no-op.
func (r *Referenced) InitRef(d Disposer) {
	if r.refs.Swap(1) != 0 {
		panic("object: InitRef on live object")
	}
	r.disposer = d
}

// AddRef takes an additional reference. Wrapping the counter, or reviving an
// object whose count already reached zero, is a caller bug and panics.
func (r *Referenced) AddRef() {
	for {
		n := r.refs.Load()
		switch n {
		case 0:
			panic("object: AddRef on released object")
		case ^uint32(0):
			panic("object: reference counter overflow")
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// Release drops one reference and returns the remaining count. On the
// transition to zero the disposal hook runs synchronously on the calling
// goroutine before Release returns; objects wrap live hardware state, so
// teardown must be deterministic, not deferred to a collector. Releasing an
// object already at zero panics.
func (r *Referenced) Release() uint32 {
	for {
		n := r.refs.Load()
		if n == 0 {
			panic("object: Release of object with zero references")
		}
		if r.refs.CompareAndSwap(n, n-1) {
			if n == 1 && r.disposer != nil {
				r.disposer.Dispose()
			}
			return n - 1
		}
	}
}

// RefCount reports the current count. Observation only; the value may be
// stale by the time the caller acts on it.
func (r *Referenced) RefCount() uint32 { return r.refs.Load() }
