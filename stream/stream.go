// Package stream defines the byte-oriented I/O contracts communication
// drivers expose: Stream (unbounded blocking), Channel (bounded waits plus a
// generic control escape hatch) and AsyncChannel (adds an event source for
// interrupt-driven notification). Generic upper-layer code is written against
// these interfaces and never against a concrete driver type.
package stream

import (
	"time"

	"drivercore-go/events"
)

// Wait-budget sentinels for the timed Channel operations.
const (
	// Immediate makes the operation return errcode.Timeout at once if it
	// cannot complete without waiting.
	Immediate time.Duration = 0
	// Infinite waits without bound; a timed operation given Infinite never
	// returns errcode.Timeout.
	Infinite time.Duration = -1
)

// Control operation codes. Zero is reserved as invalid, one as a guaranteed
// no-op; further codes are open for driver-specific extension.
const (
	CtlInvalid uint = 0
	CtlNop     uint = 1
	CtlTXWait  uint = 2 // wait for transmit completion
)

// Stream is the minimal contract every byte sink/source supports. All four
// operations may suspend the calling goroutine without bound.
//
// Write and Read return short counts only when the underlying queue is reset
// (end-of-stream, reported as errcode.Reset), never as a spurious short
// transfer. Put and Get return nil or errcode.Reset.
type Stream interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Put(b byte) error
	Get() (byte, error)
}

// Channel extends Stream with bounded-wait variants of every operation and a
// generic control operation. Timed operations return errcode.Timeout when the
// budget is exhausted and errcode.Reset when the underlying queue is reset
// while waiting; a partial transfer completed before the budget ran out is
// reported in the count alongside the error.
type Channel interface {
	Stream

	WriteTimeout(p []byte, budget time.Duration) (int, error)
	ReadTimeout(p []byte, budget time.Duration) (int, error)
	PutTimeout(b byte, budget time.Duration) error
	GetTimeout(budget time.Duration) (byte, error)

	// Control performs a driver-specific operation outside the stream
	// model. CtlNop returns nil; CtlInvalid returns errcode.InvalidOp;
	// unrecognised codes return errcode.Unsupported.
	Control(op uint, arg any) error
}

// AsyncChannel extends Channel with an event source carrying condition
// flags. Drivers broadcast into the source from interrupt context; upper
// layers register listeners against it.
type AsyncChannel interface {
	Channel

	EventSource() *events.Source
}
