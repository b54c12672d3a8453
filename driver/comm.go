package driver

import "drivercore-go/stream"

// Attributes classifies a communication driver's interface for generic
// upper-layer code. The low three bits carry the interface type; higher bits
// are open for driver-specific capability flags.
type Attributes uint32

const (
	IfUnspecified Attributes = 0 // classification not provided
	IfStream      Attributes = 1 // blocking stream, no timeout support
	IfChannel     Attributes = 2 // timed operations and control codes

	IfTypeMask Attributes = 7
)

// IfType extracts the interface-type field.
func (a Attributes) IfType() Attributes { return a & IfTypeMask }

// CommDriver is the facet byte-oriented drivers expose on top of Driver.
// Generic code (a shell, a logger sink) adapts its I/O strategy to the
// attributes rather than to the concrete type.
type CommDriver interface {
	Driver

	CommInterface() stream.Stream
	CommAttributes() Attributes
}

// Comm is the embeddable communication-driver layer. The interface view and
// its attributes are fixed at construction, matching the descriptor-built-
// once rule for the base object.
type Comm struct {
	Core

	comif stream.Stream
	attrs Attributes
}

var _ CommDriver = (*Comm)(nil)

// InitComm initialises the driver base and binds the communication view.
func (c *Comm) InitComm(impl Impl, comif stream.Stream, attrs Attributes) {
	if comif == nil {
		panic("driver: InitComm with nil comm interface")
	}
	c.Core.Init(impl)
	c.comif = comif
	c.attrs = attrs
}

// CommInterface returns the stream-or-channel view bound at construction.
func (c *Comm) CommInterface() stream.Stream { return c.comif }

// CommAttributes returns the descriptive attribute mask.
func (c *Comm) CommAttributes() Attributes { return c.attrs }
