// Package bufchan implements a software-buffered full-duplex channel driver:
// two SPSC queues (receive and transmit) behind the generic driver lifecycle
// and the full asynchronous-channel contract. The peripheral half is exposed
// as an explicit API (Feed, Drain) so the package works both as the buffering
// layer a hardware port pumps into and as a host-side test double for any
// code written against stream.AsyncChannel.
//
// Queue discipline is single-producer single-consumer per direction: at most
// one goroutine reading and one writing the channel at a time, with the
// peripheral half on the opposite end of each queue.
package bufchan

import (
	"sync/atomic"
	"time"

	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/events"
	"drivercore-go/stream"
	"drivercore-go/x/ioring"
)

// Config sizes the queues at construction and carries the one runtime
// setting, loopback. Sizes are rounded up to powers of two and clamped.
type Config struct {
	InSize   int  // receive queue bytes (default 64)
	OutSize  int  // transmit queue bytes (default 64)
	Loopback bool // echo transmitted bytes into the receive queue
}

const (
	minQueue     = 16
	maxQueue     = 4096
	defaultQueue = 64
)

func queueSize(n int) int {
	if n <= 0 {
		return defaultQueue
	}
	if n < minQueue {
		n = minQueue
	}
	if n > maxQueue {
		n = maxQueue
	}
	p := minQueue
	for p < n {
		p <<= 1
	}
	return p
}

// Driver is the buffered channel driver. It satisfies driver.CommDriver and
// stream.AsyncChannel through one instance, so Interface and CommInterface
// both resolve to the same object.
type Driver struct {
	driver.Comm

	in  *ioring.Ring // peripheral feeds, channel reads
	out *ioring.Ring // channel writes, peripheral drains
	ev  events.Source

	loopback atomic.Bool
}

var (
	_ driver.CommDriver   = (*Driver)(nil)
	_ stream.AsyncChannel = (*Driver)(nil)
	_ driver.Impl         = (*hooks)(nil)
)

// New constructs a closed (Stopped) buffered channel driver. The queues stay
// reset until the first Open, so I/O on an unopened driver reports Reset
// rather than blocking forever.
func New(cfg Config) *Driver {
	d := &Driver{
		in:  ioring.New(queueSize(cfg.InSize)),
		out: ioring.New(queueSize(cfg.OutSize)),
	}
	d.loopback.Store(cfg.Loopback)
	d.in.Reset()
	d.out.Reset()
	d.InitComm(hooks{d}, d, driver.IfChannel)
	return d
}

// hooks adapts the driver to the lifecycle hook interface; kept separate so
// the promoted Core methods do not shadow the hook set.
type hooks struct{ d *Driver }

func (h hooks) Start() error {
	h.d.in.Reactivate()
	h.d.out.Reactivate()
	h.d.ev.Broadcast(events.Connected)
	return nil
}

func (h hooks) Stop() {
	h.d.in.Reset()
	h.d.out.Reset()
	h.d.ev.Broadcast(events.Disconnected)
}

func (h hooks) Configure(config any) error {
	switch c := config.(type) {
	case nil:
		return nil
	case Config:
		h.d.loopback.Store(c.Loopback)
		return nil
	case *Config:
		h.d.loopback.Store(c.Loopback)
		return nil
	}
	return &errcode.E{C: errcode.ConfigFailed, Op: "bufchan.configure", Msg: "unrecognised config type"}
}

func (h hooks) Interface() any { return h.d }

// ----------------------------------------------------------------------------
// Channel side
// ----------------------------------------------------------------------------

// EventSource returns the condition-flag broadcast point.
func (d *Driver) EventSource() *events.Source { return &d.ev }

func (d *Driver) Write(p []byte) (int, error) {
	return d.writeBudget(p, stream.Infinite)
}

func (d *Driver) Read(p []byte) (int, error) {
	return d.readBudget(p, stream.Infinite)
}

func (d *Driver) Put(b byte) error {
	buf := [1]byte{b}
	_, err := d.writeBudget(buf[:], stream.Infinite)
	return err
}

func (d *Driver) Get() (byte, error) {
	var buf [1]byte
	if _, err := d.readBudget(buf[:], stream.Infinite); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (d *Driver) WriteTimeout(p []byte, budget time.Duration) (int, error) {
	return d.writeBudget(p, budget)
}

func (d *Driver) ReadTimeout(p []byte, budget time.Duration) (int, error) {
	return d.readBudget(p, budget)
}

func (d *Driver) PutTimeout(b byte, budget time.Duration) error {
	buf := [1]byte{b}
	_, err := d.writeBudget(buf[:], budget)
	return err
}

func (d *Driver) GetTimeout(budget time.Duration) (byte, error) {
	var buf [1]byte
	if _, err := d.readBudget(buf[:], budget); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Control implements the generic escape hatch. CtlTXWait accepts a
// time.Duration argument as the wait budget; anything else waits without
// bound.
func (d *Driver) Control(op uint, arg any) error {
	switch op {
	case stream.CtlInvalid:
		return errcode.InvalidOp
	case stream.CtlNop:
		return nil
	case stream.CtlTXWait:
		budget := stream.Infinite
		if b, ok := arg.(time.Duration); ok {
			budget = b
		}
		return d.waitTXDone(budget)
	}
	return errcode.Unsupported
}

// writeBudget queues bytes into the transmit queue, waiting for space within
// the budget. The returned count includes any partial transfer completed
// before a Timeout or Reset.
func (d *Driver) writeBudget(p []byte, budget time.Duration) (int, error) {
	var timer *time.Timer
	if budget > 0 {
		timer = time.NewTimer(budget)
		defer timer.Stop()
	}
	done := 0
	for {
		if d.out.IsReset() {
			return done, errcode.Reset
		}
		if n := d.out.TryWrite(p[done:]); n > 0 {
			done += n
			if d.loopback.Load() {
				d.pumpLoopback()
			}
		}
		if done == len(p) {
			return done, nil
		}
		switch {
		case budget == stream.Immediate:
			return done, errcode.Timeout
		case budget < 0:
			select {
			case <-d.out.Writable():
			case <-d.out.ResetGate():
			}
		default:
			select {
			case <-d.out.Writable():
			case <-d.out.ResetGate():
			case <-timer.C:
				return done, errcode.Timeout
			}
		}
	}
}

// readBudget fills p from the receive queue, waiting for data within the
// budget. Short reads happen only on Timeout or Reset.
func (d *Driver) readBudget(p []byte, budget time.Duration) (int, error) {
	var timer *time.Timer
	if budget > 0 {
		timer = time.NewTimer(budget)
		defer timer.Stop()
	}
	done := 0
	for {
		if d.in.IsReset() {
			return done, errcode.Reset
		}
		if n := d.in.TryRead(p[done:]); n > 0 {
			done += n
		}
		if done == len(p) {
			return done, nil
		}
		switch {
		case budget == stream.Immediate:
			return done, errcode.Timeout
		case budget < 0:
			select {
			case <-d.in.Readable():
			case <-d.in.ResetGate():
			}
		default:
			select {
			case <-d.in.Readable():
			case <-d.in.ResetGate():
			case <-timer.C:
				return done, errcode.Timeout
			}
		}
	}
}

// waitTXDone blocks until the transmit queue drains. Registration happens
// before the emptiness check so a drain between check and wait is not lost.
func (d *Driver) waitTXDone(budget time.Duration) error {
	l := d.ev.Register(events.TransmissionEnd)
	defer l.Unregister()

	var timer *time.Timer
	if budget > 0 {
		timer = time.NewTimer(budget)
		defer timer.Stop()
	}
	for {
		if d.out.IsReset() {
			return errcode.Reset
		}
		if d.out.Len() == 0 {
			return nil
		}
		switch {
		case budget == stream.Immediate:
			return errcode.Timeout
		case budget < 0:
			select {
			case <-l.Notify():
				l.Fetch()
			case <-d.out.ResetGate():
			}
		default:
			select {
			case <-l.Notify():
				l.Fetch()
			case <-d.out.ResetGate():
			case <-timer.C:
				return errcode.Timeout
			}
		}
	}
}

// pumpLoopback moves transmit bytes straight back into the receive queue.
func (d *Driver) pumpLoopback() {
	var buf [64]byte
	for {
		n := d.out.TryRead(buf[:])
		if n == 0 {
			return
		}
		d.Feed(buf[:n])
		if d.out.Len() == 0 {
			d.ev.Broadcast(events.OutputEmpty | events.TransmissionEnd)
		}
	}
}

// ----------------------------------------------------------------------------
// Peripheral side
// ----------------------------------------------------------------------------

// Feed injects received bytes the way an RX interrupt would and broadcasts
// InputAvailable. Bytes that do not fit are dropped and reported through the
// BufferFull condition; the accepted count is returned. Non-blocking.
func (d *Driver) Feed(p []byte) int {
	n := d.in.TryWrite(p)
	if n > 0 {
		d.ev.Broadcast(events.InputAvailable)
	}
	if n < len(p) && !d.in.IsReset() {
		d.ev.Broadcast(events.BufferFull)
	}
	return n
}

// Drain removes queued transmit bytes the way a TX interrupt would,
// broadcasting OutputEmpty and TransmissionEnd when the queue empties.
// Non-blocking; returns the number of bytes moved into p.
func (d *Driver) Drain(p []byte) int {
	n := d.out.TryRead(p)
	if n > 0 && d.out.Len() == 0 {
		d.ev.Broadcast(events.OutputEmpty | events.TransmissionEnd)
	}
	return n
}

// OutputReady signals the empty-to-pending edge of the transmit queue, for a
// peripheral half that waits instead of polling.
func (d *Driver) OutputReady() <-chan struct{} { return d.out.Readable() }
