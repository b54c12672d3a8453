// Package uartchan lifts a hardware UART port into the generic channel
// contract. Both directions run through SPSC queues serviced by a pump
// goroutine: receive moves port bytes into the read queue and raises
// condition flags, transmit drains the write queue into the port at the
// port's own pace. The pump stands in for the interrupt handlers the
// framework itself never contains, and keeps every channel operation's wait
// budget honest — the caller only ever blocks on a queue, never on the port.
package uartchan

import (
	"time"

	"tinygo.org/x/drivers"

	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/events"
	"drivercore-go/internal/timeutil"
	"drivercore-go/stream"
	"drivercore-go/x/ioring"
)

// Port is the subset of tinygo.org/x/drivers.UART consumed here, kept
// minimal so host-side fakes stay small.
type Port interface {
	Buffered() int
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
}

// The drivers.UART interface must keep satisfying Port.
var _ Port = drivers.UART(nil)

// Config tunes the queues and the pump.
type Config struct {
	QueueSize int           // per-direction queue bytes (default 256)
	Poll      time.Duration // idle poll interval (default 1ms)
}

func (c *Config) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Poll <= 0 {
		c.Poll = time.Millisecond
	}
}

const (
	minQueue = 16
	maxQueue = 4096
)

func ringSize(n int) int {
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

// Driver adapts a UART port to driver.CommDriver and stream.AsyncChannel.
// At most one goroutine may read and one write the channel at a time.
type Driver struct {
	driver.Comm

	port Port
	cfg  Config
	in   *ioring.Ring // pump feeds, channel reads
	out  *ioring.Ring // channel writes, pump drains
	ev   events.Source

	stop chan struct{}
	done chan struct{}
}

var (
	_ driver.CommDriver   = (*Driver)(nil)
	_ stream.AsyncChannel = (*Driver)(nil)
	_ driver.Impl         = (*hooks)(nil)
)

// New wraps a port. The driver starts Stopped; the pump runs only while the
// driver is open.
func New(port Port, cfg Config) *Driver {
	if port == nil {
		panic("uartchan: nil port")
	}
	cfg.defaults()
	d := &Driver{
		port: port,
		cfg:  cfg,
		in:   ioring.New(ringSize(cfg.QueueSize)),
		out:  ioring.New(ringSize(cfg.QueueSize)),
	}
	d.in.Reset()
	d.out.Reset()
	d.InitComm(hooks{d}, d, driver.IfChannel)
	return d
}

// FromUART wraps a tinygo.org/x/drivers UART.
func FromUART(u drivers.UART, cfg Config) *Driver {
	return New(u, cfg)
}

// hooks carries the lifecycle; Start/Stop are serialized by the driver core.
type hooks struct{ d *Driver }

func (h hooks) Start() error {
	d := h.d
	d.in.Reactivate()
	d.out.Reactivate()
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.pump(d.stop, d.done)
	d.ev.Broadcast(events.Connected)
	return nil
}

func (h hooks) Stop() {
	d := h.d
	close(d.stop)
	<-d.done
	d.in.Reset()
	d.out.Reset()
	d.ev.Broadcast(events.Disconnected)
}

// Configure is accepted for the generic contract; port parameters (baud,
// format) belong to whoever constructed the port.
func (h hooks) Configure(config any) error {
	switch config.(type) {
	case nil, Config, *Config:
		return nil
	}
	return &errcode.E{C: errcode.ConfigFailed, Op: "uartchan.configure", Msg: "unrecognised config type"}
}

func (h hooks) Interface() any { return h.d }

// pump services both queues until told to stop. A port write error moves the
// driver to Fault; the bytes are dropped, matching best-effort transmit.
func (d *Driver) pump(stop, done chan struct{}) {
	defer close(done)
	var buf [64]byte
	timer := timeutil.NewStopped()
	defer timer.Stop()
	for {
		progress := false

		if d.port.Buffered() > 0 {
			n, _ := d.port.Read(buf[:])
			if n > 0 {
				w := d.in.TryWrite(buf[:n])
				if w > 0 {
					d.ev.Broadcast(events.InputAvailable)
				}
				if w < n {
					d.ev.Broadcast(events.OverrunError | events.BufferFull)
				}
				progress = true
			}
		}

		if n := d.out.TryRead(buf[:]); n > 0 {
			if _, err := d.port.Write(buf[:n]); err != nil {
				d.SetState(driver.Fault)
			}
			if d.out.Len() == 0 {
				d.ev.Broadcast(events.OutputEmpty | events.TransmissionEnd)
			}
			progress = true
		}

		if progress {
			continue
		}
		timeutil.ResetTimer(timer, d.cfg.Poll)
		select {
		case <-stop:
			return
		case <-timer.C:
		case <-d.out.Readable():
		}
	}
}

// ----------------------------------------------------------------------------
// Channel facet
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

// writeBudget queues bytes for the pump, waiting for space within the
// budget. The returned count includes any partial transfer completed before
// a Timeout or Reset.
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

// waitTXDone blocks until the pump drains the write queue. Registration
// happens before the emptiness check so a drain between check and wait is
// not lost.
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
