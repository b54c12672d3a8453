package uartchan

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/events"
	"drivercore-go/stream"
)

// fakePort is a host-side Port with an injectable receive buffer. When
// wblock is set, Write stalls until the channel is closed, simulating a port
// that is not ready to transmit.
type fakePort struct {
	mu     sync.Mutex
	rx     []byte
	tx     []byte
	err    error
	wblock chan struct{}
}

func (p *fakePort) inject(b []byte) {
	p.mu.Lock()
	p.rx = append(p.rx, b...)
	p.mu.Unlock()
}

func (p *fakePort) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rx)
}

func (p *fakePort) Read(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) == 0 {
		return 0, nil
	}
	n := copy(data, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *fakePort) Write(data []byte) (int, error) {
	if p.wblock != nil {
		<-p.wblock
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.tx = append(p.tx, data...)
	return len(data), nil
}

func (p *fakePort) sent() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.tx...)
}

func openUART(t *testing.T, p *fakePort, cfg Config) *Driver {
	t.Helper()
	if cfg.Poll == 0 {
		cfg.Poll = time.Millisecond
	}
	d := New(p, cfg)
	if err := d.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	return d
}

func TestPumpDeliversPortBytes(t *testing.T) {
	p := &fakePort{}
	d := openUART(t, p, Config{})
	defer d.Close()

	payload := []byte("from the wire")
	p.inject(payload)

	got := make([]byte, len(payload))
	n, err := d.ReadTimeout(got, time.Second)
	if err != nil || n != len(payload) {
		t.Fatalf("read = %d, %v", n, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read %q, want %q", got, payload)
	}
}

func TestWriteReachesPort(t *testing.T) {
	p := &fakePort{}
	d := openUART(t, p, Config{})
	defer d.Close()

	l := d.EventSource().Register(events.TransmissionEnd)

	payload := []byte("to the wire")
	n, err := d.Write(payload)
	if err != nil || n != len(payload) {
		t.Fatalf("write = %d, %v", n, err)
	}

	// The pump moves the bytes out asynchronously.
	select {
	case <-l.Notify():
	case <-time.After(time.Second):
		t.Fatal("no transmission-end event")
	}
	if got := l.Fetch(); got&events.TransmissionEnd == 0 {
		t.Fatalf("flags = %#x, want transmission-end", got)
	}
	if !bytes.Equal(p.sent(), payload) {
		t.Fatalf("port saw %q, want %q", p.sent(), payload)
	}
}

func TestWriteImmediateTimesOutWhenQueueFull(t *testing.T) {
	p := &fakePort{wblock: make(chan struct{})}
	d := openUART(t, p, Config{QueueSize: 16})
	defer func() {
		close(p.wblock) // let the pump finish before Stop joins it
		d.Close()
	}()

	// The pump stalls inside the port write; keep queueing until the write
	// queue is full, at which point a zero-budget write must not block.
	deadline := time.Now().Add(2 * time.Second)
	for {
		start := time.Now()
		n, err := d.WriteTimeout([]byte{0}, stream.Immediate)
		if err == errcode.Timeout && n == 0 {
			if blocked := time.Since(start); blocked > 50*time.Millisecond {
				t.Fatalf("immediate write blocked for %v", blocked)
			}
			return
		}
		if err != nil {
			t.Fatalf("write = %d, %v", n, err)
		}
		if time.Now().After(deadline) {
			t.Fatal("write queue never filled")
		}
	}
}

func TestBoundedWriteTimesOutWhenQueueFull(t *testing.T) {
	p := &fakePort{wblock: make(chan struct{})}
	d := openUART(t, p, Config{QueueSize: 16})
	defer func() {
		close(p.wblock)
		d.Close()
	}()

	// Saturate the queue (and the stalled pump) with immediate writes. The
	// pump takes one batch from the queue before blocking in the stalled
	// port write, so saturate, let it grab that batch, and saturate again.
	deadline := time.Now().Add(2 * time.Second)
	for pass := 0; pass < 2; pass++ {
		for {
			if _, err := d.WriteTimeout([]byte{0}, stream.Immediate); err == errcode.Timeout {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("write queue never filled")
			}
		}
		if pass == 0 {
			time.Sleep(20 * time.Millisecond)
		}
	}

	start := time.Now()
	_, err := d.WriteTimeout([]byte{1}, 20*time.Millisecond)
	if err != errcode.Timeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("returned after %v, before the budget elapsed", elapsed)
	}
}

func TestPortWriteErrorFaultsDriver(t *testing.T) {
	p := &fakePort{err: errcode.Error}
	d := openUART(t, p, Config{})
	defer d.Close()

	if _, err := d.Write([]byte{1}); err != nil {
		t.Fatalf("write into queue = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for d.State() != driver.Fault {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want fault after port write error", d.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInputAvailableFlag(t *testing.T) {
	p := &fakePort{}
	d := openUART(t, p, Config{})
	defer d.Close()

	l := d.EventSource().Register(events.InputAvailable)
	p.inject([]byte{1})

	select {
	case <-l.Notify():
	case <-time.After(time.Second):
		t.Fatal("no input-available event")
	}
}

func TestImmediateGetTimesOut(t *testing.T) {
	p := &fakePort{}
	d := openUART(t, p, Config{})
	defer d.Close()

	if _, err := d.GetTimeout(stream.Immediate); err != errcode.Timeout {
		t.Fatalf("get = %v, want timeout", err)
	}
}

func TestCloseStopsPumpAndResets(t *testing.T) {
	p := &fakePort{}
	d := openUART(t, p, Config{})
	d.Close()

	var buf [1]byte
	if _, err := d.ReadTimeout(buf[:], stream.Immediate); err != errcode.Reset {
		t.Fatalf("read after close = %v, want reset", err)
	}
	if _, err := d.Write([]byte{1}); err != errcode.Reset {
		t.Fatalf("write after close = %v, want reset", err)
	}
}

func TestReopenRestartsPump(t *testing.T) {
	p := &fakePort{}
	d := openUART(t, p, Config{})
	d.Close()

	if err := d.Open(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d.Close()

	p.inject([]byte{42})
	b, err := d.GetTimeout(time.Second)
	if err != nil || b != 42 {
		t.Fatalf("get after reopen = %d, %v", b, err)
	}
}

func TestControlCodes(t *testing.T) {
	p := &fakePort{}
	d := openUART(t, p, Config{})
	defer d.Close()

	if err := d.Control(stream.CtlNop, nil); err != nil {
		t.Fatalf("nop = %v", err)
	}
	if err := d.Control(stream.CtlInvalid, nil); err != errcode.InvalidOp {
		t.Fatalf("invalid = %v, want invalid_op", err)
	}
	if err := d.Control(77, nil); err != errcode.Unsupported {
		t.Fatalf("unknown = %v, want unsupported", err)
	}
}

func TestControlTXWaitDrains(t *testing.T) {
	p := &fakePort{}
	d := openUART(t, p, Config{})
	defer d.Close()

	if _, err := d.Write([]byte("pending")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.Control(stream.CtlTXWait, time.Second); err != nil {
		t.Fatalf("tx-wait = %v", err)
	}
	if got := p.sent(); !bytes.Equal(got, []byte("pending")) {
		t.Fatalf("port saw %q after tx-wait", got)
	}
}

func TestGenericFacet(t *testing.T) {
	p := &fakePort{}
	d := New(p, Config{})

	if got := d.CommAttributes().IfType(); got != driver.IfChannel {
		t.Fatalf("attributes = %d, want channel", got)
	}
	ch, ok := d.Interface().(stream.AsyncChannel)
	if !ok {
		t.Fatal("Interface() facet is not an async channel")
	}
	if ch != stream.AsyncChannel(d) {
		t.Fatal("facet is not the driver itself")
	}
}

func TestRingSizing(t *testing.T) {
	cases := []struct{ in, want int }{
		{1, 16},
		{16, 16},
		{17, 32},
		{300, 512},
		{1 << 20, 4096},
	}
	for _, c := range cases {
		if got := ringSize(c.in); got != c.want {
			t.Errorf("ringSize(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
