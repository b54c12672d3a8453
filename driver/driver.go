// Package driver implements the stateful base all HAL drivers share: an
// operating-state variable, open/close reference counting with lazy start and
// stop of the peripheral, an advisory owner back-reference, per-instance
// mutual exclusion, and disposal tied to the object reference count. Concrete
// drivers embed Core, supply the Impl hooks, and are registered by name so
// upper layers can hold a single instance per peripheral.
package driver

import (
	"sync"
	"sync/atomic"

	"drivercore-go/object"
)

// State is the advisory operating state of a driver. The framework stores
// and exposes it; beyond open/close gating, maintaining correct transitions
// is the concrete driver's job.
type State uint32

const (
	Uninit  State = iota // before first construction-time setup
	Stopped              // peripheral not physically active
	Ready                // started, idle
	Active               // mid-transfer
	Fault                // terminal until driver-specific recovery
)

func (s State) String() string {
	switch s {
	case Uninit:
		return "uninit"
	case Stopped:
		return "stopped"
	case Ready:
		return "ready"
	case Active:
		return "active"
	case Fault:
		return "fault"
	}
	return "unknown"
}

// Impl is the hook set a concrete driver supplies to Core.
type Impl interface {
	// Start physically activates the peripheral. Called at most once per
	// 0->1 open transition; may fail, and the failure is propagated to
	// the caller of Open without retry.
	Start() error
	// Stop physically deactivates the peripheral. Called at most once per
	// 1->0 close transition. Best-effort teardown; cannot fail.
	Stop()
	// Configure applies a driver-specific configuration. Only called
	// while the driver is open.
	Configure(config any) error
	// Interface exposes a narrower facet (a stream.Channel, say) or nil.
	Interface() any
}

// Driver is the full contract *Core satisfies; upper layers hold drivers
// through it.
type Driver interface {
	Open() error
	Close()
	Configure(config any) error
	Interface() any

	State() State
	SetState(State)
	Owner() any
	SetOwner(owner any)
	OpenCount() uint32

	Lock()
	Unlock()

	AddRef()
	Release() uint32
	RefCount() uint32
}

// Core is the embeddable driver base. Construct with Init before use; the
// creator holds the first object reference and the driver starts Stopped.
//
// Open, Close and Configure serialize on the instance lock internally, so
// they must not be called inside a Lock/Unlock bracket.
type Core struct {
	object.Referenced

	impl    Impl
	mu      sync.Mutex
	state   atomic.Uint32
	opencnt atomic.Uint32 // mutated only under mu
	owner   atomic.Value  // holds ownerBox
}

var _ Driver = (*Core)(nil)

type ownerBox struct{ v any }

type coreFinalizer struct{ d *Core }

func (f coreFinalizer) Dispose() {
	if f.d.opencnt.Load() != 0 {
		panic("driver: Dispose of driver with outstanding opens")
	}
	if d, ok := f.d.impl.(object.Disposer); ok {
		d.Dispose()
	}
	f.d.state.Store(uint32(Uninit))
}

// Init binds the hooks and initialises the base. The state moves from
// Uninit to Stopped and the reference count to one.
func (d *Core) Init(impl Impl) {
	if impl == nil {
		panic("driver: Init with nil impl")
	}
	d.impl = impl
	d.state.Store(uint32(Stopped))
	d.InitRef(coreFinalizer{d})
}

// Open takes one logical activation of the driver. The 0->1 transition
// invokes the Start hook; on failure the open count is left untouched, the
// state remains Stopped and the error is returned so a later Open retries
// Start. Any further Open is an immediate success that never touches
// hardware. Safe for concurrent callers.
func (d *Core) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opencnt.Load() == 0 {
		if err := d.impl.Start(); err != nil {
			d.state.Store(uint32(Stopped))
			return err
		}
		d.state.Store(uint32(Ready))
	}
	d.opencnt.Add(1)
	return nil
}

// Close releases one logical activation. The 1->0 transition moves the state
// to Stopped and invokes the Stop hook. Closing a driver that is not open is
// a caller bug and panics.
func (d *Core) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.opencnt.Load()
	if n == 0 {
		panic("driver: Close of driver that is not open")
	}
	d.opencnt.Store(n - 1)
	if n == 1 {
		d.state.Store(uint32(Stopped))
		d.impl.Stop()
	}
}

// Configure applies a new configuration through the Configure hook. The
// caller must hold the driver open, and is responsible for ensuring the
// peripheral is not mid-transfer.
func (d *Core) Configure(config any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opencnt.Load() == 0 {
		panic("driver: Configure of driver that is not open")
	}
	return d.impl.Configure(config)
}

// Interface returns the narrower facet the concrete driver exposes, or nil.
func (d *Core) Interface() any { return d.impl.Interface() }

// State reads the advisory operating state.
func (d *Core) State() State { return State(d.state.Load()) }

// SetState writes the advisory operating state. No validation; concrete
// drivers are trusted to keep transitions sane.
func (d *Core) SetState(s State) { d.state.Store(uint32(s)) }

// Owner reads the advisory owner back-reference, nil if none. The framework
// never dereferences it.
func (d *Core) Owner() any {
	if x := d.owner.Load(); x != nil {
		return x.(ownerBox).v
	}
	return nil
}

// SetOwner records which upper-layer object holds configuration rights over
// this driver. Advisory bookkeeping only.
func (d *Core) SetOwner(owner any) { d.owner.Store(ownerBox{owner}) }

// OpenCount reports the outstanding logical activations.
func (d *Core) OpenCount() uint32 { return d.opencnt.Load() }

// Lock acquires the instance mutex. Upper layers bracket sequences that must
// appear atomic (configure-then-transfer) with Lock/Unlock.
func (d *Core) Lock() { d.mu.Lock() }

// Unlock releases the instance mutex.
func (d *Core) Unlock() { d.mu.Unlock() }
