package driver

import (
	"fmt"
	"sync"
)

// The registry keeps the single instance per peripheral addressable by name
// ("uart1", "console", ...). Instances are constructed explicitly by the
// platform layer and registered at start-up; duplicate registration is a
// wiring mistake and panics so it surfaces immediately.

var (
	muInstances sync.RWMutex
	instances   = map[string]Driver{}
)

// Register installs a driver instance under a unique name. The registry
// takes its own reference; it is released by Unregister.
func Register(name string, d Driver) {
	if name == "" {
		panic("driver: empty name for registered driver")
	}
	if d == nil {
		panic("driver: nil driver for name " + name)
	}
	muInstances.Lock()
	defer muInstances.Unlock()
	if _, exists := instances[name]; exists {
		panic(fmt.Sprintf("driver: instance already registered for name %q", name))
	}
	d.AddRef()
	instances[name] = d
}

// Lookup returns the registered instance for a name. The caller shares the
// registry's reference; take your own with AddRef if you outlive the entry.
func Lookup(name string) (Driver, bool) {
	muInstances.RLock()
	defer muInstances.RUnlock()
	d, ok := instances[name]
	return d, ok
}

// Unregister removes an instance and releases the registry's reference,
// which may dispose the object if it was the last one. Unknown names are
// ignored.
func Unregister(name string) {
	muInstances.Lock()
	d, ok := instances[name]
	if ok {
		delete(instances, name)
	}
	muInstances.Unlock()
	if ok {
		d.Release()
	}
}

// Names returns the registered names in unspecified order.
func Names() []string {
	muInstances.RLock()
	defer muInstances.RUnlock()
	out := make([]string, 0, len(instances))
	for n := range instances {
		out = append(out, n)
	}
	return out
}
