package identity

import "sync"

// devices tracks the identity signed in on each client device and fans each
// change out to that device's subscribers. Callbacks run under the lock so
// every subscriber sees events in the order they happened; they must not
// block or call back into the service.
type devices struct {
	mu      sync.Mutex
	current map[string]*Identity
	subs    map[string]map[uint64]func(*Identity)
	nextID  uint64
}

func newDevices() *devices {
	return &devices{
		current: make(map[string]*Identity),
		subs:    make(map[string]map[uint64]func(*Identity)),
	}
}

func (d *devices) set(device string, id *Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id == nil {
		if _, ok := d.current[device]; !ok {
			return
		}
		delete(d.current, device)
	} else {
		d.current[device] = id
	}
	d.emitLocked(device, id)
}

// clearUser signs userID out of every device it is signed in on.
func (d *devices) clearUser(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for device, id := range d.current {
		if id.ID == userID {
			delete(d.current, device)
			d.emitLocked(device, nil)
		}
	}
}

func (d *devices) get(device string) *Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return clone(d.current[device])
}

func (d *devices) emitLocked(device string, id *Identity) {
	for _, fn := range d.subs[device] {
		fn(clone(id))
	}
}

func (d *devices) subscribe(device string, fn func(*Identity)) func() {
	d.mu.Lock()
	d.nextID++
	subID := d.nextID
	if d.subs[device] == nil {
		d.subs[device] = make(map[uint64]func(*Identity))
	}
	d.subs[device][subID] = fn
	fn(clone(d.current[device]))
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs[device], subID)
			if len(d.subs[device]) == 0 {
				delete(d.subs, device)
			}
		})
	}
}

func clone(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// Feed is the identity-change stream for one device.
type Feed struct {
	devices *devices
	device  string
}

// Subscribe registers fn for identity changes on the device. fn receives the
// current identity (nil when signed out) immediately, then one call per
// sign-in or sign-out. The returned function unsubscribes and is safe to call
// more than once.
func (f Feed) Subscribe(fn func(*Identity)) func() {
	return f.devices.subscribe(f.device, fn)
}
