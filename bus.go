package forensic1394

// Bus is one logical handle to the host's FireWire subsystem. A Bus
// owns the Devices it has enumerated; re-enumerating or destroying the
// Bus invalidates every Device handle the caller previously held (see
// Device's doc comment).
type Bus struct {
	backend backend

	devices     []*Device
	onDestroy   func(*Device)
	sbp2Enabled bool
	userData    interface{}
}

// AllocBus allocates a new, empty Bus with SBP-2 disabled and no
// devices. It fails only if the platform backend cannot allocate its
// own backing state.
func AllocBus() (*Bus, error) {
	b := &Bus{
		backend: newBackend(),
	}
	return b, nil
}

// Destroy cascades: every Device is closed if open, the registered
// destroy callback (if any) fires for it, the backend releases any
// platform state for it, and then the Bus itself releases its own
// platform state, including revoking any SBP-2 publication. Destroy is
// idempotent against callers who already closed their Devices by hand,
// and calling Destroy again on the same Bus is harmless: the second call
// has no devices to cascade over and no SBP-2 publication to revoke, so
// it does nothing.
func (b *Bus) Destroy() {
	if b == nil {
		panic("forensic1394: Destroy on nil Bus")
	}
	b.destroyDevices()
	if b.sbp2Enabled {
		b.backend.revokeSBP2(b)
		b.sbp2Enabled = false
	}
}

// destroyDevices tears down the current device list, invoking the
// destroy callback and backend destroy hook for each, then clears it.
func (b *Bus) destroyDevices() {
	for _, d := range b.devices {
		if d.isOpen {
			b.backend.close(d)
			d.isOpen = false
		}
		if b.onDestroy != nil {
			b.onDestroy(d)
		}
		b.backend.destroy(d)
	}
	b.devices = nil
}

// Enumerate discovers FireWire nodes attached at the current bus
// generation. Any previously enumerated Device list is destroyed first
// (invoking onDestroy, if non-nil, once per old Device) before the new
// list is returned — old handles must not be retained across a call to
// Enumerate. onDestroy, if non-nil, replaces any previously registered
// callback and is stored on the Bus so it also fires on the next
// Enumerate or on Bus.Destroy.
//
// The returned slice is borrowed: it is valid until the next call to
// Enumerate or Destroy. It is nil (not just zero-length) when no
// devices are enumerated. The Result is NoPerm only when zero devices
// were enumerated and at least one node was skipped due to permissions;
// any device having been found at all is reported as Success even if
// other nodes were inaccessible.
func (b *Bus) Enumerate(onDestroy func(*Device)) ([]*Device, Result) {
	if b == nil {
		panic("forensic1394: Enumerate on nil Bus")
	}
	b.destroyDevices()
	b.onDestroy = onDestroy

	devices, permSkipped, err := b.backend.discover(b)
	if err != nil {
		return nil, OtherError
	}
	b.devices = devices
	for _, d := range b.devices {
		d.bus = b
	}
	if len(b.devices) == 0 && permSkipped > 0 {
		return nil, NoPerm
	}
	return b.devices, Success
}

// EnableSBP2 publishes the canonical SBP-2 unit directory on the host
// controller so that target operating systems that require it (notably
// Windows) will honor DMA requests from this host. Enabling triggers a
// bus reset on the host; callers should enable SBP-2 before enumerating
// and wait roughly two seconds for the reset to settle.
//
// EnableSBP2 is idempotent once it has succeeded: a second call returns
// Success without republishing or resetting again.
func (b *Bus) EnableSBP2() Result {
	if b == nil {
		panic("forensic1394: EnableSBP2 on nil Bus")
	}
	if b.sbp2Enabled {
		return Success
	}
	res := b.backend.publishSBP2(b)
	if res == Success {
		b.sbp2Enabled = true
	}
	return res
}

// UserData returns the untyped value most recently stored with
// SetUserData, or nil if none has been stored. The library imposes no
// semantics on it.
func (b *Bus) UserData() interface{} {
	if b == nil {
		panic("forensic1394: UserData on nil Bus")
	}
	return b.userData
}

// SetUserData stores an untyped caller value on the Bus.
func (b *Bus) SetUserData(v interface{}) {
	if b == nil {
		panic("forensic1394: SetUserData on nil Bus")
	}
	b.userData = v
}
