//go:build !linux && !darwin

package forensic1394

import (
	"errors"
	"time"
)

// errUnsupportedPlatform is returned by every operation on platforms
// this library has no backend for. Memory forensics over FireWire is
// inherently platform-specific (firewire-cdev on Linux, IOKit on
// Darwin); there is no portable fallback implementation to give it.
var errUnsupportedPlatform = errors.New("forensic1394: unsupported platform")

type otherBackend struct{}

func newBackend() backend { return &otherBackend{} }

func (b *otherBackend) discover(bus *Bus) ([]*Device, int, error) {
	return nil, 0, errUnsupportedPlatform
}

func (b *otherBackend) open(d *Device) error { return errUnsupportedPlatform }

func (b *otherBackend) close(d *Device) {}

func (b *otherBackend) destroy(d *Device) {}

func (b *otherBackend) pipelineDepth(d *Device, dir direction) int { return 1 }

func (b *otherBackend) submitRequest(d *Device, op wireOp, closure int) error {
	return errUnsupportedPlatform
}

func (b *otherBackend) awaitCompletion(d *Device, timeout time.Duration) (completion, Result) {
	return completion{}, OtherError
}

func (b *otherBackend) publishSBP2(bus *Bus) Result { return OtherError }

func (b *otherBackend) revokeSBP2(bus *Bus) {}
