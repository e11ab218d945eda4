//go:build darwin

package forensic1394

/*
#cgo LDFLAGS: -framework IOKit -framework CoreFoundation
#include <IOKit/IOKitLib.h>
#include <IOKit/firewire/IOFireWireLib.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdlib.h>

extern void fw1394GoAsyncCallback(void *refcon, IOReturn result, void *quads, UInt32 numQuads);

// fw1394OpenNodeInterface matches the registry entry and opens its
// IOFireWireLib device interface in one step, mirroring how
// IOFireWireLocalNode/IOFireWireDevice clients are expected to obtain
// one per Apple's sample code.
static IOFireWireLibDeviceRef fw1394OpenNodeInterface(io_service_t service) {
	IOCFPlugInInterface **plugin = NULL;
	SInt32 score = 0;
	IOFireWireLibDeviceRef intf = NULL;

	if (IOCreatePlugInInterfaceForService(service, kIOFireWireLibTypeID,
			kIOCFPlugInInterfaceID, &plugin, &score) != kIOReturnSuccess || plugin == NULL) {
		return NULL;
	}
	(*plugin)->QueryInterface(plugin, CFUUIDGetUUIDBytes(kIOFireWireDeviceInterfaceID_v8),
		(void **)&intf);
	(*plugin)->Release(plugin);
	return intf;
}

// The remaining helpers exist because IOFireWireLibDeviceRef is a
// COM-style vtable (**IOFireWireDeviceInterface), not something cgo
// can invoke with Go method syntax; every call goes through one of
// these thin C trampolines instead.

static IOReturn fw1394Open(IOFireWireLibDeviceRef intf) {
	return (*intf)->Open(intf);
}
static void fw1394Close(IOFireWireLibDeviceRef intf) {
	(*intf)->Close(intf);
}
static void fw1394Release(IOFireWireLibDeviceRef intf) {
	(*intf)->Release(intf);
}
static void fw1394AddDispatcher(IOFireWireLibDeviceRef intf, CFRunLoopRef rl, CFStringRef mode) {
	(*intf)->AddCallbackDispatcherWithRunLoopAndMode(intf, rl, mode);
}
static void fw1394RemoveDispatcher(IOFireWireLibDeviceRef intf, CFRunLoopRef rl, CFStringRef mode) {
	(*intf)->RemoveCallbackDispatcherWithRunLoopAndMode(intf, rl, mode);
}
static IOReturn fw1394Read(IOFireWireLibDeviceRef intf, UInt64 addr, void *buf, UInt32 len, void *refcon) {
	return (*intf)->Read(intf, (FWAddress){0, (UInt32)(addr >> 32), (UInt32)addr}, buf, &len,
		false, 0, fw1394GoAsyncCallback, refcon);
}
static IOReturn fw1394Write(IOFireWireLibDeviceRef intf, UInt64 addr, void *buf, UInt32 len, void *refcon) {
	return (*intf)->Write(intf, (FWAddress){0, (UInt32)(addr >> 32), (UInt32)addr}, buf, &len,
		false, 0, fw1394GoAsyncCallback, refcon);
}
static void fw1394Stop(IOFireWireLibDeviceRef intf) {
	// IOFireWireLib has no single "cancel all" call, and this backend
	// keeps no per-request command objects to abort, so this is a no-op;
	// nothing in the backend calls it.
}
static IOReturn fw1394AddUnitDirectory(IOFireWireLibDeviceRef intf, UInt32 *quads, UInt32 numQuads) {
	return (*intf)->AddUnitDirectory(intf, quads, numQuads);
}
static void fw1394RemoveUnitDirectory(IOFireWireLibDeviceRef intf) {
	(*intf)->RemoveUnitDirectory(intf);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"
)

// darwinReadDepth/darwinWriteDepth match the preallocated command-ring
// size IOFireWireLib clients conventionally use: up to four outstanding
// reads, one outstanding write, since the controller only ever accepts
// a single in-flight write transaction per unit.
const (
	darwinReadDepth  = 4
	darwinWriteDepth = 1
)

var errDarwinNoDevice = errors.New("forensic1394: IOKit device interface unavailable")
var errDarwinRequestFailed = errors.New("forensic1394: IOFireWireLib Read/Write call failed")

// darwinHandle is the per-Device platform handle: the opened
// IOFireWireLib device interface, the private run-loop mode the
// backend dispatches completions under, and the completion channel +
// pump goroutine that live for as long as the Device is open (started
// in open(), stopped in close()) so submitRequest/awaitCompletion can
// be called independently across an entire pipelined batch instead of
// the run loop being spun up and torn down per batch.
type darwinHandle struct {
	intf     C.IOFireWireLibDeviceRef
	service  C.io_service_t
	runLoop  C.CFRunLoopRef
	modeName C.CFStringRef

	done     chan completion
	pumpStop chan struct{}
}

// darwinDiscKey is the discovery key stashed on Device.discKey: the
// IOKit registry entry this Device was matched against, so open() can
// re-acquire an interface on it.
type darwinDiscKey struct {
	service C.io_service_t
}

type darwinBackend struct {
	mu         sync.Mutex
	sbp2Handle C.io_service_t
	sbp2Intf   C.IOFireWireLibDeviceRef
	haveSBP2   bool
}

func newBackend() backend {
	return &darwinBackend{}
}

// darwinPending is the registry of in-flight asynchronous commands,
// keyed by a token passed as the refcon to fw1394GoAsyncCallback: cgo
// exports can only receive a void* refcon, not a Go closure, so the
// completion channel and buffer live here instead.
var (
	darwinPendingMu   sync.Mutex
	darwinPending     = map[uint64]darwinPendingOp{}
	darwinPendingNext uint64
)

type darwinPendingOp struct {
	done    chan completion
	closure int
	buf     []byte
}

func darwinRegisterPending(done chan completion, closure int, buf []byte) unsafe.Pointer {
	darwinPendingMu.Lock()
	defer darwinPendingMu.Unlock()
	darwinPendingNext++
	token := darwinPendingNext
	darwinPending[token] = darwinPendingOp{done: done, closure: closure, buf: buf}
	return unsafe.Pointer(uintptr(token))
}

//export fw1394GoAsyncCallback
func fw1394GoAsyncCallback(refcon unsafe.Pointer, result C.IOReturn, quads unsafe.Pointer, numQuads C.UInt32) {
	token := uint64(uintptr(refcon))
	darwinPendingMu.Lock()
	op, ok := darwinPending[token]
	if ok {
		delete(darwinPending, token)
	}
	darwinPendingMu.Unlock()
	if !ok {
		return
	}

	c := completion{closure: op.closure, length: len(op.buf), data: op.buf}
	switch result {
	case C.kIOReturnSuccess:
		c.rcode = rcodeComplete
	case C.kIOReturnBusy:
		c.rcode = rcodeBusy
	case C.kIOReturnNotPermitted:
		c.rcode = rcodeGeneration
	default:
		c.rcode = rcodeGeneration + 1 // any unrecognized non-zero rcode maps to IOError below
	}
	op.done <- c
}

// matchLocalAndRemoteNodes returns every IOFireWireDevice in the I/O
// registry, plus the IOFireWireLocalNode entries representing this
// host's own controllers (used by publishSBP2, never returned to
// discover's caller).
func matchLocalAndRemoteNodes() (local []C.io_service_t, remote []C.io_service_t, err error) {
	classes := []string{"IOFireWireLocalNode", "IOFireWireDevice"}
	for _, class := range classes {
		cClass := C.CString(class)
		matching := C.IOServiceMatching(cClass)
		C.free(unsafe.Pointer(cClass))
		if matching == 0 {
			continue
		}
		var iter C.io_iterator_t
		if kr := C.IOServiceGetMatchingServices(C.kIOMasterPortDefault, matching, &iter); kr != C.kIOReturnSuccess {
			continue
		}
		for {
			svc := C.IOIteratorNext(iter)
			if svc == 0 {
				break
			}
			if class == "IOFireWireLocalNode" {
				local = append(local, svc)
			} else {
				remote = append(remote, svc)
			}
		}
		C.IOObjectRelease(iter)
	}
	return local, remote, nil
}

func (b *darwinBackend) discover(bus *Bus) ([]*Device, int, error) {
	_, remote, err := matchLocalAndRemoteNodes()
	if err != nil {
		return nil, 0, err
	}

	var devices []*Device

	// permSkipped stays 0 on Darwin: IORegistryEntryCreateCFProperty
	// gives no permission-specific signal distinct from "no ROM property
	// cached for this service" (both return a NULL CFTypeRef), so unlike
	// Linux's isPermissionError this backend has no way to tell a genuine
	// access failure from a benign absence. Folding the latter into
	// permSkipped would make NoPerm fire for hosts with zero permission
	// problems; see DESIGN.md's Platform backends entry.
	permSkipped := 0

	for _, svc := range remote {
		dev, ok := probeIORegistryEntry(svc)
		if !ok {
			C.IOObjectRelease(svc)
			continue
		}
		devices = append(devices, dev)
	}
	return devices, permSkipped, nil
}

// probeIORegistryEntry reads the "FireWire Device ROM" property off
// one matched service and, if present, decodes it the same way the
// Linux backend decodes the bytes firewire-cdev returns: the property
// holds big-endian wire quadlets that must be byte-swapped into host
// order before csr.go can walk them. A false return means the property
// was absent or empty, for whatever reason IOKit had — this path has no
// permission-failure signal to report, see discover above.
func probeIORegistryEntry(svc C.io_service_t) (*Device, bool) {
	cKey := C.CString("FireWire Device ROM")
	defer C.free(unsafe.Pointer(cKey))
	key := C.CFStringCreateWithCString(C.kCFAllocatorDefault, cKey, C.kCFStringEncodingUTF8)
	defer C.CFRelease(C.CFTypeRef(key))

	prop := C.IORegistryEntryCreateCFProperty(svc, key, C.kCFAllocatorDefault, 0)
	if prop == 0 {
		return nil, false
	}
	defer C.CFRelease(C.CFTypeRef(prop))

	data := C.CFDataRef(prop)
	length := C.CFDataGetLength(data)
	if length <= 0 {
		return nil, false
	}
	romBytes := C.GoBytes(unsafe.Pointer(C.CFDataGetBytePtr(data)), C.int(length))

	var rom [256]uint32
	for i := 0; i*4+4 <= len(romBytes) && i < csrQuadlets; i++ {
		rom[i] = beBytesToUint32(romBytes[i*4 : i*4+4])
	}

	dev := &Device{
		csr:     rom,
		discKey: darwinDiscKey{service: svc},
	}
	parseCSR(rom, dev)
	return dev, true
}

func beBytesToUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (b *darwinBackend) open(d *Device) error {
	key := d.discKey.(darwinDiscKey)
	intf := C.fw1394OpenNodeInterface(key.service)
	if intf == nil {
		return errDarwinNoDevice
	}
	if kr := C.fw1394Open(intf); kr != C.kIOReturnSuccess {
		C.fw1394Release(intf)
		return fmt.Errorf("forensic1394: IOFireWireLib open failed: 0x%x", int32(kr))
	}

	cModeName := C.CString("com.forensic1394.runloop")
	defer C.free(unsafe.Pointer(cModeName))
	modeName := C.CFStringCreateWithCString(C.kCFAllocatorDefault, cModeName, C.kCFStringEncodingUTF8)
	runLoop := C.CFRunLoopGetCurrent()
	C.fw1394AddDispatcher(intf, runLoop, modeName)

	h := &darwinHandle{
		intf:     intf,
		service:  key.service,
		runLoop:  runLoop,
		modeName: modeName,
		done:     make(chan completion, darwinReadDepth),
		pumpStop: make(chan struct{}),
	}
	go darwinPumpRunLoop(modeName, h.pumpStop)
	d.handle = h
	return nil
}

func (b *darwinBackend) close(d *Device) {
	h, ok := d.handle.(*darwinHandle)
	if !ok || h == nil {
		return
	}
	close(h.pumpStop)
	C.fw1394RemoveDispatcher(h.intf, h.runLoop, h.modeName)
	C.fw1394Close(h.intf)
	C.fw1394Release(h.intf)
	C.CFRelease(C.CFTypeRef(h.modeName))
	d.handle = nil
}

func (b *darwinBackend) destroy(d *Device) {
	if d.isOpen {
		b.close(d)
	}
	if key, ok := d.discKey.(darwinDiscKey); ok {
		C.IOObjectRelease(key.service)
	}
}

// pipelineDepth matches the preallocated command-ring size IOFireWireLib
// clients conventionally use: up to darwinReadDepth outstanding reads,
// darwinWriteDepth outstanding writes. The request engine in request.go
// owns the actual submit/wait-one/apply loop; this just reports the
// ceiling.
func (b *darwinBackend) pipelineDepth(d *Device, dir direction) int {
	if dir == dirWrite {
		return darwinWriteDepth
	}
	return darwinReadDepth
}

// submitRequest issues op asynchronously via IOFireWireLib's Read/Write,
// registering it against d's persistent completion channel so the
// eventual fw1394GoAsyncCallback invocation can route it back.
func (b *darwinBackend) submitRequest(d *Device, op wireOp, closure int) error {
	h, ok := d.handle.(*darwinHandle)
	if !ok {
		return errDarwinNoDevice
	}

	if op.direction == dirWrite {
		refcon := darwinRegisterPending(h.done, closure, op.data)
		if C.fw1394Write(h.intf, C.UInt64(op.address), unsafe.Pointer(&op.data[0]), C.UInt32(len(op.data)), refcon) != C.kIOReturnSuccess {
			return errDarwinRequestFailed
		}
		return nil
	}

	buf := make([]byte, len(op.data))
	refcon := darwinRegisterPending(h.done, closure, buf)
	if C.fw1394Read(h.intf, C.UInt64(op.address), unsafe.Pointer(&buf[0]), C.UInt32(len(buf)), refcon) != C.kIOReturnSuccess {
		return errDarwinRequestFailed
	}
	return nil
}

// awaitCompletion waits on d's persistent completion channel, fed by
// fw1394GoAsyncCallback while darwinPumpRunLoop (started in open, one
// per Device) keeps the node's private run-loop mode spinning.
func (b *darwinBackend) awaitCompletion(d *Device, timeout time.Duration) (completion, Result) {
	h, ok := d.handle.(*darwinHandle)
	if !ok {
		return completion{}, OtherError
	}
	select {
	case c := <-h.done:
		return c, Success
	case <-time.After(timeout):
		return completion{timedOut: true}, Success
	}
}

// darwinPumpRunLoop repeatedly runs the given run-loop mode in short
// bursts until stop is closed, so asynchronous IOFireWireLib callbacks
// queued against it actually fire while awaitCompletion waits on a
// Device's done channel. One pump runs per open Device, for the
// Device's whole open lifetime.
func darwinPumpRunLoop(mode C.CFStringRef, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			C.CFRunLoopRunInMode(mode, 0.01, C.Boolean(1))
		}
	}
}

func (b *darwinBackend) publishSBP2(bus *Bus) Result {
	local, _, err := matchLocalAndRemoteNodes()
	if err != nil || len(local) == 0 {
		return IOError
	}
	svc := local[0]
	intf := C.fw1394OpenNodeInterface(svc)
	if intf == nil {
		return IOError
	}
	if kr := C.fw1394Open(intf); kr != C.kIOReturnSuccess {
		C.fw1394Release(intf)
		return IOError
	}

	quadlets := sbp2DirectoryQuadlets()
	if kr := C.fw1394AddUnitDirectory(intf, (*C.UInt32)(unsafe.Pointer(&quadlets[0])), C.UInt32(len(quadlets))); kr != C.kIOReturnSuccess {
		C.fw1394Close(intf)
		C.fw1394Release(intf)
		return IOError
	}

	b.mu.Lock()
	b.sbp2Handle = svc
	b.sbp2Intf = intf
	b.haveSBP2 = true
	b.mu.Unlock()
	return Success
}

func (b *darwinBackend) revokeSBP2(bus *Bus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.haveSBP2 {
		return
	}
	C.fw1394RemoveUnitDirectory(b.sbp2Intf)
	C.fw1394Close(b.sbp2Intf)
	C.fw1394Release(b.sbp2Intf)
	C.IOObjectRelease(b.sbp2Handle)
	b.haveSBP2 = false
}
