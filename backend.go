package forensic1394

import "time"

// Transaction codes, named the way the FireWire asynchronous layer
// names them on the wire (see linux/firewire-cdev.h's fw_cdev_send_request).
const (
	tcodeWriteQuadletRequest = 0
	tcodeWriteBlockRequest   = 1
	tcodeReadQuadletRequest  = 4
	tcodeReadBlockRequest    = 5
)

// Response codes, again named on the wire. Only the values the request
// engine classifies (see spec's response-classification table) are used
// directly; any other value falls into the ioError bucket.
const (
	rcodeComplete   = 0x00
	rcodeBusy       = 0x12
	rcodeGeneration = 0x13
)

// wireOp is one leg of a batch, addressed to a Device at a physical
// address. direction selects read vs. write; data is the caller buffer
// for a read (filled on completion) or the payload for a write.
type wireOp struct {
	address   uint64
	data      []byte
	direction direction
}

type direction uint8

const (
	dirRead direction = iota
	dirWrite
)

// tcode returns the transaction code for op: a 4-byte operation is a
// quadlet transaction, anything else is a block transaction.
func (op *wireOp) tcode() uint32 {
	if len(op.data) == 4 {
		if op.direction == dirRead {
			return tcodeReadQuadletRequest
		}
		return tcodeWriteQuadletRequest
	}
	if op.direction == dirRead {
		return tcodeReadBlockRequest
	}
	return tcodeWriteBlockRequest
}

// completion is one backend response, routed back to the submitter by
// closure (the index of the wireOp in its batch).
type completion struct {
	closure  int
	rcode    uint32
	length   int
	data     []byte // response payload; the engine only consumes it for reads
	timedOut bool
}

// backend is the capability vtable spec.md §9 asks for: a narrow set of
// platform operations the portable Bus/Device/request-engine layer
// calls through. Linux and Darwin each implement it in full; other
// platforms get a stub that reports errors everywhere (backend_other.go).
type backend interface {
	// discover returns the newly found foreign nodes and a permission
	// tally of nodes skipped due to access errors. It never mutates
	// bus.devices itself — Bus.Enumerate owns that so the atomic-replace
	// invariant lives in one place.
	discover(bus *Bus) (devices []*Device, permSkipped int, err error)

	// open acquires the platform handle for d. Device.Open only calls it
	// when d is not already open, which is what makes Open idempotent.
	open(d *Device) error
	// close releases the platform handle for d. Idempotent.
	close(d *Device)
	// destroy releases any platform bookkeeping left for d once it is
	// no longer reachable from its Bus (called during cascade destroy
	// and re-enumeration, even if the Device was never opened).
	destroy(d *Device)

	// pipelineDepth returns the maximum number of requests of the given
	// direction the backend will accept in flight at once against d
	// (Linux: 1 for either direction; Darwin: 4 reads, 1 write). The
	// request engine in request.go owns the submit/wait-one/apply loop
	// spec.md §4.4 describes; this is the only per-backend knob it needs.
	pipelineDepth(d *Device, dir direction) int
	// submitRequest issues op asynchronously against d, tagged with
	// closure so its eventual completion can be matched back to it.
	// submitRequest must not block waiting for the response.
	submitRequest(d *Device, op wireOp, closure int) error
	// awaitCompletion blocks for up to timeout for exactly one pending
	// completion against d (any of the requests currently in flight) and
	// reports it, or reports timedOut if none arrived in time.
	awaitCompletion(d *Device, timeout time.Duration) (completion, Result)

	// publishSBP2 installs the canonical SBP-2 unit directory on the
	// local node reachable from bus. Bus.EnableSBP2 does not call it
	// again once it has succeeded.
	publishSBP2(bus *Bus) Result
	// revokeSBP2 undoes publishSBP2; safe to call even if publishSBP2
	// never succeeded.
	revokeSBP2(bus *Bus)
}
