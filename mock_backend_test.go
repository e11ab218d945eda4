package forensic1394

import "time"

// mockBackend is a test double for backend, used by bus_test.go and
// request_test.go to drive the portable layer without any platform
// dependency, mirroring the kind of fake driver github.com/daedaluz/gousb's
// own tests would substitute for a real usbfs/sysfs backend.
type mockBackend struct {
	discoverDevices []*Device
	permSkipped     int
	discoverErr     error

	openErr   error
	opened    []*Device
	closed    []*Device
	destroyed []*Device

	// depth, if > 0, is what pipelineDepth reports; otherwise it
	// reports 1.
	depth int

	submitRequestErr  error
	queuedCompletions []completion
	awaitFn           func(d *Device, timeout time.Duration) (completion, Result)
	recordedTcodes    []uint32

	sbp2Published bool
	sbp2Revoked   bool
	sbp2Result    Result
}

func (m *mockBackend) discover(bus *Bus) ([]*Device, int, error) {
	if m.discoverErr != nil {
		return nil, 0, m.discoverErr
	}
	return m.discoverDevices, m.permSkipped, nil
}

func (m *mockBackend) open(d *Device) error {
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = append(m.opened, d)
	return nil
}

func (m *mockBackend) close(d *Device) {
	m.closed = append(m.closed, d)
}

func (m *mockBackend) destroy(d *Device) {
	m.destroyed = append(m.destroyed, d)
}

func (m *mockBackend) pipelineDepth(d *Device, dir direction) int {
	if m.depth > 0 {
		return m.depth
	}
	return 1
}

func (m *mockBackend) submitRequest(d *Device, op wireOp, closure int) error {
	m.recordedTcodes = append(m.recordedTcodes, op.tcode())
	if m.submitRequestErr != nil {
		return m.submitRequestErr
	}
	if m.awaitFn == nil {
		m.queuedCompletions = append(m.queuedCompletions, completion{closure: closure, rcode: rcodeComplete, length: len(op.data), data: op.data})
	}
	return nil
}

func (m *mockBackend) awaitCompletion(d *Device, timeout time.Duration) (completion, Result) {
	if m.awaitFn != nil {
		return m.awaitFn(d, timeout)
	}
	c := m.queuedCompletions[0]
	m.queuedCompletions = m.queuedCompletions[1:]
	return c, Success
}

func (m *mockBackend) publishSBP2(bus *Bus) Result {
	if m.sbp2Result != Success {
		return m.sbp2Result
	}
	m.sbp2Published = true
	return Success
}

func (m *mockBackend) revokeSBP2(bus *Bus) {
	m.sbp2Revoked = true
}

// newTestBus builds a Bus wired directly to a mockBackend, bypassing
// AllocBus/newBackend so tests never touch a platform backend.
func newTestBus(m *mockBackend) *Bus {
	return &Bus{backend: m}
}
