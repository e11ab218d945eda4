package fwcdev

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Open opens the firewire-cdev node for the given /dev/fw<n> path.
func Open(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return -1, fmt.Errorf("fwcdev: open %s: %w", path, err)
	}
	return fd, nil
}

// Close closes a node fd previously returned by Open.
func Close(fd int) error {
	return unix.Close(fd)
}

// NodeInfo is the synchronous bus-topology snapshot FW_CDEV_IOC_GET_INFO
// fills in alongside the Configuration ROM read: the node's own ID, the
// local (host) node's ID on the same card, and the current bus-reset
// generation.
type NodeInfo struct {
	NodeID      uint32
	LocalNodeID uint32
	Generation  uint32
}

// GetInfo issues FW_CDEV_IOC_GET_INFO, reading up to len(rom) bytes of
// the node's Configuration ROM into rom and returning the host
// controller's card index, the number of ROM bytes the kernel actually
// had available (which may exceed len(rom)), and the node's current
// topology snapshot.
func GetInfo(fd int, rom []byte) (card uint32, romLen uint32, info NodeInfo, err error) {
	var reset EventBusReset
	arg := getInfoArg{
		Version:   1,
		RomLength: uint32(len(rom)),
		Rom:       ptr(rom),
		BusReset:  uint64(uintptr(unsafe.Pointer(&reset))),
	}
	if ioErr := doIoctl(fd, ctlGetInfo, unsafe.Pointer(&arg)); ioErr != nil {
		return 0, 0, NodeInfo{}, ioErr
	}
	return arg.Card, arg.RomLength, NodeInfo{
		NodeID:      reset.NodeID,
		LocalNodeID: reset.LocalNodeID,
		Generation:  reset.Generation,
	}, nil
}

// SendRequest issues FW_CDEV_IOC_SEND_REQUEST: it queues one
// asynchronous transaction and returns immediately. The completion
// arrives later as an EventResponse read back from fd, carrying the
// same closure value.
func SendRequest(fd int, tcode uint32, offset uint64, generation uint32, closure uint64, data []byte) error {
	arg := sendRequestArg{
		Tcode:      tcode,
		Length:     uint32(len(data)),
		Offset:     offset,
		Closure:    closure,
		Generation: generation,
	}
	if len(data) > 0 {
		arg.Data = ptr(data)
	}
	return doIoctl(fd, ctlSendRequest, unsafe.Pointer(&arg))
}

// InitiateBusReset issues FW_CDEV_IOC_INITIATE_BUS_RESET with the given
// reset cause (ResetShort or ResetLong).
func InitiateBusReset(fd int, cause uint32) error {
	return doIoctl(fd, ctlInitiateBusReset, unsafe.Pointer(&cause))
}

// AddDescriptor issues FW_CDEV_IOC_ADD_DESCRIPTOR, installing a single
// immediate key/value quadlet (key<<24 | value) into the local node's
// Configuration ROM, and returns the kernel-assigned handle needed to
// remove it later.
func AddDescriptor(fd int, key uint8, value uint32) (handle uint32, err error) {
	arg := addDescriptorArg{
		Immediate: uint32(key)<<24 | (value & 0xFFFFFF),
	}
	if ioErr := doIoctl(fd, ctlAddDescriptor, unsafe.Pointer(&arg)); ioErr != nil {
		return 0, ioErr
	}
	return arg.Handle, nil
}

// RemoveDescriptor issues FW_CDEV_IOC_REMOVE_DESCRIPTOR for a handle
// previously returned by AddDescriptor.
func RemoveDescriptor(fd int, handle uint32) error {
	arg := removeDescriptorArg{Handle: handle}
	return doIoctl(fd, ctlRemoveDescriptor, unsafe.Pointer(&arg))
}

// ReadEvent performs a single read of whatever event is currently
// pending on fd into buf, for the caller to dispatch on
// EventHeader.Type and decode with ParseResponse/ParseBusReset.
func ReadEvent(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// ParseResponse decodes a raw EventResponse plus its trailing payload
// (present for block reads) out of buf.
func ParseResponse(buf []byte) (EventResponse, []byte) {
	var ev EventResponse
	ev.Closure = binary.LittleEndian.Uint64(buf[0:8])
	ev.Type = binary.LittleEndian.Uint32(buf[8:12])
	ev.Rcode = binary.LittleEndian.Uint32(buf[12:16])
	ev.Length = binary.LittleEndian.Uint32(buf[16:20])
	payload := buf[20:]
	if int(ev.Length) <= len(payload) {
		payload = payload[:ev.Length]
	}
	return ev, payload
}

// ParseBusReset decodes a raw EventBusReset out of buf.
func ParseBusReset(buf []byte) EventBusReset {
	var ev EventBusReset
	ev.Closure = binary.LittleEndian.Uint64(buf[0:8])
	ev.Type = binary.LittleEndian.Uint32(buf[8:12])
	ev.NodeID = binary.LittleEndian.Uint32(buf[12:16])
	ev.LocalNodeID = binary.LittleEndian.Uint32(buf[16:20])
	ev.Generation = binary.LittleEndian.Uint32(buf[20:24])
	return ev
}

func doIoctl(fd int, ioc uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ioc, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func ptr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}
