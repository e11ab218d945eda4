// Package fwcdev is the low-level ioctl/event layer over the Linux
// firewire-cdev character-device ABI (/dev/fw*). It mirrors the split
// github.com/daedaluz/gousb uses between its usb package and its usbfs
// subpackage: this package knows nothing about Bus/Device lifecycle or
// the request-engine's pipelining, only about the wire structs and
// ioctl numbers from linux/firewire-cdev.h.
package fwcdev

// From linux/firewire-cdev.h

import (
	ioctl "github.com/daedaluz/goioctl"
	"unsafe"
)

var (
	ctlGetInfo          = ioctl.IOWR('#', 0x00, unsafe.Sizeof(getInfoArg{}))
	ctlSendRequest      = ioctl.IOW('#', 0x02, unsafe.Sizeof(sendRequestArg{}))
	ctlInitiateBusReset = ioctl.IOW('#', 0x06, unsafe.Sizeof(uint32(0)))
	ctlAddDescriptor    = ioctl.IOWR('#', 0x07, unsafe.Sizeof(addDescriptorArg{}))
	ctlRemoveDescriptor = ioctl.IOW('#', 0x08, unsafe.Sizeof(removeDescriptorArg{}))
)

// Reset-cause values for InitiateBusReset.
const (
	ResetShort = 0
	ResetLong  = 1
)

type (
	// getInfoArg is FW_CDEV_IOC_GET_INFO's argument: Rom/RomLength let
	// the caller read back the node's Configuration ROM, Card identifies
	// the host controller this node is visible on.
	getInfoArg struct {
		Version         uint32
		RomLength       uint32
		Rom             uint64 // pointer to a caller buffer
		BusReset        uint64 // pointer to an EventBusReset, or 0
		BusResetClosure uint64
		Card            uint32
	}

	// sendRequestArg is FW_CDEV_IOC_SEND_REQUEST's argument: one
	// asynchronous read or write transaction, completed asynchronously
	// and reported as an EventResponse carrying Closure.
	sendRequestArg struct {
		Tcode      uint32
		Length     uint32
		Offset     uint64
		Closure    uint64
		Data       uint64 // pointer to the payload (write) or scratch (read)
		Generation uint32
	}

	// addDescriptorArg is FW_CDEV_IOC_ADD_DESCRIPTOR's argument: installs
	// one key/value-or-block entry into the local node's Configuration
	// ROM. Immediate, when non-zero, installs a single immediate
	// key/value quadlet (Key<<24|value) and Data/Length are unused;
	// otherwise Data/Length describe a block to attach under Key.
	addDescriptorArg struct {
		Immediate uint32
		Key       uint32
		Data      uint64 // pointer to caller-owned quadlets
		Length    uint32
		Handle    uint32 // out: used by RemoveDescriptor
	}

	// removeDescriptorArg is FW_CDEV_IOC_REMOVE_DESCRIPTOR's argument.
	removeDescriptorArg struct {
		Handle uint32
	}
)

// Event type tags shared by every fw_cdev_event_* variant's leading
// Type field.
const (
	EventTypeBusReset = 0x00
	EventTypeResponse = 0x01
	EventTypeRequest  = 0x02
)

type (
	// EventHeader is the common prefix of every event read back from an
	// open node fd: enough to dispatch on Type and recover Closure
	// before decoding the rest of the event-specific payload.
	EventHeader struct {
		Closure uint64
		Type    uint32
	}

	// EventResponse reports the completion of a SendRequest call. Its
	// data payload follows immediately after in the same read() for
	// block responses of Length bytes; quadlet responses carry their 4
	// bytes inline via the same layout with Length==4.
	EventResponse struct {
		EventHeader
		Rcode  uint32
		Length uint32
	}

	// EventBusReset reports an asynchronous bus reset on the card this
	// node's fd was opened against.
	EventBusReset struct {
		EventHeader
		NodeID      uint32
		LocalNodeID uint32
		Generation  uint32
	}
)

// Response codes (RCODE_*), named on the wire exactly as
// linux/firewire-cdev.h and the 1394 transaction layer name them.
const (
	RcodeComplete      = 0x00
	RcodeConflictError = 0x04
	RcodeDataError     = 0x05
	RcodeTypeError     = 0x06
	RcodeAddressError  = 0x07
	RcodeSendError     = 0x10
	RcodeCancelled     = 0x11
	RcodeBusy          = 0x12
	RcodeGeneration    = 0x13
	RcodeNoAck         = 0x14
)

// Transaction codes (TCODE_*) for SendRequest's tcode argument.
const (
	TcodeWriteQuadletRequest = 0
	TcodeWriteBlockRequest   = 1
	TcodeReadQuadletRequest  = 4
	TcodeReadBlockRequest    = 5
)
