package fwcdev

import (
	"testing"
	"unsafe"
)

const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func _IOW(t, nr, size uintptr) uintptr {
	return _IOC(iocWrite, t, nr, size)
}

func _IOWR(t, nr, size uintptr) uintptr {
	return _IOC(iocRead|iocWrite, t, nr, size)
}

func _IOC(dir, t, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (t << iocTypeShift) | (nr << iocNrShift) | (size << iocSizeShift)
}

type ioctlstruct struct {
	name   string
	number uintptr
	target uintptr
}

var ioctls = []ioctlstruct{
	{"FW_CDEV_IOC_GET_INFO", ctlGetInfo, _IOWR('#', 0x00, unsafe.Sizeof(getInfoArg{}))},
	{"FW_CDEV_IOC_SEND_REQUEST", ctlSendRequest, _IOW('#', 0x02, unsafe.Sizeof(sendRequestArg{}))},
	{"FW_CDEV_IOC_INITIATE_BUS_RESET", ctlInitiateBusReset, _IOW('#', 0x06, unsafe.Sizeof(uint32(0)))},
	{"FW_CDEV_IOC_ADD_DESCRIPTOR", ctlAddDescriptor, _IOWR('#', 0x07, unsafe.Sizeof(addDescriptorArg{}))},
	{"FW_CDEV_IOC_REMOVE_DESCRIPTOR", ctlRemoveDescriptor, _IOW('#', 0x08, unsafe.Sizeof(removeDescriptorArg{}))},
}

func TestIOCTLNumbers(t *testing.T) {
	for _, ctl := range ioctls {
		if ctl.number != ctl.target {
			t.Logf("WRONG NUMBER - %s, %.8X != %.8X\n", ctl.name, ctl.number, ctl.target)
			t.Fail()
		}
		t.Logf("%s = 0x%.8X\n", ctl.name, ctl.number)
	}
}

/* linux/firewire-cdev.h
#define FW_CDEV_IOC_GET_INFO             _IOWR('#', 0x00, struct fw_cdev_get_info)
#define FW_CDEV_IOC_SEND_REQUEST         _IOW('#', 0x02, struct fw_cdev_send_request)
#define FW_CDEV_IOC_INITIATE_BUS_RESET   _IOW('#', 0x06, struct fw_cdev_initiate_bus_reset)
#define FW_CDEV_IOC_ADD_DESCRIPTOR       _IOWR('#', 0x07, struct fw_cdev_add_descriptor)
#define FW_CDEV_IOC_REMOVE_DESCRIPTOR    _IOW('#', 0x08, struct fw_cdev_remove_descriptor)
*/
