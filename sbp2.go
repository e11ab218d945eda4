package forensic1394

import "sync"

// sbp2Entry is one key/value pair of the canonical SBP-2 unit
// directory. The high byte of the on-wire quadlet is the key, the low
// 24 bits are the value.
type sbp2Entry struct {
	key   uint8
	value uint32
}

// sbp2Directory is the canonical 13-entry SBP-2 unit directory from
// spec.md §4.2, in order. Any deviation from this exact table breaks
// compatibility with Windows targets, so it is data, not something
// backends are allowed to derive or reorder.
var sbp2Directory = [13]sbp2Entry{
	{0x12, 0x00609e},
	{0x13, 0x010483},
	{0x21, 0x000001},
	{0x3a, 0x000a08},
	{0x3e, 0x004c10},
	{0x38, 0x00609e},
	{0x39, 0x0104d8},
	{0x3b, 0x000000},
	{0x3c, 0x0a2700},
	{0x54, 0x004000},
	{0x3d, 0x000003},
	{0x14, 0x0e0000},
	{0x17, 0x000021},
}

// directoryUnitKey is the composite CSR key (DIRECTORY|UNIT)<<24 under
// which the SBP-2 directory is installed on Linux.
const directoryUnitKey = 0xd1000000

var (
	sbp2QuadletsOnce sync.Once
	sbp2Quadlets     [14]uint32 // header + 13 entries
)

// sbp2DirectoryQuadlets returns the canonical directory as wire
// quadlets: a header whose high 16 bits are the entry count and low 16
// bits are the IEEE 1212 CRC-16 of the 13 entries, followed by the
// entries themselves. Backends that accept a pre-formed descriptor
// consume the header; backends that add entries one at a time (as the
// Linux FW_CDEV_IOC_ADD_DESCRIPTOR ioctl does) skip it.
func sbp2DirectoryQuadlets() [14]uint32 {
	sbp2QuadletsOnce.Do(func() {
		entries := make([]uint32, len(sbp2Directory))
		for i, e := range sbp2Directory {
			entries[i] = uint32(e.key)<<24 | (e.value & 0xFFFFFF)
		}
		crc := csr1212CRC16(entries)
		sbp2Quadlets[0] = uint32(len(sbp2Directory))<<16 | uint32(crc)
		copy(sbp2Quadlets[1:], entries)
	})
	return sbp2Quadlets
}

// csr1212CRC16 computes the IEEE 1212 / CSR1212 16-bit CRC used to
// protect FireWire Configuration ROM directories, the same algorithm
// implemented by the Linux kernel's csr1212 code and by libraw1394.
// It uses the CRC-16/CCITT generator polynomial x^16+x^12+x^5+1 with a
// zero initial value, and operates a nibble at a time over each 32-bit
// big-endian word.
func csr1212CRC16(quadlets []uint32) uint16 {
	var crc uint32
	for _, q := range quadlets {
		for shift := 28; shift >= 0; shift -= 4 {
			sum := ((crc >> 12) ^ (q >> uint(shift))) & 0xF
			crc = (crc << 4) ^ (sum << 12) ^ (sum << 5) ^ sum
		}
		crc &= 0xFFFF
	}
	return uint16(crc)
}
