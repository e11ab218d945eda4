package forensic1394

import "testing"

func TestSBP2DirectoryHasThirteenEntriesInOrder(t *testing.T) {
	want := []sbp2Entry{
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
	if len(sbp2Directory) != len(want) {
		t.Fatalf("len(sbp2Directory) = %d, want %d", len(sbp2Directory), len(want))
	}
	for i, e := range want {
		if sbp2Directory[i] != e {
			t.Errorf("entry %d = %+v, want %+v", i, sbp2Directory[i], e)
		}
	}
}

func TestSBP2DirectoryQuadletsHeaderEncodesEntryCount(t *testing.T) {
	quadlets := sbp2DirectoryQuadlets()
	count := quadlets[0] >> 16
	if count != uint32(len(sbp2Directory)) {
		t.Errorf("header entry count = %d, want %d", count, len(sbp2Directory))
	}
	for i, e := range sbp2Directory {
		want := uint32(e.key)<<24 | (e.value & 0xFFFFFF)
		if quadlets[1+i] != want {
			t.Errorf("quadlet %d = %#x, want %#x", i, quadlets[1+i], want)
		}
	}
}

func TestSBP2DirectoryQuadletsIsMemoized(t *testing.T) {
	a := sbp2DirectoryQuadlets()
	b := sbp2DirectoryQuadlets()
	if a != b {
		t.Error("sbp2DirectoryQuadlets should return the same value across calls")
	}
}

func TestCSR1212CRC16IsDeterministic(t *testing.T) {
	quads := []uint32{0x03001234, 0x17005678}
	a := csr1212CRC16(quads)
	b := csr1212CRC16(quads)
	if a != b {
		t.Errorf("csr1212CRC16 not deterministic: %#x != %#x", a, b)
	}
}

func TestCSR1212CRC16DiffersOnDifferentInput(t *testing.T) {
	a := csr1212CRC16([]uint32{0x03001234})
	b := csr1212CRC16([]uint32{0x03001235})
	if a == b {
		t.Error("csr1212CRC16 should (overwhelmingly likely) differ for different inputs")
	}
}

func TestCSR1212CRC16EmptyInputIsZero(t *testing.T) {
	if crc := csr1212CRC16(nil); crc != 0 {
		t.Errorf("csr1212CRC16(nil) = %#x, want 0", crc)
	}
}
