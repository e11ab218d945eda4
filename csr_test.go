package forensic1394

import "testing"

// buildMinimalCSR assembles a 256-quadlet ROM with a bus-information
// block of length 5, one root-directory entry (vendor ID) followed by
// a descriptor-leaf pointer to a 4-byte ASCII text leaf.
func buildMinimalCSR() [256]uint32 {
	var rom [256]uint32
	rom[0] = 5 << 16 // bus-info length = 5 quadlets
	rom[1] = busInfoMagic
	rom[2] = 2 << 12 // lgsz = 2 -> max_req = 2<<2 = 8
	rom[3] = 0x0011cc00
	rom[4] = 0xdeadbeef

	rom[5] = 2 << 16 // root directory: 2 entries
	rom[6] = 0x03001234 // key 0x03 (vendor ID) = 0x001234
	rom[7] = 0x81000003 // key 0x81 (descriptor leaf), offset 3 from entry 6

	rom[9] = 4 << 16 // text leaf: 4 quadlets (header + 2 zero + 1 text)
	rom[10] = 0
	rom[11] = 0
	rom[12] = 0x41434D45 // "ACME"
	return rom
}

func TestParseCSRMinimal(t *testing.T) {
	rom := buildMinimalCSR()
	dev := &Device{}
	parseCSR(rom, dev)

	if dev.maxRequest != 8 {
		t.Errorf("maxRequest = %d, want 8", dev.maxRequest)
	}
	if dev.guid != 0x0011cc00deadbeef {
		t.Errorf("guid = %#x, want 0x0011cc00deadbeef", dev.guid)
	}
	if dev.vendorID != 0x001234 {
		t.Errorf("vendorID = %#x, want 0x001234", dev.vendorID)
	}
	if dev.vendorName != "ACME" {
		t.Errorf("vendorName = %q, want %q", dev.vendorName, "ACME")
	}
	if dev.productID != 0 {
		t.Errorf("productID = %d, want 0", dev.productID)
	}
}

func TestParseCSRShortBusInfoYieldsDefaults(t *testing.T) {
	var rom [256]uint32 // buslen == 0
	dev := &Device{}
	parseCSR(rom, dev)

	if dev.maxRequest != defaultMaxRequest {
		t.Errorf("maxRequest = %d, want default %d", dev.maxRequest, defaultMaxRequest)
	}
	if dev.guid != 0 {
		t.Errorf("guid = %#x, want 0", dev.guid)
	}
	if dev.vendorName != "" {
		t.Errorf("vendorName = %q, want empty", dev.vendorName)
	}
}

func TestParseCSRNoBusInfoMagicKeepsDefaultMaxRequest(t *testing.T) {
	rom := buildMinimalCSR()
	rom[1] = 0 // not "1394"
	dev := &Device{}
	parseCSR(rom, dev)

	if dev.maxRequest != defaultMaxRequest {
		t.Errorf("maxRequest = %d, want default %d", dev.maxRequest, defaultMaxRequest)
	}
	// vendor parsing is unaffected: it does not depend on the bus-info magic.
	if dev.vendorID != 0x001234 {
		t.Errorf("vendorID = %#x, want 0x001234", dev.vendorID)
	}
}

func TestDecodeTextLeafTruncatesToNameBuffer(t *testing.T) {
	var rom [256]uint32
	// A leaf far longer than maxNameLen-1 bytes: header says 40 quadlets,
	// i.e. (40-3)*4 = 148 bytes of text, all 'A'.
	rom[0] = 40 << 16
	for i := 1; i < 40; i++ {
		rom[i] = 0x41414141
	}
	rom[1] = 0 // specifier ID
	rom[2] = 0 // language ID

	s, ok := decodeTextLeaf(rom, 0)
	if !ok {
		t.Fatal("decodeTextLeaf reported failure on a well-formed leaf")
	}
	if len(s) != maxNameLen-1 {
		t.Errorf("len(s) = %d, want %d", len(s), maxNameLen-1)
	}
}

func TestDecodeTextLeafRejectsNonZeroIDs(t *testing.T) {
	var rom [256]uint32
	rom[0] = 4 << 16
	rom[1] = 1 // specifier ID must be zero
	rom[2] = 0
	rom[3] = 0x41414141

	if _, ok := decodeTextLeaf(rom, 0); ok {
		t.Error("decodeTextLeaf accepted a leaf with non-zero specifier ID")
	}
}

func TestDirectoryInBoundsRejectsOverrun(t *testing.T) {
	if directoryInBounds(250, 10) {
		t.Error("directoryInBounds(250, 10) should be false: 250+10 > 255")
	}
	if !directoryInBounds(250, 5) {
		t.Error("directoryInBounds(250, 5) should be true: 250+5 == 255")
	}
}

func TestParseCSRDirectoryOutOfBoundsAborts(t *testing.T) {
	var rom [256]uint32
	rom[0] = 5 << 16
	rom[1] = busInfoMagic
	rom[2] = 0
	rom[3] = 0x11111111
	rom[4] = 0x22222222
	rom[5] = 0xFFFF0000 // directory claims 65535 entries: far out of bounds

	dev := &Device{}
	parseCSR(rom, dev)

	if dev.vendorID != 0 || dev.vendorName != "" {
		t.Error("parseCSR should abort the directory walk, leaving identity fields unset")
	}
	// guid is set before the directory bounds check runs.
	if dev.guid != 0x1111111122222222 {
		t.Errorf("guid = %#x, want 0x1111111122222222", dev.guid)
	}
}
