package ntfs

import (
	"encoding/binary"
	"testing"
)

func buildBootSector(bytesPerSector uint16, sectorsPerCluster uint8, frsShift int8) []byte {
	b := make([]byte, 512)
	copy(b[3:11], []byte("NTFS    "))
	binary.LittleEndian.PutUint16(b[0x0B:], bytesPerSector)
	b[0x0D] = sectorsPerCluster
	binary.LittleEndian.PutUint64(b[0x30:], 786432)
	b[0x40] = byte(frsShift)
	b[0x44] = byte(frsShift)
	return b
}

func TestParseBootSector(t *testing.T) {
	raw := buildBootSector(512, 8, -10) // 1<<10 == 1024
	bs, err := ParseBootSector(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bs.ClusterSize() != 4096 {
		t.Errorf("expected cluster size 4096, got %d", bs.ClusterSize())
	}
	if bs.FileRecordSize() != 1024 {
		t.Errorf("expected FRS size 1024 (1<<10), got %d", bs.FileRecordSize())
	}
	if bs.MFTStartLCN != 786432 {
		t.Errorf("expected MFTStartLCN 786432, got %d", bs.MFTStartLCN)
	}
}

func TestParseBootSectorRejectsNonNTFS(t *testing.T) {
	raw := make([]byte, 512)
	copy(raw[3:11], []byte("EXFAT   "))
	if _, err := ParseBootSector(raw); err == nil {
		t.Fatal("expected error for non-NTFS oem id")
	}
}

func TestParseBootSectorPositiveClusterCount(t *testing.T) {
	raw := buildBootSector(512, 8, 2)
	bs, err := ParseBootSector(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bs.FileRecordSize() != 2*4096 {
		t.Errorf("expected FRS size = 2 clusters, got %d", bs.FileRecordSize())
	}
}

func buildFRS(usaCount uint16) []byte {
	buf := make([]byte, 1024)
	copy(buf[0:4], []byte("FILE"))
	binary.LittleEndian.PutUint16(buf[4:6], 48)  // usaOffset
	binary.LittleEndian.PutUint16(buf[6:8], usaCount)
	binary.LittleEndian.PutUint16(buf[22:24], FlagInUse)
	binary.LittleEndian.PutUint16(buf[20:22], 56) // firstAttributeOffset
	binary.LittleEndian.PutUint32(buf[24:28], 200) // bytesInUse

	sentinel := uint16(0xABCD)
	binary.LittleEndian.PutUint16(buf[48:50], sentinel)
	for i := 1; i < int(usaCount); i++ {
		tail := i*512 - 2
		binary.LittleEndian.PutUint16(buf[tail:tail+2], sentinel)
		repl := uint16(0x1111 + i)
		binary.LittleEndian.PutUint16(buf[48+i*2:50+i*2], repl)
	}
	return buf
}

func TestApplyFixupAndParseHeader(t *testing.T) {
	buf := buildFRS(2)
	if err := ApplyFixup(buf, 48, 2); err != nil {
		t.Fatalf("unexpected fixup error: %v", err)
	}

	h, err := ParseRecordHeader(buf)
	if err != nil {
		t.Fatalf("unexpected header error: %v", err)
	}
	if h.Flags&FlagInUse == 0 {
		t.Errorf("expected InUse flag set")
	}
	if h.BytesInUse != 200 {
		t.Errorf("expected BytesInUse 200, got %d", h.BytesInUse)
	}

	tailValue := binary.LittleEndian.Uint16(buf[510:512])
	if tailValue != 0x1112 {
		t.Errorf("expected fixup to restore real sector tail, got %#x", tailValue)
	}
}

func TestApplyFixupRejectsMismatch(t *testing.T) {
	buf := buildFRS(2)
	buf[510] = 0xFF // corrupt the sentinel copy so it no longer matches
	buf[511] = 0xFF
	if err := ApplyFixup(buf, 48, 2); err == nil {
		t.Fatal("expected fixup mismatch error")
	}
}

func TestParseRecordHeaderRejectsBadMagic(t *testing.T) {
	buf := buildFRS(1)
	copy(buf[0:4], []byte("BAAD"))
	if _, err := ParseRecordHeader(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func buildResidentAttr(attrType uint32, value []byte) []byte {
	headerLen := 24
	total := headerLen + len(value)
	// round to 8-byte alignment like real attributes
	for total%8 != 0 {
		total++
	}
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], attrType)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(total))
	buf[8] = 0 // resident
	buf[9] = 0 // nameLength
	binary.LittleEndian.PutUint16(buf[10:12], 24)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(value)))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(headerLen))
	copy(buf[headerLen:], value)
	return buf
}

func TestParseAttributeHeaderResident(t *testing.T) {
	val := []byte("hello world")
	buf := buildResidentAttr(AttrData, val)

	a, err := ParseAttributeHeader(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.IsNonResident {
		t.Fatalf("expected resident attribute")
	}
	got := a.ResidentValue(buf)
	if string(got) != "hello world" {
		t.Errorf("got %q want %q", got, "hello world")
	}
}

func TestDecodeMappingPairsSimpleRun(t *testing.T) {
	// header byte 0x31: length_bytes=1 (0x1), offset_bytes=3 (0x3)
	data := []byte{0x31, 0x10, 0x10, 0x00, 0x00, 0x00}
	runs := DecodeMappingPairs(data, 0)
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Clusters != 16 {
		t.Errorf("expected 16 clusters, got %d", runs[0].Clusters)
	}
	if runs[0].LCN != 16 {
		t.Errorf("expected LCN 16, got %d", runs[0].LCN)
	}
	if runs[0].Sparse {
		t.Errorf("expected non-sparse run")
	}
}

func TestDecodeMappingPairsSparseRun(t *testing.T) {
	// header byte 0x01: length_bytes=1, offset_bytes=0 => sparse
	data := []byte{0x01, 0x05}
	runs := DecodeMappingPairs(data, 100)
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if !runs[0].Sparse {
		t.Errorf("expected sparse run")
	}
	if runs[0].VCN != 100 {
		t.Errorf("expected VCN 100, got %d", runs[0].VCN)
	}
}

func TestDecodeMappingPairsNegativeDelta(t *testing.T) {
	// first run: +0x20 at 2 bytes; second run: -0x10 delta, 1 byte, high bit sign extends
	data := []byte{
		0x21, 0x08, 0x20, 0x00, // clusters=8, lcn delta=0x20
		0x11, 0x04, 0xF0, // clusters=4, lcn delta=-16 (0xF0 sign-extends)
		0x00,
	}
	runs := DecodeMappingPairs(data, 0)
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].LCN != 0x20 {
		t.Errorf("expected first LCN 0x20, got %d", runs[0].LCN)
	}
	if runs[1].LCN != 0x20-16 {
		t.Errorf("expected second LCN %d, got %d", 0x20-16, runs[1].LCN)
	}
}

func TestIsASCII(t *testing.T) {
	if !IsASCII("readme.txt") {
		t.Errorf("expected ascii name to be ascii")
	}
	if IsASCII("café.txt") {
		t.Errorf("expected non-ascii name to be non-ascii")
	}
}
