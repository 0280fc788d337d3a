package ntfs

import (
	"encoding/binary"
	"fmt"
)

// Attribute type codes (spec.md §6).
const (
	AttrStandardInformation uint32 = 0x10
	AttrAttributeList       uint32 = 0x20
	AttrFileName            uint32 = 0x30
	AttrObjectID            uint32 = 0x40
	AttrData                uint32 = 0x80
	AttrIndexRoot           uint32 = 0x90
	AttrIndexAllocation     uint32 = 0xA0
	AttrBitmap              uint32 = 0xB0
	AttrReparsePoint        uint32 = 0xC0
	AttrEnd                 uint32 = 0xFFFFFFFF
)

// FRS header flags.
const (
	FlagInUse     uint16 = 0x0001
	FlagDirectory uint16 = 0x0002
)

// FileNameFlags on a $FILE_NAME attribute.
const (
	FileNamePOSIX = 0
	FileNameWin32 = 1
	FileNameDOS   = 2
	FileNameBoth  = 3
)

// AttrDataFlags bits on the attribute header.
const (
	AttrFlagCompressed uint16 = 0x0001
	AttrFlagSparse     uint16 = 0x8000
)

// RecordHeader is the MULTI_SECTOR_HEADER plus the fixed FRS fields that
// precede the attribute stream (spec.md §6).
type RecordHeader struct {
	Magic                 [4]byte
	USAOffset             uint16
	USACount              uint16
	LSN                   uint64
	SequenceNumber        uint16
	LinkCount             uint16
	FirstAttributeOffset  uint16
	Flags                 uint16
	BytesInUse            uint32
	BytesAllocated        uint32
	BaseFileRecordSegment uint64
	NextAttributeNumber   uint16
	SegmentNumber         uint32
}

// ErrBadRecord marks a FRS that failed magic or USA validation; the parser
// treats this as a soft "BAAD" skip, never a hard failure.
var ErrBadRecord = fmt.Errorf("ntfs: bad record")

// ParseRecordHeader decodes the fixed header of a FRS still carrying its
// on-disk USA-protected sector tails; the header lies in the first 48
// bytes, clear of those tails, so ApplyFixup can be called afterwards with
// the decoded USAOffset and USACount.
func ParseRecordHeader(buf []byte) (RecordHeader, error) {
	if len(buf) < 48 {
		return RecordHeader{}, ErrBadRecord
	}
	var h RecordHeader
	copy(h.Magic[:], buf[0:4])
	if string(h.Magic[:]) != "FILE" {
		return RecordHeader{}, ErrBadRecord
	}
	h.USAOffset = binary.LittleEndian.Uint16(buf[4:6])
	h.USACount = binary.LittleEndian.Uint16(buf[6:8])
	h.LSN = binary.LittleEndian.Uint64(buf[8:16])
	h.SequenceNumber = binary.LittleEndian.Uint16(buf[16:18])
	h.LinkCount = binary.LittleEndian.Uint16(buf[18:20])
	h.FirstAttributeOffset = binary.LittleEndian.Uint16(buf[20:22])
	h.Flags = binary.LittleEndian.Uint16(buf[22:24])
	h.BytesInUse = binary.LittleEndian.Uint32(buf[24:28])
	h.BytesAllocated = binary.LittleEndian.Uint32(buf[28:32])
	h.BaseFileRecordSegment = binary.LittleEndian.Uint64(buf[32:40])
	h.NextAttributeNumber = binary.LittleEndian.Uint16(buf[40:42])
	// bytes 42:44 are reserved/USA-overlap on some layouts; segment number
	// upper/lower occupies 44:48 on the 3.1+ on-disk layout.
	if len(buf) >= 48 {
		h.SegmentNumber = binary.LittleEndian.Uint32(buf[44:48])
	}
	return h, nil
}

// ApplyFixup performs the Update Sequence Array fix-up in place: the last
// two bytes of each 512-byte sector are swapped back in from the USA, after
// verifying they currently hold the USA's update-sequence-number sentinel.
// Returns ErrBadRecord on any mismatch (torn write).
func ApplyFixup(buf []byte, usaOffset, usaCount uint16) error {
	if usaCount == 0 {
		return nil
	}
	usaEnd := int(usaOffset) + int(usaCount)*2
	if usaEnd > len(buf) {
		return ErrBadRecord
	}
	sentinel := binary.LittleEndian.Uint16(buf[usaOffset : usaOffset+2])

	const sectorSize = 512
	for i := 1; i < int(usaCount); i++ {
		tailOff := i*sectorSize - 2
		if tailOff+2 > len(buf) {
			return ErrBadRecord
		}
		actual := binary.LittleEndian.Uint16(buf[tailOff : tailOff+2])
		if actual != sentinel {
			return ErrBadRecord
		}
		replOff := int(usaOffset) + i*2
		copy(buf[tailOff:tailOff+2], buf[replOff:replOff+2])
	}
	return nil
}

// AttributeHeader is the common prefix of every attribute record.
type AttributeHeader struct {
	Type         uint32
	Length       uint32
	IsNonResident bool
	NameLength   uint8
	NameOffset   uint16
	Flags        uint16
	Instance     uint16

	// Resident variant
	ValueLength uint32
	ValueOffset uint16

	// Non-resident variant
	LowestVCN         int64
	HighestVCN        int64
	MappingPairsOffset uint16
	CompressionUnit   uint16
	AllocatedSize     uint64
	DataSize          uint64
	InitializedSize   uint64
	CompressedSize    uint64
}

// ParseAttributeHeader decodes the attribute starting at buf[0]. buf must
// extend at least to the attribute's declared Length.
func ParseAttributeHeader(buf []byte) (AttributeHeader, error) {
	if len(buf) < 16 {
		return AttributeHeader{}, fmt.Errorf("ntfs: attribute header truncated")
	}
	var a AttributeHeader
	a.Type = binary.LittleEndian.Uint32(buf[0:4])
	a.Length = binary.LittleEndian.Uint32(buf[4:8])
	a.IsNonResident = buf[8] != 0
	a.NameLength = buf[9]
	a.NameOffset = binary.LittleEndian.Uint16(buf[10:12])
	a.Flags = binary.LittleEndian.Uint16(buf[12:14])
	a.Instance = binary.LittleEndian.Uint16(buf[14:16])

	if int(a.Length) > len(buf) {
		return AttributeHeader{}, fmt.Errorf("ntfs: attribute length %d exceeds buffer %d", a.Length, len(buf))
	}

	if a.IsNonResident {
		if len(buf) < 64 {
			return AttributeHeader{}, fmt.Errorf("ntfs: non-resident header truncated")
		}
		a.LowestVCN = int64(binary.LittleEndian.Uint64(buf[16:24]))
		a.HighestVCN = int64(binary.LittleEndian.Uint64(buf[24:32]))
		a.MappingPairsOffset = binary.LittleEndian.Uint16(buf[32:34])
		a.CompressionUnit = binary.LittleEndian.Uint16(buf[34:36])
		a.AllocatedSize = binary.LittleEndian.Uint64(buf[40:48])
		a.DataSize = binary.LittleEndian.Uint64(buf[48:56])
		a.InitializedSize = binary.LittleEndian.Uint64(buf[56:64])
		if a.CompressedSize == 0 && a.Flags&AttrFlagCompressed != 0 && len(buf) >= 72 {
			a.CompressedSize = binary.LittleEndian.Uint64(buf[64:72])
		}
	} else {
		if len(buf) < 24 {
			return AttributeHeader{}, fmt.Errorf("ntfs: resident header truncated")
		}
		a.ValueLength = binary.LittleEndian.Uint32(buf[16:20])
		a.ValueOffset = binary.LittleEndian.Uint16(buf[20:22])
	}
	return a, nil
}

// Name returns the attribute's name (empty for the unnamed/default
// attribute of its type), decoded as UTF-16LE relative to buf[0].
func (a AttributeHeader) Name(buf []byte) string {
	if a.NameLength == 0 {
		return ""
	}
	start := int(a.NameOffset)
	end := start + int(a.NameLength)*2
	if end > len(buf) {
		return ""
	}
	return decodeUTF16(buf[start:end])
}

// ResidentValue returns the resident attribute's value bytes.
func (a AttributeHeader) ResidentValue(buf []byte) []byte {
	start := int(a.ValueOffset)
	end := start + int(a.ValueLength)
	if a.IsNonResident || end > len(buf) || start < 0 {
		return nil
	}
	return buf[start:end]
}

// MappingPairs returns the raw mapping-pairs byte stream for a non-resident
// attribute, relative to buf[0].
func (a AttributeHeader) MappingPairs(buf []byte) []byte {
	if !a.IsNonResident {
		return nil
	}
	start := int(a.MappingPairsOffset)
	if start > len(buf) {
		return nil
	}
	return buf[start:a.Length]
}

func decodeUTF16(b []byte) string {
	n := len(b) / 2
	units := make([]uint16, n)
	for i := 0; i < n; i++ {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return utf16ToString(units)
}
