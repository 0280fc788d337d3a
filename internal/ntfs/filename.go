package ntfs

import "encoding/binary"

// StandardInformation is the decoded $STANDARD_INFORMATION payload
// (spec.md §3 stdinfo / §4.4 step 5).
type StandardInformation struct {
	CreationTime   uint64
	ModifiedTime   uint64
	MFTChangedTime uint64
	AccessedTime   uint64
	FileAttributes uint32
}

// ParseStandardInformation decodes a resident $STANDARD_INFORMATION value.
func ParseStandardInformation(v []byte) (StandardInformation, bool) {
	if len(v) < 48 {
		return StandardInformation{}, false
	}
	return StandardInformation{
		CreationTime:   binary.LittleEndian.Uint64(v[0:8]),
		ModifiedTime:   binary.LittleEndian.Uint64(v[8:16]),
		MFTChangedTime: binary.LittleEndian.Uint64(v[16:24]),
		AccessedTime:   binary.LittleEndian.Uint64(v[24:32]),
		FileAttributes: binary.LittleEndian.Uint32(v[32:36]),
	}, true
}

// FileAttribute bit flags recomposed into Record.Attributes() (spec.md §3).
const (
	FileAttrReadOnly          uint32 = 0x00000001
	FileAttrHidden            uint32 = 0x00000002
	FileAttrSystem            uint32 = 0x00000004
	FileAttrArchive           uint32 = 0x00000020
	FileAttrDevice            uint32 = 0x00000040
	FileAttrNormal            uint32 = 0x00000080
	FileAttrReparsePoint      uint32 = 0x00000400
	FileAttrCompressed        uint32 = 0x00000800
	FileAttrOffline           uint32 = 0x00001000
	FileAttrNotContentIndexed uint32 = 0x00002000
	FileAttrEncrypted         uint32 = 0x00004000
	FileAttrIntegrityStream   uint32 = 0x00008000
	FileAttrSparseFile        uint32 = 0x00000200
	FileAttrPinned            uint32 = 0x00080000
	FileAttrUnpinned          uint32 = 0x00100000
	FileAttrNoScrubData       uint32 = 0x00020000
	// FileAttrDirectory is synthesized from the FRS header flag, not the
	// on-disk $FILE_NAME/$STANDARD_INFORMATION attribute bit (spec.md §4.4
	// step 5: "fold directory flag from FRS header into attributes").
	FileAttrDirectory uint32 = 0x10000000
)

// FileName is the decoded $FILE_NAME payload.
type FileName struct {
	ParentFRS      uint64 // low 48 bits FRS number, high 16 bits sequence
	AllocatedSize  uint64
	RealSize       uint64
	Flags          uint32
	NameLength     uint8
	NameType       uint8 // FileNamePOSIX / Win32 / DOS / Both
	Name           string
}

// ParseFileName decodes a resident $FILE_NAME value.
func ParseFileName(v []byte) (FileName, bool) {
	if len(v) < 66 {
		return FileName{}, false
	}
	fn := FileName{
		ParentFRS:     binary.LittleEndian.Uint64(v[0:8]),
		AllocatedSize: binary.LittleEndian.Uint64(v[40:48]),
		RealSize:      binary.LittleEndian.Uint64(v[48:56]),
		Flags:         binary.LittleEndian.Uint32(v[56:60]),
		NameLength:    v[64],
		NameType:      v[65],
	}
	nameStart := 66
	nameEnd := nameStart + int(fn.NameLength)*2
	if nameEnd > len(v) {
		return FileName{}, false
	}
	fn.Name = decodeUTF16(v[nameStart:nameEnd])
	return fn, true
}

// ParentFRSNumber extracts the 48-bit segment number from the packed
// ParentFRS reference, discarding the 16-bit sequence number.
func (fn FileName) ParentFRSNumber() uint32 {
	return uint32(fn.ParentFRS & 0x0000FFFFFFFFFFFF)
}
