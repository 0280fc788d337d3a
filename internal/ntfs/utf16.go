package ntfs

import "unicode/utf16"

func utf16ToString(units []uint16) string {
	return string(utf16.Decode(units))
}

// IsASCII reports whether every rune in s fits in one byte, the condition
// the index uses to decide whether a name is packed as bytes or wide chars
// (spec.md §3, NameInfo).
func IsASCII(s string) bool {
	for _, r := range s {
		if r > 0x7F {
			return false
		}
	}
	return true
}
