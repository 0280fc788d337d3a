package ntfs

// Run is one decoded mapping-pairs entry: a span of VCNs mapped to a
// contiguous run of LCNs, or a sparse hole (Sparse set) when the entry
// carries no LCN delta bytes.
type Run struct {
	VCN      int64
	Clusters uint64
	LCN      int64 // meaningless when Sparse
	Sparse   bool
}

// DecodeMappingPairs walks the NTFS mapping-pairs byte stream (spec.md §6):
// each entry starts with a header byte whose low nibble is the byte count
// of the cluster count and whose high nibble is the byte count of the LCN
// delta. The little-endian cluster count follows, then the LCN delta,
// sign-extended when its high bit is set; a high nibble of 0 (no delta
// bytes) marks a sparse run.
func DecodeMappingPairs(data []byte, startVCN int64) []Run {
	var runs []Run
	vcn := startVCN
	lcn := int64(0)
	off := 0

	for off < len(data) {
		header := data[off]
		if header == 0 {
			break
		}
		lengthBytes := int(header & 0x0F)
		offsetBytes := int(header >> 4)
		off++

		if off+lengthBytes+offsetBytes > len(data) {
			break
		}

		clusters := uint64(0)
		for i := 0; i < lengthBytes; i++ {
			clusters |= uint64(data[off+i]) << (8 * uint(i))
		}
		off += lengthBytes

		sparse := offsetBytes == 0
		if !sparse {
			delta := int64(0)
			for i := 0; i < offsetBytes; i++ {
				delta |= int64(data[off+i]) << (8 * uint(i))
			}
			if data[off+offsetBytes-1]&0x80 != 0 {
				for i := offsetBytes; i < 8; i++ {
					delta |= int64(0xFF) << (8 * uint(i))
				}
			}
			off += offsetBytes
			lcn += delta
		}

		runs = append(runs, Run{VCN: vcn, Clusters: clusters, LCN: lcn, Sparse: sparse})
		vcn += int64(clusters)
	}
	return runs
}
