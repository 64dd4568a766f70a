package dagpb

import (
	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/rangeproof/proof"
)

const (
	pbNodeData    protowire.Number = 1
	unixfsPayload protowire.Number = 2
)

// LeafDataOffset locates the UnixFS file bytes inside a raw dag-pb leaf
// block: raw[off:off+n] is exactly the leaf's data.
func LeafDataOffset(raw []byte) (off, n int, err error) {
	outerOff, outer, ok, err := findBytesField(raw, pbNodeData)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, proof.NewError(proof.KindDecode, "RP-DEC-005", "dag-pb block has no Data field")
	}
	innerOff, inner, ok, err := findBytesField(outer, unixfsPayload)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		// A leaf of an empty file: zero bytes right after the payload.
		return outerOff + len(outer), 0, nil
	}
	return outerOff + innerOff, len(inner), nil
}

// findBytesField returns the last occurrence of a length-delimited field,
// matching protobuf's last-one-wins rule for singular fields.
func findBytesField(b []byte, want protowire.Number) (off int, v []byte, ok bool, err error) {
	pos := 0
	for pos < len(b) {
		num, typ, n := protowire.ConsumeTag(b[pos:])
		if n < 0 {
			return 0, nil, false, proof.WrapError(proof.KindDecode, "RP-DEC-006", "invalid protobuf tag", protowire.ParseError(n))
		}
		pos += n
		if num == want && typ == protowire.BytesType {
			val, m := protowire.ConsumeBytes(b[pos:])
			if m < 0 {
				return 0, nil, false, proof.WrapError(proof.KindDecode, "RP-DEC-006", "invalid protobuf bytes field", protowire.ParseError(m))
			}
			off, v, ok = pos+m-len(val), val, true
			pos += m
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, b[pos:])
		if m < 0 {
			return 0, nil, false, proof.WrapError(proof.KindDecode, "RP-DEC-006", "invalid protobuf field", protowire.ParseError(m))
		}
		pos += m
	}
	return off, v, ok, nil
}
