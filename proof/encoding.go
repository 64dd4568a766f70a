package proof

import (
	"bytes"

	"google.golang.org/protobuf/encoding/protowire"
)

// Version is the encoding version written by Marshal.
const Version = 1

// Wire layout (protobuf wire format, fields always written in this order):
//
//	RangeProof { 1: version  2: branch_tag  3: raw_tag  4: root Node  5: repeated Selector }
//	Node       { 1: kind  2: data (leaf only)  3: repeated child Node (branch only) }
//	Selector   { 1: position  2: offset  3: length }
//
// Selectors are written sorted by position and always carry the position
// explicitly; a verifier never reconstructs it from the DAG.
const (
	fieldVersion   protowire.Number = 1
	fieldBranchTag protowire.Number = 2
	fieldRawTag    protowire.Number = 3
	fieldRoot      protowire.Number = 4
	fieldSelector  protowire.Number = 5

	fieldKind     protowire.Number = 1
	fieldData     protowire.Number = 2
	fieldChild    protowire.Number = 3
	fieldPosition protowire.Number = 1
	fieldOffset   protowire.Number = 2
	fieldLength   protowire.Number = 3
)

// Marshal returns the deterministic encoding of p.
func Marshal(p *RangeProof) ([]byte, error) {
	if p == nil || p.Root == nil {
		return nil, NewError(KindMalformed, "RP-ENC-001", "missing proof tree")
	}
	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, Version)
	b = protowire.AppendTag(b, fieldBranchTag, protowire.BytesType)
	b = protowire.AppendBytes(b, p.BranchTag)
	b = protowire.AppendTag(b, fieldRawTag, protowire.BytesType)
	b = protowire.AppendBytes(b, p.RawTag)

	root, err := marshalNode(p.Root, 0, false)
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, fieldRoot, protowire.BytesType)
	b = protowire.AppendBytes(b, root)

	for _, s := range p.SortedSelectors() {
		var sb []byte
		sb = protowire.AppendTag(sb, fieldPosition, protowire.VarintType)
		sb = protowire.AppendVarint(sb, s.Position)
		sb = protowire.AppendTag(sb, fieldOffset, protowire.VarintType)
		sb = protowire.AppendVarint(sb, s.Offset)
		sb = protowire.AppendTag(sb, fieldLength, protowire.VarintType)
		sb = protowire.AppendVarint(sb, s.Length)
		b = protowire.AppendTag(b, fieldSelector, protowire.BytesType)
		b = protowire.AppendBytes(b, sb)
	}
	return b, nil
}

// Depth is counted the way Verify counts it: a literal leaf at an even child
// index shares its branch's depth, so it may sit one level below MaxDepth.
func marshalNode(n *Node, depth int, literal bool) ([]byte, error) {
	if n == nil {
		return nil, NewError(KindMalformed, "RP-ENC-002", "nil proof node")
	}
	if depth > MaxDepth && !(literal && n.Kind == KindLeaf) {
		return nil, Errorf(KindMalformed, "RP-ENC-003", "proof deeper than %d", MaxDepth)
	}
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(n.Kind))
	switch n.Kind {
	case KindLeaf:
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, n.Data)
	case KindBranch:
		for i, c := range n.Children {
			cb, err := marshalNode(c, depth+1, i%2 == 0)
			if err != nil {
				return nil, err
			}
			b = protowire.AppendTag(b, fieldChild, protowire.BytesType)
			b = protowire.AppendBytes(b, cb)
		}
	default:
		return nil, Errorf(KindMalformed, "RP-ENC-004", "unknown node kind %d", n.Kind)
	}
	return b, nil
}

// Unmarshal decodes a proof produced by Marshal.
//
// Only the canonical encoding is accepted: the decoded proof is re-encoded
// and must reproduce the input bytes exactly.
func Unmarshal(b []byte) (*RangeProof, error) {
	p, err := decode(b)
	if err != nil {
		return nil, err
	}
	again, err := Marshal(p)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(again, b) {
		return nil, NewError(KindMalformed, "RP-ENC-015", "non-canonical proof encoding")
	}
	return p, nil
}

func decode(b []byte) (*RangeProof, error) {
	p := &RangeProof{Selectors: map[uint64]Selector{}}
	var sawVersion bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeErr(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeErr(protowire.ParseError(n))
			}
			if v != Version {
				return nil, Errorf(KindMalformed, "RP-ENC-011", "unsupported proof version %d", v)
			}
			sawVersion = true
			b = b[n:]
		case num == fieldBranchTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeErr(protowire.ParseError(n))
			}
			p.BranchTag = append(Tag{}, v...)
			b = b[n:]
		case num == fieldRawTag && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeErr(protowire.ParseError(n))
			}
			p.RawTag = append(Tag{}, v...)
			b = b[n:]
		case num == fieldRoot && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeErr(protowire.ParseError(n))
			}
			root, err := unmarshalNode(v, 0, false)
			if err != nil {
				return nil, err
			}
			p.Root = root
			b = b[n:]
		case num == fieldSelector && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeErr(protowire.ParseError(n))
			}
			s, err := unmarshalSelector(v)
			if err != nil {
				return nil, err
			}
			if _, dup := p.Selectors[s.Position]; dup {
				return nil, Errorf(KindMalformed, "RP-ENC-012", "duplicate selector position %d", s.Position)
			}
			p.Selectors[s.Position] = s
			b = b[n:]
		default:
			return nil, Errorf(KindMalformed, "RP-ENC-013", "unexpected field %d (wire type %d)", num, typ)
		}
	}
	if !sawVersion || p.Root == nil {
		return nil, NewError(KindMalformed, "RP-ENC-014", "proof is missing version or root")
	}
	return p, nil
}

func unmarshalNode(b []byte, depth int, literal bool) (*Node, error) {
	if depth > MaxDepth+1 {
		return nil, Errorf(KindMalformed, "RP-ENC-003", "proof deeper than %d", MaxDepth)
	}
	n := &Node{}
	var sawKind, sawData bool
	for len(b) > 0 {
		num, typ, l := protowire.ConsumeTag(b)
		if l < 0 {
			return nil, decodeErr(protowire.ParseError(l))
		}
		b = b[l:]
		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, l := protowire.ConsumeVarint(b)
			if l < 0 {
				return nil, decodeErr(protowire.ParseError(l))
			}
			if v > uint64(KindBranch) {
				return nil, Errorf(KindMalformed, "RP-ENC-004", "unknown node kind %d", v)
			}
			n.Kind = NodeKind(v)
			sawKind = true
			b = b[l:]
		case num == fieldData && typ == protowire.BytesType:
			v, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return nil, decodeErr(protowire.ParseError(l))
			}
			n.Data = append([]byte{}, v...)
			sawData = true
			b = b[l:]
		case num == fieldChild && typ == protowire.BytesType:
			v, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return nil, decodeErr(protowire.ParseError(l))
			}
			c, err := unmarshalNode(v, depth+1, len(n.Children)%2 == 0)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, c)
			b = b[l:]
		default:
			return nil, Errorf(KindMalformed, "RP-ENC-013", "unexpected node field %d (wire type %d)", num, typ)
		}
	}
	if !sawKind {
		return nil, NewError(KindMalformed, "RP-ENC-016", "node without kind")
	}
	if n.Kind == KindLeaf && (!sawData || len(n.Children) > 0) {
		return nil, NewError(KindMalformed, "RP-ENC-017", "leaf must carry data and no children")
	}
	if n.Kind == KindBranch && sawData {
		return nil, NewError(KindMalformed, "RP-ENC-018", "branch must not carry data")
	}
	if depth > MaxDepth && !(literal && n.Kind == KindLeaf) {
		return nil, Errorf(KindMalformed, "RP-ENC-003", "proof deeper than %d", MaxDepth)
	}
	return n, nil
}

func unmarshalSelector(b []byte) (Selector, error) {
	var s Selector
	var seen [4]bool
	for len(b) > 0 {
		num, typ, l := protowire.ConsumeTag(b)
		if l < 0 {
			return s, decodeErr(protowire.ParseError(l))
		}
		b = b[l:]
		if typ != protowire.VarintType || num < fieldPosition || num > fieldLength {
			return s, Errorf(KindMalformed, "RP-ENC-013", "unexpected selector field %d (wire type %d)", num, typ)
		}
		v, l := protowire.ConsumeVarint(b)
		if l < 0 {
			return s, decodeErr(protowire.ParseError(l))
		}
		b = b[l:]
		switch num {
		case fieldPosition:
			s.Position = v
		case fieldOffset:
			s.Offset = v
		case fieldLength:
			s.Length = v
		}
		seen[num] = true
	}
	if !seen[fieldPosition] {
		return s, NewError(KindMalformed, "RP-ENC-019", "selector without explicit position")
	}
	return s, nil
}

func decodeErr(err error) error {
	return WrapError(KindMalformed, "RP-ENC-010", "truncated or invalid proof encoding", err)
}
