package proof

import (
	"bytes"
	"encoding/hex"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// DigestSize is the length of a sha2-256 digest.
const DigestSize = 32

// Tag is the literal byte prefix a parent uses in front of a child's digest:
// the CID version and codec varints (absent for CIDv0) followed by the
// multihash code and length.
//
// The tag is an input to hashing, never inferred from the bytes being
// hashed: codec identity is a property of how a block was referenced.
type Tag []byte

var (
	// TagDagPBv0 prefixes CIDv0 references (bare sha2-256 multihash).
	TagDagPBv0 = Tag{0x12, 0x20}
	// TagDagPBv1 prefixes CIDv1 dag-pb references.
	TagDagPBv1 = Tag{0x01, 0x70, 0x12, 0x20}
	// TagRawV1 prefixes CIDv1 raw references.
	TagRawV1 = Tag{0x01, 0x55, 0x12, 0x20}
)

// TagOf returns the tag under which id references its block.
// Only sha2-256 with a full 32 byte digest is supported.
func TagOf(id cid.Cid) (Tag, error) {
	if !id.Defined() {
		return nil, NewError(KindCodec, "RP-CODEC-001", "undefined CID")
	}
	p := id.Prefix()
	if p.MhType != multihash.SHA2_256 || p.MhLength != DigestSize {
		return nil, Errorf(KindCodec, "RP-CODEC-002", "unsupported multihash in %s (want sha2-256/32)", id)
	}
	b := id.Bytes()
	return Tag(append([]byte(nil), b[:len(b)-DigestSize]...)), nil
}

// Validate checks that t parses as a sha2-256 CID prefix.
func (t Tag) Validate() error {
	if len(t) == 0 {
		return NewError(KindMalformed, "RP-TAG-001", "empty tag")
	}
	sample := make([]byte, 0, len(t)+DigestSize)
	sample = append(sample, t...)
	sample = append(sample, make([]byte, DigestSize)...)
	id, err := cid.Cast(sample)
	if err != nil {
		return WrapError(KindMalformed, "RP-TAG-002", "tag is not a CID prefix", err)
	}
	if _, err := TagOf(id); err != nil {
		return err
	}
	return nil
}

func (t Tag) Equal(o Tag) bool { return bytes.Equal(t, o) }

func (t Tag) String() string { return hex.EncodeToString(t) }

// TaggedHash is a node's content address split into tag and digest.
// Prefix ++ Digest is exactly the link hash a parent stores for the node.
type TaggedHash struct {
	Prefix Tag
	Digest []byte
}

// Sum computes tag ++ sha256(raw).
func Sum(raw []byte, tag Tag) TaggedHash {
	return TaggedHash{
		Prefix: append(Tag(nil), tag...),
		Digest: Digest(raw),
	}
}

// Digest returns the bare sha2-256 digest of b.
func Digest(b []byte) []byte {
	sum, err := multihash.Sum(b, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for unknown codes or bad lengths.
		panic(err)
	}
	dec, err := multihash.Decode(sum)
	if err != nil {
		panic(err)
	}
	return dec.Digest
}

// Bytes returns Prefix ++ Digest.
func (h TaggedHash) Bytes() []byte {
	out := make([]byte, 0, len(h.Prefix)+len(h.Digest))
	out = append(out, h.Prefix...)
	return append(out, h.Digest...)
}

// CID interprets the tagged hash as a CID.
func (h TaggedHash) CID() (cid.Cid, error) {
	id, err := cid.Cast(h.Bytes())
	if err != nil {
		return cid.Undef, WrapError(KindCodec, "RP-CODEC-003", "tagged hash is not a CID", err)
	}
	return id, nil
}

// Equal compares the full prefixed hash bytes.
func (h TaggedHash) Equal(o TaggedHash) bool {
	return bytes.Equal(h.Bytes(), o.Bytes())
}

func (h TaggedHash) String() string {
	if id, err := h.CID(); err == nil {
		return id.String()
	}
	return hex.EncodeToString(h.Bytes())
}
