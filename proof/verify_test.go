package proof

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// twoLevel builds a parent block "HEAD" ++ link(abcd) ++ "MID" ++ link(efghij) ++ "TAIL"
// over two raw children and returns the matching proof and parent bytes.
func twoLevel(t *testing.T) (*RangeProof, []byte) {
	t.Helper()
	a := []byte("abcd")
	b := []byte("efghij")
	var parent []byte
	parent = append(parent, "HEAD"...)
	parent = append(parent, Sum(a, TagRawV1).Bytes()...)
	parent = append(parent, "MID"...)
	parent = append(parent, Sum(b, TagRawV1).Bytes()...)
	parent = append(parent, "TAIL"...)

	// Preorder: 0 branch, 1 HEAD, 2 abcd, 3 MID, 4 efghij, 5 TAIL.
	p := &RangeProof{
		BranchTag: TagDagPBv1,
		RawTag:    TagRawV1,
		Root:      Branch(Leaf([]byte("HEAD")), Leaf(a), Leaf([]byte("MID")), Leaf(b), Leaf([]byte("TAIL"))),
		Selectors: map[uint64]Selector{
			2: {Position: 2, Offset: 2, Length: 2},
			4: {Position: 4, Offset: 0, Length: 4},
		},
	}
	return p, parent
}

func TestVerify_SplicesRecomputedChildHashes(t *testing.T) {
	p, parent := twoLevel(t)
	res, err := Verify(p)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if string(res.Data) != "cdefgh" {
		t.Fatalf("data: got %q want %q", res.Data, "cdefgh")
	}
	want := Sum(parent, TagDagPBv1)
	if !res.RootHash.Equal(want) {
		t.Fatalf("root: got %s want %s", res.RootHash, want)
	}
}

func TestVerify_SingleRawLeafRoot(t *testing.T) {
	leaf := []byte("wxyz")
	p := &RangeProof{
		BranchTag: TagDagPBv1,
		RawTag:    TagRawV1,
		Root:      Leaf(leaf),
		Selectors: map[uint64]Selector{0: {Position: 0, Offset: 0, Length: 4}},
	}
	res, err := Verify(p)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if string(res.Data) != "wxyz" {
		t.Fatalf("data: got %q", res.Data)
	}
	if !res.RootHash.Equal(Sum(leaf, TagRawV1)) {
		t.Fatalf("root hash mismatch")
	}

	mh, err := multihash.Sum(leaf, multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	id := cid.NewCidV1(cid.Raw, mh)
	if _, err := VerifyRoot(p, id); err != nil {
		t.Fatalf("VerifyRoot: %v", err)
	}
}

func TestVerify_TamperAnyLeafChangesRoot(t *testing.T) {
	p, _ := twoLevel(t)
	base, err := Verify(p)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for i := 0; i < len(p.Root.Children); i++ {
		for j := range p.Root.Children[i].Data {
			q, _ := twoLevel(t)
			q.Root.Children[i].Data[j] ^= 0x01
			res, err := Verify(q)
			if err != nil {
				t.Fatalf("Verify tampered (%d,%d): %v", i, j, err)
			}
			if res.RootHash.Equal(base.RootHash) {
				t.Fatalf("tampering child %d byte %d did not change the root", i, j)
			}
		}
	}
}

func TestVerify_EmptySelectionStillHashes(t *testing.T) {
	p, parent := twoLevel(t)
	p.Selectors = nil
	res, err := Verify(p)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(res.Data) != 0 {
		t.Fatalf("expected no data, got %q", res.Data)
	}
	if !res.RootHash.Equal(Sum(parent, TagDagPBv1)) {
		t.Fatalf("root hash mismatch")
	}
}

func TestVerify_ErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *RangeProof)
		kind   Kind
		rule   string
	}{
		{
			name:   "SliceExceedsLeaf",
			mutate: func(p *RangeProof) { p.Selectors[2] = Selector{Position: 2, Offset: 3, Length: 2} },
			kind:   KindSelectorMismatch,
			rule:   "RP-SEL-004",
		},
		{
			name:   "PositionOutsideTree",
			mutate: func(p *RangeProof) { p.Selectors[99] = Selector{Position: 99, Length: 1} },
			kind:   KindSelectorMismatch,
			rule:   "RP-SEL-002",
		},
		{
			name:   "SelectorOnBranch",
			mutate: func(p *RangeProof) { p.Selectors[0] = Selector{Position: 0, Length: 1} },
			kind:   KindSelectorMismatch,
			rule:   "RP-SEL-003",
		},
		{
			name:   "KeyDisagreesWithPosition",
			mutate: func(p *RangeProof) { p.Selectors[2] = Selector{Position: 3, Length: 1} },
			kind:   KindSelectorMismatch,
			rule:   "RP-SEL-001",
		},
		{
			name:   "EvenChildCount",
			mutate: func(p *RangeProof) { p.Root.Children = p.Root.Children[:4] },
			kind:   KindMalformed,
			rule:   "RP-PROOF-005",
		},
		{
			name:   "FragmentIsBranch",
			mutate: func(p *RangeProof) { p.Root.Children[0] = Branch(Leaf(nil)) },
			kind:   KindMalformed,
			rule:   "RP-PROOF-006",
		},
		{
			name:   "NilChild",
			mutate: func(p *RangeProof) { p.Root.Children[1] = nil },
			kind:   KindMalformed,
			rule:   "RP-PROOF-002",
		},
		{
			name:   "BadTag",
			mutate: func(p *RangeProof) { p.RawTag = Tag{0x01, 0x55, 0x13, 0x20} },
			kind:   KindCodec,
			rule:   "RP-CODEC-002",
		},
		{
			name:   "EmptyTag",
			mutate: func(p *RangeProof) { p.BranchTag = nil },
			kind:   KindMalformed,
			rule:   "RP-TAG-001",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := twoLevel(t)
			tc.mutate(p)
			_, err := Verify(p)
			if err == nil {
				t.Fatalf("expected error")
			}
			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("expected structured *proof.Error, got %T", err)
			}
			if e.Kind != tc.kind {
				t.Fatalf("kind: got %s want %s (%v)", e.Kind, tc.kind, err)
			}
			if e.RuleID != tc.rule {
				t.Fatalf("rule: got %s want %s (%v)", e.RuleID, tc.rule, err)
			}
		})
	}
}

func TestVerify_RejectsExcessiveDepth(t *testing.T) {
	n := Leaf([]byte("x"))
	for i := 0; i < MaxDepth+2; i++ {
		n = Branch(Leaf(nil), n, Leaf(nil))
	}
	_, err := Verify(&RangeProof{BranchTag: TagDagPBv1, RawTag: TagRawV1, Root: n})
	if RuleID(err) != "RP-PROOF-003" {
		t.Fatalf("expected RP-PROOF-003, got %v", err)
	}
}

func TestVerifyRoot_Mismatch(t *testing.T) {
	p, _ := twoLevel(t)
	mh, err := multihash.Sum([]byte("something else"), multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	_, err = VerifyRoot(p, cid.NewCidV1(cid.DagProtobuf, mh))
	if !IsKind(err, KindRootMismatch) {
		t.Fatalf("expected KindRootMismatch, got %v", err)
	}
}

func TestTagOf(t *testing.T) {
	mh, err := multihash.Sum([]byte("x"), multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	cases := []struct {
		id   cid.Cid
		want Tag
	}{
		{cid.NewCidV0(mh), TagDagPBv0},
		{cid.NewCidV1(cid.DagProtobuf, mh), TagDagPBv1},
		{cid.NewCidV1(cid.Raw, mh), TagRawV1},
	}
	for _, tc := range cases {
		got, err := TagOf(tc.id)
		if err != nil {
			t.Fatalf("TagOf(%s): %v", tc.id, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("TagOf(%s): got %s want %s", tc.id, got, tc.want)
		}
		if err := got.Validate(); err != nil {
			t.Fatalf("Validate(%s): %v", got, err)
		}
		h := Sum([]byte("x"), got)
		if !bytes.Equal(h.Bytes(), tc.id.Bytes()) {
			t.Fatalf("Sum under %s does not reproduce %s", got, tc.id)
		}
	}

	sha3, err := multihash.Encode(make([]byte, 32), multihash.SHA3_256)
	if err != nil {
		t.Fatalf("multihash.Encode: %v", err)
	}
	if _, err := TagOf(cid.NewCidV1(cid.Raw, sha3)); !IsKind(err, KindCodec) {
		t.Fatalf("expected KindCodec for sha3-256, got %v", err)
	}
}
