package proof

import (
	"bytes"

	"github.com/ipfs/go-cid"
)

// MaxDepth bounds proof tree nesting for both decoding and verification.
// Real UnixFS DAGs stay far below it.
const MaxDepth = 512

// Verify walks the proof tree bottom-up, recomputing every block hash and
// collecting the selected byte slices.
//
// A successful Verify only states that the proof is internally consistent;
// the caller must still compare Result.RootHash with the expected content
// identifier (see VerifyRoot).
func Verify(p *RangeProof) (*Result, error) {
	if p == nil || p.Root == nil {
		return nil, NewError(KindMalformed, "RP-PROOF-001", "missing proof tree")
	}
	if err := p.BranchTag.Validate(); err != nil {
		return nil, err
	}
	if err := p.RawTag.Validate(); err != nil {
		return nil, err
	}
	for pos, s := range p.Selectors {
		if s.Position != pos {
			return nil, Errorf(KindSelectorMismatch, "RP-SEL-001", "selector keyed %d claims position %d", pos, s.Position)
		}
	}

	w := &walker{proof: p}
	h, err := w.node(p.Root, 0)
	if err != nil {
		return nil, err
	}
	if w.used != len(p.Selectors) {
		return nil, Errorf(KindSelectorMismatch, "RP-SEL-002", "%d selector(s) reference positions outside the tree", len(p.Selectors)-w.used)
	}
	return &Result{RootHash: h, Data: w.data}, nil
}

// VerifyRoot runs Verify and requires the recomputed root to equal root.
func VerifyRoot(p *RangeProof, root cid.Cid) (*Result, error) {
	res, err := Verify(p)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(res.RootHash.Bytes(), root.Bytes()) {
		return nil, Errorf(KindRootMismatch, "RP-ROOT-001", "proof root %s does not match %s", res.RootHash, root)
	}
	return res, nil
}

type walker struct {
	proof *RangeProof
	pos   uint64
	used  int
	data  []byte
}

func (w *walker) next() uint64 {
	p := w.pos
	w.pos++
	return p
}

// node evaluates a Leaf or Branch that stands for a whole block.
func (w *walker) node(n *Node, depth int) (TaggedHash, error) {
	if n == nil {
		return TaggedHash{}, NewError(KindMalformed, "RP-PROOF-002", "nil proof node")
	}
	if depth > MaxDepth {
		return TaggedHash{}, Errorf(KindMalformed, "RP-PROOF-003", "proof deeper than %d", MaxDepth)
	}
	switch n.Kind {
	case KindLeaf:
		if err := w.literal(n); err != nil {
			return TaggedHash{}, err
		}
		return Sum(n.Data, w.proof.RawTag), nil
	case KindBranch:
		return w.branch(n, depth)
	default:
		return TaggedHash{}, Errorf(KindMalformed, "RP-PROOF-004", "unknown node kind %d", n.Kind)
	}
}

func (w *walker) branch(n *Node, depth int) (TaggedHash, error) {
	pos := w.next()
	if _, ok := w.proof.Selectors[pos]; ok {
		return TaggedHash{}, Errorf(KindSelectorMismatch, "RP-SEL-003", "selector %d addresses a branch", pos)
	}
	if len(n.Children)%2 == 0 {
		return TaggedHash{}, Errorf(KindMalformed, "RP-PROOF-005", "branch at %d has %d children, want an odd count", pos, len(n.Children))
	}

	var buf bytes.Buffer
	for i, c := range n.Children {
		if i%2 == 0 {
			if c == nil || c.Kind != KindLeaf {
				return TaggedHash{}, Errorf(KindMalformed, "RP-PROOF-006", "branch at %d: child %d must be a literal fragment", pos, i)
			}
			if err := w.literal(c); err != nil {
				return TaggedHash{}, err
			}
			buf.Write(c.Data)
			continue
		}
		h, err := w.node(c, depth+1)
		if err != nil {
			return TaggedHash{}, err
		}
		buf.Write(h.Bytes())
	}
	return Sum(buf.Bytes(), w.proof.BranchTag), nil
}

// literal assigns the leaf its position and applies a registered selector.
func (w *walker) literal(n *Node) error {
	pos := w.next()
	s, ok := w.proof.Selectors[pos]
	if !ok {
		return nil
	}
	size := uint64(len(n.Data))
	if s.Offset > size || s.Length > size-s.Offset {
		return Errorf(KindSelectorMismatch, "RP-SEL-004", "selector %d [%d,+%d) exceeds leaf of %d bytes", pos, s.Offset, s.Length, size)
	}
	w.data = append(w.data, n.Data[s.Offset:s.Offset+s.Length]...)
	w.used++
	return nil
}
