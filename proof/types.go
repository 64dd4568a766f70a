// Package proof defines the transmissible byte-range proof and its verifier.
//
// Everything in this package is pure and deterministic: Verify performs no
// I/O and consults nothing but the proof itself and the hash function, so the
// same code can run as a pre-flight check on the proving host and inside an
// attested execution environment.
package proof

import "sort"

// NodeKind distinguishes the two proof tree variants.
type NodeKind uint8

const (
	// KindLeaf holds literal bytes: either a fragment of a parent block or a
	// whole raw-codec block.
	KindLeaf NodeKind = iota
	// KindBranch reassembles one dag-pb block from alternating literal
	// fragments and nested sub-proofs.
	KindBranch
)

func (k NodeKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindBranch:
		return "branch"
	default:
		return "unknown"
	}
}

// Node is one node of the proof tree. It owns its bytes and never points
// back into the block it was cut from.
//
// For a Branch, Children[0], Children[2], ... are literal Leaf fragments of
// the block and Children[1], Children[3], ... are sub-proofs whose recomputed
// hash is spliced between the surrounding fragments.
type Node struct {
	Kind     NodeKind
	Data     []byte
	Children []*Node
}

// Leaf returns a Leaf node holding a copy of b.
func Leaf(b []byte) *Node {
	return &Node{Kind: KindLeaf, Data: append([]byte{}, b...)}
}

// Branch returns a Branch node over children.
func Branch(children ...*Node) *Node {
	return &Node{Kind: KindBranch, Children: children}
}

// Selector locates requested bytes within one Leaf.
// Position is the preorder index of the leaf in the proof tree (root = 0).
type Selector struct {
	Position uint64
	Offset   uint64
	Length   uint64
}

// RangeProof is the self-contained unit handed to a verifier.
type RangeProof struct {
	// BranchTag prefixes digests of dag-pb blocks (Branch nodes).
	BranchTag Tag
	// RawTag prefixes digests of raw-codec blocks (nested or root Leaf nodes).
	RawTag    Tag
	Root      *Node
	Selectors map[uint64]Selector
}

// SortedSelectors returns the selectors ordered by position.
func (p *RangeProof) SortedSelectors() []Selector {
	out := make([]Selector, 0, len(p.Selectors))
	for _, s := range p.Selectors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Result is the verifier output.
type Result struct {
	RootHash TaggedHash
	// Data is the concatenation of every selected slice in position order.
	Data []byte
}
