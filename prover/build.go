package prover

import (
	"bytes"
	"strconv"

	"github.com/ipfs/go-cid"

	"xdao.co/rangeproof/dagpb"
	"xdao.co/rangeproof/proof"
)

// entry is one visited block in the builder's index.
type entry struct {
	id   cid.Cid
	raw  []byte
	node *dagpb.Node

	selected bool
	subset   []byte
	local    uint64
}

// builder indexes visited blocks by the link path that reached them rather
// than by hash: a chunk that occurs twice in a file is two distinct entries.
type builder struct {
	index     map[string]*entry
	branchTag proof.Tag
	rawTag    proof.Tag
	pos       uint64
	selectors map[uint64]proof.Selector
}

// Build assembles the proof for a trace produced by Locate.
//
// Every block is re-hashed against the CID it was reached by before it is
// used, and the tags are derived from those CIDs.
func Build(tr *Trace) (*proof.RangeProof, error) {
	if tr == nil || !tr.Root.Defined() {
		return nil, proof.NewError(proof.KindInternal, "RP-BUILD-001", "missing trace root")
	}
	b := &builder{index: map[string]*entry{}, selectors: map[uint64]proof.Selector{}}
	if _, err := b.add("", tr.Root, tr.RootRaw); err != nil {
		return nil, err
	}
	for n, r := range tr.Records {
		if len(r.CIDChain) == 0 || len(r.RawChain) != len(r.CIDChain) || len(r.Path) != len(r.CIDChain)-1 {
			return nil, proof.Errorf(proof.KindInternal, "RP-BUILD-001", "record %d has inconsistent chains", n)
		}
		key := ""
		var e *entry
		for d, id := range r.CIDChain {
			if d > 0 {
				key = childKey(key, r.Path[d-1])
			}
			var err error
			if e, err = b.add(key, id, r.RawChain[d]); err != nil {
				return nil, err
			}
		}
		if e.selected {
			return nil, proof.Errorf(proof.KindInternal, "RP-BUILD-001", "leaf %s recorded twice at %q", e.id, key)
		}
		e.selected = true
		e.subset = r.Subset
		e.local = r.LocalOffset
	}

	if b.branchTag == nil {
		b.branchTag = proof.TagDagPBv1
	}
	if b.rawTag == nil {
		b.rawTag = proof.TagRawV1
	}
	root, err := b.block("", 0)
	if err != nil {
		return nil, err
	}
	return &proof.RangeProof{
		BranchTag: b.branchTag,
		RawTag:    b.rawTag,
		Root:      root,
		Selectors: b.selectors,
	}, nil
}

func childKey(parent string, link int) string {
	return parent + "/" + strconv.Itoa(link)
}

func (b *builder) add(key string, id cid.Cid, raw []byte) (*entry, error) {
	if e, ok := b.index[key]; ok {
		if !e.id.Equals(id) {
			return nil, proof.Errorf(proof.KindInternal, "RP-BUILD-001", "path %q reached both %s and %s", key, e.id, id)
		}
		return e, nil
	}
	tag, err := proof.TagOf(id)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(proof.Sum(raw, tag).Bytes(), id.Bytes()) {
		return nil, proof.Errorf(proof.KindInternal, "RP-BUILD-002", "indexed block does not hash to %s", id)
	}
	node, err := dagpb.DecodeBlock(id, raw)
	if err != nil {
		return nil, err
	}

	slot := &b.branchTag
	if id.Type() == cid.Raw {
		slot = &b.rawTag
	}
	if *slot == nil {
		*slot = tag
	} else if !slot.Equal(tag) {
		return nil, proof.Errorf(proof.KindCodec, "RP-BUILD-005", "DAG mixes CID prefixes %s and %s for one codec", *slot, tag)
	}

	e := &entry{id: id, raw: raw, node: node}
	b.index[key] = e
	return e, nil
}

func (b *builder) next() uint64 {
	p := b.pos
	b.pos++
	return p
}

// block emits the proof node standing for the entry at key. Positions are
// assigned in the same preorder the verifier uses.
func (b *builder) block(key string, depth int) (*proof.Node, error) {
	if depth > proof.MaxDepth {
		return nil, proof.Errorf(proof.KindMalformed, "RP-BUILD-006", "DAG deeper than %d", proof.MaxDepth)
	}
	e := b.index[key]

	if e.node.Codec == cid.Raw {
		pos := b.next()
		if e.selected {
			if err := b.selectAt(pos, e, 0, uint64(len(e.raw))); err != nil {
				return nil, err
			}
		}
		return proof.Leaf(e.raw), nil
	}

	b.next()
	if e.node.IsLeaf() {
		pos := b.next()
		if e.selected {
			off, n, err := dagpb.LeafDataOffset(e.raw)
			if err != nil {
				return nil, err
			}
			if err := b.selectAt(pos, e, uint64(off), uint64(n)); err != nil {
				return nil, err
			}
		}
		return proof.Branch(proof.Leaf(e.raw)), nil
	}

	var children []*proof.Node
	rest := e.raw
	for i, l := range e.node.Links {
		ck := childKey(key, i)
		if _, ok := b.index[ck]; !ok {
			continue
		}
		at := bytes.Index(rest, l.Hash)
		if at < 0 {
			return nil, proof.Errorf(proof.KindPatternNotFound, "RP-BUILD-003", "link %d hash of %s not found in its parent", i, l.Cid)
		}
		b.next()
		children = append(children, proof.Leaf(rest[:at]))
		child, err := b.block(ck, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		rest = rest[at+len(l.Hash):]
	}
	b.next()
	children = append(children, proof.Leaf(rest))
	return proof.Branch(children...), nil
}

// selectAt registers a selector for e's subset. base and size delimit the
// leaf's file bytes within the literal at pos.
func (b *builder) selectAt(pos uint64, e *entry, base, size uint64) error {
	n := uint64(len(e.subset))
	if e.local > size || n > size-e.local {
		return proof.Errorf(proof.KindPatternNotFound, "RP-BUILD-004", "subset [%d,+%d) outside the %d data bytes of %s", e.local, n, size, e.id)
	}
	off := base + e.local
	if !bytes.Equal(e.raw[off:off+n], e.subset) {
		return proof.Errorf(proof.KindPatternNotFound, "RP-BUILD-004", "subset not found in %s", e.id)
	}
	b.selectors[pos] = proof.Selector{Position: pos, Offset: off, Length: n}
	return nil
}
