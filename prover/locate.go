package prover

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/compliance"
	"xdao.co/rangeproof/dagpb"
	"xdao.co/rangeproof/proof"
)

// VisitRecord describes one leaf that overlaps the requested range.
//
// The chains run from the root (index 0) to the leaf. Path[i] is the link
// index taken from CIDChain[i] to reach CIDChain[i+1], so two records that
// share a prefix of Path share the same ancestors.
type VisitRecord struct {
	CIDChain []cid.Cid
	RawChain [][]byte
	Path     []int
	// Subset is the slice of the leaf's file bytes that falls in the range.
	Subset []byte
	// LocalOffset is where Subset starts within the leaf's file bytes.
	LocalOffset uint64
}

// Trace is the output of Locate.
type Trace struct {
	Root       cid.Cid
	RootRaw    []byte
	Start, End uint64
	Records    []VisitRecord
	// Fetched counts block reads; Skipped counts children passed over using
	// blocksizes.
	Fetched, Skipped int
}

// Data returns the located bytes in file order.
func (t *Trace) Data() []byte {
	var out []byte
	for _, r := range t.Records {
		out = append(out, r.Subset...)
	}
	if out == nil {
		out = []byte{}
	}
	return out
}

type frame struct {
	id    cid.Cid
	raw   []byte
	node  *dagpb.Node
	sizes []uint64
	link  int
	next  int
	// sized frames were entered on the strength of the parent's blocksizes:
	// the subtree must span want bytes from base.
	sized      bool
	base, want uint64
}

// settle checks a fully walked subtree against the size its parent claimed.
func settle(f *frame, cursor uint64) error {
	if !f.sized || cursor-f.base == f.want {
		return nil
	}
	return proof.Errorf(proof.KindDecode, "RP-DEC-007", "block %s spans %d bytes, parent blocksizes claim %d", f.id, cursor-f.base, f.want)
}

// Locate walks the DAG under root in link order and records every leaf
// intersecting [start, end).
//
// The walk keeps an explicit stack, so DAG depth never grows the Go stack.
// It stops descending once the cursor has reached end.
//
// Blocksizes are trusted to skip children, and every child entered is
// checked against its claimed size once walked. On disagreement Strict
// fails with RP-DEC-007 and Permissive walks again fetching every child.
func (p *Prover) Locate(ctx context.Context, root cid.Cid, start, end uint64) (*Trace, error) {
	tr, err := p.locate(ctx, root, start, end)
	if err == nil || p.opts.IgnoreBlockSizes || p.opts.Mode == compliance.Strict || proof.RuleID(err) != "RP-DEC-007" {
		return tr, err
	}
	p.opts.Logger.WithError(err).WithField("root", root.String()).Debug("blocksizes disagree with children, walking again without them")
	q := *p
	q.opts.IgnoreBlockSizes = true
	return q.locate(ctx, root, start, end)
}

func (p *Prover) locate(ctx context.Context, root cid.Cid, start, end uint64) (*Trace, error) {
	if start > end {
		return nil, proof.Errorf(proof.KindRangeOutOfBounds, "RP-RANGE-001", "start %d is after end %d", start, end)
	}
	log := p.opts.Logger.WithFields(logrus.Fields{"root": root.String(), "start": start, "end": end})

	rf, err := p.fetch(ctx, root, -1)
	if err != nil {
		return nil, err
	}
	tr := &Trace{Root: root, RootRaw: rf.raw, Start: start, End: end, Fetched: 1}
	stack := []*frame{rf}
	var cursor uint64

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, proof.WrapError(proof.KindFetch, "RP-FETCH-003", "traversal cancelled", err)
		}
		top := stack[len(stack)-1]

		if top.node.IsLeaf() {
			data, err := dagpb.LeafData(top.node)
			if err != nil {
				return nil, err
			}
			if lo, hi, ok := cut(p.opts.Boundary, start, end, cursor, uint64(len(data))); ok {
				tr.Records = append(tr.Records, record(stack, data[lo:hi], lo))
				log.WithFields(logrus.Fields{"leaf": top.id.String(), "cursor": cursor, "lo": lo, "hi": hi}).Debug("leaf overlaps range")
			}
			cursor += uint64(len(data))
			if err := settle(top, cursor); err != nil {
				return nil, err
			}
			stack = stack[:len(stack)-1]
			continue
		}

		if top.next >= len(top.node.Links) {
			if err := settle(top, cursor); err != nil {
				return nil, err
			}
			stack = stack[:len(stack)-1]
			continue
		}
		if cursor >= end {
			stack = stack[:len(stack)-1]
			continue
		}
		i := top.next
		top.next++
		if top.sizes != nil && cursor+top.sizes[i] <= start {
			cursor += top.sizes[i]
			tr.Skipped++
			continue
		}
		if len(stack) > proof.MaxDepth {
			return nil, proof.Errorf(proof.KindMalformed, "RP-LOC-001", "DAG deeper than %d", proof.MaxDepth)
		}
		child, err := p.fetch(ctx, top.node.Links[i].Cid, i)
		if err != nil {
			return nil, err
		}
		tr.Fetched++
		if top.sizes != nil {
			child.sized, child.base, child.want = true, cursor, top.sizes[i]
		}
		stack = append(stack, child)
	}

	if cursor < end {
		return nil, proof.Errorf(proof.KindRangeOutOfBounds, "RP-RANGE-002", "range end %d is past the content size %d", end, cursor)
	}
	return tr, nil
}

func (p *Prover) fetch(ctx context.Context, id cid.Cid, link int) (*frame, error) {
	if _, err := proof.TagOf(id); err != nil {
		return nil, err
	}
	raw, err := p.blocks.Get(ctx, id)
	if err != nil {
		return nil, proof.WrapError(proof.KindFetch, "RP-FETCH-001", "fetch "+id.String(), err)
	}
	ok, err := cidutil.Matches(id, raw)
	if err != nil {
		return nil, proof.WrapError(proof.KindCodec, "RP-CODEC-006", "hash "+id.String(), err)
	}
	if !ok {
		return nil, proof.Errorf(proof.KindFetch, "RP-FETCH-002", "backend returned bytes that do not hash to %s", id)
	}
	node, err := dagpb.DecodeBlock(id, raw)
	if err != nil {
		return nil, err
	}
	f := &frame{id: id, raw: raw, node: node, link: link}
	if node.IsLeaf() {
		return f, nil
	}
	if err := p.layout(f); err != nil {
		return nil, err
	}
	return f, nil
}

// layout reads a branch's UnixFS metadata. Branches that carry file bytes
// of their own are rejected because a proof cannot select them.
func (p *Prover) layout(f *frame) error {
	if len(f.node.Payload) == 0 {
		return nil
	}
	lp, err := dagpb.DecodeLeafPayload(f.node.Payload)
	if err != nil {
		return err
	}
	if len(lp.Data) > 0 {
		return proof.Errorf(proof.KindDecode, "RP-DEC-008", "branch %s carries %d inline data bytes", f.id, len(lp.Data))
	}
	if p.opts.IgnoreBlockSizes {
		return nil
	}
	sizes, err := dagpb.BlockSizes(f.node.Payload)
	if err != nil {
		return err
	}
	var sum uint64
	for _, s := range sizes {
		sum += s
	}
	switch {
	case len(sizes) != len(f.node.Links):
		err = proof.Errorf(proof.KindDecode, "RP-DEC-007", "branch %s lists %d blocksizes for %d links", f.id, len(sizes), len(f.node.Links))
	case sum != lp.FileSize:
		err = proof.Errorf(proof.KindDecode, "RP-DEC-007", "branch %s blocksizes sum to %d, filesize is %d", f.id, sum, lp.FileSize)
	default:
		f.sizes = sizes
		return nil
	}
	if p.opts.Mode == compliance.Strict {
		return err
	}
	p.opts.Logger.WithError(err).WithField("block", f.id.String()).Debug("inconsistent blocksizes, fetching every child")
	return nil
}

func record(stack []*frame, subset []byte, local uint64) VisitRecord {
	r := VisitRecord{
		CIDChain:    make([]cid.Cid, len(stack)),
		RawChain:    make([][]byte, len(stack)),
		Path:        make([]int, 0, len(stack)-1),
		Subset:      append([]byte(nil), subset...),
		LocalOffset: local,
	}
	for i, f := range stack {
		r.CIDChain[i] = f.id
		r.RawChain[i] = f.raw
		if i > 0 {
			r.Path = append(r.Path, f.link)
		}
	}
	return r
}

// cut returns the leaf-local bounds [lo, hi) of the part of a leaf of size
// bytes starting at cursor that the range selects.
func cut(mode BoundaryMode, start, end, cursor, size uint64) (lo, hi uint64, ok bool) {
	leafEnd := cursor + size
	if mode == BoundaryLegacy {
		if size == 0 {
			return 0, 0, false
		}
		// Inside, covering, straddling the start, straddling the end. A range
		// edge equal to either leaf edge matches none of them.
		overlap := (start > cursor && end < leafEnd) ||
			(start < cursor && end > leafEnd) ||
			(start > cursor && start < leafEnd && end > leafEnd) ||
			(start < cursor && end > cursor && end < leafEnd)
		if !overlap {
			return 0, 0, false
		}
		if start > cursor {
			lo = start - cursor - 1
		}
		hi = lo + (end - cursor)
		if hi > size-1 {
			hi = size - 1
		}
		if hi <= lo {
			return 0, 0, false
		}
		return lo, hi, true
	}

	lo, hi = start, end
	if cursor > lo {
		lo = cursor
	}
	if leafEnd < hi {
		hi = leafEnd
	}
	if lo >= hi {
		return 0, 0, false
	}
	return lo - cursor, hi - cursor, true
}
