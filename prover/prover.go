// Package prover builds byte-range proofs over UnixFS file DAGs.
//
// Generation has two phases. Locate walks the DAG from the root and records
// every leaf overlapping [start, end) together with its ancestor chain.
// Build turns those records into a proof.RangeProof by cutting each visited
// block around the hashes of its visited children.
package prover

import (
	"bytes"
	"context"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/compliance"
	"xdao.co/rangeproof/proof"
)

// BlockGetter is the block backend capability the prover depends on.
// Every storage.BlockStore satisfies it.
type BlockGetter interface {
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
}

// BoundaryMode selects how a leaf's local subset is cut from [start, end).
type BoundaryMode int

const (
	// BoundaryExact takes the exact half-open intersection of the leaf and
	// the requested range.
	BoundaryExact BoundaryMode = iota
	// BoundaryLegacy reproduces the cut arithmetic of earlier provers. A leaf
	// [c, r) is selected only when start > c and end < r, start < c and
	// end > r, start falls strictly inside it with end > r, or end falls
	// strictly inside it with start < c. Ranges touching a leaf edge select
	// nothing from it. The start cut moves one byte left when start > c and
	// the end cut is capped at len-1. Proofs produced this way verify, but
	// their data generally differs from content[start:end].
	BoundaryLegacy
)

func (m BoundaryMode) String() string {
	switch m {
	case BoundaryExact:
		return "exact"
	case BoundaryLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// Options controls prover behavior.
//
// Options{} gives exact boundaries, blocksize-based skipping, permissive
// handling of inconsistent UnixFS metadata and a pre-flight verification.
type Options struct {
	// Logger receives traversal events at Debug level. Nil discards.
	Logger logrus.FieldLogger
	// Boundary selects the leaf cut arithmetic.
	Boundary BoundaryMode
	// IgnoreBlockSizes disables skipping children that end before start.
	// Without it, a branch's UnixFS blocksizes decide which children can be
	// passed over without fetching them.
	IgnoreBlockSizes bool
	// Mode decides what happens when a branch's blocksizes disagree with its
	// links: Permissive falls back to fetching, Strict fails with KindDecode.
	Mode compliance.ComplianceMode
	// SkipPreflight skips verifying the freshly built proof.
	SkipPreflight bool
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	return o
}

// Prover generates range proofs against one block backend. It holds no
// per-call state and is safe for concurrent use.
type Prover struct {
	blocks BlockGetter
	opts   Options
}

func New(blocks BlockGetter, opts Options) *Prover {
	return &Prover{blocks: blocks, opts: opts.withDefaults()}
}

// Generate locates [start, end) under root and builds its proof.
func (p *Prover) Generate(ctx context.Context, root cid.Cid, start, end uint64) (*proof.RangeProof, error) {
	rp, _, err := p.Prove(ctx, root, start, end)
	return rp, err
}

// Prove is Generate that also returns the pre-flight verification result.
// The result is nil when SkipPreflight is set.
func (p *Prover) Prove(ctx context.Context, root cid.Cid, start, end uint64) (*proof.RangeProof, *proof.Result, error) {
	log := p.opts.Logger.WithFields(logrus.Fields{"root": root.String(), "start": start, "end": end})

	tr, err := p.Locate(ctx, root, start, end)
	if err != nil {
		return nil, nil, err
	}
	rp, err := Build(tr)
	if err != nil {
		return nil, nil, err
	}
	var res *proof.Result
	if !p.opts.SkipPreflight {
		if res, err = preflight(rp, tr); err != nil {
			log.WithError(err).Warn("pre-flight verification failed")
			return nil, nil, err
		}
	}
	log.WithFields(logrus.Fields{
		"records":   len(tr.Records),
		"selectors": len(rp.Selectors),
		"fetched":   tr.Fetched,
		"skipped":   tr.Skipped,
	}).Debug("range proof generated")
	return rp, res, nil
}

// GenerateRangeProof parses root and generates the proof for [start, end)
// with default options.
func GenerateRangeProof(ctx context.Context, blocks BlockGetter, root string, start, end uint64) (*proof.RangeProof, error) {
	id, err := cidutil.Parse(root)
	if err != nil {
		return nil, proof.WrapError(proof.KindCodec, "RP-CODEC-005", "invalid root CID", err)
	}
	return New(blocks, Options{}).Generate(ctx, id, start, end)
}

func preflight(rp *proof.RangeProof, tr *Trace) (*proof.Result, error) {
	res, err := proof.VerifyRoot(rp, tr.Root)
	if err != nil {
		return nil, proof.WrapError(proof.KindInternal, "RP-PREFLIGHT-001", "built proof does not verify", err)
	}
	if !bytes.Equal(res.Data, tr.Data()) {
		return nil, proof.NewError(proof.KindInternal, "RP-PREFLIGHT-002", "built proof selects different bytes than were located")
	}
	return res, nil
}
