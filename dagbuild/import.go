// Package dagbuild imports files into a block store as UnixFS DAGs and reads
// them back.
package dagbuild

import (
	"context"
	"fmt"
	"io"

	chunk "github.com/ipfs/boxo/chunker"
	"github.com/ipfs/boxo/ipld/merkledag"
	"github.com/ipfs/boxo/ipld/unixfs/importer/balanced"
	"github.com/ipfs/boxo/ipld/unixfs/importer/helpers"
	"github.com/ipfs/boxo/ipld/unixfs/importer/trickle"
	"github.com/ipfs/go-cid"
	format "github.com/ipfs/go-ipld-format"

	"xdao.co/rangeproof/storage"
)

type Layout string

const (
	LayoutBalanced Layout = "balanced"
	LayoutTrickle  Layout = "trickle"
)

// Options control the shape of the imported DAG. The zero value matches
// Kubo's historical defaults: 256 KiB chunks, 174 links per node, CIDv0,
// dag-pb leaves, balanced layout.
type Options struct {
	ChunkSize  int64
	MaxLinks   int
	RawLeaves  bool
	CIDVersion int
	Layout     Layout
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = chunk.DefaultBlockSize
	}
	if o.MaxLinks <= 0 {
		o.MaxLinks = helpers.DefaultLinksPerBlock
	}
	if o.Layout == "" {
		o.Layout = LayoutBalanced
	}
	return o
}

// Import chunks r, writes every block of the resulting UnixFS file DAG to
// store and returns the root CID.
func Import(ctx context.Context, store storage.BlockStore, r io.Reader, opts Options) (cid.Cid, error) {
	opts = opts.withDefaults()

	var prefix cid.Prefix
	switch opts.CIDVersion {
	case 0:
		prefix = merkledag.V0CidPrefix()
	case 1:
		prefix = merkledag.V1CidPrefix()
	default:
		return cid.Undef, fmt.Errorf("dagbuild: unsupported cid version %d", opts.CIDVersion)
	}

	params := helpers.DagBuilderParams{
		Maxlinks:   opts.MaxLinks,
		RawLeaves:  opts.RawLeaves,
		CidBuilder: prefix,
		Dagserv:    dagService{ctx: ctx, store: store},
	}
	db, err := params.New(chunk.NewSizeSplitter(r, opts.ChunkSize))
	if err != nil {
		return cid.Undef, err
	}

	var root format.Node
	switch opts.Layout {
	case LayoutBalanced:
		root, err = balanced.Layout(db)
	case LayoutTrickle:
		root, err = trickle.Layout(db)
	default:
		return cid.Undef, fmt.Errorf("dagbuild: unknown layout %q", opts.Layout)
	}
	if err != nil {
		return cid.Undef, err
	}
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	return root.Cid(), nil
}
