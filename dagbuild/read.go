package dagbuild

import (
	"context"
	"fmt"
	"io"

	uio "github.com/ipfs/boxo/ipld/unixfs/io"
	"github.com/ipfs/go-cid"

	"xdao.co/rangeproof/dagpb"
	"xdao.co/rangeproof/storage"
)

// Cat returns the full content of the UnixFS file rooted at root.
func Cat(ctx context.Context, store storage.BlockStore, root cid.Cid) ([]byte, error) {
	r, err := open(ctx, store, root)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// ReadRange returns bytes [start, end) of the file rooted at root.
func ReadRange(ctx context.Context, store storage.BlockStore, root cid.Cid, start, end uint64) ([]byte, error) {
	if start > end {
		return nil, fmt.Errorf("dagbuild: start %d after end %d", start, end)
	}
	r, err := open(ctx, store, root)
	if err != nil {
		return nil, err
	}
	if end > r.Size() {
		return nil, fmt.Errorf("dagbuild: range end %d beyond file size %d", end, r.Size())
	}
	if _, err := r.Seek(int64(start), io.SeekStart); err != nil {
		return nil, err
	}
	out := make([]byte, end-start)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func open(ctx context.Context, store storage.BlockStore, root cid.Cid) (uio.DagReader, error) {
	ds := dagService{ctx: ctx, store: store}
	n, err := ds.Get(ctx, root)
	if err != nil {
		return nil, err
	}
	return uio.NewDagReader(ctx, n, ds)
}

// Blocks lists every block CID reachable from root in depth-first preorder,
// without duplicates.
func Blocks(ctx context.Context, store storage.BlockStore, root cid.Cid) ([]cid.Cid, error) {
	seen := map[string]struct{}{}
	var out []cid.Cid
	stack := []cid.Cid{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[id.KeyString()]; ok {
			continue
		}
		seen[id.KeyString()] = struct{}{}
		out = append(out, id)

		raw, err := store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("dagbuild: %s: %w", id, err)
		}
		n, err := dagpb.DecodeBlock(id, raw)
		if err != nil {
			return nil, err
		}
		for i := len(n.Links) - 1; i >= 0; i-- {
			stack = append(stack, n.Links[i].Cid)
		}
	}
	return out, nil
}
