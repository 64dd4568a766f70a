package dagbuild

import (
	"context"
	"errors"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	format "github.com/ipfs/go-ipld-format"
	"github.com/ipfs/boxo/ipld/merkledag"

	"xdao.co/rangeproof/storage"
)

var errRemove = errors.New("dagbuild: block stores are append-only")

// dagService adapts a storage.BlockStore to the boxo DAG service interface
// so boxo's importers and readers can work against any backend.
//
// The boxo importer adds nodes with context.TODO, so writes use ctx instead.
type dagService struct {
	ctx   context.Context
	store storage.BlockStore
}

var _ format.DAGService = dagService{}

func (d dagService) Add(_ context.Context, n format.Node) error {
	return d.store.Put(d.ctx, n.Cid(), n.RawData())
}

func (d dagService) AddMany(ctx context.Context, ns []format.Node) error {
	for _, n := range ns {
		if err := d.Add(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (d dagService) Get(ctx context.Context, id cid.Cid) (format.Node, error) {
	raw, err := d.store.Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, format.ErrNotFound{Cid: id}
		}
		return nil, err
	}
	b, err := blocks.NewBlockWithCid(raw, id)
	if err != nil {
		return nil, err
	}
	switch id.Type() {
	case cid.Raw:
		return merkledag.DecodeRawBlock(b)
	case cid.DagProtobuf:
		return merkledag.DecodeProtobufBlock(b)
	default:
		return nil, format.ErrNotFound{Cid: id}
	}
}

func (d dagService) GetMany(ctx context.Context, ids []cid.Cid) <-chan *format.NodeOption {
	out := make(chan *format.NodeOption, len(ids))
	go func() {
		defer close(out)
		for _, id := range ids {
			n, err := d.Get(ctx, id)
			select {
			case out <- &format.NodeOption{Node: n, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (d dagService) Remove(context.Context, cid.Cid) error { return errRemove }

func (d dagService) RemoveMany(context.Context, []cid.Cid) error { return errRemove }
