package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// BlockStore is a content-addressed block store keyed by CID.
//
// Contract:
// - Put MUST be idempotent and MUST reject bytes that do not hash to id.
// - Stored blocks MUST be immutable.
// - Get MUST return ErrNotFound when the CID is absent and MUST NOT return
//   bytes that fail verification against the requested CID.
// - Any CID version and codec is accepted as long as its multihash can be
//   recomputed (see Verify).
type BlockStore interface {
	Put(ctx context.Context, id cid.Cid, data []byte) error
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) bool
}
