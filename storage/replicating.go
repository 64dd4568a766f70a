package storage

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
)

// NamedStore associates a BlockStore with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting).
type NamedStore struct {
	Name  string
	Store BlockStore
}

// ReplicatingStore writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends; the first failing
// backend aborts the write.
//
// Use PutAll when you need to know which backends accepted the block.
type ReplicatingStore struct {
	Backends []NamedStore
}

var _ BlockStore = ReplicatingStore{}

// PutAll verifies data against id once and writes it to every backend in
// order. It returns the names of the backends that stored the block, which on
// error is the prefix written before the failure.
func (r ReplicatingStore) PutAll(ctx context.Context, id cid.Cid, data []byte) ([]string, error) {
	if err := Verify(id, data); err != nil {
		return nil, err
	}
	if len(r.Backends) == 0 {
		return nil, fmt.Errorf("storage: ReplicatingStore has no backends")
	}

	written := make([]string, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store == nil {
			return written, fmt.Errorf("storage: nil store for backend %q", b.Name)
		}
		if err := b.Store.Put(ctx, id, data); err != nil {
			return written, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		written = append(written, b.Name)
	}
	return written, nil
}

func (r ReplicatingStore) Put(ctx context.Context, id cid.Cid, data []byte) error {
	_, err := r.PutAll(ctx, id, data)
	return err
}

func (r ReplicatingStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	for _, b := range r.Backends {
		if b.Store == nil {
			continue
		}
		out, err := b.Store.Get(ctx, id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingStore) Has(ctx context.Context, id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.Store != nil && b.Store.Has(ctx, id) {
			return true
		}
	}
	return false
}
