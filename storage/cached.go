package storage

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"
)

// CachedStore serves reads from Cache and falls back to Origin, populating
// Cache with every block fetched from Origin.
//
// Writes go to Origin first, then to Cache. A failed cache write never fails
// the operation; it is logged when Logger is set.
type CachedStore struct {
	Cache  BlockStore
	Origin BlockStore
	Logger logrus.FieldLogger
}

var _ BlockStore = CachedStore{}

func (c CachedStore) Put(ctx context.Context, id cid.Cid, data []byte) error {
	if err := c.Origin.Put(ctx, id, data); err != nil {
		return err
	}
	c.fill(ctx, id, data)
	return nil
}

func (c CachedStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if b, err := c.Cache.Get(ctx, id); err == nil {
		return b, nil
	}
	b, err := c.Origin.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, id, b)
	return b, nil
}

func (c CachedStore) Has(ctx context.Context, id cid.Cid) bool {
	return c.Cache.Has(ctx, id) || c.Origin.Has(ctx, id)
}

func (c CachedStore) fill(ctx context.Context, id cid.Cid, data []byte) {
	if err := c.Cache.Put(ctx, id, data); err != nil && c.Logger != nil {
		c.Logger.WithError(err).WithField("cid", id.String()).Warn("block cache write failed")
	}
}
