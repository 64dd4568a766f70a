// Package memstore is an in-memory storage.BlockStore.
//
// It is used for tests and as the staging store when importing files.
package memstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/rangeproof/storage"
)

type Store struct {
	mu     sync.RWMutex
	blocks map[string][]byte
	gets   int
}

func New() *Store {
	return &Store{blocks: map[string][]byte{}}
}

var _ storage.BlockStore = (*Store)(nil)

func (s *Store) Put(ctx context.Context, id cid.Cid, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.Verify(id, data); err != nil {
		return err
	}
	key := id.KeyString()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.blocks[key]; ok {
		if !bytes.Equal(existing, data) {
			return storage.ErrImmutable
		}
		return nil
	}
	s.blocks[key] = append([]byte(nil), data...)
	return nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	s.mu.Lock()
	s.gets++
	b, ok := s.blocks[id.KeyString()]
	s.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	if err := storage.Verify(id, b); err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() || ctx.Err() != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[id.KeyString()]
	return ok
}

// Len returns the number of stored blocks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// Gets returns how many Get calls the store has served.
func (s *Store) Gets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gets
}
