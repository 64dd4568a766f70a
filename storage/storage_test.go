package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/memstore"
	"xdao.co/rangeproof/storage/testkit"
)

func block(t *testing.T, s string) (cid.Cid, []byte) {
	t.Helper()
	b := []byte(s)
	id, err := cidutil.RawSHA256(b)
	if err != nil {
		t.Fatalf("RawSHA256: %v", err)
	}
	return id, b
}

func TestMultiStore_Conformance(t *testing.T) {
	testkit.RunBlockStoreConformance(t, func(t *testing.T) storage.BlockStore {
		return storage.MultiStore{Stores: []storage.BlockStore{memstore.New(), memstore.New()}}
	})
}

func TestReplicatingStore_Conformance(t *testing.T) {
	testkit.RunBlockStoreConformance(t, func(t *testing.T) storage.BlockStore {
		return storage.ReplicatingStore{Backends: []storage.NamedStore{
			{Name: "a", Store: memstore.New()},
			{Name: "b", Store: memstore.New()},
		}}
	})
}

func TestCachedStore_Conformance(t *testing.T) {
	testkit.RunBlockStoreConformance(t, func(t *testing.T) storage.BlockStore {
		return storage.CachedStore{Cache: memstore.New(), Origin: memstore.New()}
	})
}

func TestMultiStore_FallsBackInOrder(t *testing.T) {
	ctx := context.Background()
	a, b := memstore.New(), memstore.New()
	id, data := block(t, "only in b")
	if err := b.Put(ctx, id, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	m := storage.MultiStore{Stores: []storage.BlockStore{a, b}}
	got, err := m.Get(ctx, id)
	if err != nil || string(got) != "only in b" {
		t.Fatalf("Get: %q, %v", got, err)
	}

	id2, data2 := block(t, "written")
	if err := m.Put(ctx, id2, data2); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !a.Has(ctx, id2) || b.Has(ctx, id2) {
		t.Fatalf("MultiStore must write only to the first store")
	}
}

func TestReplicatingStore_PutAllReportsWrites(t *testing.T) {
	ctx := context.Background()
	a, b := memstore.New(), memstore.New()
	r := storage.ReplicatingStore{Backends: []storage.NamedStore{{Name: "a", Store: a}, {Name: "b", Store: b}}}
	id, data := block(t, "everywhere")
	written, err := r.PutAll(ctx, id, data)
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if len(written) != 2 || written[0] != "a" || written[1] != "b" {
		t.Fatalf("written: %v", written)
	}

	other, _ := block(t, "other")
	if _, err := r.PutAll(ctx, other, data); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestCachedStore_FillsCacheOnRead(t *testing.T) {
	ctx := context.Background()
	cache, origin := memstore.New(), memstore.New()
	id, data := block(t, "origin only")
	if err := origin.Put(ctx, id, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c := storage.CachedStore{Cache: cache, Origin: origin}
	if _, err := c.Get(ctx, id); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !cache.Has(ctx, id) {
		t.Fatalf("cache not filled")
	}
	before := origin.Gets()
	if _, err := c.Get(ctx, id); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if origin.Gets() != before {
		t.Fatalf("second read should be served by the cache")
	}
}

func TestVerify(t *testing.T) {
	id, data := block(t, "abc")
	if err := storage.Verify(id, data); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := storage.Verify(id, []byte("abd")); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
	if err := storage.Verify(cid.Undef, data); !errors.Is(err, storage.ErrInvalidCID) {
		t.Fatalf("expected ErrInvalidCID, got %v", err)
	}
}
