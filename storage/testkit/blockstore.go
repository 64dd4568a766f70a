package testkit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/storage"
)

// NewStore constructs a fresh, empty BlockStore for a test.
// The returned store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.BlockStore

func RunBlockStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTripRaw", func(t *testing.T) {
		s := newStore(t)
		want := []byte("hello, block storage")
		id, err := cidutil.RawSHA256(want)
		if err != nil {
			t.Fatalf("RawSHA256 failed: %v", err)
		}
		if err := s.Put(ctx, id, want); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutGetRoundTripDagPB", func(t *testing.T) {
		s := newStore(t)
		want := []byte{0x0a, 0x02, 0x08, 0x02}
		for _, v := range []uint64{0, 1} {
			id, err := cidutil.DagPBSHA256(want, v)
			if err != nil {
				t.Fatalf("DagPBSHA256 failed: %v", err)
			}
			if err := s.Put(ctx, id, want); err != nil {
				t.Fatalf("Put(v%d) failed: %v", v, err)
			}
			got, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get(v%d) failed: %v", v, err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("Get(v%d) bytes mismatch", v)
			}
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		b := []byte("same bytes")
		id, err := cidutil.RawSHA256(b)
		if err != nil {
			t.Fatalf("RawSHA256 failed: %v", err)
		}
		if err := s.Put(ctx, id, b); err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		if err := s.Put(ctx, id, b); err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
	})

	t.Run("RejectMismatchedBytes", func(t *testing.T) {
		s := newStore(t)
		id, err := cidutil.RawSHA256([]byte("claimed"))
		if err != nil {
			t.Fatalf("RawSHA256 failed: %v", err)
		}
		err = s.Put(ctx, id, []byte("actual"))
		if !errors.Is(err, storage.ErrCIDMismatch) {
			t.Fatalf("Put mismatched: got %v want %v", err, storage.ErrCIDMismatch)
		}
		if s.Has(ctx, id) {
			t.Fatalf("mismatched block must not be stored")
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		b := []byte("missing")
		id, err := cidutil.RawSHA256(b)
		if err != nil {
			t.Fatalf("RawSHA256 failed: %v", err)
		}

		if s.Has(ctx, id) {
			t.Fatalf("Has returned true for missing CID")
		}
		_, err = s.Get(ctx, id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if err := s.Put(ctx, id, b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !s.Has(ctx, id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		s := newStore(t)
		var undef cid.Cid
		if s.Has(ctx, undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := s.Get(ctx, undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
		if err := s.Put(ctx, undef, []byte("x")); err == nil {
			t.Fatalf("Put should fail for undefined CID")
		}
	})
}
