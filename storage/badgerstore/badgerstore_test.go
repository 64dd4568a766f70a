package badgerstore

import (
	"context"
	"testing"

	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/testkit"
)

func TestBadger_Conformance(t *testing.T) {
	testkit.RunBlockStoreConformance(t, func(t *testing.T) storage.BlockStore {
		t.Helper()
		s, err := Open(Options{InMemory: true})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadger_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	data := []byte("durable block")
	id, err := cidutil.RawSHA256(data)
	if err != nil {
		t.Fatalf("RawSHA256 failed: %v", err)
	}

	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Put(ctx, id, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Get after reopen: got %q", got)
	}
	if n, err := s.Len(); err != nil || n != 1 {
		t.Fatalf("Len: got %d, %v", n, err)
	}
}
