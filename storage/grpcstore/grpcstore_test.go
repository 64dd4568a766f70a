package grpcstore

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/localfs"
	"xdao.co/rangeproof/storage/memstore"
	"xdao.co/rangeproof/storage/testkit"
)

func serve(t *testing.T, backend storage.BlockStore) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterBlockStoreServer(srv, &Server{Store: backend})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func TestGRPCStore_Conformance(t *testing.T) {
	testkit.RunBlockStoreConformance(t, func(t *testing.T) storage.BlockStore {
		c := NewClient(serve(t, memstore.New()))
		c.Timeout = 2 * time.Second
		return c
	})
}

func TestGRPCStore_LocalFS_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := localfs.New(dir)
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	client := NewClient(serve(t, fs))
	client.Timeout = 2 * time.Second

	ctx := context.Background()
	payload := []byte("hello grpcstore")
	id, err := cidutil.DagPBSHA256(payload, 0)
	if err != nil {
		t.Fatalf("DagPBSHA256: %v", err)
	}
	if err := client.Put(ctx, id, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !client.Has(ctx, id) {
		t.Fatalf("Has: expected true")
	}
	got, err := client.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestGRPCStore_ServerRejectsMismatchedPut(t *testing.T) {
	cc := serve(t, memstore.New())
	raw := NewBlockStoreClient(cc)

	id, err := cidutil.RawSHA256([]byte("claimed"))
	if err != nil {
		t.Fatalf("RawSHA256: %v", err)
	}
	ctx := metadata.AppendToOutgoingContext(context.Background(), MetadataCID, id.String())
	_, err = raw.Put(ctx, wrapperspb.Bytes([]byte("actual")))
	if got := mapRPC(err); got != storage.ErrCIDMismatch {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}

	_, err = raw.Put(context.Background(), wrapperspb.Bytes([]byte("actual")))
	if got := mapRPC(err); got != storage.ErrInvalidCID {
		t.Fatalf("expected ErrInvalidCID without metadata, got %v", err)
	}
}
