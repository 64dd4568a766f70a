package grpcstore

import (
	"context"
	"io"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/rangeproof/storage"
)

// Server exposes a storage.BlockStore over the BlockStore gRPC service.
type Server struct {
	UnimplementedBlockStoreServer
	Store  storage.BlockStore
	Logger logrus.FieldLogger
}

func (s *Server) log() logrus.FieldLogger {
	if s.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return s.Logger
}

func decodeCID(v string) (cid.Cid, error) {
	id, err := cid.Decode(strings.TrimSpace(v))
	if err != nil || !id.Defined() {
		return cid.Undef, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return id, nil
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing block store")
	}
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(MetadataCID)
	if len(vals) != 1 {
		return nil, status.Error(codes.InvalidArgument, "put requires exactly one "+MetadataCID)
	}
	id, err := decodeCID(vals[0])
	if err != nil {
		return nil, err
	}
	if err := s.Store.Put(ctx, id, in.GetValue()); err != nil {
		s.log().WithError(err).WithField("cid", id.String()).Warn("put failed")
		return nil, mapErr(err)
	}
	s.log().WithFields(logrus.Fields{"cid": id.String(), "size": len(in.GetValue())}).Debug("put")
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing block store")
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		if !storage.IsNotFound(err) {
			s.log().WithError(err).WithField("cid", id.String()).Warn("get failed")
		}
		return nil, mapErr(err)
	}
	// Never serve bytes that do not match the requested CID.
	if err := storage.Verify(id, b); err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing block store")
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.Store.Has(ctx, id)), nil
}
