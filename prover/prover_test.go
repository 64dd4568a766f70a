package prover

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/ipfs/boxo/ipld/merkledag"
	"github.com/ipfs/boxo/ipld/unixfs"
	unixfs_pb "github.com/ipfs/boxo/ipld/unixfs/pb"
	"github.com/ipfs/go-cid"
	format "github.com/ipfs/go-ipld-format"
	"github.com/multiformats/go-multihash"

	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/compliance"
	"xdao.co/rangeproof/dagbuild"
	"xdao.co/rangeproof/proof"
	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/memstore"
)

func putRaw(t *testing.T, store storage.BlockStore, data []byte) cid.Cid {
	t.Helper()
	id, err := cidutil.RawSHA256(data)
	if err != nil {
		t.Fatalf("RawSHA256: %v", err)
	}
	if err := store.Put(context.Background(), id, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return id
}

// putParent stores a CIDv1 dag-pb file node over children with the given
// UnixFS blocksizes and optional inline data.
func putParent(t *testing.T, store storage.BlockStore, sizes []uint64, inline []byte, children ...cid.Cid) cid.Cid {
	t.Helper()
	fsn := unixfs.NewFSNode(unixfs_pb.Data_File)
	if len(inline) > 0 {
		fsn.SetData(inline)
	}
	for _, s := range sizes {
		fsn.AddBlockSize(s)
	}
	payload, err := fsn.GetBytes()
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	nd := merkledag.NodeWithData(payload)
	if err := nd.SetCidBuilder(merkledag.V1CidPrefix()); err != nil {
		t.Fatalf("SetCidBuilder: %v", err)
	}
	for i, c := range children {
		var size uint64
		if i < len(sizes) {
			size = sizes[i]
		}
		if err := nd.AddRawLink("", &format.Link{Cid: c, Size: size}); err != nil {
			t.Fatalf("AddRawLink: %v", err)
		}
	}
	if err := store.Put(context.Background(), nd.Cid(), nd.RawData()); err != nil {
		t.Fatalf("Put parent: %v", err)
	}
	return nd.Cid()
}

// twoLeafFile is "abcd" ++ "efghij" under one dag-pb parent.
func twoLeafFile(t *testing.T, store storage.BlockStore) cid.Cid {
	t.Helper()
	a := putRaw(t, store, []byte("abcd"))
	b := putRaw(t, store, []byte("efghij"))
	return putParent(t, store, []uint64{4, 6}, nil, a, b)
}

func TestGenerate_TwoLeafRange(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	root := twoLeafFile(t, store)

	rp, err := New(store, Options{}).Generate(ctx, root, 2, 8)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	res, err := proof.VerifyRoot(rp, root)
	if err != nil {
		t.Fatalf("VerifyRoot: %v", err)
	}
	if string(res.Data) != "cdefgh" {
		t.Fatalf("data: got %q want %q", res.Data, "cdefgh")
	}

	want := []proof.Selector{
		{Position: 2, Offset: 2, Length: 2},
		{Position: 4, Offset: 0, Length: 4},
	}
	got := rp.SortedSelectors()
	if len(got) != len(want) {
		t.Fatalf("selectors: got %+v want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("selector %d: got %+v want %+v", i, got[i], want[i])
		}
	}
	if !rp.BranchTag.Equal(proof.TagDagPBv1) || !rp.RawTag.Equal(proof.TagRawV1) {
		t.Fatalf("tags: branch %s raw %s", rp.BranchTag, rp.RawTag)
	}
}

func TestGenerate_SingleRawLeafRoot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	leaf := []byte("wxyz")
	root := putRaw(t, store, leaf)

	rp, err := New(store, Options{}).Generate(ctx, root, 0, 4)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if rp.Root.Kind != proof.KindLeaf {
		t.Fatalf("root kind: got %s want leaf", rp.Root.Kind)
	}
	res, err := proof.Verify(rp)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.RootHash.Equal(proof.Sum(leaf, proof.TagRawV1)) {
		t.Fatalf("root hash: got %s", res.RootHash)
	}
	if string(res.Data) != "wxyz" {
		t.Fatalf("data: got %q", res.Data)
	}
}

func TestGenerate_RandomRangesMatchReader(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	content := make([]byte, 30_000)
	rng.Read(content)

	cases := map[string]dagbuild.Options{
		"V0DagPBLeaves":  {ChunkSize: 1000, MaxLinks: 4},
		"V1RawLeaves":    {ChunkSize: 777, MaxLinks: 3, RawLeaves: true, CIDVersion: 1},
		"V0RawLeaves":    {ChunkSize: 1024, MaxLinks: 5, RawLeaves: true},
		"V1DagPBLeaves":  {ChunkSize: 2048, MaxLinks: 8, CIDVersion: 1},
		"Trickle":        {ChunkSize: 500, MaxLinks: 4, Layout: dagbuild.LayoutTrickle, RawLeaves: true, CIDVersion: 1},
		"SingleLeafFile": {ChunkSize: 64 * 1024, CIDVersion: 1, RawLeaves: true},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			store := memstore.New()
			root, err := dagbuild.Import(ctx, store, bytes.NewReader(content), opts)
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			p := New(store, Options{})

			ranges := [][2]uint64{{0, uint64(len(content))}, {0, 1}, {uint64(len(content)) - 1, uint64(len(content))}}
			for i := 0; i < 25; i++ {
				s := uint64(rng.Intn(len(content)))
				e := s + uint64(rng.Intn(len(content)-int(s)+1))
				ranges = append(ranges, [2]uint64{s, e})
			}
			for _, r := range ranges {
				rp, err := p.Generate(ctx, root, r[0], r[1])
				if err != nil {
					t.Fatalf("Generate [%d,%d): %v", r[0], r[1], err)
				}
				res, err := proof.VerifyRoot(rp, root)
				if err != nil {
					t.Fatalf("VerifyRoot [%d,%d): %v", r[0], r[1], err)
				}
				if !bytes.Equal(res.Data, content[r[0]:r[1]]) {
					t.Fatalf("[%d,%d): proof data differs from content", r[0], r[1])
				}
				ref, err := dagbuild.ReadRange(ctx, store, root, r[0], r[1])
				if err != nil {
					t.Fatalf("ReadRange: %v", err)
				}
				if !bytes.Equal(res.Data, ref) {
					t.Fatalf("[%d,%d): proof data differs from the UnixFS reader", r[0], r[1])
				}
			}
		})
	}
}

func TestGenerate_EmptyRange(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	root := twoLeafFile(t, store)
	p := New(store, Options{})

	for _, at := range []uint64{0, 3, 4, 10} {
		rp, err := p.Generate(ctx, root, at, at)
		if err != nil {
			t.Fatalf("Generate [%d,%d): %v", at, at, err)
		}
		res, err := proof.VerifyRoot(rp, root)
		if err != nil {
			t.Fatalf("VerifyRoot: %v", err)
		}
		if len(res.Data) != 0 || len(rp.Selectors) != 0 {
			t.Fatalf("[%d,%d): expected no data and no selectors, got %q %v", at, at, res.Data, rp.Selectors)
		}
	}
}

func TestGenerate_RangeErrors(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	root := twoLeafFile(t, store)
	p := New(store, Options{})

	cases := []struct {
		name       string
		start, end uint64
		rule       string
	}{
		{"StartAfterEnd", 5, 4, "RP-RANGE-001"},
		{"EndPastContent", 0, 11, "RP-RANGE-002"},
		{"EmptyPastContent", 11, 11, "RP-RANGE-002"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Generate(ctx, root, tc.start, tc.end)
			if !proof.IsKind(err, proof.KindRangeOutOfBounds) {
				t.Fatalf("expected KindRangeOutOfBounds, got %v", err)
			}
			if proof.RuleID(err) != tc.rule {
				t.Fatalf("rule: got %s want %s", proof.RuleID(err), tc.rule)
			}
		})
	}
}

func TestGenerate_MissingBlocks(t *testing.T) {
	ctx := context.Background()
	full := memstore.New()
	root := twoLeafFile(t, full)

	_, err := New(memstore.New(), Options{}).Generate(ctx, root, 0, 1)
	if !proof.IsKind(err, proof.KindFetch) || !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing root: expected KindFetch wrapping ErrNotFound, got %v", err)
	}

	partial := memstore.New()
	raw, err := full.Get(ctx, root)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := partial.Put(ctx, root, raw); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err = New(partial, Options{}).Generate(ctx, root, 0, 1)
	if !proof.IsKind(err, proof.KindFetch) || !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing child: expected KindFetch wrapping ErrNotFound, got %v", err)
	}
}

func TestGenerate_LegacyBoundaries(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	root := twoLeafFile(t, store)

	rp, err := New(store, Options{Boundary: BoundaryLegacy}).Generate(ctx, root, 2, 8)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	res, err := proof.VerifyRoot(rp, root)
	if err != nil {
		t.Fatalf("VerifyRoot: %v", err)
	}
	if string(res.Data) != "bcefgh" {
		t.Fatalf("legacy data: got %q want %q", res.Data, "bcefgh")
	}
}

func TestCut(t *testing.T) {
	cases := []struct {
		mode                     BoundaryMode
		start, end, cursor, size uint64
		lo, hi                   uint64
		ok                       bool
	}{
		{BoundaryExact, 2, 8, 0, 4, 2, 4, true},
		{BoundaryExact, 2, 8, 4, 6, 0, 4, true},
		{BoundaryExact, 4, 8, 0, 4, 0, 0, false},
		{BoundaryExact, 0, 4, 4, 6, 0, 0, false},
		{BoundaryExact, 5, 5, 4, 6, 0, 0, false},
		{BoundaryExact, 0, 100, 10, 0, 0, 0, false},
		{BoundaryLegacy, 2, 8, 0, 4, 1, 3, true},
		{BoundaryLegacy, 2, 8, 4, 6, 0, 4, true},
		{BoundaryLegacy, 0, 10, 0, 4, 0, 0, false},
		{BoundaryLegacy, 0, 10, 4, 0, 0, 0, false},
		{BoundaryLegacy, 0, 2, 0, 4, 0, 0, false},
		{BoundaryLegacy, 2, 4, 0, 4, 0, 0, false},
	}
	for _, tc := range cases {
		lo, hi, ok := cut(tc.mode, tc.start, tc.end, tc.cursor, tc.size)
		if ok != tc.ok || lo != tc.lo || hi != tc.hi {
			t.Fatalf("cut(%s, [%d,%d), cursor %d, size %d) = (%d,%d,%v), want (%d,%d,%v)",
				tc.mode, tc.start, tc.end, tc.cursor, tc.size, lo, hi, ok, tc.lo, tc.hi, tc.ok)
		}
	}
}

func TestGenerate_BlockSizesSkipFetches(t *testing.T) {
	ctx := context.Background()
	content := make([]byte, 16_000)
	rand.New(rand.NewSource(3)).Read(content)
	store := memstore.New()
	root, err := dagbuild.Import(ctx, store, bytes.NewReader(content), dagbuild.Options{ChunkSize: 500, MaxLinks: 4, RawLeaves: true, CIDVersion: 1})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	start, end := uint64(15_100), uint64(15_900)

	skipping := New(store, Options{})
	tr, err := skipping.Locate(ctx, root, start, end)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	full := New(store, Options{IgnoreBlockSizes: true})
	all, err := full.Locate(ctx, root, start, end)
	if err != nil {
		t.Fatalf("Locate without blocksizes: %v", err)
	}
	if tr.Skipped == 0 || all.Skipped != 0 {
		t.Fatalf("skipped: got %d and %d", tr.Skipped, all.Skipped)
	}
	if tr.Fetched >= all.Fetched {
		t.Fatalf("fetches: with blocksizes %d, without %d", tr.Fetched, all.Fetched)
	}
	if !bytes.Equal(tr.Data(), all.Data()) || !bytes.Equal(tr.Data(), content[start:end]) {
		t.Fatalf("both walks must locate the same bytes")
	}

	before := store.Gets()
	if _, err := skipping.Generate(ctx, root, start, end); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := store.Gets() - before; got != tr.Fetched {
		t.Fatalf("Generate read %d blocks, Locate reported %d", got, tr.Fetched)
	}
}

func TestGenerate_InconsistentBlockSizes(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := putRaw(t, store, []byte("abcd"))
	b := putRaw(t, store, []byte("efghij"))
	root := putParent(t, store, []uint64{4}, nil, a, b)

	rp, err := New(store, Options{}).Generate(ctx, root, 2, 8)
	if err != nil {
		t.Fatalf("permissive Generate: %v", err)
	}
	res, err := proof.VerifyRoot(rp, root)
	if err != nil {
		t.Fatalf("VerifyRoot: %v", err)
	}
	if string(res.Data) != "cdefgh" {
		t.Fatalf("data: got %q", res.Data)
	}

	_, err = New(store, Options{Mode: compliance.Strict}).Generate(ctx, root, 2, 8)
	if proof.RuleID(err) != "RP-DEC-007" {
		t.Fatalf("strict: expected RP-DEC-007, got %v", err)
	}
}

func TestGenerate_BlockSizesDisagreeWithChildren(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := putRaw(t, store, []byte("abcd"))
	b := putRaw(t, store, []byte("efghij"))
	// Same total, wrong split: trusting it would skip "abcd" and place
	// "efghij" at offset 2.
	root := putParent(t, store, []uint64{2, 8}, nil, a, b)

	rp, err := New(store, Options{}).Generate(ctx, root, 2, 8)
	if err != nil {
		t.Fatalf("permissive Generate: %v", err)
	}
	res, err := proof.VerifyRoot(rp, root)
	if err != nil {
		t.Fatalf("VerifyRoot: %v", err)
	}
	if string(res.Data) != "cdefgh" {
		t.Fatalf("data: got %q", res.Data)
	}

	_, err = New(store, Options{Mode: compliance.Strict}).Generate(ctx, root, 2, 8)
	if proof.RuleID(err) != "RP-DEC-007" {
		t.Fatalf("strict: expected RP-DEC-007, got %v", err)
	}
}

func TestProve_ReturnsPreflightResult(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	root := twoLeafFile(t, store)

	rp, res, err := New(store, Options{}).Prove(ctx, root, 1, 9)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if res == nil || string(res.Data) != "bcdefghi" || len(rp.Selectors) == 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	_, res, err = New(store, Options{SkipPreflight: true}).Prove(ctx, root, 1, 9)
	if err != nil {
		t.Fatalf("Prove without pre-flight: %v", err)
	}
	if res != nil {
		t.Fatalf("expected no result without pre-flight, got %+v", res)
	}
}

func TestGenerate_RejectsInlineBranchData(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := putRaw(t, store, []byte("abcd"))
	root := putParent(t, store, []uint64{4}, []byte("xy"), a)

	_, err := New(store, Options{}).Generate(ctx, root, 0, 1)
	if proof.RuleID(err) != "RP-DEC-008" {
		t.Fatalf("expected RP-DEC-008, got %v", err)
	}
}

func TestGenerate_DuplicateChunks(t *testing.T) {
	ctx := context.Background()
	chunk := bytes.Repeat([]byte("0123456789"), 10)
	content := bytes.Repeat(chunk, 12)
	store := memstore.New()
	root, err := dagbuild.Import(ctx, store, bytes.NewReader(content), dagbuild.Options{ChunkSize: int64(len(chunk)), MaxLinks: 5, RawLeaves: true, CIDVersion: 1})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	for _, r := range [][2]uint64{{150, 470}, {0, 1200}, {95, 105}} {
		rp, err := New(store, Options{}).Generate(ctx, root, r[0], r[1])
		if err != nil {
			t.Fatalf("Generate [%d,%d): %v", r[0], r[1], err)
		}
		res, err := proof.VerifyRoot(rp, root)
		if err != nil {
			t.Fatalf("VerifyRoot: %v", err)
		}
		if !bytes.Equal(res.Data, content[r[0]:r[1]]) {
			t.Fatalf("[%d,%d): data mismatch", r[0], r[1])
		}
	}
}

func TestGenerate_TamperedProofFailsRoot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	root := twoLeafFile(t, store)
	rp, err := New(store, Options{}).Generate(ctx, root, 1, 9)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// Children[2] is the literal right of the first leaf hash; any byte of
	// it is covered by the root hash.
	rp.Root.Children[2].Data[0] ^= 0xff
	if _, err := proof.VerifyRoot(rp, root); !proof.IsKind(err, proof.KindRootMismatch) {
		t.Fatalf("expected KindRootMismatch, got %v", err)
	}
}

func TestGenerate_EncodedProofVerifies(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	root := twoLeafFile(t, store)
	rp, err := New(store, Options{}).Generate(ctx, root, 3, 7)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := proof.Marshal(rp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := proof.Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	res, err := proof.VerifyRoot(decoded, root)
	if err != nil {
		t.Fatalf("VerifyRoot: %v", err)
	}
	if string(res.Data) != "defg" {
		t.Fatalf("data: got %q", res.Data)
	}
}

func TestGenerate_UnsupportedCodec(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	data := []byte{0xa0}
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	id := cid.NewCidV1(cid.DagCBOR, mh)
	if err := store.Put(ctx, id, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err = New(store, Options{}).Generate(ctx, id, 0, 0)
	if !proof.IsKind(err, proof.KindCodec) {
		t.Fatalf("expected KindCodec, got %v", err)
	}
}

func TestGenerateRangeProof_ParsesRoot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	root := twoLeafFile(t, store)

	rp, err := GenerateRangeProof(ctx, store, "/ipfs/"+root.String(), 0, 10)
	if err != nil {
		t.Fatalf("GenerateRangeProof: %v", err)
	}
	res, err := proof.VerifyRoot(rp, root)
	if err != nil {
		t.Fatalf("VerifyRoot: %v", err)
	}
	if string(res.Data) != "abcdefghij" {
		t.Fatalf("data: got %q", res.Data)
	}

	if _, err := GenerateRangeProof(ctx, store, "not-a-cid", 0, 1); !proof.IsKind(err, proof.KindCodec) {
		t.Fatalf("expected KindCodec for a bad root, got %v", err)
	}
}

func TestProver_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	content := make([]byte, 8_000)
	rand.New(rand.NewSource(11)).Read(content)
	store := memstore.New()
	root, err := dagbuild.Import(ctx, store, bytes.NewReader(content), dagbuild.Options{ChunkSize: 300, MaxLinks: 3})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	p := New(store, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := uint64(i * 400)
			rp, err := p.Generate(ctx, root, s, s+350)
			if err != nil {
				errs <- err
				return
			}
			res, err := proof.VerifyRoot(rp, root)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(res.Data, content[s:s+350]) {
				errs <- errors.New("data mismatch")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Generate: %v", err)
	}
}
