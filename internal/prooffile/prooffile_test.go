package prooffile

import (
	"bytes"
	"path/filepath"
	"testing"

	"xdao.co/rangeproof/proof"
)

func sample() *proof.RangeProof {
	data := bytes.Repeat([]byte("range proof "), 200)
	return &proof.RangeProof{
		BranchTag: proof.TagDagPBv1,
		RawTag:    proof.TagRawV1,
		Root:      proof.Leaf(data),
		Selectors: map[uint64]proof.Selector{0: {Position: 0, Offset: 6, Length: 100}},
	}
}

func TestFile_RoundTrip(t *testing.T) {
	want, err := proof.Verify(sample())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	dir := t.TempDir()
	for _, name := range []string{"p.proof", "p.proof.zst"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(path, sample()); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
		p, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", name, err)
		}
		got, err := proof.Verify(p)
		if err != nil {
			t.Fatalf("Verify(%s): %v", name, err)
		}
		if !got.RootHash.Equal(want.RootHash) || !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("%s: decoded proof verifies differently", name)
		}
	}
}

func TestEncode_CompressesRepetitiveProofs(t *testing.T) {
	plain, err := Encode(sample(), false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	packed, err := Encode(sample(), true)
	if err != nil {
		t.Fatalf("Encode compressed: %v", err)
	}
	if !bytes.HasPrefix(packed, zstdMagic) || len(packed) >= len(plain) {
		t.Fatalf("expected a smaller zstd frame: plain %d, compressed %d", len(plain), len(packed))
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a proof")); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Decode(append(append([]byte(nil), zstdMagic...), 0x01, 0x02)); err == nil {
		t.Fatalf("expected error for a broken zstd frame")
	}
}
