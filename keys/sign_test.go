package keys

import (
	"bytes"
	"testing"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

func testSeed(b byte) []byte {
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = b + byte(i)
	}
	return seed
}

func TestSigners_SignAndVerify(t *testing.T) {
	for _, alg := range []string{AlgEd25519, AlgDilithium3} {
		t.Run(alg, func(t *testing.T) {
			s, err := NewSigner(alg, testSeed(1))
			if err != nil {
				t.Fatalf("NewSigner: %v", err)
			}
			if s.Algorithm() != alg {
				t.Fatalf("Algorithm: got %q", s.Algorithm())
			}
			digest, err := Digest(HashSHA3256, []byte("hello"))
			if err != nil {
				t.Fatalf("Digest: %v", err)
			}
			sig, err := s.Sign(digest)
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			if err := Verify(alg, s.PublicKey(), digest, sig); err != nil {
				t.Fatalf("Verify: %v", err)
			}

			other, err := Digest(HashSHA3256, []byte("hellO"))
			if err != nil {
				t.Fatalf("Digest: %v", err)
			}
			if err := Verify(alg, s.PublicKey(), other, sig); err == nil {
				t.Fatalf("signature verified over a different digest")
			}
		})
	}
}

func TestNewSigner_Deterministic(t *testing.T) {
	a, err := NewSigner(AlgDilithium3, testSeed(9))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	b, err := NewSigner(AlgDilithium3, testSeed(9))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if !bytes.Equal(a.PublicKey(), b.PublicKey()) {
		t.Fatalf("same seed produced different public keys")
	}
	if len(a.PublicKey()) != mode3.PublicKeySize {
		t.Fatalf("public key size: got %d", len(a.PublicKey()))
	}
}

func TestNewSigner_Errors(t *testing.T) {
	if _, err := NewSigner(AlgEd25519, []byte("short")); err == nil {
		t.Fatalf("expected error for short seed")
	}
	if _, err := NewSigner("rsa", testSeed(0)); err == nil {
		t.Fatalf("expected error for unknown algorithm")
	}
}

func TestDigest(t *testing.T) {
	sizes := map[string]int{HashSHA256: 32, HashSHA512: 64, HashSHA3256: 32}
	for alg, n := range sizes {
		d, err := Digest(alg, []byte("x"))
		if err != nil {
			t.Fatalf("Digest(%s): %v", alg, err)
		}
		if len(d) != n {
			t.Fatalf("Digest(%s): got %d bytes want %d", alg, len(d), n)
		}
	}
	if _, err := Digest("md5", nil); err == nil {
		t.Fatalf("expected error for md5")
	}
}
