package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// EncodePublicKey formats pub as "<alg>:<base64>".
func EncodePublicKey(alg string, pub []byte) (string, error) {
	if err := checkPublicKey(alg, pub); err != nil {
		return "", err
	}
	return alg + ":" + base64.StdEncoding.EncodeToString(pub), nil
}

// ParsePublicKey is the inverse of EncodePublicKey. Unpadded base64 is
// accepted too.
func ParsePublicKey(s string) (alg string, pub []byte, err error) {
	alg, enc, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return "", nil, fmt.Errorf("public key %q is not <alg>:<base64>", s)
	}
	pub, err = base64.StdEncoding.DecodeString(enc)
	if err != nil {
		if pub, err = base64.RawStdEncoding.DecodeString(enc); err != nil {
			return "", nil, fmt.Errorf("invalid public key base64: %w", err)
		}
	}
	if err := checkPublicKey(alg, pub); err != nil {
		return "", nil, err
	}
	return alg, pub, nil
}

func checkPublicKey(alg string, pub []byte) error {
	switch alg {
	case AlgEd25519:
		if l := len(pub); l != ed25519.PublicKeySize {
			return fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
		}
	case AlgDilithium3:
		if l := len(pub); l != mode3.PublicKeySize {
			return fmt.Errorf("dilithium3 public key must be %d bytes, got %d", mode3.PublicKeySize, l)
		}
	default:
		return fmt.Errorf("unsupported signature algorithm: %q", alg)
	}
	return nil
}
