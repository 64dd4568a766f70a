// Package attest runs the proof verifier as an attested execution and
// produces signed receipts that commit to its journal.
//
// A receipt states: the verifier identified by VerifierID accepted the proof
// whose digest is ProofDigest, and produced Journal. The statement is encoded
// as deterministic CBOR, hashed with HashAlg and signed.
package attest

import (
	"bytes"

	"github.com/fxamacker/cbor/v2"

	"xdao.co/rangeproof/keys"
	"xdao.co/rangeproof/proof"
)

// VerifierID identifies the verification program and its proof encoding.
const VerifierID = "xdao.co/rangeproof/verify@v1"

// Journal is the committed output of a verification.
type Journal struct {
	// RootHash is the recomputed root, tag ++ digest (the root CID bytes).
	RootHash []byte `cbor:"1,keyasint"`
	Data     []byte `cbor:"2,keyasint"`
}

// Statement is the signed part of a receipt.
type Statement struct {
	VerifierID   string  `cbor:"1,keyasint"`
	ProofDigest  []byte  `cbor:"2,keyasint"`
	Journal      Journal `cbor:"3,keyasint"`
	HashAlg      string  `cbor:"4,keyasint"`
	SignatureAlg string  `cbor:"5,keyasint"`
	PublicKey    []byte  `cbor:"6,keyasint"`
}

type Receipt struct {
	Statement Statement `cbor:"1,keyasint"`
	Signature []byte    `cbor:"2,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// MarshalReceipt returns the deterministic CBOR encoding of r.
func MarshalReceipt(r *Receipt) ([]byte, error) {
	if r == nil {
		return nil, proof.NewError(proof.KindAttestation, "RP-ATT-001", "nil receipt")
	}
	b, err := encMode.Marshal(r)
	if err != nil {
		return nil, proof.WrapError(proof.KindAttestation, "RP-ATT-002", "encode receipt", err)
	}
	return b, nil
}

// UnmarshalReceipt decodes a receipt and rejects any encoding that
// MarshalReceipt would not have produced.
func UnmarshalReceipt(b []byte) (*Receipt, error) {
	var r Receipt
	if err := decMode.Unmarshal(b, &r); err != nil {
		return nil, proof.WrapError(proof.KindAttestation, "RP-ATT-003", "decode receipt", err)
	}
	again, err := MarshalReceipt(&r)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(again, b) {
		return nil, proof.NewError(proof.KindAttestation, "RP-ATT-004", "non-canonical receipt encoding")
	}
	return &r, nil
}

func (s *Statement) digest() ([]byte, error) {
	msg, err := encMode.Marshal(s)
	if err != nil {
		return nil, proof.WrapError(proof.KindAttestation, "RP-ATT-002", "encode statement", err)
	}
	d, err := keys.Digest(s.HashAlg, msg)
	if err != nil {
		return nil, proof.WrapError(proof.KindAttestation, "RP-ATT-005", "unsupported receipt hash", err)
	}
	return d, nil
}

// PublicKeyString returns the signer key as "<alg>:<base64>".
func (r *Receipt) PublicKeyString() (string, error) {
	s, err := keys.EncodePublicKey(r.Statement.SignatureAlg, r.Statement.PublicKey)
	if err != nil {
		return "", proof.WrapError(proof.KindAttestation, "RP-ATT-006", "invalid receipt public key", err)
	}
	return s, nil
}
