package attest

import (
	"bytes"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	"xdao.co/rangeproof/keys"
	"xdao.co/rangeproof/proof"
)

// Attester verifies proofs and signs receipts for the accepted ones.
type Attester struct {
	Signer keys.Signer
	// HashAlg hashes the encoded proof and the statement. Defaults to
	// sha3-256.
	HashAlg string
	Logger  logrus.FieldLogger
}

func (a *Attester) hashAlg() string {
	if a.HashAlg == "" {
		return keys.HashSHA3256
	}
	return a.HashAlg
}

func (a *Attester) logger() logrus.FieldLogger {
	if a.Logger != nil {
		return a.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Attest runs proof.Verify on p. If the proof verifies, the result is
// committed to a signed receipt; otherwise the verifier error is returned
// unchanged and nothing is signed.
func (a *Attester) Attest(p *proof.RangeProof) (*Receipt, *proof.Result, error) {
	if a == nil || a.Signer == nil {
		return nil, nil, proof.NewError(proof.KindAttestation, "RP-ATT-010", "attester has no signer")
	}
	enc, err := proof.Marshal(p)
	if err != nil {
		return nil, nil, err
	}
	res, err := proof.Verify(p)
	if err != nil {
		return nil, nil, err
	}
	pd, err := keys.Digest(a.hashAlg(), enc)
	if err != nil {
		return nil, nil, proof.WrapError(proof.KindAttestation, "RP-ATT-005", "unsupported receipt hash", err)
	}

	r := &Receipt{Statement: Statement{
		VerifierID:   VerifierID,
		ProofDigest:  pd,
		Journal:      Journal{RootHash: res.RootHash.Bytes(), Data: res.Data},
		HashAlg:      a.hashAlg(),
		SignatureAlg: a.Signer.Algorithm(),
		PublicKey:    a.Signer.PublicKey(),
	}}
	d, err := r.Statement.digest()
	if err != nil {
		return nil, nil, err
	}
	if r.Signature, err = a.Signer.Sign(d); err != nil {
		return nil, nil, proof.WrapError(proof.KindAttestation, "RP-ATT-011", "sign receipt", err)
	}
	a.logger().WithFields(logrus.Fields{
		"root":  res.RootHash.String(),
		"bytes": len(res.Data),
		"alg":   r.Statement.SignatureAlg,
	}).Info("proof attested")
	return r, res, nil
}

// VerifyReceipt checks that r is a well-formed receipt from this verifier
// and that its signature covers the statement.
//
// It does not decide whether the signer is trusted; compare
// Receipt.PublicKeyString against a pinned key for that.
func VerifyReceipt(r *Receipt) error {
	if r == nil {
		return proof.NewError(proof.KindAttestation, "RP-ATT-001", "nil receipt")
	}
	st := &r.Statement
	if st.VerifierID != VerifierID {
		return proof.Errorf(proof.KindAttestation, "RP-ATT-020", "receipt is for verifier %q", st.VerifierID)
	}
	if _, err := cid.Cast(st.Journal.RootHash); err != nil {
		return proof.WrapError(proof.KindAttestation, "RP-ATT-021", "journal root is not a CID", err)
	}
	d, err := st.digest()
	if err != nil {
		return err
	}
	if len(st.ProofDigest) != len(d) {
		return proof.NewError(proof.KindAttestation, "RP-ATT-022", "proof digest length does not match the hash algorithm")
	}
	if err := keys.Verify(st.SignatureAlg, st.PublicKey, d, r.Signature); err != nil {
		return proof.WrapError(proof.KindAttestation, "RP-ATT-023", "receipt signature invalid", err)
	}
	return nil
}

// VerifyReceiptFor runs VerifyReceipt and requires the journal to commit to
// root.
func VerifyReceiptFor(r *Receipt, root cid.Cid) error {
	if err := VerifyReceipt(r); err != nil {
		return err
	}
	if !bytes.Equal(r.Statement.Journal.RootHash, root.Bytes()) {
		return proof.Errorf(proof.KindRootMismatch, "RP-ATT-030", "receipt commits to a different root than %s", root)
	}
	return nil
}

// CheckProof reports whether r was issued for exactly p.
func CheckProof(r *Receipt, p *proof.RangeProof) error {
	enc, err := proof.Marshal(p)
	if err != nil {
		return err
	}
	d, err := keys.Digest(r.Statement.HashAlg, enc)
	if err != nil {
		return proof.WrapError(proof.KindAttestation, "RP-ATT-005", "unsupported receipt hash", err)
	}
	if !bytes.Equal(d, r.Statement.ProofDigest) {
		return proof.NewError(proof.KindAttestation, "RP-ATT-031", "receipt was issued for a different proof")
	}
	return nil
}
