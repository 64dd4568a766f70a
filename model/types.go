package model

// GenerateProofRequest asks for a proof of bytes [Start, End) of the file
// whose root CID is Hash.
type GenerateProofRequest struct {
	Hash  string `json:"hash"`
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	// Attest requests a signed verification receipt alongside the proof.
	Attest bool `json:"attest,omitempty"`
}

// GenerateProofResponse carries the encoded proof and the bytes it selects.
//
// JSON note: byte fields are encoded as base64 by encoding/json.
type GenerateProofResponse struct {
	Root      string `json:"root"`
	Start     uint64 `json:"start"`
	End       uint64 `json:"end"`
	Proof     []byte `json:"proof"`
	Data      []byte `json:"data"`
	Selectors int    `json:"selectors"`
	Receipt   []byte `json:"receipt,omitempty"`
}

// VerifyRequest submits an encoded proof. When Root is set the recomputed
// root must match it.
type VerifyRequest struct {
	Proof []byte `json:"proof"`
	Root  string `json:"root,omitempty"`
}

type VerifyResponse struct {
	RootHash string `json:"rootHash"`
	Data     []byte `json:"data"`
}

type Health struct {
	Status   string `json:"status"`
	Backends int    `json:"backends,omitempty"`
}
