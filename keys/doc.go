// Package keys provides the signing keys used to attest range proof
// verifications.
//
// Keys are 32 byte seeds. The same seed can drive an Ed25519 or a
// Dilithium3 (post-quantum) signer; public keys travel as "<alg>:<base64>"
// strings.
//
// Stable:
//   - Pure, deterministic primitives: digests, seed derivation, public key
//     strings, signing and verification.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore and related functions). It is a
//     local-first utility, not part of the receipt format.
package keys
