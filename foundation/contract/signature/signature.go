// Package signature provides support for attesting that a specific bytecode
// image was reviewed by a trusted auditor. The keccak256 hash of the code is
// signed directly with no message prefix, matching what the on-chain
// ecrecover based auditor contract expects.
package signature

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Ethereum tooling hands out recovery ids with 27 added. Both forms are
// accepted on input; records always store the raw 0 or 1.
const legacyOffset = 27

// uncompressedPrefix marks a 65 byte uncompressed secp256k1 public key.
const uncompressedPrefix = 0x04

// Record represents an attestation binding a signer to a bytecode hash.
type Record struct {
	SubjectHash     common.Hash   `json:"subjectHash"`
	R               common.Hash   `json:"r"`
	S               common.Hash   `json:"s"`
	V               uint8         `json:"v"`
	SignerPublicKey hexutil.Bytes `json:"signerPublicKey"`
}

// =============================================================================

// Digest returns the hash that is signed for the specified bytecode.
func Digest(code []byte) common.Hash {
	return crypto.Keccak256Hash(code)
}

// Sign uses the specified private key to attest the bytecode.
func Sign(code []byte, privateKey *ecdsa.PrivateKey) (Record, error) {
	digest := Digest(code)

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(digest.Bytes(), privateKey)
	if err != nil {
		return Record{}, err
	}

	// Check the public key extracted from the digest and signature.
	publicKey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return Record{}, err
	}

	if crypto.PubkeyToAddress(*publicKey) != crypto.PubkeyToAddress(privateKey.PublicKey) {
		return Record{}, errors.New("signature does not recover the signer")
	}

	r, s, v := FromSignatureBytes(sig)

	rec := Record{
		SubjectHash:     digest,
		R:               r,
		S:               s,
		V:               v,
		SignerPublicKey: PublicKeyBytes(&privateKey.PublicKey),
	}

	return rec, nil
}

// Verify reports whether the record attests the specified bytecode and was
// produced by the trusted public key. The trusted key is accepted in the
// 64 byte form stored by the auditor contract or the 65 byte uncompressed
// form. Any malformed input results in false.
func Verify(code []byte, rec Record, trusted []byte) bool {
	digest := Digest(code)
	if rec.SubjectHash != digest {
		return false
	}

	want, err := Address(trusted)
	if err != nil {
		return false
	}

	got, err := Recover(digest, rec)
	if err != nil {
		return false
	}

	return got == want
}

// Recover extracts the address of the account that signed the digest.
func Recover(digest common.Hash, rec Record) (common.Address, error) {
	v, ok := recoveryID(rec.V)
	if !ok {
		return common.Address{}, errors.New("invalid recovery id")
	}

	r := new(big.Int).SetBytes(rec.R.Bytes())
	s := new(big.Int).SetBytes(rec.S.Bytes())

	// Zero values and values over the curve order are rejected. High s
	// values are accepted as the ecrecover precompile does.
	if !crypto.ValidateSignatureValues(v, r, s, false) {
		return common.Address{}, errors.New("invalid signature values")
	}

	publicKey, err := crypto.SigToPub(digest.Bytes(), ToSignatureBytes(rec.R, rec.S, v))
	if err != nil {
		return common.Address{}, err
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// =============================================================================

// ToSignatureBytes converts the r, s, v values into the 65 byte [R|S|V]
// form used by go-ethereum.
func ToSignatureBytes(r, s common.Hash, v uint8) []byte {
	sig := make([]byte, crypto.SignatureLength)

	copy(sig[:32], r.Bytes())
	copy(sig[32:64], s.Bytes())
	sig[crypto.RecoveryIDOffset] = v

	return sig
}

// FromSignatureBytes converts a 65 byte [R|S|V] signature into its parts.
// The recovery id is normalized to 0 or 1 when it carries the legacy offset.
func FromSignatureBytes(sig []byte) (r, s common.Hash, v uint8) {
	r = common.BytesToHash(sig[:32])
	s = common.BytesToHash(sig[32:64])
	v = sig[crypto.RecoveryIDOffset]

	if v >= legacyOffset {
		v -= legacyOffset
	}

	return r, s, v
}

// ParseSignature converts a signature of exactly 65 bytes into a record for
// the specified subject hash. The signer key is left empty.
func ParseSignature(subject common.Hash, sig []byte) (Record, error) {
	if len(sig) != crypto.SignatureLength {
		return Record{}, errors.New("invalid signature length")
	}

	r, s, v := FromSignatureBytes(sig)

	rec := Record{
		SubjectHash: subject,
		R:           r,
		S:           s,
		V:           v,
	}

	return rec, nil
}

// Bytes returns the 65 byte signature with the legacy recovery id the
// on-chain ecrecover precompile expects.
func (rec Record) Bytes() []byte {
	return ToSignatureBytes(rec.R, rec.S, rec.V+legacyOffset)
}

// String returns the signature as a hex string.
func (rec Record) String() string {
	return hexutil.Encode(rec.Bytes())
}

// =============================================================================

// PublicKeyBytes returns the 64 byte public key, the uncompressed form
// without the 0x04 prefix.
func PublicKeyBytes(publicKey *ecdsa.PublicKey) []byte {
	return crypto.FromECDSAPub(publicKey)[1:]
}

// ParsePublicKey accepts a 64 byte or 65 byte uncompressed public key.
func ParsePublicKey(key []byte) (*ecdsa.PublicKey, error) {
	switch len(key) {
	case 64:
		key = append([]byte{uncompressedPrefix}, key...)
	case 65:
		if key[0] != uncompressedPrefix {
			return nil, errors.New("public key is not uncompressed")
		}
	default:
		return nil, errors.New("invalid public key length")
	}

	return crypto.UnmarshalPubkey(key)
}

// Address returns the account address for the public key.
func Address(key []byte) (common.Address, error) {
	publicKey, err := ParsePublicKey(key)
	if err != nil {
		return common.Address{}, err
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// SameKey reports whether two encodings describe the same public key.
func SameKey(a, b []byte) bool {
	ka, err := ParsePublicKey(a)
	if err != nil {
		return false
	}

	kb, err := ParsePublicKey(b)
	if err != nil {
		return false
	}

	return bytes.Equal(crypto.FromECDSAPub(ka), crypto.FromECDSAPub(kb))
}

// recoveryID normalizes the recovery id into 0 or 1.
func recoveryID(v uint8) (byte, bool) {
	if v >= legacyOffset {
		v -= legacyOffset
	}

	if v != 0 && v != 1 {
		return 0, false
	}

	return v, true
}
