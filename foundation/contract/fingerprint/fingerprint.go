// Package fingerprint computes content identities for compiled contract
// bytecode that are stable across the compiler's metadata trailer.
//
// The Solidity compiler appends a CBOR encoded metadata block to the end of
// the runtime code, followed by a two byte big-endian length of that block.
// The trailer carries build provenance only, so two builds of the same source
// with the same optimizer settings differ only in it.
package fingerprint

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// lengthSize is the number of bytes holding the trailer length.
const lengthSize = 2

// Fingerprint represents the identity of a piece of bytecode.
type Fingerprint struct {
	RawHash      common.Hash `json:"rawHash"`
	StrippedHash common.Hash `json:"strippedHash"`
	ByteSize     uint64      `json:"byteSize"`
}

// Compute calculates the fingerprint for the specified bytecode. It never
// fails; bytecode without a fitting trailer is hashed as a whole for both
// hashes.
func Compute(code []byte) Fingerprint {
	content, _ := Strip(code)

	return Fingerprint{
		RawHash:      crypto.Keccak256Hash(code),
		StrippedHash: crypto.Keccak256Hash(content),
		ByteSize:     uint64(len(code)),
	}
}

// Strip splits the bytecode into the executable content and the metadata
// trailer, including its two byte length. When the declared length does not
// fit inside the bytecode the code is considered to have no trailer and is
// returned whole with a nil trailer.
func Strip(code []byte) (content []byte, trailer []byte) {
	n, ok := trailerLength(code)
	if !ok {
		return code, nil
	}

	cut := len(code) - lengthSize - n
	return code[:cut], code[cut:]
}

// HasTrailer reports whether the bytecode ends in a length suffix that fits
// inside the code.
func HasTrailer(code []byte) bool {
	_, ok := trailerLength(code)
	return ok
}

// Equal reports whether two fingerprints describe the same bytes.
func (fp Fingerprint) Equal(other Fingerprint) bool {
	return fp.ByteSize == other.ByteSize && fp.RawHash == other.RawHash
}

// Stripped reports whether a trailer was removed when the stripped hash was
// calculated.
func (fp Fingerprint) Stripped() bool {
	return fp.RawHash != fp.StrippedHash
}

// =============================================================================

// trailerLength reads the declared size of the metadata block.
func trailerLength(code []byte) (int, bool) {
	if len(code) < lengthSize {
		return 0, false
	}

	n := int(binary.BigEndian.Uint16(code[len(code)-lengthSize:]))
	if lengthSize+n > len(code) {
		return 0, false
	}

	return n, true
}
