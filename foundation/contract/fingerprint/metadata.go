package fingerprint

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fxamacker/cbor/v2"
)

// Metadata represents the decoded content of a compiler metadata trailer.
type Metadata struct {
	IPFS         string `json:"ipfs,omitempty"`
	Swarm        string `json:"swarm,omitempty"`
	Compiler     string `json:"compiler,omitempty"`
	Experimental bool   `json:"experimental,omitempty"`
}

// cborMetadata matches the map the Solidity compiler writes.
type cborMetadata struct {
	IPFS         []byte          `cbor:"ipfs"`
	Bzzr0        []byte          `cbor:"bzzr0"`
	Bzzr1        []byte          `cbor:"bzzr1"`
	Solc         cbor.RawMessage `cbor:"solc"`
	Experimental bool            `cbor:"experimental"`
}

// DecodeMetadata decodes the trailer returned by Strip. The trailer is only
// informational; hashing never depends on it decoding.
func DecodeMetadata(trailer []byte) (Metadata, error) {
	if len(trailer) < lengthSize {
		return Metadata{}, errors.New("no metadata trailer")
	}

	var raw cborMetadata
	if err := cbor.Unmarshal(trailer[:len(trailer)-lengthSize], &raw); err != nil {
		return Metadata{}, fmt.Errorf("decoding metadata: %w", err)
	}

	md := Metadata{
		Experimental: raw.Experimental,
	}

	if len(raw.IPFS) > 0 {
		md.IPFS = hexutil.Encode(raw.IPFS)
	}

	switch {
	case len(raw.Bzzr1) > 0:
		md.Swarm = hexutil.Encode(raw.Bzzr1)
	case len(raw.Bzzr0) > 0:
		md.Swarm = hexutil.Encode(raw.Bzzr0)
	}

	if len(raw.Solc) > 0 {
		var v any
		if err := cbor.Unmarshal(raw.Solc, &v); err != nil {
			return Metadata{}, fmt.Errorf("decoding compiler version: %w", err)
		}

		// Release builds store three version bytes, prereleases a string.
		switch ver := v.(type) {
		case []byte:
			if len(ver) == 3 {
				md.Compiler = fmt.Sprintf("%d.%d.%d", ver[0], ver[1], ver[2])
			}
		case string:
			md.Compiler = ver
		}
	}

	return md, nil
}
