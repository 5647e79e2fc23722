package fingerprint_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/ardanlabs/bytecodelab/foundation/contract/fingerprint"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// runtime is a small piece of code ending in the INVALID opcode the way
// compiler output does before the trailer.
var runtime = []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x34, 0x80, 0x15, 0x60, 0x0f, 0x57, 0x5f, 0x80, 0xfd, 0x5b, 0x50, 0x56, 0xfe}

func trailer(t *testing.T, fields map[string]any) []byte {
	data, err := cbor.Marshal(fields)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to encode the metadata: %v", failed, err)
	}

	var size [2]byte
	binary.BigEndian.PutUint16(size[:], uint16(len(data)))

	return append(data, size[:]...)
}

func build(code []byte, trailer []byte) []byte {
	out := make([]byte, 0, len(code)+len(trailer))
	out = append(out, code...)
	return append(out, trailer...)
}

// =============================================================================

func Test_ConcreteTrailer(t *testing.T) {
	t.Log("Given the need to strip a trailer declared in the last two bytes.")
	{
		t.Logf("\tTest 0:\tWhen handling 100 bytes ending in 0x0033.")
		{
			code := make([]byte, 100)
			for i := range code {
				code[i] = byte(i + 1)
			}
			code[98] = 0x00
			code[99] = 0x33

			content, tr := fingerprint.Strip(code)
			if len(content) != 47 {
				t.Fatalf("\t%s\tTest 0:\tShould get 47 content bytes, got %d.", failed, len(content))
			}
			t.Logf("\t%s\tTest 0:\tShould get 47 content bytes.", success)

			if len(tr) != 53 {
				t.Fatalf("\t%s\tTest 0:\tShould get a 53 byte trailer, got %d.", failed, len(tr))
			}
			t.Logf("\t%s\tTest 0:\tShould get a 53 byte trailer.", success)

			fp := fingerprint.Compute(code)
			if fp.ByteSize != 100 {
				t.Fatalf("\t%s\tTest 0:\tShould report 100 bytes, got %d.", failed, fp.ByteSize)
			}
			t.Logf("\t%s\tTest 0:\tShould report 100 bytes.", success)

			if fp.StrippedHash != crypto.Keccak256Hash(code[:47]) {
				t.Fatalf("\t%s\tTest 0:\tShould hash the first 47 bytes.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould hash the first 47 bytes.", success)

			if fp.RawHash != crypto.Keccak256Hash(code) {
				t.Fatalf("\t%s\tTest 0:\tShould hash all bytes for the raw hash.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould hash all bytes for the raw hash.", success)
		}
	}
}

func Test_NoTrailer(t *testing.T) {
	type table struct {
		name string
		code []byte
	}

	tt := []table{
		{name: "empty", code: []byte{}},
		{name: "single", code: []byte{0x01}},
		{name: "too-long", code: []byte{0x60, 0x80, 0xff, 0xff}},
		{name: "just-over", code: []byte{0x01, 0x02, 0x00, 0x01}[:3]},
	}

	t.Log("Given the need to treat code without a fitting trailer as a whole.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling %s code.", testID, tst.name)
			{
				f := func(t *testing.T) {
					content, tr := fingerprint.Strip(tst.code)
					if !bytes.Equal(content, tst.code) || tr != nil {
						t.Fatalf("\t%s\tTest %d:\tShould return the code unchanged.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould return the code unchanged.", success, testID)

					fp := fingerprint.Compute(tst.code)
					if fp.RawHash != fp.StrippedHash {
						t.Fatalf("\t%s\tTest %d:\tShould have equal raw and stripped hashes.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould have equal raw and stripped hashes.", success, testID)

					if fp.Stripped() {
						t.Fatalf("\t%s\tTest %d:\tShould not report a stripped trailer.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould not report a stripped trailer.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_MetadataInvariance(t *testing.T) {
	t.Log("Given two builds that differ only in their metadata trailer.")
	{
		t.Logf("\tTest 0:\tWhen fingerprinting an ipfs and a bare build.")
		{
			ipfs := bytes.Repeat([]byte{0x12}, 34)
			embedded := build(runtime, trailer(t, map[string]any{"ipfs": ipfs, "solc": []byte{0, 8, 20}}))
			stripped := build(runtime, trailer(t, map[string]any{"solc": []byte{0, 8, 20}}))

			a := fingerprint.Compute(embedded)
			b := fingerprint.Compute(stripped)

			if a.StrippedHash != b.StrippedHash {
				t.Fatalf("\t%s\tTest 0:\tShould have equal stripped hashes.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have equal stripped hashes.", success)

			if a.RawHash == b.RawHash {
				t.Fatalf("\t%s\tTest 0:\tShould have different raw hashes.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have different raw hashes.", success)

			if a.StrippedHash != crypto.Keccak256Hash(runtime) {
				t.Fatalf("\t%s\tTest 0:\tShould hash only the runtime code.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould hash only the runtime code.", success)

			if a.Equal(b) {
				t.Fatalf("\t%s\tTest 0:\tShould not be equal fingerprints.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not be equal fingerprints.", success)
		}
	}
}

func Test_StripIdempotent(t *testing.T) {
	t.Log("Given the need to strip compiler output more than once.")
	{
		t.Logf("\tTest 0:\tWhen stripping an already stripped image.")
		{
			code := build(runtime, trailer(t, map[string]any{"solc": []byte{0, 8, 20}}))

			once, _ := fingerprint.Strip(code)
			twice, tr := fingerprint.Strip(once)

			if !bytes.Equal(once, twice) || tr != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be a no-op the second time.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be a no-op the second time.", success)

			if len(once) > len(code) {
				t.Fatalf("\t%s\tTest 0:\tShould never grow the code.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould never grow the code.", success)

			if fingerprint.HasTrailer(once) {
				t.Fatalf("\t%s\tTest 0:\tShould not detect a trailer after stripping.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not detect a trailer after stripping.", success)
		}
	}
}

func Test_DecodeMetadata(t *testing.T) {
	t.Log("Given the need to read the provenance stored in a trailer.")
	{
		t.Logf("\tTest 0:\tWhen decoding an ipfs trailer.")
		{
			ipfs := bytes.Repeat([]byte{0xab}, 34)
			code := build(runtime, trailer(t, map[string]any{"ipfs": ipfs, "solc": []byte{0, 8, 20}}))

			_, tr := fingerprint.Strip(code)
			md, err := fingerprint.DecodeMetadata(tr)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to decode the trailer: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to decode the trailer.", success)

			if md.Compiler != "0.8.20" {
				t.Fatalf("\t%s\tTest 0:\tShould get compiler 0.8.20, got %q.", failed, md.Compiler)
			}
			t.Logf("\t%s\tTest 0:\tShould get compiler 0.8.20.", success)

			if md.IPFS == "" {
				t.Fatalf("\t%s\tTest 0:\tShould get the ipfs hash.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get the ipfs hash.", success)
		}

		t.Logf("\tTest 1:\tWhen decoding a missing trailer.")
		{
			if _, err := fingerprint.DecodeMetadata(nil); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould fail without a trailer.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould fail without a trailer.", success)
		}
	}
}

func Test_ComputeAll(t *testing.T) {
	t.Log("Given the need to fingerprint many images in parallel.")
	{
		t.Logf("\tTest 0:\tWhen handling three images with two workers.")
		{
			codes := map[string][]byte{
				"a": runtime,
				"b": build(runtime, trailer(t, map[string]any{"solc": []byte{0, 8, 20}})),
				"c": {0x00},
			}

			fps, err := fingerprint.ComputeAll(context.Background(), codes, 2)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to compute: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to compute.", success)

			for name, code := range codes {
				if fps[name] != fingerprint.Compute(code) {
					t.Fatalf("\t%s\tTest 0:\tShould match the sequential result for %s.", failed, name)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould match the sequential results.", success)
		}
	}
}
