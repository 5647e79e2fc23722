package sweep

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/contract/fingerprint"
	"github.com/ardanlabs/bytecodelab/foundation/contract/merkle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Failure records a variant that was skipped.
type Failure struct {
	Prefix string `json:"prefix"`
	Reason string `json:"reason"`
}

// Entry records one persisted artifact in the sweep manifest. The hashes are
// taken over the creation bytecode.
type Entry struct {
	Prefix       string      `json:"prefix"`
	Contract     string      `json:"contract"`
	Size         uint64      `json:"size"`
	RawHash      common.Hash `json:"raw_hash"`
	StrippedHash common.Hash `json:"stripped_hash"`
}

func newEntry(prefix string, a artifact.Artifact) Entry {
	fp := fingerprint.Compute(a.Bytecode)

	return Entry{
		Prefix:       prefix,
		Contract:     a.Contract,
		Size:         fp.ByteSize,
		RawHash:      fp.RawHash,
		StrippedHash: fp.StrippedHash,
	}
}

// Leaf returns the manifest leaf hash of the entry.
func (e Entry) Leaf() common.Hash {
	return crypto.Keccak256Hash([]byte(e.Prefix), []byte{0}, []byte(e.Contract), e.RawHash.Bytes())
}

// Report summarizes a sweep.
type Report struct {
	RunID        string      `json:"run_id"`
	Started      time.Time   `json:"started"`
	Finished     time.Time   `json:"finished"`
	Total        int         `json:"total"`
	Persisted    []string    `json:"persisted"`
	Failed       []Failure   `json:"failed"`
	Manifest     []Entry     `json:"manifest"`
	ManifestRoot common.Hash `json:"manifest_root"`
}

// Proof returns the merkle inclusion proof of the artifact in the manifest.
func (r Report) Proof(prefix string, contract string) ([]merkle.Step, error) {
	tree, err := manifestTree(r.Manifest)
	if err != nil {
		return nil, err
	}

	for _, e := range r.Manifest {
		if e.Prefix == prefix && e.Contract == contract {
			return tree.Proof(e.Leaf())
		}
	}

	return nil, fmt.Errorf("%s/%s not in manifest", prefix, contract)
}

// Write stores the report as indented JSON.
func (r Report) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func manifestTree(entries []Entry) (*merkle.Tree, error) {
	leaves := make([]common.Hash, len(entries))
	for i, e := range entries {
		leaves[i] = e.Leaf()
	}

	return merkle.NewTree(leaves)
}

func manifestRoot(entries []Entry) (common.Hash, error) {
	tree, err := manifestTree(entries)
	if err != nil {
		return common.Hash{}, err
	}

	return tree.Root(), nil
}
