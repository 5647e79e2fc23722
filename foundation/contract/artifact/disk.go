package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ardanlabs/bytecodelab/foundation/validate"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const fileExt = ".json"

// descriptor is the on disk form of an artifact. Compiler specific fields
// beyond these are ignored when loading.
type descriptor struct {
	ContractName     string          `json:"contractName,omitempty"`
	ABI              json.RawMessage `json:"abi" validate:"required"`
	Bytecode         string          `json:"bytecode" validate:"required,startswith=0x,hexadecimal"`
	DeployedBytecode string          `json:"deployedBytecode,omitempty" validate:"omitempty,startswith=0x"`
}

// Disk represents the implementation for reading and storing artifacts on
// disk in a folder per prefix and a file per contract.
type Disk struct {
	root string
}

// NewDisk constructs a Disk value for use.
func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}

	return &Disk{root: root}, nil
}

// Root returns the folder the artifacts are stored in.
func (d *Disk) Root() string {
	return d.root
}

// Save writes the artifact under the prefix. The file is written to a
// temporary name first and renamed so a reader never sees a partial file.
func (d *Disk) Save(prefix string, a Artifact) error {
	if err := checkName(prefix); err != nil {
		return err
	}
	if err := checkName(a.Contract); err != nil {
		return err
	}

	desc := descriptor{
		ContractName: a.Contract,
		ABI:          a.ABI,
		Bytecode:     hexutil.Encode(a.Bytecode),
	}
	if len(a.DeployedBytecode) > 0 {
		desc.DeployedBytecode = hexutil.Encode(a.DeployedBytecode)
	}

	// Marshal the artifact for writing to disk in a human readable format.
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Join(d.root, prefix)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+a.Contract+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), d.path(prefix, a.Contract))
}

// Remove deletes the artifact stored for the prefix and contract, and the
// prefix folder once it holds no more artifacts. Removing an artifact that
// does not exist is not an error.
func (d *Disk) Remove(prefix string, contract string) error {
	if err := checkName(prefix); err != nil {
		return err
	}
	if err := checkName(contract); err != nil {
		return err
	}

	if err := os.Remove(d.path(prefix, contract)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	contracts, err := d.Contracts(prefix)
	if err != nil {
		return err
	}
	if len(contracts) == 0 {
		if err := os.RemoveAll(filepath.Join(d.root, prefix)); err != nil {
			return err
		}
	}

	return nil
}

// Load reads and validates the artifact stored for the prefix and contract.
func (d *Disk) Load(prefix string, contract string) (Artifact, error) {
	path := d.path(prefix, contract)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, &NotFoundError{Prefix: prefix, Contract: contract}
		}
		return Artifact{}, err
	}

	a, err := decode(data)
	if err != nil {
		return Artifact{}, &SchemaError{Path: path, Err: err}
	}

	settings, err := ParsePrefix(prefix)
	if err != nil {
		return Artifact{}, &SchemaError{Path: path, Err: err}
	}

	a.Contract = contract
	a.Settings = settings

	return a, nil
}

// Prefixes returns the sorted set of prefixes in the store.
func (d *Disk) Prefixes() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}

	var prefixes []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			prefixes = append(prefixes, entry.Name())
		}
	}
	sort.Strings(prefixes)

	return prefixes, nil
}

// Contracts returns the sorted contract names stored under the prefix.
func (d *Disk) Contracts(prefix string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, prefix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var contracts []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		contracts = append(contracts, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(contracts)

	return contracts, nil
}

// =============================================================================

func (d *Disk) path(prefix string, contract string) string {
	return filepath.Join(d.root, prefix, contract+fileExt)
}

// decode validates the descriptor schema and converts it into an artifact.
func decode(data []byte) (Artifact, error) {
	var desc descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return Artifact{}, err
	}

	if err := validate.Check(desc); err != nil {
		return Artifact{}, err
	}

	if _, err := abi.JSON(bytes.NewReader(desc.ABI)); err != nil {
		return Artifact{}, fmt.Errorf("abi: %w", err)
	}

	code, err := hexutil.Decode(desc.Bytecode)
	if err != nil {
		return Artifact{}, fmt.Errorf("bytecode: %w", err)
	}

	var deployed []byte
	if desc.DeployedBytecode != "" && desc.DeployedBytecode != "0x" {
		if deployed, err = hexutil.Decode(desc.DeployedBytecode); err != nil {
			return Artifact{}, fmt.Errorf("deployedBytecode: %w", err)
		}
	}

	a := Artifact{
		ABI:              desc.ABI,
		Bytecode:         code,
		DeployedBytecode: deployed,
	}

	return a, nil
}

// checkName makes sure a prefix or contract name stays inside the store.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}
