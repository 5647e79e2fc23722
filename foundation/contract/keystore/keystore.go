// Package keystore reads a folder of auditor keys and provides lookup of the
// keys by auditor name or account address. Keys are stored one per file as
// <name>.ecdsa in the hex format go-ethereum writes.
package keystore

import (
	"crypto/ecdsa"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Extension is the file extension used for key files.
const Extension = ".ecdsa"

// KeyStore maintains the set of auditor keys found in a folder.
type KeyStore struct {
	root  string
	keys  map[string]*ecdsa.PrivateKey
	names map[common.Address]string
}

// New constructs a key store with the keys from the specified folder. The
// folder is created when it does not exist.
func New(root string) (*KeyStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}

	ks := KeyStore{
		root:  root,
		keys:  make(map[string]*ecdsa.PrivateKey),
		names: make(map[common.Address]string),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != Extension {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		ks.add(strings.TrimSuffix(filepath.Base(fileName), Extension), privateKey)

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ks, nil
}

// Generate creates a new key for the named auditor and saves it.
func (ks *KeyStore) Generate(name string) (*ecdsa.PrivateKey, error) {
	if _, exists := ks.keys[name]; exists {
		return nil, fmt.Errorf("auditor %q already has a key", name)
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := crypto.SaveECDSA(ks.path(name), privateKey); err != nil {
		return nil, err
	}

	ks.add(name, privateKey)

	return privateKey, nil
}

// Key returns the private key for the named auditor.
func (ks *KeyStore) Key(name string) (*ecdsa.PrivateKey, error) {
	privateKey, exists := ks.keys[name]
	if !exists {
		return nil, fmt.Errorf("auditor %q not found in %s", name, ks.root)
	}
	return privateKey, nil
}

// Lookup returns the auditor name for the address. The hex address is
// returned when the address is unknown.
func (ks *KeyStore) Lookup(address common.Address) string {
	name, exists := ks.names[address]
	if !exists {
		return address.Hex()
	}
	return name
}

// Names returns the sorted auditor names.
func (ks *KeyStore) Names() []string {
	names := make([]string, 0, len(ks.keys))
	for name := range ks.keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================

func (ks *KeyStore) add(name string, privateKey *ecdsa.PrivateKey) {
	ks.keys[name] = privateKey
	ks.names[crypto.PubkeyToAddress(privateKey.PublicKey)] = name
}

func (ks *KeyStore) path(name string) string {
	return filepath.Join(ks.root, name+Extension)
}
