// Package equivalence classifies fingerprinted compiler variants into classes
// of identical observable identity. Two variants share a class if and only
// if their byte size and chosen hash are equal.
package equivalence

import (
	"fmt"

	"github.com/ardanlabs/bytecodelab/foundation/contract/fingerprint"
	"github.com/ethereum/go-ethereum/common"
)

// HashChoice selects which fingerprint hash identifies a variant.
type HashChoice int

// Set of hash choices.
const (
	Raw HashChoice = iota
	Stripped
)

// String implements the Stringer interface.
func (hc HashChoice) String() string {
	if hc == Stripped {
		return "stripped"
	}
	return "raw"
}

// ParseHashChoice converts the name of a hash choice into its value.
func ParseHashChoice(name string) (HashChoice, error) {
	switch name {
	case "raw":
		return Raw, nil
	case "stripped":
		return Stripped, nil
	}
	return Raw, fmt.Errorf("unknown hash choice %q", name)
}

// Item is a single fingerprinted variant identified by its prefix.
type Item struct {
	Prefix      string
	Fingerprint fingerprint.Fingerprint
}

// Key identifies an equivalence class.
type Key struct {
	ByteSize uint64
	Hash     common.Hash
}

// String returns the key in the "<size>_<hash>" form used by the reports.
func (k Key) String() string {
	return fmt.Sprintf("%d_%s", k.ByteSize, k.Hash.Hex())
}

// Class is the set of variants sharing a key, in encounter order.
type Class struct {
	Key     Key
	Members []string
}

// =============================================================================

// KeyOf returns the class key for a fingerprint under the hash choice.
func KeyOf(fp fingerprint.Fingerprint, choose HashChoice) Key {
	hash := fp.RawHash
	if choose == Stripped {
		hash = fp.StrippedHash
	}

	return Key{
		ByteSize: fp.ByteSize,
		Hash:     hash,
	}
}

// Group classifies the items in a single pass. Classes are returned in the
// order their first member was seen.
func Group(items []Item, choose HashChoice) []Class {
	index := make(map[Key]int)
	var classes []Class

	for _, item := range items {
		key := KeyOf(item.Fingerprint, choose)

		i, exists := index[key]
		if !exists {
			i = len(classes)
			index[key] = i
			classes = append(classes, Class{Key: key})
		}

		classes[i].Members = append(classes[i].Members, item.Prefix)
	}

	return classes
}

// Same reports whether two items fall in the same class.
func Same(a, b Item, choose HashChoice) bool {
	return KeyOf(a.Fingerprint, choose) == KeyOf(b.Fingerprint, choose)
}
