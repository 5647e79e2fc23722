// Package merkle provides a keccak256 merkle tree over content hashes. It is
// used to commit to the full set of artifacts produced by a sweep with a
// single root that can be attested like any other hash.
//
// Leaves are paired left to right and an odd node is paired with itself.
// A parent is the hash of its two child hashes concatenated.
package merkle

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Step is one sibling hash on the path from a leaf to the root. Left reports
// the sibling is concatenated before the running hash.
type Step struct {
	Hash common.Hash `json:"hash"`
	Left bool        `json:"left"`
}

// Tree represents a merkle tree built from a set of leaf hashes.
type Tree struct {
	levels [][]common.Hash
}

// NewTree constructs a tree from the specified leaves in order.
func NewTree(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errors.New("cannot construct tree with no content")
	}

	level := make([]common.Hash, len(leaves))
	copy(level, leaves)

	t := Tree{levels: [][]common.Hash{level}}

	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := i + 1
			if right == len(level) {
				right = i
			}
			next = append(next, parent(level[i], level[right]))
		}

		t.levels = append(t.levels, next)
		level = next
	}

	return &t, nil
}

// Root returns the merkle root.
func (t *Tree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// Leaves returns a copy of the leaf hashes.
func (t *Tree) Leaves() []common.Hash {
	leaves := make([]common.Hash, len(t.levels[0]))
	copy(leaves, t.levels[0])
	return leaves
}

// Proof returns the sibling path for the first leaf equal to the hash.
func (t *Tree) Proof(leaf common.Hash) ([]Step, error) {
	idx := -1
	for i, h := range t.levels[0] {
		if h == leaf {
			idx = i
			break
		}
	}

	if idx == -1 {
		return nil, errors.New("unable to find leaf in tree")
	}

	var proof []Step
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling == len(level) {
			sibling = idx
		}

		proof = append(proof, Step{
			Hash: level[sibling],
			Left: sibling < idx,
		})

		idx /= 2
	}

	return proof, nil
}

// Verify reports whether the proof connects the leaf to the root.
func Verify(root common.Hash, leaf common.Hash, proof []Step) bool {
	h := leaf
	for _, step := range proof {
		if step.Left {
			h = parent(step.Hash, h)
			continue
		}
		h = parent(h, step.Hash)
	}

	return h == root
}

// parent computes the hash of two children.
func parent(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left.Bytes(), right.Bytes())
}
