package chainenv

import (
	"context"
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// Target selects the chain a session runs against. An empty URL selects an
// in-process simulated chain with the account funded.
type Target struct {
	URL         string
	ResetMethod string
	GasLimit    uint64
}

// Open constructs a backend for the target and a session over it for the
// account key.
func Open(ctx context.Context, t Target, key *ecdsa.PrivateKey) (*Session, error) {
	if key == nil {
		return nil, errors.New("account key is required")
	}

	var backend Backend
	switch t.URL {
	case "":
		backend = NewSimulated(t.GasLimit, crypto.PubkeyToAddress(key.PublicKey))

	default:
		rpc, err := DialRPC(ctx, t.URL, t.ResetMethod)
		if err != nil {
			return nil, err
		}
		backend = rpc
	}

	sess, err := New(Config{Backend: backend, Key: key})
	if err != nil {
		backend.Close()
		return nil, err
	}

	return sess, nil
}
