package chainenv

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

// DefaultGasLimit is the block gas limit of a simulated chain. Optimizer
// disabled builds of larger contracts need the room.
const DefaultGasLimit = 30_000_000

// fundingWei is the balance given to funded accounts, one million ether.
var fundingWei = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))

// Simulated is an in process chain. A reset discards the chain and starts a
// new one from the same genesis.
type Simulated struct {
	alloc    types.GenesisAlloc
	gasLimit uint64
	backend  *simulated.Backend
}

// NewSimulated constructs a simulated chain with the accounts funded.
func NewSimulated(gasLimit uint64, funded ...common.Address) *Simulated {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}

	alloc := make(types.GenesisAlloc, len(funded))
	for _, addr := range funded {
		alloc[addr] = types.Account{Balance: new(big.Int).Set(fundingWei)}
	}

	s := Simulated{
		alloc:    alloc,
		gasLimit: gasLimit,
	}
	s.backend = s.start()

	return &s
}

// Client implements the Backend interface.
func (s *Simulated) Client() Client {
	return s.backend.Client()
}

// Commit implements the Backend interface and seals a block.
func (s *Simulated) Commit() {
	s.backend.Commit()
}

// Reset implements the Backend interface.
func (s *Simulated) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.backend.Close(); err != nil {
		return err
	}
	s.backend = s.start()

	return nil
}

// Close implements the Backend interface.
func (s *Simulated) Close() error {
	return s.backend.Close()
}

func (s *Simulated) start() *simulated.Backend {
	return simulated.NewBackend(s.alloc, simulated.WithBlockGasLimit(s.gasLimit))
}
