// Package chainenv provides an explicit execution session against a chain
// used to deploy compiled artifacts and measure gas. The session is threaded
// through every call rather than held as a global handle, and a reset
// returns the chain to a clean state so measurements never observe state
// left by an earlier iteration.
package chainenv

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Client is the set of chain operations a session needs.
type Client interface {
	ethereum.ChainStateReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.TransactionReader
	ethereum.TransactionSender
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Backend represents a chain the session can reset.
type Backend interface {
	Client() Client
	Commit()
	Reset(ctx context.Context) error
	Close() error
}

// Receipt represents the outcome of a mined transaction.
type Receipt struct {
	TxHash  common.Hash
	Address common.Address
	GasUsed uint64
}

// Config represents the settings for a session.
type Config struct {
	Backend      Backend
	Key          *ecdsa.PrivateKey
	PollInterval time.Duration
}

// Session manages deployments and calls for one account on a backend.
type Session struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	poll    time.Duration
}

// New constructs a session for the configured backend and account.
func New(cfg Config) (*Session, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.Key == nil {
		return nil, errors.New("account key is required")
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	s := Session{
		backend: cfg.Backend,
		key:     cfg.Key,
		from:    crypto.PubkeyToAddress(cfg.Key.PublicKey),
		poll:    poll,
	}

	return &s, nil
}

// From returns the account transactions are sent from.
func (s *Session) From() common.Address {
	return s.from
}

// Reset returns the backend to a clean state.
func (s *Session) Reset(ctx context.Context) error {
	return s.backend.Reset(ctx)
}

// Close releases the backend.
func (s *Session) Close() error {
	return s.backend.Close()
}

// Deploy sends a contract creation transaction with the code, which must
// already carry any constructor arguments.
func (s *Session) Deploy(ctx context.Context, code []byte) (Receipt, error) {
	receipt, err := s.send(ctx, nil, code)
	if err != nil {
		return Receipt{}, fmt.Errorf("deploy: %w", err)
	}

	return receipt, nil
}

// Transact sends a transaction calling the contract at the address.
func (s *Session) Transact(ctx context.Context, to common.Address, data []byte) (Receipt, error) {
	receipt, err := s.send(ctx, &to, data)
	if err != nil {
		return Receipt{}, fmt.Errorf("transact %s: %w", to, err)
	}

	return receipt, nil
}

// Call executes a read only call against the latest state.
func (s *Session) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{From: s.from, To: &to, Data: data}
	return s.backend.Client().CallContract(ctx, msg, nil)
}

// EstimateGas returns the gas a call to the contract would use.
func (s *Session) EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	msg := ethereum.CallMsg{From: s.from, To: &to, Data: data}
	return s.backend.Client().EstimateGas(ctx, msg)
}

// Code returns the runtime code deployed at the address.
func (s *Session) Code(ctx context.Context, address common.Address) ([]byte, error) {
	return s.backend.Client().CodeAt(ctx, address, nil)
}

// =============================================================================

// send signs and submits a transaction and waits for it to be mined.
func (s *Session) send(ctx context.Context, to *common.Address, data []byte) (Receipt, error) {
	client := s.backend.Client()

	nonce, err := client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return Receipt{}, fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("gas price: %w", err)
	}

	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: to, Data: data})
	if err != nil {
		return Receipt{}, fmt.Errorf("estimate: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("chain id: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       to,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return Receipt{}, fmt.Errorf("sign: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return Receipt{}, fmt.Errorf("send: %w", err)
	}

	// Backends without automatic mining produce a block here.
	s.backend.Commit()

	receipt, err := s.waitMined(ctx, signed.Hash())
	if err != nil {
		return Receipt{}, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return Receipt{}, fmt.Errorf("transaction %s reverted", signed.Hash())
	}

	r := Receipt{
		TxHash:  signed.Hash(),
		Address: receipt.ContractAddress,
		GasUsed: receipt.GasUsed,
	}

	return r, nil
}

// waitMined polls for the receipt of the transaction.
func (s *Session) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.Client().TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
