package chainenv

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Set of reset methods understood by development nodes.
const (
	ResetHardhat  = "hardhat_reset"
	ResetAnvil    = "anvil_reset"
	ResetSnapshot = "evm_revert"
)

// RPC is a development node reached over JSON-RPC, such as a hardhat or
// anvil node. Those nodes mine on every transaction.
type RPC struct {
	method   string
	rpc      *rpc.Client
	client   *ethclient.Client
	snapshot string
}

// DialRPC connects to the node at the url. The reset method is one of the
// reset constants; with ResetSnapshot a snapshot is taken now and reverted
// to on every reset.
func DialRPC(ctx context.Context, url string, method string) (*RPC, error) {
	switch method {
	case "":
		method = ResetHardhat
	case ResetHardhat, ResetAnvil, ResetSnapshot:
	default:
		return nil, fmt.Errorf("unknown reset method %q", method)
	}

	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	r := RPC{
		method: method,
		rpc:    rc,
		client: ethclient.NewClient(rc),
	}

	if method == ResetSnapshot {
		if err := r.takeSnapshot(ctx); err != nil {
			rc.Close()
			return nil, err
		}
	}

	return &r, nil
}

// Client implements the Backend interface.
func (r *RPC) Client() Client {
	return r.client
}

// Commit implements the Backend interface. Development nodes automine.
func (r *RPC) Commit() {}

// Reset implements the Backend interface.
func (r *RPC) Reset(ctx context.Context) error {
	if r.method != ResetSnapshot {
		return r.rpc.CallContext(ctx, nil, r.method)
	}

	var reverted bool
	if err := r.rpc.CallContext(ctx, &reverted, ResetSnapshot, r.snapshot); err != nil {
		return err
	}
	if !reverted {
		return fmt.Errorf("snapshot %s was not reverted", r.snapshot)
	}

	// A snapshot can only be reverted to once.
	return r.takeSnapshot(ctx)
}

// Close implements the Backend interface.
func (r *RPC) Close() error {
	r.client.Close()
	return nil
}

func (r *RPC) takeSnapshot(ctx context.Context) error {
	if err := r.rpc.CallContext(ctx, &r.snapshot, "evm_snapshot"); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}
