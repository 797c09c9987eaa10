package providers

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// NewChainProvider dials the Ethereum JSON-RPC endpoint the oracle signs
// against. DialContext validates the URL but does not probe the node.
func NewChainProvider(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	return client, nil
}
