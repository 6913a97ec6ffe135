package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"collateral-oracle/internal/oracle"
)

// Metadata resolves ERC20 token decimals with an in-memory cache; decimals
// are immutable so a cached value never goes stale.
type Metadata struct {
	client *Client

	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

// NewMetadata builds a token metadata resolver.
func NewMetadata(client *Client) *Metadata {
	return &Metadata{client: client, decimals: make(map[common.Address]uint8)}
}

// Decimals returns the token's decimal scale.
func (m *Metadata) Decimals(ctx context.Context, asset common.Address) (uint8, error) {
	m.mu.RLock()
	scale, ok := m.decimals[asset]
	m.mu.RUnlock()
	if ok {
		return scale, nil
	}

	outputs, err := m.client.Call(ctx, asset, erc20ABI, nil, "decimals")
	if err != nil {
		return 0, fmt.Errorf("decimals of %s: %w", asset.Hex(), err)
	}
	scale, ok = outputs[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("expected uint8 decimals, got %T", outputs[0])
	}

	m.mu.Lock()
	m.decimals[asset] = scale
	m.mu.Unlock()
	return scale, nil
}

var _ oracle.TokenMetadata = (*Metadata)(nil)
