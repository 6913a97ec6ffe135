package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"collateral-oracle/internal/oracle"
)

// vaultMeta caches the immutable identity of a vault: its pool and the
// pool's constituent tokens. Ticks, reserves, and supply are never cached.
type vaultMeta struct {
	pool   common.Address
	token0 common.Address
	token1 common.Address
}

// VaultReader reads liquidity-vault and pool state over RPC.
type VaultReader struct {
	client *Client
	block  *big.Int
	logger zerolog.Logger

	mu   sync.RWMutex
	meta map[common.Address]vaultMeta
}

// NewVaultReader builds a vault state reader.
func NewVaultReader(client *Client, logger zerolog.Logger) *VaultReader {
	return &VaultReader{
		client: client,
		logger: logger.With().Str("component", "vault_reader").Logger(),
		meta:   make(map[common.Address]vaultMeta),
	}
}

// AtBlock returns a view of the reader pinned to a historical block. The
// pool/token identity cache is shared; those bindings are immutable.
func (r *VaultReader) AtBlock(block *big.Int) *VaultReader {
	return &VaultReader{
		client: r.client,
		block:  block,
		logger: r.logger,
		meta:   r.meta,
	}
}

// TotalSupply reads the vault's share supply.
func (r *VaultReader) TotalSupply(ctx context.Context, vault common.Address) (*big.Int, error) {
	outputs, err := r.client.Call(ctx, vault, vaultABI, r.block, "totalSupply")
	if err != nil {
		return nil, err
	}
	return asBigInt(outputs[0])
}

// Tokens returns the pool's constituent token addresses.
func (r *VaultReader) Tokens(ctx context.Context, vault common.Address) (common.Address, common.Address, error) {
	meta, err := r.vaultMeta(ctx, vault)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return meta.token0, meta.token1, nil
}

// CurrentTick reads the pool's instantaneous tick from slot0.
func (r *VaultReader) CurrentTick(ctx context.Context, vault common.Address) (int32, error) {
	meta, err := r.vaultMeta(ctx, vault)
	if err != nil {
		return 0, err
	}

	outputs, err := r.client.Call(ctx, meta.pool, poolABI, r.block, "slot0")
	if err != nil {
		return 0, err
	}
	if len(outputs) < 2 {
		return 0, fmt.Errorf("unexpected slot0 response of %s", meta.pool.Hex())
	}
	tick, err := asBigInt(outputs[1])
	if err != nil {
		return 0, fmt.Errorf("slot0 tick: %w", err)
	}
	return int32(tick.Int64()), nil
}

// TwapWindow reads the vault's configured twap lookback.
func (r *VaultReader) TwapWindow(ctx context.Context, vault common.Address) (time.Duration, error) {
	outputs, err := r.client.Call(ctx, vault, vaultABI, r.block, "twapPeriod")
	if err != nil {
		return 0, err
	}
	seconds, ok := outputs[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("expected uint32 twap period, got %T", outputs[0])
	}
	if seconds == 0 {
		return 0, fmt.Errorf("vault %s has a zero twap period", vault.Hex())
	}
	return time.Duration(seconds) * time.Second, nil
}

// MeanTick computes the arithmetic-mean tick over the window from the pool's
// cumulative tick observations.
func (r *VaultReader) MeanTick(ctx context.Context, vault common.Address, window time.Duration) (int32, error) {
	meta, err := r.vaultMeta(ctx, vault)
	if err != nil {
		return 0, err
	}

	secondsAgo := uint32(window / time.Second)
	if secondsAgo == 0 {
		return 0, fmt.Errorf("twap window %s below one second", window)
	}

	outputs, err := r.client.Call(ctx, meta.pool, poolABI, r.block, "observe", []uint32{secondsAgo, 0})
	if err != nil {
		return 0, err
	}
	cumulatives, ok := outputs[0].([]*big.Int)
	if !ok || len(cumulatives) != 2 {
		return 0, fmt.Errorf("unexpected observe response of %s: %T", meta.pool.Hex(), outputs[0])
	}

	return meanTickFromCumulatives(cumulatives[0].Int64(), cumulatives[1].Int64(), secondsAgo), nil
}

// TotalReserves reads the vault's current holdings of both constituents.
func (r *VaultReader) TotalReserves(ctx context.Context, vault common.Address) (*big.Int, *big.Int, error) {
	outputs, err := r.client.Call(ctx, vault, vaultABI, r.block, "getTotalAmounts")
	if err != nil {
		return nil, nil, err
	}
	if len(outputs) != 2 {
		return nil, nil, fmt.Errorf("unexpected getTotalAmounts response of %s", vault.Hex())
	}
	reserve0, err := asBigInt(outputs[0])
	if err != nil {
		return nil, nil, fmt.Errorf("total0: %w", err)
	}
	reserve1, err := asBigInt(outputs[1])
	if err != nil {
		return nil, nil, fmt.Errorf("total1: %w", err)
	}
	return reserve0, reserve1, nil
}

func (r *VaultReader) vaultMeta(ctx context.Context, vault common.Address) (vaultMeta, error) {
	r.mu.RLock()
	meta, ok := r.meta[vault]
	r.mu.RUnlock()
	if ok {
		return meta, nil
	}

	outputs, err := r.client.Call(ctx, vault, vaultABI, r.block, "pool")
	if err != nil {
		return vaultMeta{}, fmt.Errorf("pool of %s: %w", vault.Hex(), err)
	}
	pool, err := asAddress(outputs[0])
	if err != nil {
		return vaultMeta{}, fmt.Errorf("pool of %s: %w", vault.Hex(), err)
	}

	outputs, err = r.client.Call(ctx, pool, poolABI, r.block, "token0")
	if err != nil {
		return vaultMeta{}, err
	}
	token0, err := asAddress(outputs[0])
	if err != nil {
		return vaultMeta{}, fmt.Errorf("token0: %w", err)
	}

	outputs, err = r.client.Call(ctx, pool, poolABI, r.block, "token1")
	if err != nil {
		return vaultMeta{}, err
	}
	token1, err := asAddress(outputs[0])
	if err != nil {
		return vaultMeta{}, fmt.Errorf("token1: %w", err)
	}

	meta = vaultMeta{pool: pool, token0: token0, token1: token1}
	r.mu.Lock()
	r.meta[vault] = meta
	r.mu.Unlock()
	return meta, nil
}

// meanTickFromCumulatives derives the mean tick between two cumulative tick
// observations, rounding toward negative infinity like the pool contracts do.
func meanTickFromCumulatives(older, newer int64, window uint32) int32 {
	delta := newer - older
	span := int64(window)
	mean := delta / span
	if delta < 0 && delta%span != 0 {
		mean--
	}
	return int32(mean)
}

var _ oracle.VaultReader = (*VaultReader)(nil)
