package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// VaultAdapterOptions parameterise the vault share adapter.
type VaultAdapterOptions struct {
	// Owner is the only actor allowed to mutate deviation configuration.
	Owner string
	// MaxDeviationCap is the protocol-wide upper bound in bps for any
	// per-asset deviation limit.
	MaxDeviationCap int64
	// DefaultMaxDeviation applies to assets without an explicit limit.
	DefaultMaxDeviation int64
}

// deviationLimits holds the per-asset deviation bounds, keyed by the pool's
// token0. Shared between rebound copies of the adapter.
type deviationLimits struct {
	mu         sync.RWMutex
	perAsset   map[common.Address]int64
	defaultMax int64
	cap        int64
}

// VaultAdapter prices one share of a liquidity vault in USD.
//
// The valuation deliberately never uses the pool's own price for the
// constituent legs: the current tick is only compared against the
// time-weighted tick to decide whether the pool state is trustworthy, and
// the fair value is built from independently sourced USD feeds. An attacker
// who moves the spot tick within one transaction is caught before that tick
// influences reserve accounting.
type VaultAdapter struct {
	owner  string
	base   PriceSource
	vaults VaultReader
	meta   TokenMetadata
	events EventSink
	logger zerolog.Logger

	limits *deviationLimits
}

// NewVaultAdapter constructs the adapter over its collaborators.
func NewVaultAdapter(opts VaultAdapterOptions, base PriceSource, vaults VaultReader, meta TokenMetadata, events EventSink, logger zerolog.Logger) (*VaultAdapter, error) {
	if opts.MaxDeviationCap <= 0 || opts.MaxDeviationCap > BpsDenominator {
		return nil, fmt.Errorf("max deviation cap %d out of (0, %d]", opts.MaxDeviationCap, BpsDenominator)
	}
	if opts.DefaultMaxDeviation <= 0 || opts.DefaultMaxDeviation > opts.MaxDeviationCap {
		return nil, fmt.Errorf("default max deviation %d out of (0, cap]: %w", opts.DefaultMaxDeviation, ErrDeviationCapExceeded)
	}

	return &VaultAdapter{
		owner:  opts.Owner,
		base:   base,
		vaults: vaults,
		meta:   meta,
		events: events,
		logger: logger.With().Str("component", "vault_adapter").Logger(),
		limits: &deviationLimits{
			perAsset:   make(map[common.Address]int64),
			defaultMax: opts.DefaultMaxDeviation,
			cap:        opts.MaxDeviationCap,
		},
	}, nil
}

// Name identifies the adapter kind.
func (a *VaultAdapter) Name() string { return "lp_vault" }

// WithSources returns a copy of the adapter bound to different price and
// vault readers. Owner and deviation configuration are shared with the
// original; the copy exists so historical reads can be pinned to a block
// without re-applying config.
func (a *VaultAdapter) WithSources(base PriceSource, vaults VaultReader) *VaultAdapter {
	rebound := *a
	rebound.base = base
	rebound.vaults = vaults
	return &rebound
}

// SetMaxDeviations bulk-sets per-asset deviation limits in bps, keyed by the
// constituent token the limit protects. Owner only, all-or-nothing: any zero
// address, length mismatch, or value above the global cap rejects the whole
// call before any entry is written.
func (a *VaultAdapter) SetMaxDeviations(ctx context.Context, actor string, assets []common.Address, limits []int64) error {
	if actor != a.owner {
		return ErrNotOwner
	}
	if len(assets) != len(limits) {
		return fmt.Errorf("%d assets vs %d limits: %w", len(assets), len(limits), ErrLengthMismatch)
	}
	for i, asset := range assets {
		if asset == (common.Address{}) {
			return fmt.Errorf("assets[%d]: %w", i, ErrZeroAddress)
		}
		if limits[i] <= 0 || limits[i] > a.limits.cap {
			return fmt.Errorf("limit %d for %s: %w", limits[i], asset.Hex(), ErrDeviationCapExceeded)
		}
	}

	a.limits.mu.Lock()
	for i, asset := range assets {
		a.limits.perAsset[asset] = limits[i]
	}
	a.limits.mu.Unlock()

	for i, asset := range assets {
		a.events.RecordEvent(ctx, Event{
			Kind:       EventDeviationSet,
			Asset:      asset,
			Value:      strconv.FormatInt(limits[i], 10),
			Actor:      actor,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

// MaxDeviation returns the effective deviation limit in bps for an asset.
func (a *VaultAdapter) MaxDeviation(asset common.Address) int64 {
	a.limits.mu.RLock()
	defer a.limits.mu.RUnlock()
	if limit, ok := a.limits.perAsset[asset]; ok {
		return limit
	}
	return a.limits.defaultMax
}

// GetPrice values one share of the vault in USD.
//
// An empty vault returns zero immediately with no further reads; the
// deviation guard runs before any reserve read because reported reserves are
// themselves a function of the current tick. The guard bound is the one
// configured for the pool's token0, the token the tick prices.
func (a *VaultAdapter) GetPrice(ctx context.Context, vault common.Address) (decimal.Decimal, error) {
	supply, err := a.vaults.TotalSupply(ctx, vault)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("total supply of %s: %w", vault.Hex(), err)
	}
	if supply.Sign() == 0 {
		return decimal.Zero, nil
	}

	token0, token1, err := a.vaults.Tokens(ctx, vault)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("constituents of %s: %w", vault.Hex(), err)
	}

	spotTick, err := a.vaults.CurrentTick(ctx, vault)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("current tick of %s: %w", vault.Hex(), err)
	}
	window, err := a.vaults.TwapWindow(ctx, vault)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("twap window of %s: %w", vault.Hex(), err)
	}
	twapTick, err := a.vaults.MeanTick(ctx, vault, window)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("mean tick of %s: %w", vault.Hex(), err)
	}

	spot := TickToPrice(spotTick)
	twap := TickToPrice(twapTick)
	maxBps := a.MaxDeviation(token0)
	if !WithinDeviation(spot, twap, maxBps) {
		a.logger.Warn().
			Str("vault", vault.Hex()).
			Int32("spot_tick", spotTick).
			Int32("twap_tick", twapTick).
			Str("deviation_bps", DeviationBps(spot, twap).StringFixed(2)).
			Int64("max_bps", maxBps).
			Msg("valuation rejected by deviation guard")
		return decimal.Decimal{}, fmt.Errorf("vault %s: %w", vault.Hex(), ErrPriceDeviation)
	}

	reserve0, reserve1, err := a.vaults.TotalReserves(ctx, vault)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("reserves of %s: %w", vault.Hex(), err)
	}

	value0, err := a.legValue(ctx, token0, reserve0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	value1, err := a.legValue(ctx, token1, reserve1)
	if err != nil {
		return decimal.Decimal{}, err
	}

	fairValue := value0.Add(value1)
	shares := decimal.NewFromBigInt(supply, -PositionDecimals)
	return fairValue.DivRound(shares, tickPrecision), nil
}

func (a *VaultAdapter) legValue(ctx context.Context, token common.Address, reserve *big.Int) (decimal.Decimal, error) {
	price, err := a.base.GetPrice(ctx, token)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("usd price of %s: %w", token.Hex(), err)
	}
	if price.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("usd price of %s is zero: %w", token.Hex(), ErrPriceUnavailable)
	}
	decimals, err := a.meta.Decimals(ctx, token)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decimals of %s: %w", token.Hex(), err)
	}
	return decimal.NewFromBigInt(reserve, -int32(decimals)).Mul(price), nil
}

var _ PriceSource = (*VaultAdapter)(nil)
