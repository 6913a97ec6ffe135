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

// RouterOptions parameterise the price router.
type RouterOptions struct {
	// Owner is the only actor allowed to mutate routes, thresholds, and the
	// wrapper whitelist.
	Owner string
}

// Router is the single entry point the lending core calls to turn an asset
// identity into a USD value. It holds the route registry, per-asset
// liquidation thresholds, and the wrapper whitelist.
type Router struct {
	owner    string
	meta     TokenMetadata
	wrappers WrapperResolver
	events   EventSink
	logger   zerolog.Logger

	mu          sync.RWMutex
	routes      map[common.Address]PriceSource
	thresholds  map[common.Address]int64
	whitelisted map[common.Address]bool
}

// NewRouter constructs an empty router.
func NewRouter(opts RouterOptions, meta TokenMetadata, wrappers WrapperResolver, events EventSink, logger zerolog.Logger) *Router {
	return &Router{
		owner:       opts.Owner,
		meta:        meta,
		wrappers:    wrappers,
		events:      events,
		logger:      logger.With().Str("component", "price_router").Logger(),
		routes:      make(map[common.Address]PriceSource),
		thresholds:  make(map[common.Address]int64),
		whitelisted: make(map[common.Address]bool),
	}
}

// SetRoutes binds each asset to the adapter responsible for pricing it.
// Owner only, all-or-nothing: either every pair is written and an event
// emitted per pair, or none are.
func (r *Router) SetRoutes(ctx context.Context, actor string, assets []common.Address, adapters []PriceSource) error {
	if actor != r.owner {
		return ErrNotOwner
	}
	if len(assets) != len(adapters) {
		return fmt.Errorf("%d assets vs %d adapters: %w", len(assets), len(adapters), ErrLengthMismatch)
	}
	for i, asset := range assets {
		if asset == (common.Address{}) {
			return fmt.Errorf("assets[%d]: %w", i, ErrZeroAddress)
		}
		if adapters[i] == nil {
			return fmt.Errorf("adapters[%d]: %w", i, ErrZeroAddress)
		}
	}

	r.mu.Lock()
	for i, asset := range assets {
		r.routes[asset] = adapters[i]
	}
	r.mu.Unlock()

	for i, asset := range assets {
		r.events.RecordEvent(ctx, Event{
			Kind:       EventRouteSet,
			Asset:      asset,
			Value:      adapters[i].Name(),
			Actor:      actor,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

// SetLiquidationThresholds bulk-sets collateral liquidation thresholds in
// bps. Every value must lie in [MinLiquidationThreshold, BpsDenominator].
func (r *Router) SetLiquidationThresholds(ctx context.Context, actor string, assets []common.Address, thresholds []int64) error {
	if actor != r.owner {
		return ErrNotOwner
	}
	if len(assets) != len(thresholds) {
		return fmt.Errorf("%d assets vs %d thresholds: %w", len(assets), len(thresholds), ErrLengthMismatch)
	}
	for i, asset := range assets {
		if asset == (common.Address{}) {
			return fmt.Errorf("assets[%d]: %w", i, ErrZeroAddress)
		}
		if thresholds[i] < MinLiquidationThreshold {
			return fmt.Errorf("threshold %d for %s: %w", thresholds[i], asset.Hex(), ErrThresholdTooLow)
		}
		if thresholds[i] > BpsDenominator {
			return fmt.Errorf("threshold %d for %s: %w", thresholds[i], asset.Hex(), ErrThresholdTooHigh)
		}
	}

	r.mu.Lock()
	for i, asset := range assets {
		r.thresholds[asset] = thresholds[i]
	}
	r.mu.Unlock()

	for i, asset := range assets {
		r.events.RecordEvent(ctx, Event{
			Kind:       EventThresholdSet,
			Asset:      asset,
			Value:      strconv.FormatInt(thresholds[i], 10),
			Actor:      actor,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

// SetWrapperWhitelist bulk-sets the position-valuation flag for a list of
// wrapper asset types.
func (r *Router) SetWrapperWhitelist(ctx context.Context, actor string, wrappers []common.Address, enabled bool) error {
	if actor != r.owner {
		return ErrNotOwner
	}
	for i, wrapper := range wrappers {
		if wrapper == (common.Address{}) {
			return fmt.Errorf("wrappers[%d]: %w", i, ErrZeroAddress)
		}
	}

	r.mu.Lock()
	for _, wrapper := range wrappers {
		r.whitelisted[wrapper] = enabled
	}
	r.mu.Unlock()

	for _, wrapper := range wrappers {
		r.events.RecordEvent(ctx, Event{
			Kind:       EventWhitelistSet,
			Asset:      wrapper,
			Value:      strconv.FormatBool(enabled),
			Actor:      actor,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

// Route returns the adapter registered for an asset, if any.
func (r *Router) Route(asset common.Address) (PriceSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.routes[asset]
	return adapter, ok
}

// LiquidationThreshold returns the configured threshold in bps for an asset.
func (r *Router) LiquidationThreshold(asset common.Address) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	threshold, ok := r.thresholds[asset]
	return threshold, ok
}

// IsWhitelisted reports whether position valuation is permitted for a wrapper.
func (r *Router) IsWhitelisted(wrapper common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.whitelisted[wrapper]
}

// GetPrice returns the USD price of one whole unit of the asset. A zero
// price from the routed adapter is a hard failure; a successful call never
// returns zero.
func (r *Router) GetPrice(ctx context.Context, asset common.Address) (decimal.Decimal, error) {
	adapter, ok := r.Route(asset)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("asset %s: %w", asset.Hex(), ErrNoRoute)
	}

	price, err := adapter.GetPrice(ctx, asset)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("adapter %s: %w", adapter.Name(), err)
	}
	if price.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("adapter %s returned zero for %s: %w", adapter.Name(), asset.Hex(), ErrPriceUnavailable)
	}
	return price, nil
}

// IsSupported probes whether the asset currently prices successfully. Every
// failure mode, including a deviation-guard rejection, is downgraded to
// false so callers can probe without error-driven control flow.
func (r *Router) IsSupported(ctx context.Context, asset common.Address) bool {
	adapter, ok := r.Route(asset)
	if !ok {
		return false
	}
	price, err := adapter.GetPrice(ctx, asset)
	return err == nil && price.Sign() > 0
}

// GetPositionValue values an amount of a wrapped position. The wrapper must
// be whitelisted; the position amount is always 18-decimal.
func (r *Router) GetPositionValue(ctx context.Context, wrapper common.Address, positionID, amount *big.Int) (decimal.Decimal, error) {
	if !r.IsWhitelisted(wrapper) {
		return decimal.Decimal{}, fmt.Errorf("wrapper %s: %w", wrapper.Hex(), ErrWrapperNotWhitelisted)
	}

	underlying, err := r.wrappers.Underlying(ctx, wrapper, positionID)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("underlying of %s position %s: %w", wrapper.Hex(), positionID, err)
	}

	price, err := r.GetPrice(ctx, underlying)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromBigInt(amount, -PositionDecimals).Mul(price), nil
}

// GetTokenValue values an amount of a plain token given in its smallest
// units, scaling by the token's own decimals.
func (r *Router) GetTokenValue(ctx context.Context, asset common.Address, amount *big.Int) (decimal.Decimal, error) {
	price, err := r.GetPrice(ctx, asset)
	if err != nil {
		return decimal.Decimal{}, err
	}
	decimals, err := r.meta.Decimals(ctx, asset)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decimals of %s: %w", asset.Hex(), err)
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).Mul(price), nil
}
