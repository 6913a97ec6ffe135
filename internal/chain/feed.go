package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"collateral-oracle/internal/oracle"
)

// FeedRegistry prices plain tokens through per-token aggregator feeds
// (Chainlink latestRoundData interface). It is the trusted base oracle the
// vault adapter consults for constituent legs.
type FeedRegistry struct {
	client *Client
	block  *big.Int
	feeds  map[common.Address]common.Address
	logger zerolog.Logger

	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

// NewFeedRegistry maps each asset to its aggregator contract.
func NewFeedRegistry(client *Client, feeds map[common.Address]common.Address, logger zerolog.Logger) *FeedRegistry {
	return &FeedRegistry{
		client:   client,
		feeds:    feeds,
		logger:   logger.With().Str("component", "feed_registry").Logger(),
		decimals: make(map[common.Address]uint8),
	}
}

// AtBlock returns a view of the registry pinned to a historical block.
// The decimals cache is shared; feed scales are immutable.
func (f *FeedRegistry) AtBlock(block *big.Int) *FeedRegistry {
	return &FeedRegistry{
		client:   f.client,
		block:    block,
		feeds:    f.feeds,
		logger:   f.logger,
		decimals: f.decimals,
	}
}

// Name identifies the adapter kind.
func (f *FeedRegistry) Name() string { return "chainlink_feed" }

// GetPrice reads the latest aggregator answer for the asset as USD per whole
// unit. Stale, missing, or non-positive answers fail the call.
func (f *FeedRegistry) GetPrice(ctx context.Context, asset common.Address) (decimal.Decimal, error) {
	aggregator, ok := f.feeds[asset]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no feed for %s: %w", asset.Hex(), oracle.ErrPriceUnavailable)
	}

	scale, err := f.feedDecimals(ctx, aggregator)
	if err != nil {
		return decimal.Decimal{}, err
	}

	outputs, err := f.client.Call(ctx, aggregator, aggregatorABI, f.block, "latestRoundData")
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("latestRoundData: %w", err)
	}
	if len(outputs) != 5 {
		return decimal.Decimal{}, fmt.Errorf("unexpected latestRoundData response of %s", aggregator.Hex())
	}
	answer, err := asBigInt(outputs[1])
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("answer: %w", err)
	}
	if answer.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("feed %s answered %s: %w", aggregator.Hex(), answer, oracle.ErrPriceUnavailable)
	}

	return decimal.NewFromBigInt(answer, -int32(scale)), nil
}

func (f *FeedRegistry) feedDecimals(ctx context.Context, aggregator common.Address) (uint8, error) {
	f.mu.RLock()
	scale, ok := f.decimals[aggregator]
	f.mu.RUnlock()
	if ok {
		return scale, nil
	}

	outputs, err := f.client.Call(ctx, aggregator, aggregatorABI, nil, "decimals")
	if err != nil {
		return 0, fmt.Errorf("feed decimals: %w", err)
	}
	scale, ok = outputs[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("expected uint8 decimals, got %T", outputs[0])
	}

	f.mu.Lock()
	f.decimals[aggregator] = scale
	f.mu.Unlock()
	return scale, nil
}

var _ oracle.PriceSource = (*FeedRegistry)(nil)
