package oracle

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	// BpsDenominator is the fixed-point base for basis-point ratios (10000 = 100%).
	BpsDenominator int64 = 10_000

	// MinLiquidationThreshold is the lowest accepted liquidation threshold in bps.
	MinLiquidationThreshold int64 = 1_000

	// PositionDecimals is the decimal scale of wrapped/LP position units.
	PositionDecimals int32 = 18
)

// PriceSource prices a single asset in USD per whole unit.
// A successful call never returns a zero price.
type PriceSource interface {
	// Name identifies the adapter kind in events and logs.
	Name() string
	GetPrice(ctx context.Context, asset common.Address) (decimal.Decimal, error)
}

// TokenMetadata resolves ERC20 metadata for priced assets.
type TokenMetadata interface {
	Decimals(ctx context.Context, asset common.Address) (uint8, error)
}

// WrapperResolver maps a wrapped position back to its priceable underlying asset.
type WrapperResolver interface {
	Underlying(ctx context.Context, wrapper common.Address, positionID *big.Int) (common.Address, error)
}

// VaultReader exposes the read surface of one liquidity vault and its pool.
// All values are read fresh per valuation call; implementations must not
// serve stale reserve or tick data from an earlier call.
type VaultReader interface {
	TotalSupply(ctx context.Context, vault common.Address) (*big.Int, error)
	Tokens(ctx context.Context, vault common.Address) (token0, token1 common.Address, err error)
	CurrentTick(ctx context.Context, vault common.Address) (int32, error)
	TwapWindow(ctx context.Context, vault common.Address) (time.Duration, error)
	MeanTick(ctx context.Context, vault common.Address, window time.Duration) (int32, error)
	TotalReserves(ctx context.Context, vault common.Address) (reserve0, reserve1 *big.Int, err error)
}
