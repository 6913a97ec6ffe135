package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	vaultV = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	token0 = common.HexToAddress("0x0000000000000000000000000000000000000011")
	token1 = common.HexToAddress("0x0000000000000000000000000000000000000022")
)

type fakeVaultReader struct {
	supply   *big.Int
	spotTick int32
	twapTick int32
	window   time.Duration
	reserve0 *big.Int
	reserve1 *big.Int

	supplyCalls   int
	tickCalls     int
	meanCalls     int
	reserveCalls  int
	tokensCalls   int
	windowRequest time.Duration
}

func (f *fakeVaultReader) TotalSupply(context.Context, common.Address) (*big.Int, error) {
	f.supplyCalls++
	return f.supply, nil
}

func (f *fakeVaultReader) Tokens(context.Context, common.Address) (common.Address, common.Address, error) {
	f.tokensCalls++
	return token0, token1, nil
}

func (f *fakeVaultReader) CurrentTick(context.Context, common.Address) (int32, error) {
	f.tickCalls++
	return f.spotTick, nil
}

func (f *fakeVaultReader) TwapWindow(context.Context, common.Address) (time.Duration, error) {
	return f.window, nil
}

func (f *fakeVaultReader) MeanTick(_ context.Context, _ common.Address, window time.Duration) (int32, error) {
	f.meanCalls++
	f.windowRequest = window
	return f.twapTick, nil
}

func (f *fakeVaultReader) TotalReserves(context.Context, common.Address) (*big.Int, *big.Int, error) {
	f.reserveCalls++
	return f.reserve0, f.reserve1, nil
}

type mapSource struct {
	prices map[common.Address]decimal.Decimal
	calls  int
}

func (m *mapSource) Name() string { return "feed" }

func (m *mapSource) GetPrice(_ context.Context, asset common.Address) (decimal.Decimal, error) {
	m.calls++
	price, ok := m.prices[asset]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no feed for %s: %w", asset.Hex(), ErrPriceUnavailable)
	}
	return price, nil
}

func atoms(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int literal %q", s)
	}
	return v
}

func newTestAdapter(t *testing.T, reader *fakeVaultReader, base *mapSource, sink EventSink) *VaultAdapter {
	t.Helper()
	if sink == nil {
		sink = &collectSink{}
	}
	meta := &mapMetadata{decimals: map[common.Address]uint8{token0: 18, token1: 6}}
	adapter, err := NewVaultAdapter(VaultAdapterOptions{
		Owner:               testOwner,
		MaxDeviationCap:     500,
		DefaultMaxDeviation: 100,
	}, base, reader, meta, sink, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewVaultAdapter: %v", err)
	}
	return adapter
}

func TestVaultPriceEmptyVault(t *testing.T) {
	reader := &fakeVaultReader{supply: big.NewInt(0)}
	base := &mapSource{}
	adapter := newTestAdapter(t, reader, base, nil)

	price, err := adapter.GetPrice(context.Background(), vaultV)
	if err != nil {
		t.Fatalf("empty vault must not error: %v", err)
	}
	if !price.IsZero() {
		t.Fatalf("empty vault must price at exactly 0, got %s", price)
	}
	if reader.tickCalls != 0 || reader.meanCalls != 0 || reader.reserveCalls != 0 {
		t.Fatal("empty vault must perform no tick or reserve reads")
	}
	if base.calls != 0 {
		t.Fatal("empty vault must perform no external price calls")
	}
}

func TestVaultPriceDeviationRejected(t *testing.T) {
	// 200 ticks apart is ~2% while the default limit is 100 bps.
	reader := &fakeVaultReader{
		supply:   atoms(t, "1000000000000000000"),
		spotTick: 200,
		twapTick: 0,
		window:   30 * time.Minute,
	}
	base := &mapSource{}
	adapter := newTestAdapter(t, reader, base, nil)

	_, err := adapter.GetPrice(context.Background(), vaultV)
	if !errors.Is(err, ErrPriceDeviation) {
		t.Fatalf("expected ErrPriceDeviation, got %v", err)
	}
	if reader.reserveCalls != 0 {
		t.Fatal("guard rejection must happen before any reserve read")
	}
	if base.calls != 0 {
		t.Fatal("guard rejection must happen before any external price call")
	}
}

func TestVaultPriceWorkedExample(t *testing.T) {
	// token0: 18 decimals, 100 units at $1. token1: 6 decimals, 200 units at
	// $1. Supply 1000 shares. Fair value $300, share price $0.30.
	reader := &fakeVaultReader{
		supply:   atoms(t, "1000000000000000000000"),
		spotTick: 0,
		twapTick: 0,
		window:   30 * time.Minute,
		reserve0: atoms(t, "100000000000000000000"),
		reserve1: big.NewInt(200_000_000),
	}
	base := &mapSource{prices: map[common.Address]decimal.Decimal{
		token0: decimal.NewFromInt(1),
		token1: decimal.NewFromInt(1),
	}}
	adapter := newTestAdapter(t, reader, base, nil)

	price, err := adapter.GetPrice(context.Background(), vaultV)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("expected $0.30 per share, got %s", price)
	}
	if reader.windowRequest != 30*time.Minute {
		t.Fatalf("mean tick must use the vault's configured window, got %s", reader.windowRequest)
	}
	if base.calls != 2 {
		t.Fatalf("expected one feed call per constituent, got %d", base.calls)
	}
}

func TestVaultPriceSmallDeviationAccepted(t *testing.T) {
	// 50 ticks is ~0.5% deviation, within the default 100 bps limit.
	reader := &fakeVaultReader{
		supply:   atoms(t, "1000000000000000000"),
		spotTick: 50,
		twapTick: 0,
		window:   15 * time.Minute,
		reserve0: atoms(t, "1000000000000000000"),
		reserve1: big.NewInt(1_000_000),
	}
	base := &mapSource{prices: map[common.Address]decimal.Decimal{
		token0: decimal.NewFromInt(2),
		token1: decimal.NewFromInt(1),
	}}
	adapter := newTestAdapter(t, reader, base, nil)

	price, err := adapter.GetPrice(context.Background(), vaultV)
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected $3 per share, got %s", price)
	}
}

func TestVaultPriceGuardUsesToken0Limit(t *testing.T) {
	// 50 ticks is ~50 bps: acceptable under the 100 bps default, but not
	// under a 10 bps limit configured for token0.
	newReader := func() *fakeVaultReader {
		return &fakeVaultReader{
			supply:   atoms(t, "1000000000000000000"),
			spotTick: 50,
			twapTick: 0,
			window:   15 * time.Minute,
			reserve0: atoms(t, "1000000000000000000"),
			reserve1: big.NewInt(1_000_000),
		}
	}
	base := &mapSource{prices: map[common.Address]decimal.Decimal{
		token0: decimal.NewFromInt(1),
		token1: decimal.NewFromInt(1),
	}}
	ctx := context.Background()

	adapter := newTestAdapter(t, newReader(), base, nil)
	if err := adapter.SetMaxDeviations(ctx, testOwner, []common.Address{token0}, []int64{10}); err != nil {
		t.Fatalf("SetMaxDeviations: %v", err)
	}
	if _, err := adapter.GetPrice(ctx, vaultV); !errors.Is(err, ErrPriceDeviation) {
		t.Fatalf("token0's 10 bps limit must reject a ~50 bps divergence, got %v", err)
	}

	// A limit keyed by the vault's own share token address must not affect
	// valuation; the guard only consults the constituent token.
	adapter = newTestAdapter(t, newReader(), base, nil)
	if err := adapter.SetMaxDeviations(ctx, testOwner, []common.Address{vaultV}, []int64{10}); err != nil {
		t.Fatalf("SetMaxDeviations: %v", err)
	}
	if _, err := adapter.GetPrice(ctx, vaultV); err != nil {
		t.Fatalf("a vault-keyed limit must leave the token0 default in force: %v", err)
	}
}

func TestWithSourcesSharesDeviationConfig(t *testing.T) {
	reader := &fakeVaultReader{
		supply:   atoms(t, "1000000000000000000"),
		spotTick: 50,
		twapTick: 0,
		window:   15 * time.Minute,
		reserve0: atoms(t, "1000000000000000000"),
		reserve1: big.NewInt(1_000_000),
	}
	base := &mapSource{prices: map[common.Address]decimal.Decimal{
		token0: decimal.NewFromInt(1),
		token1: decimal.NewFromInt(1),
	}}
	adapter := newTestAdapter(t, &fakeVaultReader{supply: big.NewInt(0)}, &mapSource{}, nil)

	ctx := context.Background()
	rebound := adapter.WithSources(base, reader)

	// Limits set on the original apply to the rebound copy and vice versa.
	if err := adapter.SetMaxDeviations(ctx, testOwner, []common.Address{token0}, []int64{10}); err != nil {
		t.Fatalf("SetMaxDeviations: %v", err)
	}
	if got := rebound.MaxDeviation(token0); got != 10 {
		t.Fatalf("rebound adapter must share deviation config, got %d", got)
	}
	if _, err := rebound.GetPrice(ctx, vaultV); !errors.Is(err, ErrPriceDeviation) {
		t.Fatalf("rebound adapter must enforce the shared limit, got %v", err)
	}
	if reader.tickCalls == 0 {
		t.Fatal("rebound adapter must read through its own vault reader")
	}
}

func TestVaultPriceFeedFailurePropagates(t *testing.T) {
	reader := &fakeVaultReader{
		supply:   atoms(t, "1000000000000000000"),
		window:   time.Minute,
		reserve0: big.NewInt(1),
		reserve1: big.NewInt(1),
	}
	base := &mapSource{prices: map[common.Address]decimal.Decimal{token0: decimal.NewFromInt(1)}}
	adapter := newTestAdapter(t, reader, base, nil)

	_, err := adapter.GetPrice(context.Background(), vaultV)
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("missing constituent feed must fail valuation, got %v", err)
	}
}

func TestVaultPriceZeroFeedRejected(t *testing.T) {
	reader := &fakeVaultReader{
		supply:   atoms(t, "1000000000000000000"),
		window:   time.Minute,
		reserve0: big.NewInt(1),
		reserve1: big.NewInt(1),
	}
	base := &mapSource{prices: map[common.Address]decimal.Decimal{
		token0: decimal.Zero,
		token1: decimal.NewFromInt(1),
	}}
	adapter := newTestAdapter(t, reader, base, nil)

	_, err := adapter.GetPrice(context.Background(), vaultV)
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("zero constituent price must fail valuation, got %v", err)
	}
}

func TestSetMaxDeviations(t *testing.T) {
	sink := &collectSink{}
	adapter := newTestAdapter(t, &fakeVaultReader{supply: big.NewInt(0)}, &mapSource{}, sink)
	ctx := context.Background()

	if err := adapter.SetMaxDeviations(ctx, testOwner, []common.Address{token0}, []int64{250}); err != nil {
		t.Fatalf("SetMaxDeviations: %v", err)
	}
	if got := adapter.MaxDeviation(token0); got != 250 {
		t.Fatalf("expected 250 bps, got %d", got)
	}
	if got := adapter.MaxDeviation(token1); got != 100 {
		t.Fatalf("unset asset must use the default, got %d", got)
	}
	if len(sink.events) != 1 || sink.events[0].Kind != EventDeviationSet {
		t.Fatalf("expected one deviation_set event, got %#v", sink.events)
	}
}

func TestSetMaxDeviationsAboveCap(t *testing.T) {
	adapter := newTestAdapter(t, &fakeVaultReader{supply: big.NewInt(0)}, &mapSource{}, nil)

	err := adapter.SetMaxDeviations(context.Background(), testOwner, []common.Address{token0}, []int64{501})
	if !errors.Is(err, ErrDeviationCapExceeded) {
		t.Fatalf("expected ErrDeviationCapExceeded, got %v", err)
	}
	if got := adapter.MaxDeviation(token0); got != 100 {
		t.Fatalf("rejected write must not change config, got %d", got)
	}
}

func TestSetMaxDeviationsOwnerOnly(t *testing.T) {
	adapter := newTestAdapter(t, &fakeVaultReader{supply: big.NewInt(0)}, &mapSource{}, nil)

	err := adapter.SetMaxDeviations(context.Background(), "intruder", []common.Address{token0}, []int64{100})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestSetMaxDeviationsAtomic(t *testing.T) {
	adapter := newTestAdapter(t, &fakeVaultReader{supply: big.NewInt(0)}, &mapSource{}, nil)

	err := adapter.SetMaxDeviations(context.Background(), testOwner, []common.Address{token0, token1}, []int64{100})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	if got := adapter.MaxDeviation(token0); got != 100 {
		t.Fatalf("mismatched call must not write, got %d", got)
	}
}
