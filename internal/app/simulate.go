package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"collateral-oracle/internal/oracle"
	"collateral-oracle/internal/service"
)

// SimulateAlert exercises the full alert path with a fabricated guard trip,
// without touching the chain or the database.
func (a *App) SimulateAlert(ctx context.Context, vault string, deviationBps int64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}
	if !common.IsHexAddress(vault) {
		return fmt.Errorf("--vault %q is not a hex address", vault)
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	addr := common.HexToAddress(vault)
	prices := &trippedPrices{deviationBps: deviationBps}

	svc := service.New(a.Config, nil, prices, []common.Address{addr}, nil, nil, notifier, nil, a.Logger)

	bucket := time.Now().UTC().Truncate(a.Config.Watcher.Interval)
	return svc.ProcessBucket(ctx, bucket)
}

// trippedPrices always reports a deviation rejection.
type trippedPrices struct {
	deviationBps int64
}

func (t *trippedPrices) GetPrice(context.Context, common.Address) (decimal.Decimal, error) {
	return decimal.Zero, fmt.Errorf("simulated tick deviation of %d bps: %w", t.deviationBps, oracle.ErrPriceDeviation)
}

var _ service.PriceGetter = (*trippedPrices)(nil)
