package app

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"collateral-oracle/internal/chain"
	"collateral-oracle/internal/oracle"
	"collateral-oracle/internal/storage"
)

// Backfill values every configured vault over a historical block range and
// persists the resulting samples. The pricing stack is built and configured
// once; only the chain readers are re-pinned per block, so valuations
// reflect state as of that block without replaying the config audit trail.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.FromBlock == 0 || opts.ToBlock == 0 {
		return errors.New("--from-block and --to-block must be provided")
	}
	if opts.FromBlock > opts.ToBlock {
		return errors.New("--from-block must not exceed --to-block")
	}
	step := opts.Step
	if step == 0 {
		step = 1
	}

	var store *storage.Store
	var closeStore func()
	var err error
	var sampleStore storage.ShareSampleStore

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
		sampleStore = store
	}

	client := a.newChainClient()
	defer client.Close()

	comps := a.newChainComponents(client)
	adapter, err := a.newVaultAdapter(comps, oracle.NewLogEventSink(a.Logger))
	if err != nil {
		return err
	}
	if err := a.applyDeviationConfig(ctx, adapter); err != nil {
		return err
	}

	processed := 0
	failed := 0
	for block := opts.FromBlock; block <= opts.ToBlock; block += step {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		blockNum := new(big.Int).SetUint64(block)
		pinned := adapter.WithSources(comps.feeds.AtBlock(blockNum), comps.vaults.AtBlock(blockNum))

		if err := a.backfillBlock(ctx, client, pinned, sampleStore, block, blockNum); err != nil {
			failed++
			a.Logger.Error().Err(err).Uint64("block", block).Msg("backfill block failed")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("backfill complete")
	if failed > 0 {
		return errors.New("some blocks failed to backfill; check logs")
	}
	return nil
}

func (a *App) backfillBlock(ctx context.Context, client *chain.Client, adapter *oracle.VaultAdapter, sampleStore storage.ShareSampleStore, block uint64, blockNum *big.Int) error {
	bucket, err := client.BlockTime(ctx, blockNum)
	if err != nil {
		return err
	}
	if a.Config.Watcher.Interval > 0 {
		bucket = bucket.Truncate(a.Config.Watcher.Interval)
	}

	blockRef := int64(block)
	for _, vault := range a.vaultAddresses() {
		sample := storage.ShareSample{
			Bucket:      bucket,
			Vault:       vault.Hex(),
			BlockNumber: &blockRef,
			Status:      storage.SampleStatusComplete,
			CreatedAt:   time.Now().UTC(),
		}

		price, err := adapter.GetPrice(ctx, vault)
		switch {
		case err == nil:
			sample.SharePrice = price
		case errors.Is(err, oracle.ErrPriceDeviation):
			msg := err.Error()
			sample.Status = storage.SampleStatusRejected
			sample.Error = &msg
		default:
			msg := err.Error()
			sample.Status = storage.SampleStatusErrored
			sample.Error = &msg
		}

		a.Logger.Info().Uint64("block", block).
			Str("vault", vault.Hex()).
			Str("status", sample.Status).
			Str("share_price", formatDecimal(sample.SharePrice, 6)).
			Msg("backfilled vault valuation")

		if sampleStore != nil {
			if err := sampleStore.UpsertShareSample(ctx, sample); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
