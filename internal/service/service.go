package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"collateral-oracle/internal/alerting"
	"collateral-oracle/internal/config"
	"collateral-oracle/internal/oracle"
	"collateral-oracle/internal/scheduler"
	"collateral-oracle/internal/storage"
)

// PriceGetter is the slice of the router the watcher needs.
type PriceGetter interface {
	GetPrice(ctx context.Context, asset common.Address) (decimal.Decimal, error)
}

// HeadFunc reports the current chain head for sample annotation. Optional.
type HeadFunc func(ctx context.Context) (uint64, error)

// Service periodically values every watched vault, persists the samples,
// and raises alerts when a valuation is rejected or fails.
type Service struct {
	scheduler  *scheduler.Scheduler
	prices     PriceGetter
	vaults     []common.Address
	store      storage.ShareSampleStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	head       HeadFunc
	logger     zerolog.Logger

	channels []string
	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64
}

// New constructs the watcher service.
func New(cfg *config.Config, sched *scheduler.Scheduler, prices PriceGetter, vaults []common.Address, store storage.ShareSampleStore, alertStore storage.AlertStore, notifier alerting.Notifier, head HeadFunc, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		prices:     prices,
		vaults:     vaults,
		store:      store,
		alertStore: alertStore,
		notifier:   notifier,
		head:       head,
		logger:     logger.With().Str("component", "service").Logger(),
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		locker:     locker,
		lockKey:    cfg.Watcher.AdvisoryLockKey,
	}
}

// Run begins the aligned valuation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket values every watched vault for a single time bucket.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	var block *int64
	if s.head != nil {
		if head, headErr := s.head(ctx); headErr == nil {
			v := int64(head)
			block = &v
		}
	}

	for _, vault := range s.vaults {
		s.processVault(ctx, bucket, vault, block)
	}
	return nil
}

func (s *Service) processVault(ctx context.Context, bucket time.Time, vault common.Address, block *int64) {
	sample := storage.ShareSample{
		Bucket:      bucket,
		Vault:       vault.Hex(),
		BlockNumber: block,
		Status:      storage.SampleStatusComplete,
		CreatedAt:   time.Now().UTC(),
	}

	price, err := s.prices.GetPrice(ctx, vault)
	switch {
	case err == nil:
		sample.SharePrice = price
		s.logger.Info().Time("bucket", bucket).
			Str("vault", vault.Hex()).
			Str("share_price", price.StringFixed(6)).
			Msg("vault valued")

	case errors.Is(err, oracle.ErrPriceDeviation):
		msg := err.Error()
		sample.Status = storage.SampleStatusRejected
		sample.Error = &msg
		s.logger.Warn().Time("bucket", bucket).Str("vault", vault.Hex()).Err(err).Msg("valuation rejected")
		s.raiseAlert(ctx, bucket, vault, alerting.ReasonDeviation, msg)

	default:
		msg := err.Error()
		sample.Status = storage.SampleStatusErrored
		sample.Error = &msg
		s.logger.Error().Time("bucket", bucket).Str("vault", vault.Hex()).Err(err).Msg("valuation failed")
		s.raiseAlert(ctx, bucket, vault, alerting.ReasonUnavailable, msg)
	}

	if s.store != nil {
		if err := s.store.UpsertShareSample(ctx, sample); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Str("vault", vault.Hex()).Msg("failed to upsert sample")
		}
	}
}

func (s *Service) raiseAlert(ctx context.Context, bucket time.Time, vault common.Address, reason, detail string) {
	if !s.alertsOn || s.notifier == nil {
		return
	}

	if s.alertStore != nil {
		record := storage.AlertRecord{
			Vault:    vault.Hex(),
			SampleTS: bucket,
			Reason:   reason,
			Detail:   detail,
			Channels: s.channels,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist alert record")
		}
	}

	note := alerting.Notification{
		Bucket:   bucket,
		Vault:    vault.Hex(),
		Reason:   reason,
		Detail:   detail,
		Channels: s.channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to dispatch alert")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
