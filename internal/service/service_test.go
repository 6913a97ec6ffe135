package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"collateral-oracle/internal/alerting"
	"collateral-oracle/internal/config"
	"collateral-oracle/internal/oracle"
	"collateral-oracle/internal/storage"
)

type fakePrices struct {
	prices map[common.Address]decimal.Decimal
	errs   map[common.Address]error
	calls  int
}

func (f *fakePrices) GetPrice(_ context.Context, asset common.Address) (decimal.Decimal, error) {
	f.calls++
	if err, ok := f.errs[asset]; ok {
		return decimal.Zero, err
	}
	if price, ok := f.prices[asset]; ok {
		return price, nil
	}
	return decimal.Zero, oracle.ErrNoRoute
}

type fakeSampleStore struct {
	samples []storage.ShareSample
	err     error
}

func (f *fakeSampleStore) UpsertShareSample(_ context.Context, sample storage.ShareSample) error {
	if f.err != nil {
		return f.err
	}
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeSampleStore) ListSamplesBetween(context.Context, string, time.Time, time.Time) ([]storage.ShareSample, error) {
	return nil, nil
}

func (f *fakeSampleStore) ListRecentSamples(context.Context, int) ([]storage.ShareSample, error) {
	return nil, nil
}

type lockingSampleStore struct {
	fakeSampleStore
	acquired  bool
	lockCalls int
	unlocks   int
}

func (f *lockingSampleStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	f.lockCalls++
	if !f.acquired {
		return nil, false, nil
	}
	return func() { f.unlocks++ }, true, nil
}

type fakeAlertStore struct {
	alerts []storage.AlertRecord
}

func (f *fakeAlertStore) InsertAlert(_ context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	f.alerts = append(f.alerts, alert)
	return alert, nil
}

func (f *fakeAlertStore) ListRecentAlerts(context.Context, int) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (f *fakeAlertStore) DeleteAlertsBefore(context.Context, time.Time) error { return nil }

type fakeNotifier struct {
	notes []alerting.Notification
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	f.notes = append(f.notes, note)
	return f.err
}

var (
	_ storage.ShareSampleStore = (*fakeSampleStore)(nil)
	_ storage.AdvisoryLocker   = (*lockingSampleStore)(nil)
	_ storage.AlertStore       = (*fakeAlertStore)(nil)
	_ alerting.Notifier        = (*fakeNotifier)(nil)
)

func testConfig() *config.Config {
	return &config.Config{
		Alerting: config.AlertingConfig{
			Enabled:  true,
			Channels: []string{"telegram"},
		},
	}
}

func TestProcessBucketPersistsCompleteSample(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	prices := &fakePrices{prices: map[common.Address]decimal.Decimal{
		vault: decimal.RequireFromString("1.25"),
	}}
	store := &fakeSampleStore{}
	alerts := &fakeAlertStore{}
	notifier := &fakeNotifier{}

	svc := New(testConfig(), nil, prices, []common.Address{vault}, store, alerts, notifier, nil, zerolog.Nop())

	bucket := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}

	if len(store.samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(store.samples))
	}
	sample := store.samples[0]
	if sample.Status != storage.SampleStatusComplete {
		t.Fatalf("expected status complete, got %q", sample.Status)
	}
	if !sample.SharePrice.Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("unexpected share price %s", sample.SharePrice)
	}
	if sample.Vault != vault.Hex() {
		t.Fatalf("unexpected vault %q", sample.Vault)
	}
	if len(notifier.notes) != 0 {
		t.Fatalf("expected no alerts for a healthy valuation, got %d", len(notifier.notes))
	}
}

func TestProcessBucketRejectedValuationAlerts(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	prices := &fakePrices{errs: map[common.Address]error{
		vault: oracle.ErrPriceDeviation,
	}}
	store := &fakeSampleStore{}
	alerts := &fakeAlertStore{}
	notifier := &fakeNotifier{}

	svc := New(testConfig(), nil, prices, []common.Address{vault}, store, alerts, notifier, nil, zerolog.Nop())

	bucket := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}

	if len(store.samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(store.samples))
	}
	if store.samples[0].Status != storage.SampleStatusRejected {
		t.Fatalf("expected status rejected, got %q", store.samples[0].Status)
	}
	if store.samples[0].Error == nil {
		t.Fatal("expected error detail on rejected sample")
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(notifier.notes))
	}
	if notifier.notes[0].Reason != alerting.ReasonDeviation {
		t.Fatalf("expected deviation reason, got %q", notifier.notes[0].Reason)
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("expected 1 persisted alert, got %d", len(alerts.alerts))
	}
	if alerts.alerts[0].SampleTS != bucket {
		t.Fatalf("alert sample_ts = %v, want %v", alerts.alerts[0].SampleTS, bucket)
	}
}

func TestProcessBucketUnavailableValuationAlerts(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	prices := &fakePrices{errs: map[common.Address]error{
		vault: errors.New("rpc timed out"),
	}}
	store := &fakeSampleStore{}
	notifier := &fakeNotifier{}

	svc := New(testConfig(), nil, prices, []common.Address{vault}, store, nil, notifier, nil, zerolog.Nop())

	if err := svc.ProcessBucket(context.Background(), time.Now()); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}

	if store.samples[0].Status != storage.SampleStatusErrored {
		t.Fatalf("expected status errored, got %q", store.samples[0].Status)
	}
	if len(notifier.notes) != 1 || notifier.notes[0].Reason != alerting.ReasonUnavailable {
		t.Fatalf("expected one unavailable alert, got %+v", notifier.notes)
	}
}

func TestProcessBucketAlertingDisabled(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000dd")
	prices := &fakePrices{errs: map[common.Address]error{
		vault: oracle.ErrPriceDeviation,
	}}
	store := &fakeSampleStore{}
	notifier := &fakeNotifier{}

	cfg := testConfig()
	cfg.Alerting.Enabled = false
	svc := New(cfg, nil, prices, []common.Address{vault}, store, nil, notifier, nil, zerolog.Nop())

	if err := svc.ProcessBucket(context.Background(), time.Now()); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}
	if len(notifier.notes) != 0 {
		t.Fatalf("expected no notifications when alerting disabled, got %d", len(notifier.notes))
	}
	if store.samples[0].Status != storage.SampleStatusRejected {
		t.Fatalf("rejected sample still must be persisted, got %q", store.samples[0].Status)
	}
}

func TestProcessBucketSkipsWhenLockHeld(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	prices := &fakePrices{prices: map[common.Address]decimal.Decimal{
		vault: decimal.NewFromInt(1),
	}}
	store := &lockingSampleStore{acquired: false}

	cfg := testConfig()
	cfg.Watcher.AdvisoryLockKey = 42
	svc := New(cfg, nil, prices, []common.Address{vault}, store, nil, nil, nil, zerolog.Nop())

	if err := svc.ProcessBucket(context.Background(), time.Now()); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}
	if store.lockCalls != 1 {
		t.Fatalf("expected 1 lock attempt, got %d", store.lockCalls)
	}
	if prices.calls != 0 {
		t.Fatalf("expected no valuations while lock held elsewhere, got %d", prices.calls)
	}
	if len(store.samples) != 0 {
		t.Fatalf("expected no samples while lock held elsewhere, got %d", len(store.samples))
	}
}

func TestProcessBucketReleasesLock(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	prices := &fakePrices{prices: map[common.Address]decimal.Decimal{
		vault: decimal.NewFromInt(2),
	}}
	store := &lockingSampleStore{acquired: true}

	cfg := testConfig()
	cfg.Watcher.AdvisoryLockKey = 42
	svc := New(cfg, nil, prices, []common.Address{vault}, store, nil, nil, nil, zerolog.Nop())

	if err := svc.ProcessBucket(context.Background(), time.Now()); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}
	if store.unlocks != 1 {
		t.Fatalf("expected lock released once, got %d", store.unlocks)
	}
	if len(store.samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(store.samples))
	}
	if store.samples[0].Status != storage.SampleStatusComplete {
		t.Fatalf("expected status complete, got %q", store.samples[0].Status)
	}
}

func TestProcessBucketAnnotatesBlockNumber(t *testing.T) {
	vault := common.HexToAddress("0x0000000000000000000000000000000000000011")
	prices := &fakePrices{prices: map[common.Address]decimal.Decimal{
		vault: decimal.NewFromInt(3),
	}}
	store := &fakeSampleStore{}
	head := func(context.Context) (uint64, error) { return 19_000_000, nil }

	svc := New(testConfig(), nil, prices, []common.Address{vault}, store, nil, nil, head, zerolog.Nop())

	if err := svc.ProcessBucket(context.Background(), time.Now()); err != nil {
		t.Fatalf("ProcessBucket: %v", err)
	}
	if store.samples[0].BlockNumber == nil || *store.samples[0].BlockNumber != 19_000_000 {
		t.Fatalf("expected block number annotation, got %+v", store.samples[0].BlockNumber)
	}
}
