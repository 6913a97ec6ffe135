package app

import (
	"context"
	"errors"
	"math/big"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"collateral-oracle/internal/alerting"
	"collateral-oracle/internal/chain"
	"collateral-oracle/internal/config"
	"collateral-oracle/internal/oracle"
	"collateral-oracle/internal/scheduler"
	"collateral-oracle/internal/service"
	"collateral-oracle/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// oracleStack bundles the wired pricing components for one view of the chain.
type oracleStack struct {
	client  *chain.Client
	router  *oracle.Router
	adapter *oracle.VaultAdapter
}

func (a *App) newChainClient() *chain.Client {
	return chain.NewClient(chain.Options{
		RPCURL:  a.Config.Ethereum.RPCURL,
		Timeout: a.Config.Ethereum.RequestTimeout,
	}, a.Logger)
}

// chainComponents are the chain-backed collaborators of the pricing stack.
type chainComponents struct {
	feeds    *chain.FeedRegistry
	meta     *chain.Metadata
	wrappers *chain.WrapperResolver
	vaults   *chain.VaultReader
}

func (a *App) newChainComponents(client *chain.Client) chainComponents {
	feedMap := make(map[common.Address]common.Address, len(a.Config.Oracle.Feeds))
	for _, feed := range a.Config.Oracle.Feeds {
		feedMap[common.HexToAddress(feed.Asset)] = common.HexToAddress(feed.Aggregator)
	}

	return chainComponents{
		feeds:    chain.NewFeedRegistry(client, feedMap, a.Logger),
		meta:     chain.NewMetadata(client),
		wrappers: chain.NewWrapperResolver(client),
		vaults:   chain.NewVaultReader(client, a.Logger),
	}
}

func (a *App) newVaultAdapter(comps chainComponents, events oracle.EventSink) (*oracle.VaultAdapter, error) {
	cfg := a.Config.Oracle
	return oracle.NewVaultAdapter(oracle.VaultAdapterOptions{
		Owner:               cfg.Owner,
		MaxDeviationCap:     cfg.MaxDeviationCapBps,
		DefaultMaxDeviation: cfg.DefaultDeviationBps,
	}, comps.feeds, comps.vaults, comps.meta, events, a.Logger)
}

// buildOracle wires the router, feed registry, and vault adapter over the
// given client, then applies the configured routes, thresholds, whitelist,
// and deviation limits as the configured owner. A non-nil block pins all
// on-chain reads to that block.
func (a *App) buildOracle(ctx context.Context, client *chain.Client, events oracle.EventSink, block *big.Int) (*oracleStack, error) {
	comps := a.newChainComponents(client)
	if block != nil {
		comps.feeds = comps.feeds.AtBlock(block)
		comps.wrappers = comps.wrappers.AtBlock(block)
		comps.vaults = comps.vaults.AtBlock(block)
	}

	adapter, err := a.newVaultAdapter(comps, events)
	if err != nil {
		return nil, err
	}

	router := oracle.NewRouter(oracle.RouterOptions{Owner: a.Config.Oracle.Owner}, comps.meta, comps.wrappers, events, a.Logger)

	if err := a.applyOracleConfig(ctx, router, adapter, comps.feeds); err != nil {
		return nil, err
	}

	return &oracleStack{client: client, router: router, adapter: adapter}, nil
}

func (a *App) applyOracleConfig(ctx context.Context, router *oracle.Router, adapter *oracle.VaultAdapter, feeds *chain.FeedRegistry) error {
	cfg := a.Config.Oracle
	owner := cfg.Owner

	var (
		routeAssets   []common.Address
		routeAdapters []oracle.PriceSource
		threshAssets  []common.Address
		thresholds    []int64
	)

	for _, feed := range cfg.Feeds {
		asset := common.HexToAddress(feed.Asset)
		routeAssets = append(routeAssets, asset)
		routeAdapters = append(routeAdapters, feeds)
		if feed.LiquidationThresholdBps > 0 {
			threshAssets = append(threshAssets, asset)
			thresholds = append(thresholds, feed.LiquidationThresholdBps)
		}
	}

	for _, vault := range cfg.Vaults {
		addr := common.HexToAddress(vault.Address)
		routeAssets = append(routeAssets, addr)
		routeAdapters = append(routeAdapters, adapter)
		if vault.LiquidationThresholdBps > 0 {
			threshAssets = append(threshAssets, addr)
			thresholds = append(thresholds, vault.LiquidationThresholdBps)
		}
	}

	if len(routeAssets) > 0 {
		if err := router.SetRoutes(ctx, owner, routeAssets, routeAdapters); err != nil {
			return err
		}
	}
	if len(threshAssets) > 0 {
		if err := router.SetLiquidationThresholds(ctx, owner, threshAssets, thresholds); err != nil {
			return err
		}
	}
	if len(cfg.Wrappers) > 0 {
		wrapperAddrs := make([]common.Address, 0, len(cfg.Wrappers))
		for _, w := range cfg.Wrappers {
			wrapperAddrs = append(wrapperAddrs, common.HexToAddress(w.Address))
		}
		if err := router.SetWrapperWhitelist(ctx, owner, wrapperAddrs, true); err != nil {
			return err
		}
	}
	return a.applyDeviationConfig(ctx, adapter)
}

// applyDeviationConfig sets per-token deviation limits from the feed
// entries. The limits are keyed by the constituent token a pool tick
// prices, not by any vault address.
func (a *App) applyDeviationConfig(ctx context.Context, adapter *oracle.VaultAdapter) error {
	var (
		assets []common.Address
		limits []int64
	)
	for _, feed := range a.Config.Oracle.Feeds {
		if feed.MaxDeviationBps > 0 {
			assets = append(assets, common.HexToAddress(feed.Asset))
			limits = append(limits, feed.MaxDeviationBps)
		}
	}
	if len(assets) == 0 {
		return nil
	}
	return adapter.SetMaxDeviations(ctx, a.Config.Oracle.Owner, assets, limits)
}

func (a *App) vaultAddresses() []common.Address {
	vaults := make([]common.Address, 0, len(a.Config.Oracle.Vaults))
	for _, vault := range a.Config.Oracle.Vaults {
		vaults = append(vaults, common.HexToAddress(vault.Address))
	}
	return vaults
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running valuation watcher.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var events oracle.EventSink = oracle.NewLogEventSink(a.Logger)
	if store != nil {
		events = storage.NewEventSink(store, a.Logger)
	}

	client := a.newChainClient()
	defer client.Close()

	stack, err := a.buildOracle(ctx, client, events, nil)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Watcher.Interval,
		AlignToStart: a.Config.Watcher.AlignToBucket,
		StartupDelay: a.Config.Watcher.StartupDelay,
	}, a.Logger)

	notifier := a.newNotifier()

	var sampleStore storage.ShareSampleStore
	var alertStore storage.AlertStore
	if store != nil {
		sampleStore = store
		alertStore = store
	}

	svc := service.New(a.Config, sched, stack.router, a.vaultAddresses(), sampleStore, alertStore, notifier, client.BlockNumber, a.Logger)

	a.Logger.Info().Int("vaults", len(a.Config.Oracle.Vaults)).Msg("starting valuation watcher")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("valuation watcher stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	Vault     string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Events bool
	Alerts bool
}

// BackfillOptions configure the historical valuation job.
type BackfillOptions struct {
	FromBlock uint64
	ToBlock   uint64
	Step      uint64
	DryRun    bool
}

// PriceOptions configure the one-shot price command.
type PriceOptions struct {
	Asset string
	Block uint64
}
