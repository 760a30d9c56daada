// Package algo hosts the per-account supervisor: it wires the broker
// session, the market data stream, the trade engine and the strategies
// for one account, and runs them for the session.
package algo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"algotrader/internal/alert"
	"algotrader/internal/broker"
	"algotrader/internal/config"
	"algotrader/internal/core"
	"algotrader/internal/engine"
	"algotrader/internal/instruments"
	"algotrader/internal/marketcal"
	"algotrader/internal/models"
	"algotrader/internal/quotes"
	"algotrader/internal/snapshot"
	"algotrader/internal/strategy"
	"algotrader/pkg/retry"
)

// indexSymbols are always subscribed: strategies key off the indices
// and the VIX before any option symbol exists.
var indexSymbols = []string{"NIFTY 50", "NIFTY BANK", "INDIA VIX", "NIFTY FIN SERVICE"}

// indexQuoteWait bounds how long startup waits for the first index
// ticks before proceeding anyway.
const indexQuoteWait = 30 * time.Second

// StrategyFactory builds one strategy against the account's runtime
// dependencies.
type StrategyFactory func(deps strategy.Deps) strategy.Strategy

// Algo supervises one account for one trading session.
type Algo struct {
	account models.Account
	cfg     *config.Config
	logger  core.Logger

	gateway broker.Broker
	ticker  broker.Ticker
	quotes  *quotes.Cache
	cal     *marketcal.Calendar
	repo    *instruments.Repository
	engine  *engine.Engine
	series  *snapshot.PnLSeries

	factories []StrategyFactory

	mu     sync.Mutex
	status models.AlgoStatus
}

func New(account models.Account, cfg *config.Config, gateway broker.Broker, ticker broker.Ticker,
	holidays []string, notifier *alert.Notifier, logger core.Logger) *Algo {

	logger = logger.WithField("account", account.ShortCode)

	qc := quotes.NewCache()
	cal := marketcal.New(holidays)
	repo := instruments.NewRepository(account.ShortCode, cfg.System.DeployDir, gateway, logger)
	store := snapshot.NewStore(cfg.System.TradesDir, account.BrokerName, account.ClientID, logger)

	var series *snapshot.PnLSeries
	if cfg.System.PnLDatabase != "" {
		series = snapshot.NewPnLSeries(filepath.Join(cfg.System.DeployDir, cfg.System.PnLDatabase), logger)
	}

	exec := engine.NewExecutor(gateway, cfg.Timing.BrokerRateLimit, logger)
	eng := engine.New(engine.Config{
		ShortCode:        account.ShortCode,
		TrackInterval:    cfg.Timing.TrackInterval(),
		OrderBookRefresh: cfg.Timing.OrderBookInterval(),
	}, exec, ticker, qc, cal, repo, store, series, logger)
	eng.SetNotifier(notifier)

	return &Algo{
		account: account,
		cfg:     cfg,
		logger:  logger.WithField("component", "algo"),
		gateway: gateway,
		ticker:  ticker,
		quotes:  qc,
		cal:     cal,
		repo:    repo,
		engine:  eng,
		series:  series,
		status:  models.AlgoStatusInitiated,
	}
}

// AddStrategy registers a strategy factory; factories run at session
// start once the engine exists.
func (a *Algo) AddStrategy(factory StrategyFactory) {
	a.factories = append(a.factories, factory)
}

// Engine exposes the account's trade engine, used by control surfaces
// such as the manual strategy.
func (a *Algo) Engine() *engine.Engine { return a.engine }

func (a *Algo) Status() models.AlgoStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Algo) setStatus(s models.AlgoStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// Run drives the whole session for this account and blocks until the
// context is cancelled or startup fails.
func (a *Algo) Run(ctx context.Context, loginArgs map[string]string) error {
	defer a.setStatus(models.AlgoStatusStopped)

	if err := retry.Startup.Do(ctx, func() error {
		return a.gateway.Login(ctx, loginArgs)
	}); err != nil {
		return fmt.Errorf("broker login failed: %w", err)
	}
	a.logger.Info("broker session established", "clientId", a.account.ClientID)

	if err := retry.Startup.Do(ctx, func() error {
		return a.repo.Load(ctx)
	}); err != nil {
		return fmt.Errorf("instrument master load failed: %w", err)
	}

	a.ticker.RegisterTickListener(a.engine.OnTick)
	a.ticker.RegisterOrderUpdateListener(a.engine.OnOrderUpdate)
	if err := a.ticker.Start(ctx); err != nil {
		return fmt.Errorf("ticker start failed: %w", err)
	}
	defer a.ticker.Stop()
	if a.series != nil {
		defer a.series.Close()
	}

	if err := a.ticker.RegisterSymbols(ctx, indexSymbols); err != nil {
		return fmt.Errorf("index subscription failed: %w", err)
	}
	a.waitForIndexQuotes(ctx)

	if err := a.engine.RestoreDay(); err != nil {
		return fmt.Errorf("session restore failed: %w", err)
	}

	deps := strategy.Deps{
		ShortCode:     a.account.ShortCode,
		Logger:        a.logger,
		Trader:        a.engine,
		Quotes:        a.quotes,
		Calendar:      a.cal,
		Instruments:   a.repo,
		TrackInterval: a.cfg.Timing.TrackInterval(),
		MonitorOffset: a.cfg.Timing.MonitorOffset(),
	}
	strategies := make([]strategy.Strategy, 0, len(a.factories))
	for _, factory := range a.factories {
		s := factory(deps)
		a.engine.RegisterStrategy(s)
		strategies = append(strategies, s)
	}

	a.setStatus(models.AlgoStatusStarted)
	a.logger.Info("algo started", "strategies", len(strategies))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.engine.Run(gctx)
	})
	for _, s := range strategies {
		g.Go(func() error {
			return a.runStrategy(gctx, s)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runStrategy runs one strategy to completion. A DeregisterError takes
// the strategy out of the engine; any other failure disables it but
// never brings down the account.
func (a *Algo) runStrategy(ctx context.Context, s strategy.Strategy) error {
	err := s.Run(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if derr, ok := engine.IsDeregisterError(err); ok {
		a.logger.Warn("strategy deregistered", "strategy", derr.StrategyName, "reason", derr.Reason)
		a.engine.DeregisterStrategy(derr.StrategyName)
		return nil
	}
	a.logger.Error("strategy failed", "strategy", s.Name(), "error", err)
	s.Disable()
	a.engine.DeregisterStrategy(s.Name())
	return nil
}

// waitForIndexQuotes blocks until all index symbols have ticked at
// least once, bounded by indexQuoteWait.
func (a *Algo) waitForIndexQuotes(ctx context.Context) {
	deadline := time.Now().Add(indexQuoteWait)
	for time.Now().Before(deadline) {
		ready := true
		for _, symbol := range indexSymbols {
			if !a.quotes.Has(symbol) {
				ready = false
				break
			}
		}
		if ready {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
	a.logger.Warn("proceeding without full index quotes")
}
