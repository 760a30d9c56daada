package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/core"
	"algotrader/internal/instruments"
	"algotrader/internal/marketcal"
	"algotrader/internal/models"
	"algotrader/internal/quotes"
)

// vixBaseline divides the India VIX reading for the volatility scaling
// of strategy-level stops and targets.
const vixBaseline = 16.0

// lotsPollInterval is how often the wait sentinel in the lots table is
// re-checked.
const lotsPollInterval = 2 * time.Second

// Admission errors returned by ShouldPlaceTrade. The engine records the
// reason on the disabled trade.
var (
	ErrInvalidQuantity    = errors.New("Invalid Quantity")
	ErrNoNewTradesCutOff  = errors.New("NoNewTradesCutOffTimeReached")
	ErrMaxTradesPerDayHit = errors.New("MaxTradesPerDayReached")
)

// Deps bundles the engine services every strategy needs.
type Deps struct {
	ShortCode   string
	Logger      core.Logger
	Trader      Trader
	Quotes      *quotes.Cache
	Calendar    *marketcal.Calendar
	Instruments *instruments.Repository

	// TrackInterval and MonitorOffset align the strategy loop with the
	// engine's reconciliation cadence. A zero interval falls back to 5s
	// with a 3s offset.
	TrackInterval time.Duration
	MonitorOffset time.Duration
}

// Params configures a BaseStrategy. Zero fields fall back to the
// common defaults: BANKNIFTY weekly options on NFO, MIS product, one
// trade per day, start at the opening bell.
type Params struct {
	Name            string
	Symbol          string
	Exchange        string
	ProductType     models.ProductType
	IsFnO           bool
	ExpiryDay       time.Weekday
	MaxTradesPerDay int
	Multiple        int64

	// RunConfig is the lots table: index 0 applies on expiry day,
	// indexes counted from the end apply N trading days before expiry,
	// indexes 1..5 apply by weekday (Monday=1). -1 means "not decided
	// yet, wait".
	RunConfig []int64

	StrategySL     decimal.Decimal // negative, per lot
	StrategyTarget decimal.Decimal // positive, per lot
	VIXThreshold   decimal.Decimal

	StartTime     time.Time
	StopTime      time.Time
	SquareOffTime time.Time

	// Process runs once per cycle after the health check; this is where
	// a concrete strategy creates trades.
	Process func(ctx context.Context) error
	// TrailingSL computes the stop for an active trade; nil or a zero
	// return means no trailing.
	TrailingSL func(trade *models.Trade) decimal.Decimal
}

// BaseStrategy carries the session gates, the lots table, the
// volatility scaling and the strategy-level stop ratchet shared by all
// strategies.
type BaseStrategy struct {
	deps   Deps
	logger core.Logger

	name            string
	symbol          string
	exchange        string
	productType     models.ProductType
	isFnO           bool
	expiryDay       time.Weekday
	maxTradesPerDay int
	multiple        int64
	runConfig       []int64
	vixThreshold    decimal.Decimal

	startTime     time.Time
	stopTime      time.Time
	squareOffTime time.Time

	process    func(ctx context.Context) error
	trailingSL func(trade *models.Trade) decimal.Decimal

	mu             sync.Mutex
	enabled        bool
	strategySL     decimal.Decimal
	strategyTarget decimal.Decimal
	restored       bool
}

func NewBaseStrategy(deps Deps, params Params) *BaseStrategy {
	if params.Symbol == "" {
		params.Symbol = "BANKNIFTY"
	}
	if params.Exchange == "" {
		params.Exchange = "NFO"
	}
	if params.ProductType == "" {
		params.ProductType = models.ProductMIS
	}
	if params.ExpiryDay == 0 {
		params.ExpiryDay = marketcal.DefaultWeeklyExpiryDay
	}
	if params.MaxTradesPerDay == 0 {
		params.MaxTradesPerDay = 1
	}
	if params.Multiple == 0 {
		params.Multiple = 1
	}
	if len(params.RunConfig) == 0 {
		params.RunConfig = []int64{0, -1, -1, -1, -1, -1, 0, 0, 0, 0}
	}
	if deps.TrackInterval <= 0 {
		deps.TrackInterval = 5 * time.Second
		deps.MonitorOffset = 3 * time.Second
	}
	if deps.MonitorOffset < 0 {
		deps.MonitorOffset = 0
	}
	now := deps.Calendar.Now()
	if params.StartTime.IsZero() {
		params.StartTime = marketcal.MarketStart(now)
	}

	return &BaseStrategy{
		deps:            deps,
		logger:          deps.Logger.WithField("strategy", params.Name),
		name:            params.Name,
		symbol:          params.Symbol,
		exchange:        params.Exchange,
		productType:     params.ProductType,
		isFnO:           true,
		expiryDay:       params.ExpiryDay,
		maxTradesPerDay: params.MaxTradesPerDay,
		multiple:        params.Multiple,
		runConfig:       params.RunConfig,
		vixThreshold:    params.VIXThreshold,
		startTime:       params.StartTime,
		stopTime:        params.StopTime,
		squareOffTime:   params.SquareOffTime,
		process:         params.Process,
		trailingSL:      params.TrailingSL,
		enabled:         true,
		strategySL:      params.StrategySL,
		strategyTarget:  params.StrategyTarget,
	}
}

func (s *BaseStrategy) Name() string { return s.name }

func (s *BaseStrategy) Symbol() string { return s.symbol }

func (s *BaseStrategy) Exchange() string { return s.exchange }

func (s *BaseStrategy) ExpiryDay() time.Weekday { return s.expiryDay }

func (s *BaseStrategy) StartTime() time.Time { return s.startTime }

func (s *BaseStrategy) StopTime() time.Time { return s.stopTime }

func (s *BaseStrategy) SquareOffTime() time.Time { return s.squareOffTime }

func (s *BaseStrategy) MaxTradesPerDay() int { return s.maxTradesPerDay }

func (s *BaseStrategy) Logger() core.Logger { return s.logger }

func (s *BaseStrategy) Deps() Deps { return s.deps }

func (s *BaseStrategy) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *BaseStrategy) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
}

// State returns the persistable strategy state.
func (s *BaseStrategy) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Enabled: s.enabled, StrategySL: s.strategySL, StrategyTarget: s.strategyTarget}
}

// Restore applies a snapshot taken earlier today. A restored strategy
// skips the start-of-day gates since its stops were already scaled.
func (s *BaseStrategy) Restore(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = state.Enabled
	s.strategySL = state.StrategySL
	s.strategyTarget = state.StrategyTarget
	s.restored = true
}

// StrategySL returns the current strategy-level stop, per lot.
func (s *BaseStrategy) StrategySL() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategySL
}

// StrategyTarget returns the current strategy-level target, per lot.
func (s *BaseStrategy) StrategyTarget() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategyTarget
}

// ShouldPlaceTrade is the admission gate run before the entry order is
// placed.
func (s *BaseStrategy) ShouldPlaceTrade(trade *models.Trade) error {
	if trade.Qty == 0 {
		return ErrInvalidQuantity
	}
	if !s.stopTime.IsZero() && s.deps.Calendar.Now().After(s.stopTime) {
		return ErrNoNewTradesCutOff
	}
	if len(s.deps.Trader.TradesFor(s.name)) >= s.maxTradesPerDay {
		return ErrMaxTradesPerDayHit
	}
	return nil
}

// TrailingSL computes the stop for an active trade; zero means leave
// the stop alone.
func (s *BaseStrategy) TrailingSL(trade *models.Trade) decimal.Decimal {
	if s.trailingSL == nil {
		return decimal.Decimal{}
	}
	return s.trailingSL(trade)
}

// Lots returns today's lot count for this strategy scaled by the
// account multiple, halved on expiry-coincidence days. -1 propagates
// the wait sentinel.
func (s *BaseStrategy) Lots() int64 {
	configured := s.configuredLots()
	if configured == -1 {
		return -1
	}
	lots := float64(configured * s.multiple)

	cal := s.deps.Calendar
	niftyExpiry := cal.IsTodayWeeklyExpiry(time.Thursday)
	bankNiftyExpiry := cal.IsTodayWeeklyExpiry(time.Wednesday)
	finNiftyExpiry := cal.IsTodayWeeklyExpiry(time.Tuesday)

	if niftyExpiry && bankNiftyExpiry {
		lots *= 0.5
	}
	if finNiftyExpiry && bankNiftyExpiry {
		lots *= 0.5
	}
	if niftyExpiry && finNiftyExpiry && bankNiftyExpiry {
		lots *= 0.33
	}
	return int64(math.Ceil(lots))
}

func (s *BaseStrategy) configuredLots() int64 {
	cal := s.deps.Calendar
	if cal.IsTodayWeeklyExpiry(s.expiryDay) {
		return s.runConfig[0]
	}
	days := cal.DaysBeforeWeeklyExpiry(s.expiryDay)
	if days > 0 && days < len(s.runConfig) && s.runConfig[len(s.runConfig)-days] > 0 {
		return s.runConfig[len(s.runConfig)-days]
	}
	dayOfWeek := int(cal.Now().Weekday()) // Monday=1 .. Friday=5
	if dayOfWeek >= 1 && dayOfWeek <= 5 {
		return s.runConfig[dayOfWeek]
	}
	return 0
}

// CanTradeToday blocks while the lots table answers "wait" (-1) and
// then reports whether any lots are configured for today.
func (s *BaseStrategy) CanTradeToday(ctx context.Context) (bool, error) {
	for s.Lots() == -1 {
		if err := sleepCtx(ctx, lotsPollInterval); err != nil {
			return false, err
		}
	}
	return s.Lots() > 0, nil
}

// VIXAdjustment scales stops and targets by sqrt(VIX/16) so wider
// markets get wider brackets. Returns 1 while the VIX has not ticked.
func (s *BaseStrategy) VIXAdjustment() decimal.Decimal {
	vix := s.deps.Trader.CMP("INDIA VIX")
	if !vix.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(math.Sqrt(vix.InexactFloat64() / vixBaseline))
}

// CheckHealth evaluates the strategy-level stop and target against the
// aggregate P&L and squares off the whole strategy when either is hit.
// It also ratchets the stop upward as profit accrues.
func (s *BaseStrategy) CheckHealth(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	reason, hit := s.targetOrSLHit()
	if !hit {
		return
	}
	if err := s.deps.Trader.SquareOffStrategy(ctx, s.name, reason); err != nil {
		s.logger.Error("strategy square off failed", "reason", reason, "error", err)
	}
}

func (s *BaseStrategy) targetOrSLHit() (models.ExitReason, bool) {
	lots := s.Lots()
	if lots <= 0 {
		return models.ExitReasonNone, false
	}
	lotsDec := decimal.NewFromInt(lots)

	totalPnL := decimal.Decimal{}
	for _, trade := range s.deps.Trader.TradesFor(s.name) {
		totalPnL = totalPnL.Add(trade.PnL)
	}
	pnlPerLot := totalPnL.Div(lotsDec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.strategySL.IsZero() && s.strategyTarget.IsZero() {
		return models.ExitReasonNone, false
	}

	switch {
	case totalPnL.LessThan(s.strategySL.Mul(lotsDec)):
		if s.strategySL.IsNegative() {
			s.logger.Warn("strategy SL hit", "strategySL", s.strategySL, "pnlPerLot", pnlPerLot)
			return models.ExitReasonStrategySLHit, true
		}
		if s.strategySL.IsPositive() {
			s.logger.Warn("strategy trail SL hit", "strategySL", s.strategySL, "pnlPerLot", pnlPerLot)
			return models.ExitReasonStrategyTrailSL, true
		}
	case s.strategyTarget.IsPositive() && totalPnL.GreaterThan(s.strategyTarget.Mul(lotsDec)):
		// Target reached: lock in 90% of the profit per lot and trail
		// from here on.
		s.strategySL = pnlPerLot.Mul(decimal.NewFromFloat(0.9))
		s.logger.Warn("strategy target hit, trailing from here",
			"strategyTarget", s.strategyTarget, "pnlPerLot", pnlPerLot, "newSL", s.strategySL)
		s.strategyTarget = decimal.Decimal{}
	case s.strategySL.IsPositive() && s.strategySL.Mul(decimal.NewFromFloat(1.2)).LessThan(pnlPerLot):
		s.strategySL = pnlPerLot.Mul(decimal.NewFromFloat(0.9))
		s.logger.Warn("ratcheted strategy SL", "newSL", s.strategySL, "pnlPerLot", pnlPerLot)
	}
	return models.ExitReasonNone, false
}

// Run executes the session: start-of-day gates, then the per-cycle
// health check and trade generation until square-off or market close.
func (s *BaseStrategy) Run(ctx context.Context) error {
	cal := s.deps.Calendar

	s.mu.Lock()
	restored := s.restored
	s.mu.Unlock()

	if !restored {
		if !s.Enabled() {
			return Deregister(s.name, "strategy is disabled")
		}
		if s.StrategySL().IsPositive() {
			return Deregister(s.name, "strategy stop must start negative")
		}
		adj := s.VIXAdjustment()
		s.mu.Lock()
		s.strategySL = s.strategySL.Mul(adj)
		s.strategyTarget = s.strategyTarget.Mul(adj)
		s.mu.Unlock()
		if cal.IsMarketClosedForDay() {
			return Deregister(s.name, "market is closed for the day")
		}
	}

	// A restored trade that exited for anything other than its own
	// bracket means someone intervened; do not resume.
	for _, trade := range s.deps.Trader.TradesFor(s.name) {
		if !trade.ExitReason.IsResumable() {
			s.logger.Warn("not resuming, trade exited externally",
				"tradeId", trade.TradeID, "exitReason", trade.ExitReason)
			return nil
		}
	}

	ok, err := s.CanTradeToday(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return Deregister(s.name, "no lots configured for today")
	}

	if wait := cal.WaitDuration(); wait > 0 {
		s.logger.Info("waiting for market open", "wait", wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	if wait := time.Until(s.startTime); wait > 0 {
		s.logger.Info("waiting for strategy start time", "wait", wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}

	if s.vixThreshold.IsPositive() && s.vixThreshold.GreaterThan(s.deps.Trader.CMP("INDIA VIX")) {
		return Deregister(s.name, fmt.Sprintf("VIX below threshold %s", s.vixThreshold))
	}

	for {
		if cal.IsMarketClosedForDay() || !s.Enabled() {
			s.logger.Warn("exiting strategy loop, market closed or strategy disabled")
			return nil
		}
		now := cal.Now()
		if !s.squareOffTime.IsZero() && now.After(s.squareOffTime) {
			s.Disable()
			s.logger.Warn("disabled strategy, square off time passed")
			return nil
		}

		s.CheckHealth(ctx)

		if s.process != nil {
			if err := s.process(ctx); err != nil {
				return err
			}
		}

		if err := sleepCtx(ctx, s.monitorWait(now)); err != nil {
			return err
		}
	}
}

// monitorWait returns how long to sleep so the next cycle wakes a fixed
// offset after the engine's reconciliation boundary and sees freshly
// tracked trades.
func (s *BaseStrategy) monitorWait(now time.Time) time.Duration {
	interval := int(s.deps.TrackInterval / time.Second)
	if interval <= 0 {
		interval = 5
	}
	toBoundary := time.Duration(interval-now.Second()%interval) * time.Second
	return toBoundary + s.deps.MonitorOffset
}

// GenerateTrade builds a trade intent for an option leg and hands it
// to the engine intake queue.
func (s *BaseStrategy) GenerateTrade(ctx context.Context, optionSymbol string, direction models.Direction,
	numLots int64, lastTradedPrice, slPrice, targetPrice decimal.Decimal, placeMarketOrder bool) error {

	trade := models.NewTrade(optionSymbol, s.name)
	trade.IsOptions = true
	trade.Exchange = s.exchange
	trade.Direction = direction
	trade.ProductType = s.productType
	trade.PlaceMarketOrder = placeMarketOrder
	trade.RequestedEntry = lastTradedPrice
	trade.Timestamp = s.startTime.Unix()
	// Zero keeps the stop lazy: the trail hook supplies it after entry.
	trade.StopLoss = slPrice
	trade.Target = targetPrice
	trade.Qty = s.deps.Instruments.LotSize(optionSymbol) * numLots
	if !s.squareOffTime.IsZero() {
		trade.IntradaySquareOffTimestamp = s.squareOffTime.Unix()
	}

	if err := s.deps.Trader.RegisterSymbols(ctx, []string{optionSymbol}); err != nil {
		s.logger.Warn("could not subscribe option symbol", "symbol", optionSymbol, "error", err)
	}
	return s.deps.Trader.QueueTrade(ctx, trade)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
