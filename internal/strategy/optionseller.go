package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/marketcal"
	"algotrader/internal/models"
)

// otmDistance is how far from spot the sold strike sits.
const otmDistance = 500

// OptionSeller sells an out-of-the-money NIFTY weekly call with a
// stop-entry 20% above the current premium, capped at one CE and one
// PE trade per day, with a strategy-level target of 2000 and stop of
// -1000 per lot.
type OptionSeller struct {
	*BaseStrategy
}

func NewOptionSeller(deps Deps, multiple int64, runConfig []int64) *OptionSeller {
	day := marketcal.Midnight(deps.Calendar.Now())
	s := &OptionSeller{}
	s.BaseStrategy = NewBaseStrategy(deps, Params{
		Name:            "OptionSeller",
		Symbol:          "NIFTY",
		ExpiryDay:       time.Thursday,
		Multiple:        multiple,
		RunConfig:       runConfig,
		MaxTradesPerDay: 2, // 1 CE + 1 PE
		StrategyTarget:  decimal.NewFromInt(2000),
		StrategySL:      decimal.NewFromInt(-1000),
		StartTime:       day.Add(9*time.Hour + 25*time.Minute),
		StopTime:        day.Add(15*time.Hour + 15*time.Minute),
		SquareOffTime:   day.Add(15*time.Hour + 15*time.Minute),
		Process:         s.process,
		TrailingSL:      s.trailingStop,
	})
	return s
}

func (s *OptionSeller) tradesBySuffix(suffix string) []*models.Trade {
	var out []*models.Trade
	for _, trade := range s.Deps().Trader.TradesFor(s.Name()) {
		if strings.HasSuffix(trade.TradingSymbol, suffix) {
			out = append(out, trade)
		}
	}
	return out
}

// ShouldPlaceTrade additionally caps each option type separately.
func (s *OptionSeller) ShouldPlaceTrade(trade *models.Trade) error {
	if err := s.BaseStrategy.ShouldPlaceTrade(trade); err != nil {
		return err
	}
	if strings.HasSuffix(trade.TradingSymbol, "CE") && len(s.tradesBySuffix("CE")) >= 2 {
		return ErrMaxTradesPerDayHit
	}
	if strings.HasSuffix(trade.TradingSymbol, "PE") && len(s.tradesBySuffix("PE")) >= 2 {
		return ErrMaxTradesPerDayHit
	}
	return nil
}

func (s *OptionSeller) process(ctx context.Context) error {
	deps := s.Deps()
	if deps.Calendar.Now().Before(s.StartTime()) || !s.Enabled() {
		return nil
	}
	if len(s.tradesBySuffix("CE")) >= 1 {
		return nil
	}

	quote, err := deps.Trader.GetQuote(ctx, "NIFTY 50", "NSE", false)
	if err != nil {
		s.Logger().Error("could not get index quote", "symbol", "NIFTY 50", "error", err)
		return nil
	}

	strike := marketcal.NearestStrike(quote.LastTradedPrice.InexactFloat64()+otmDistance, 50)
	symbol := deps.Calendar.WeeklyOptionSymbol(s.Symbol(), strike, "CE", 0, s.ExpiryDay())
	optQuote, err := deps.Trader.GetQuote(ctx, symbol, s.Exchange(), true)
	if err != nil {
		s.Logger().Error("could not get option quote", "symbol", symbol, "error", err)
		return nil
	}

	entry := optQuote.LastTradedPrice.Mul(decimal.NewFromFloat(1.2))
	return s.GenerateTrade(ctx, symbol, models.DirectionShort, s.Lots(),
		entry, decimal.Decimal{}, decimal.Decimal{}, true)
}

// trailingStop sets a one-point initial stop once the entry fills and
// never trails afterwards.
func (s *OptionSeller) trailingStop(trade *models.Trade) decimal.Decimal {
	if trade.StopLoss.IsZero() && trade.Entry.IsPositive() {
		offset := decimal.NewFromInt(1)
		if trade.Direction == models.DirectionLong {
			offset = offset.Neg()
		}
		return s.Deps().Instruments.RoundToTick(trade.TradingSymbol, trade.Entry.Add(offset))
	}
	return decimal.Decimal{}
}
