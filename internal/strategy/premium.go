package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/marketcal"
	"algotrader/internal/models"
)

// quotePollDelay paces the strike walk so the quote scan does not
// hammer the broker.
const quotePollDelay = time.Second

// StrikePremium is one candidate from a strike scan.
type StrikePremium struct {
	Strike  int
	Premium decimal.Decimal
}

func (s *BaseStrategy) atmStrike(ctx context.Context, roundTo int) (int, error) {
	futureSymbol := s.deps.Calendar.MonthlyFuturesSymbol(s.symbol, s.expiryDay)
	quote, err := s.deps.Trader.GetQuote(ctx, futureSymbol, s.exchange, true)
	if err != nil || quote == nil || !quote.LastTradedPrice.IsPositive() {
		return 0, fmt.Errorf("no quote for %s: %w", futureSymbol, err)
	}
	return marketcal.NearestStrike(quote.LastTradedPrice.InexactFloat64(), roundTo), nil
}

func (s *BaseStrategy) optionQuote(ctx context.Context, strike int, optionType string) (*models.Quote, error) {
	symbol := s.deps.Calendar.WeeklyOptionSymbol(s.symbol, strike, optionType, 0, s.expiryDay)
	if _, ok := s.deps.Instruments.Get(symbol); !ok {
		return nil, fmt.Errorf("no instrument for %s", symbol)
	}
	quote, err := s.deps.Trader.GetQuote(ctx, symbol, s.exchange, true)
	if err != nil {
		return nil, err
	}
	if quote.TotalBuyQuantity == 0 && quote.TotalSellQuantity == 0 {
		// one more attempt, the first snapshot after subscribing can be empty
		if err := sleepCtx(ctx, quotePollDelay); err != nil {
			return nil, err
		}
		return s.deps.Trader.GetQuote(ctx, symbol, s.exchange, true)
	}
	return quote, nil
}

// step moves a strike one notch away from the money for the given
// option type when out is true, toward the money otherwise.
func step(strike int, optionType string, roundTo int, out bool) int {
	towardOTM := optionType == "CE"
	if !out {
		towardOTM = !towardOTM
	}
	if towardOTM {
		return strike + roundTo
	}
	return strike - roundTo
}

// seedITM walks from the ATM strike into the money until the premium
// reaches at least floor, returning the first such strike.
func (s *BaseStrategy) seedITM(ctx context.Context, optionType string, floor decimal.Decimal, roundTo int) (int, error) {
	strike, err := s.atmStrike(ctx, roundTo)
	if err != nil {
		return 0, err
	}
	premium := decimal.NewFromInt(-1)
	for premium.LessThan(floor) {
		quote, err := s.optionQuote(ctx, strike, optionType)
		if err != nil {
			return 0, err
		}
		premium = quote.LastTradedPrice
		if premium.LessThan(floor) {
			strike = step(strike, optionType, roundTo, false)
		}
	}
	return strike, nil
}

// StrikeWithNearestPremium walks the option chain away from the money
// and returns the strike whose premium is closest to target, skipping
// strikes without volume or depth.
func (s *BaseStrategy) StrikeWithNearestPremium(ctx context.Context, optionType string, target decimal.Decimal, roundTo int) (StrikePremium, error) {
	strike, err := s.seedITM(ctx, optionType, target, roundTo)
	if err != nil {
		return StrikePremium{}, err
	}

	last := StrikePremium{Strike: strike, Premium: decimal.NewFromInt(-1)}
	for {
		quote, err := s.optionQuote(ctx, strike, optionType)
		if err != nil {
			return last, nil
		}
		premium := quote.LastTradedPrice

		if premium.LessThanOrEqual(target) {
			liquid := quote.Volume > 0 && quote.TotalBuyQuantity > 0 && quote.TotalSellQuantity > 0
			if liquid && last.Premium.Sub(target).GreaterThan(target.Sub(premium)) {
				return StrikePremium{Strike: strike, Premium: premium}, nil
			}
			s.logger.Info("keeping previous strike, current one closer but illiquid",
				"strike", strike, "volume", quote.Volume)
			return last, nil
		}

		last = StrikePremium{Strike: strike, Premium: premium}
		strike = step(strike, optionType, roundTo, true)
		if err := sleepCtx(ctx, quotePollDelay); err != nil {
			return last, err
		}
	}
}

// StrikeWithMinimumPremium returns the furthest strike whose premium
// still stays at or above the floor.
func (s *BaseStrategy) StrikeWithMinimumPremium(ctx context.Context, optionType string, floor decimal.Decimal, roundTo int) (StrikePremium, error) {
	strike, err := s.seedITM(ctx, optionType, floor, roundTo)
	if err != nil {
		return StrikePremium{}, err
	}

	last := StrikePremium{Strike: strike, Premium: decimal.NewFromInt(-1)}
	for {
		quote, err := s.optionQuote(ctx, strike, optionType)
		if err != nil {
			return last, nil
		}
		premium := quote.LastTradedPrice
		if premium.LessThan(floor) {
			return last, nil
		}
		last = StrikePremium{Strike: strike, Premium: premium}
		strike = step(strike, optionType, roundTo, true)
		if err := sleepCtx(ctx, quotePollDelay); err != nil {
			return last, err
		}
	}
}

// StrikeWithMaximumPremium returns the first strike whose premium
// drops below the cap while walking away from the money.
func (s *BaseStrategy) StrikeWithMaximumPremium(ctx context.Context, optionType string, cap decimal.Decimal, roundTo int) (StrikePremium, error) {
	strike, err := s.seedITM(ctx, optionType, cap, roundTo)
	if err != nil {
		return StrikePremium{}, err
	}

	last := StrikePremium{Strike: strike, Premium: decimal.NewFromInt(-1)}
	for {
		quote, err := s.optionQuote(ctx, strike, optionType)
		if err != nil {
			return last, nil
		}
		premium := quote.LastTradedPrice
		if premium.LessThan(cap) {
			return StrikePremium{Strike: strike, Premium: premium}, nil
		}
		last = StrikePremium{Strike: strike, Premium: premium}
		strike = step(strike, optionType, roundTo, true)
		if err := sleepCtx(ctx, quotePollDelay); err != nil {
			return last, err
		}
	}
}
