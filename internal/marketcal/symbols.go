package marketcal

import (
	"fmt"
	"strings"
	"time"
)

// monthCode is the single-letter month used in weekly option symbols.
// January through September keep their numeric form.
func monthCode(m time.Month) string {
	switch m {
	case time.October:
		return "O"
	case time.November:
		return "N"
	case time.December:
		return "D"
	default:
		return fmt.Sprintf("%d", int(m))
	}
}

func monthShort(m time.Month) string {
	return strings.ToUpper(m.String()[:3])
}

// WeeklyOptionSymbol builds the NFO trading symbol for a weekly index
// option, e.g. NIFTY24O0924500CE. When the target week's expiry
// coincides with the monthly expiry the monthly naming is used instead
// (NIFTY24OCT24500CE). numWeeksPlus selects a later week; an expiry
// whose session already closed rolls to the next week.
func (c *Calendar) WeeklyOptionSymbol(index string, strike int, optionType string, numWeeksPlus int, expiryDay time.Weekday) string {
	now := c.now()
	expiry := c.WeeklyExpiryDay(now, expiryDay)
	monthly := c.MonthlyExpiryDay(now, expiryDay)

	monthlyWeek := expiry.Equal(monthly) || monthly.Equal(Midnight(now))
	if monthlyWeek {
		expiry = monthly
	}

	if numWeeksPlus > 0 {
		expiry = c.WeeklyExpiryDay(expiry.AddDate(0, 0, numWeeksPlus*7), expiryDay)
	}
	if MarketStart(now).After(MarketEnd(expiry)) {
		expiry = c.WeeklyExpiryDay(expiry.AddDate(0, 0, 6), expiryDay)
	}

	year2 := expiry.Year() % 100
	opt := strings.ToUpper(optionType)
	if monthlyWeek {
		return fmt.Sprintf("%s%02d%s%d%s", index, year2, monthShort(expiry.Month()), strike, opt)
	}
	return fmt.Sprintf("%s%02d%s%02d%d%s", index, year2, monthCode(expiry.Month()), expiry.Day(), strike, opt)
}

// MonthlyFuturesSymbol builds the current-month futures symbol,
// e.g. NIFTY24OCTFUT, rolling to the next month once its expiry
// session has closed.
func (c *Calendar) MonthlyFuturesSymbol(index string, expiryDay time.Weekday) string {
	now := c.now()
	expiry := c.MonthlyExpiryDay(now, expiryDay)
	if now.After(MarketEnd(expiry)) {
		expiry = c.MonthlyExpiryDay(now.AddDate(0, 0, 20), expiryDay)
	}
	return fmt.Sprintf("%s%02d%sFUT", index, expiry.Year()%100, monthShort(expiry.Month()))
}

// NearestStrike rounds price to the nearest strike multiple.
func NearestStrike(price float64, nearestMultiple int) int {
	p := int(price)
	rem := p % nearestMultiple
	if rem < nearestMultiple/2 {
		return p - rem
	}
	return p + nearestMultiple - rem
}
