// Package marketcal answers trading-session questions: market hours,
// exchange holidays, and weekly/monthly derivative expiry resolution.
package marketcal

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Default expiry weekdays. Weekly index options expire on Wednesday,
// monthly contracts on Thursday.
const (
	DefaultWeeklyExpiryDay  = time.Wednesday
	DefaultMonthlyExpiryDay = time.Thursday
)

// Calendar resolves session timings against a holiday list. The zero
// value is not usable; build one with New.
type Calendar struct {
	holidays map[string]struct{}
	now      func() time.Time
}

func New(holidays []string) *Calendar {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		set[strings.TrimSpace(h)] = struct{}{}
	}
	return &Calendar{holidays: set, now: time.Now}
}

// WithNow overrides the wall clock, for tests.
func (c *Calendar) WithNow(now func() time.Time) *Calendar {
	c.now = now
	return c
}

func (c *Calendar) Now() time.Time { return c.now() }

// MarketStart is 09:15:00 on the given day.
func MarketStart(day time.Time) time.Time {
	return atTime(day, 9, 15, 0)
}

// MarketEnd is 15:30:00 on the given day.
func MarketEnd(day time.Time) time.Time {
	return atTime(day, 15, 30, 0)
}

func atTime(day time.Time, h, m, s int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, day.Location())
}

// Midnight truncates t to the start of its day.
func Midnight(t time.Time) time.Time {
	return atTime(t, 0, 0, 0)
}

// IsHoliday reports whether the given day is a weekend or a listed
// exchange holiday.
func (c *Calendar) IsHoliday(day time.Time) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	_, ok := c.holidays[day.Format(DateLayout)]
	return ok
}

func (c *Calendar) IsTodayHoliday() bool {
	return c.IsHoliday(c.now())
}

// IsMarketClosedForDay reports whether no further trading can happen
// today: either today is a holiday or the closing bell has passed.
// It stays false before the open on a trading day.
func (c *Calendar) IsMarketClosedForDay() bool {
	if c.IsTodayHoliday() {
		return true
	}
	now := c.now()
	return now.After(MarketEnd(now))
}

// WaitDuration returns how long to wait until the market opens today,
// or zero if the open has already passed.
func (c *Calendar) WaitDuration() time.Duration {
	now := c.now()
	if d := MarketStart(now).Sub(now); d > 0 {
		return d
	}
	return 0
}

// MonthlyExpiryDay returns midnight of the monthly expiry in ref's
// month: the last occurrence of expiryDay, walked back over holidays.
func (c *Calendar) MonthlyExpiryDay(ref time.Time, expiryDay time.Weekday) time.Time {
	firstOfNext := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location()).AddDate(0, 1, 0)
	day := firstOfNext.AddDate(0, 0, -1)
	for day.Weekday() != expiryDay {
		day = day.AddDate(0, 0, -1)
	}
	for c.IsHoliday(day) {
		day = day.AddDate(0, 0, -1)
	}
	return Midnight(day)
}

// WeeklyExpiryDay returns midnight of the next weekly expiry on or
// after ref. When ref itself is the monthly expiry the monthly date is
// returned, otherwise the next expiryDay walked back over holidays.
func (c *Calendar) WeeklyExpiryDay(ref time.Time, expiryDay time.Weekday) time.Time {
	monthly := c.MonthlyExpiryDay(c.now(), expiryDay)
	if monthly.Equal(Midnight(ref)) {
		return monthly
	}
	daysAhead := (int(expiryDay) - int(ref.Weekday()) + 7) % 7
	day := ref.AddDate(0, 0, daysAhead)
	for c.IsHoliday(day) {
		day = day.AddDate(0, 0, -1)
	}
	return Midnight(day)
}

// IsTodayWeeklyExpiry reports whether today is the weekly expiry day.
func (c *Calendar) IsTodayWeeklyExpiry(expiryDay time.Weekday) bool {
	return c.WeeklyExpiryDay(c.now(), expiryDay).Equal(Midnight(c.now()))
}

// DaysBeforeWeeklyExpiry counts the trading days from today up to but
// not including the weekly expiry. Returns 0 on expiry day itself.
func (c *Calendar) DaysBeforeWeeklyExpiry(expiryDay time.Weekday) int {
	if c.IsTodayWeeklyExpiry(expiryDay) {
		return 0
	}
	expiry := c.WeeklyExpiryDay(c.now(), expiryDay)
	day := Midnight(c.now())
	count := 0
	for day.Before(expiry) {
		if !c.IsHoliday(day) {
			count++
		}
		day = day.AddDate(0, 0, 1)
	}
	return count
}
