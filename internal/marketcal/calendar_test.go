package marketcal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIsHoliday(t *testing.T) {
	cal := New([]string{"2024-10-02"})

	assert.True(t, cal.IsHoliday(time.Date(2024, 10, 5, 0, 0, 0, 0, time.UTC)), "saturday")
	assert.True(t, cal.IsHoliday(time.Date(2024, 10, 6, 0, 0, 0, 0, time.UTC)), "sunday")
	assert.True(t, cal.IsHoliday(time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC)), "listed holiday")
	assert.False(t, cal.IsHoliday(time.Date(2024, 10, 3, 0, 0, 0, 0, time.UTC)))
}

func TestIsMarketClosedForDay(t *testing.T) {
	cal := New(nil)

	cal.WithNow(fixedNow(time.Date(2024, 10, 8, 9, 0, 0, 0, time.UTC)))
	assert.False(t, cal.IsMarketClosedForDay(), "before open on a trading day")

	cal.WithNow(fixedNow(time.Date(2024, 10, 8, 15, 31, 0, 0, time.UTC)))
	assert.True(t, cal.IsMarketClosedForDay(), "after the closing bell")

	cal.WithNow(fixedNow(time.Date(2024, 10, 6, 11, 0, 0, 0, time.UTC)))
	assert.True(t, cal.IsMarketClosedForDay(), "weekend")
}

func TestMonthlyExpiryDay(t *testing.T) {
	cal := New(nil)
	ref := time.Date(2024, 10, 8, 10, 0, 0, 0, time.UTC)

	got := cal.MonthlyExpiryDay(ref, time.Thursday)
	assert.Equal(t, time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC), got)
}

func TestMonthlyExpiryDaySkipsHoliday(t *testing.T) {
	cal := New([]string{"2024-10-31"})
	ref := time.Date(2024, 10, 8, 10, 0, 0, 0, time.UTC)

	got := cal.MonthlyExpiryDay(ref, time.Thursday)
	assert.Equal(t, time.Date(2024, 10, 30, 0, 0, 0, 0, time.UTC), got)
}

func TestWeeklyExpiryDay(t *testing.T) {
	cal := New(nil)
	now := time.Date(2024, 10, 7, 10, 0, 0, 0, time.UTC) // monday
	cal.WithNow(fixedNow(now))

	got := cal.WeeklyExpiryDay(now, time.Wednesday)
	assert.Equal(t, time.Date(2024, 10, 9, 0, 0, 0, 0, time.UTC), got)
}

func TestWeeklyExpiryDayBacksOverHoliday(t *testing.T) {
	cal := New([]string{"2024-10-09"})
	now := time.Date(2024, 10, 7, 10, 0, 0, 0, time.UTC)
	cal.WithNow(fixedNow(now))

	got := cal.WeeklyExpiryDay(now, time.Wednesday)
	assert.Equal(t, time.Date(2024, 10, 8, 0, 0, 0, 0, time.UTC), got)
}

func TestDaysBeforeWeeklyExpiry(t *testing.T) {
	cal := New(nil)

	cal.WithNow(fixedNow(time.Date(2024, 10, 7, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2, cal.DaysBeforeWeeklyExpiry(time.Wednesday), "monday before a wednesday expiry")

	cal.WithNow(fixedNow(time.Date(2024, 10, 9, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, cal.DaysBeforeWeeklyExpiry(time.Wednesday), "expiry day itself")
}

func TestWeeklyOptionSymbol(t *testing.T) {
	cal := New(nil)
	cal.WithNow(fixedNow(time.Date(2024, 10, 7, 10, 0, 0, 0, time.UTC)))

	got := cal.WeeklyOptionSymbol("NIFTY", 24500, "ce", 0, time.Wednesday)
	assert.Equal(t, "NIFTY24O0924500CE", got)
}

func TestWeeklyOptionSymbolMonthlyCoincidence(t *testing.T) {
	cal := New(nil)
	// monday of the last week of october; thursday weekly expiry lands
	// on the monthly expiry, so the monthly naming applies
	cal.WithNow(fixedNow(time.Date(2024, 10, 28, 10, 0, 0, 0, time.UTC)))

	got := cal.WeeklyOptionSymbol("NIFTY", 24500, "pe", 0, time.Thursday)
	assert.Equal(t, "NIFTY24OCT24500PE", got)
}

func TestMonthlyFuturesSymbol(t *testing.T) {
	cal := New(nil)
	cal.WithNow(fixedNow(time.Date(2024, 10, 7, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "NIFTY24OCTFUT", cal.MonthlyFuturesSymbol("NIFTY", time.Thursday))

	// past the monthly expiry session the symbol rolls forward
	cal.WithNow(fixedNow(time.Date(2024, 10, 31, 16, 0, 0, 0, time.UTC)))
	got := cal.MonthlyFuturesSymbol("NIFTY", time.Thursday)
	require.Equal(t, "NIFTY24NOVFUT", got)
}

func TestNearestStrikeRounding(t *testing.T) {
	assert.Equal(t, 24500, NearestStrike(24512.35, 50))
	assert.Equal(t, 24550, NearestStrike(24537.10, 50))
	assert.Equal(t, 24500, NearestStrike(24500, 50))
	assert.Equal(t, 51800, NearestStrike(51761.0, 100))
}
