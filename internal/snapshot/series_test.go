package snapshot

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algotrader/internal/models"
	"algotrader/pkg/logging"
)

func newSeriesUnderTest(t *testing.T) *PnLSeries {
	t.Helper()
	logger, err := logging.NewLoggerFromString("error")
	require.NoError(t, err)
	series := NewPnLSeries(filepath.Join(t.TempDir(), "pnl.db"), logger)
	t.Cleanup(func() { series.Close() })
	return series
}

func sampleTrade(symbol string, pnl int64) *models.Trade {
	trade := models.NewTrade(symbol, "OptionSeller")
	trade.State = models.TradeStateActive
	trade.Entry = decimal.NewFromInt(100)
	trade.CMP = decimal.NewFromInt(100 + pnl)
	trade.FilledQty = 1
	trade.PnL = decimal.NewFromInt(pnl)
	return trade
}

func TestSeriesAppendsOneRowPerTrade(t *testing.T) {
	series := newSeriesUnderTest(t)
	ts := time.Date(2024, time.October, 8, 10, 0, 0, 0, time.Local)

	trades := []*models.Trade{
		sampleTrade("NIFTY24O0924500CE", 10),
		sampleTrade("NIFTY24O0924500PE", -5),
	}
	require.NoError(t, series.Append(ts, trades))
	require.NoError(t, series.Append(ts.Add(5*time.Second), trades))

	db, err := sql.Open("sqlite3", series.path)
	require.NoError(t, err)
	defer db.Close()

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trade_pnl`).Scan(&rows))
	assert.Equal(t, 4, rows)

	var pnl float64
	var status string
	require.NoError(t, db.QueryRow(
		`SELECT pnl, status FROM trade_pnl WHERE trading_symbol = ? AND ts = ?`,
		"NIFTY24O0924500PE", ts.Unix(),
	).Scan(&pnl, &status))
	assert.InDelta(t, -5, pnl, 0.001)
	assert.Equal(t, "active", status)
}

func TestSeriesAppendNothingIsANoOpTransaction(t *testing.T) {
	series := newSeriesUnderTest(t)

	require.NoError(t, series.Append(time.Now(), nil))

	db, err := sql.Open("sqlite3", series.path)
	require.NoError(t, err)
	defer db.Close()

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trade_pnl`).Scan(&rows))
	assert.Equal(t, 0, rows)
}

func TestSeriesCloseIsIdempotent(t *testing.T) {
	series := newSeriesUnderTest(t)
	require.NoError(t, series.Append(time.Now(), nil))
	require.NoError(t, series.Close())
	require.NoError(t, series.Close())
}
