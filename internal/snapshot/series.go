package snapshot

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"algotrader/internal/core"
	"algotrader/internal/models"
)

const seriesSchema = `
CREATE TABLE IF NOT EXISTS trade_pnl (
	ts             INTEGER NOT NULL,
	strategy       TEXT NOT NULL,
	trading_symbol TEXT NOT NULL,
	trade_id       TEXT NOT NULL,
	cmp            REAL NOT NULL,
	entry          REAL NOT NULL,
	pnl            REAL NOT NULL,
	qty            INTEGER NOT NULL,
	status         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_pnl_ts ON trade_pnl(ts, strategy);
`

// PnLSeries appends per-trade P&L samples to a SQLite database each
// reconciliation cycle. The connection opens lazily and a failed open
// is retried on the next append, so a broken database never stops
// trading.
type PnLSeries struct {
	path   string
	logger core.Logger
	db     *sql.DB
}

func NewPnLSeries(path string, logger core.Logger) *PnLSeries {
	return &PnLSeries{path: path, logger: logger.WithField("component", "pnl_series")}
}

func (s *PnLSeries) open() error {
	if s.db != nil {
		return nil
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", s.path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("open pnl database: %w", err)
	}
	if _, err := db.Exec(seriesSchema); err != nil {
		db.Close()
		return fmt.Errorf("init pnl schema: %w", err)
	}
	s.db = db
	return nil
}

// Append writes one sample row per trade at the given timestamp. All
// rows of a cycle go in a single transaction.
func (s *PnLSeries) Append(ts time.Time, trades []*models.Trade) error {
	if err := s.open(); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin pnl insert: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO trade_pnl (ts, strategy, trading_symbol, trade_id, cmp, entry, pnl, qty, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare pnl insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		cmp, _ := t.CMP.Float64()
		entry, _ := t.Entry.Float64()
		pnl, _ := t.PnL.Float64()
		if _, err := stmt.Exec(ts.Unix(), t.Strategy, t.TradingSymbol, t.TradeID,
			cmp, entry, pnl, t.FilledQty, string(t.State)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert pnl row: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PnLSeries) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
