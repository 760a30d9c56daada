// Package snapshot persists the day's trades and strategy state to
// disk so a restart can resume mid-session, plus an optional SQLite
// P&L time series.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"algotrader/internal/core"
	"algotrader/internal/marketcal"
	"algotrader/internal/models"
	"algotrader/internal/strategy"
)

// Store reads and writes the per-account snapshot files for one
// trading day. Files live under <dir>/<YYYY-MM-DD>/ and are named by
// broker and client id so multiple accounts can share a directory.
type Store struct {
	dir       string
	brokerTag string
	clientID  string
	logger    core.Logger
}

func NewStore(dir, brokerTag, clientID string, logger core.Logger) *Store {
	return &Store{
		dir:       dir,
		brokerTag: brokerTag,
		clientID:  clientID,
		logger:    logger.WithField("component", "snapshot"),
	}
}

func (s *Store) dayDir(day time.Time) string {
	return filepath.Join(s.dir, day.Format(marketcal.DateLayout))
}

func (s *Store) tradesPath(day time.Time) string {
	return filepath.Join(s.dayDir(day), fmt.Sprintf("%s_%s.json", s.brokerTag, s.clientID))
}

func (s *Store) strategiesPath(day time.Time) string {
	return filepath.Join(s.dayDir(day), fmt.Sprintf("%s_%s_strategies.json", s.brokerTag, s.clientID))
}

// SaveTrades writes the full trade list for the day. The write is
// atomic via a temp file rename so a crash mid-save never corrupts the
// previous snapshot.
func (s *Store) SaveTrades(day time.Time, trades []*models.Trade) error {
	if err := os.MkdirAll(s.dayDir(day), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(trades, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trades snapshot: %w", err)
	}
	return atomicWrite(s.tradesPath(day), data)
}

// LoadTrades reads the day's trade snapshot. A missing file returns an
// empty list: a fresh day has nothing to resume.
func (s *Store) LoadTrades(day time.Time) ([]*models.Trade, error) {
	data, err := os.ReadFile(s.tradesPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read trades snapshot: %w", err)
	}
	var trades []*models.Trade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("decode trades snapshot: %w", err)
	}
	return trades, nil
}

// SaveStrategies writes the persisted state of every registered
// strategy, keyed by strategy name.
func (s *Store) SaveStrategies(day time.Time, states map[string]strategy.State) error {
	if err := os.MkdirAll(s.dayDir(day), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("encode strategies snapshot: %w", err)
	}
	return atomicWrite(s.strategiesPath(day), data)
}

// LoadStrategies reads the day's strategy state snapshot, empty map
// when none exists yet.
func (s *Store) LoadStrategies(day time.Time) (map[string]strategy.State, error) {
	data, err := os.ReadFile(s.strategiesPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]strategy.State{}, nil
		}
		return nil, fmt.Errorf("read strategies snapshot: %w", err)
	}
	states := make(map[string]strategy.State)
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("decode strategies snapshot: %w", err)
	}
	return states, nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
