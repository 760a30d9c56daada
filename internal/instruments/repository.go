// Package instruments maintains the per-account instrument master:
// a broker dump cached on disk and indexed by trading symbol.
package instruments

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"algotrader/internal/broker"
	"algotrader/internal/core"
	"algotrader/internal/models"
)

// exchanges fetched into the master, in download order.
var masterExchanges = []string{"NSE", "NFO", "BSE", "BFO"}

// cacheMaxAge is how long an on-disk dump stays usable before a fresh
// download is forced.
const cacheMaxAge = 24 * time.Hour

var minTick = decimal.RequireFromString("0.05")

// Repository loads and indexes the instrument master for one account.
type Repository struct {
	shortCode string
	dir       string
	gateway   broker.Broker
	logger    core.Logger

	mu       sync.RWMutex
	bySymbol map[string]models.Instrument
}

func NewRepository(shortCode, dir string, gateway broker.Broker, logger core.Logger) *Repository {
	return &Repository{
		shortCode: shortCode,
		dir:       dir,
		gateway:   gateway,
		logger:    logger.WithField("component", "instruments"),
		bySymbol:  make(map[string]models.Instrument),
	}
}

func (r *Repository) cachePath() string {
	return filepath.Join(r.dir, r.shortCode+"_instruments.json")
}

// Load populates the index, preferring the on-disk cache when it is
// less than a day old and falling back to a broker download.
func (r *Repository) Load(ctx context.Context) error {
	if list, err := r.loadFromDisk(); err == nil {
		r.index(list)
		r.logger.Info("loaded instruments from cache", "count", len(list))
		return nil
	}

	var all []models.Instrument
	for _, exchange := range masterExchanges {
		list, err := r.gateway.Instruments(ctx, exchange)
		if err != nil {
			return fmt.Errorf("fetch instruments for %s: %w", exchange, err)
		}
		all = append(all, list...)
	}
	if len(all) == 0 {
		return fmt.Errorf("instrument master download returned no records")
	}
	r.index(all)
	if err := r.saveToDisk(all); err != nil {
		r.logger.Warn("failed to cache instrument master", "error", err)
	}
	r.logger.Info("downloaded instrument master", "count", len(all))
	return nil
}

func (r *Repository) loadFromDisk() ([]models.Instrument, error) {
	path := r.cachePath()
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if time.Since(info.ModTime()) > cacheMaxAge {
		return nil, fmt.Errorf("instrument cache %s is stale", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []models.Instrument
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode instrument cache: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("instrument cache %s is empty", path)
	}
	return list, nil
}

func (r *Repository) saveToDisk(list []models.Instrument) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return os.WriteFile(r.cachePath(), data, 0o644)
}

func (r *Repository) index(list []models.Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range list {
		r.bySymbol[inst.TradingSymbol] = inst
	}
}

// Get returns the instrument record for a trading symbol.
func (r *Repository) Get(tradingSymbol string) (models.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.bySymbol[tradingSymbol]
	return inst, ok
}

// LotSize returns the contract lot size, or 1 for unknown symbols so
// cash-equity quantities pass through unchanged.
func (r *Repository) LotSize(tradingSymbol string) int64 {
	if inst, ok := r.Get(tradingSymbol); ok && inst.LotSize > 0 {
		return inst.LotSize
	}
	return 1
}

// RoundToTick rounds price up to the symbol's tick size with a 0.05
// floor. A zero price is passed through untouched so "no price"
// markers survive rounding.
func (r *Repository) RoundToTick(tradingSymbol string, price decimal.Decimal) decimal.Decimal {
	tick := minTick
	if inst, ok := r.Get(tradingSymbol); ok && inst.TickSize.IsPositive() {
		tick = inst.TickSize
	}
	return RoundToTick(price, tick)
}

// RoundToTick is the bare rounding rule: ceil(price/tick)*tick rounded
// to two decimals, floored at 0.05 for any non-zero price.
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return price
	}
	rounded := price.Div(tick).Ceil().Mul(tick).Round(2)
	if rounded.LessThan(minTick) {
		return minTick
	}
	return rounded
}
