package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/cache"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/htx"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/repository"
)

// marketChangeTTL bounds how often the daily kline history is re-fetched per
// symbol. Daily closes move slowly; five minutes keeps the UI fresh without
// hammering the exchange.
const marketChangeTTL = 5 * time.Minute

// MarketChange is the 1/7/30 day price change of a symbol. A nil field means
// the change could not be derived (no history, or a non-positive close).
type MarketChange struct {
	Change1dPct  *float64 `json:"change_1d_pct"`
	Change7dPct  *float64 `json:"change_7d_pct"`
	Change30dPct *float64 `json:"change_30d_pct"`
}

// MarketChangeService derives multi-horizon price changes from daily kline
// history, caching results per symbol. Fetched candles are also written to
// the local cache so baseline pricing can reuse them.
type MarketChangeService struct {
	exchange   htx.Client
	candleRepo *repository.CandleRepository
	cache      *cache.TTL[MarketChange]
}

// NewMarketChangeService creates a new MarketChangeService. now may be nil
// outside tests.
func NewMarketChangeService(exchange htx.Client, candleRepo *repository.CandleRepository, now func() time.Time) *MarketChangeService {
	return &MarketChangeService{
		exchange:   exchange,
		candleRepo: candleRepo,
		cache:      cache.NewTTL[MarketChange](marketChangeTTL, now),
	}
}

// Changes returns the 1d/7d/30d change of a base symbol against USDT.
// Stablecoins report zero on every horizon. Feed failures degrade to an
// all-nil result, which is cached so a flapping feed is not hammered.
func (s *MarketChangeService) Changes(ctx context.Context, symbol string) (MarketChange, error) {
	symbol = strings.ToUpper(symbol)

	if symbol == "USDT" || symbol == "USDC" {
		zero := 0.0
		return MarketChange{Change1dPct: &zero, Change7dPct: &zero, Change30dPct: &zero}, nil
	}

	if cached, ok := s.cache.Get(symbol); ok {
		return cached, nil
	}

	bars, err := s.exchange.GetKlines(ctx, symbol, model.PeriodDaily, 90)
	if err != nil {
		log.Printf("Warning: no kline history for %s: %v", symbol, err)
		s.cache.Set(symbol, MarketChange{})
		return MarketChange{}, nil
	}
	if s.candleRepo != nil {
		if err := s.candleRepo.Upsert(ctx, bars); err != nil {
			log.Printf("Warning: failed to cache candles for %s: %v", symbol, err)
		}
	}

	change := changesFromBars(bars)
	s.cache.Set(symbol, change)
	return change, nil
}

// changesFromBars derives the horizon changes from ascending daily bars.
// The last bar is the live day; each horizon compares its close against the
// close of the bar at or before the horizon boundary.
func changesFromBars(bars []model.Candle) MarketChange {
	n := len(bars)
	if n < 2 {
		return MarketChange{}
	}
	last := bars[n-1]

	return MarketChange{
		Change1dPct:  PctChange(last.Close, bars[n-2].Close),
		Change7dPct:  PctChange(last.Close, closeAtOrBefore(bars, last.TS.Add(-7*24*time.Hour))),
		Change30dPct: PctChange(last.Close, closeAtOrBefore(bars, last.TS.Add(-30*24*time.Hour))),
	}
}

// closeAtOrBefore returns the close of the latest bar at or before target,
// falling back to the oldest bar when history does not reach that far.
func closeAtOrBefore(bars []model.Candle, target time.Time) float64 {
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].TS.After(target) {
			return bars[i].Close
		}
	}
	return bars[0].Close
}
