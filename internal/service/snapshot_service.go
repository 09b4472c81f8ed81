package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/htx"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/lotengine"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/repository"
)

// balanceDriftTolerance is the absolute difference between a reconciled
// ledger quantity and the exchange free balance above which a position is
// flagged unreconciled.
const balanceDriftTolerance = 1e-8

// SnapshotService captures valuation snapshots of the live exchange balances
// and maintains the persisted snapshot history. The calculation itself is a
// pure function (ComputeSnapshot); this service does the gathering.
type SnapshotService struct {
	exchange      htx.Client
	ledgerService *LedgerService
	historyRepo   *repository.SnapshotHistoryRepository
	candleRepo    *repository.CandleRepository

	refFiat       string
	minUSDIgnore  float64
	alwaysInclude map[string]bool

	now func() time.Time
}

// NewSnapshotService creates a new SnapshotService with the provided dependencies.
func NewSnapshotService(
	exchange htx.Client,
	ledgerService *LedgerService,
	historyRepo *repository.SnapshotHistoryRepository,
	candleRepo *repository.CandleRepository,
	refFiat string,
	minUSDIgnore float64,
	alwaysInclude []string,
) *SnapshotService {
	include := make(map[string]bool, len(alwaysInclude))
	for _, s := range alwaysInclude {
		include[s] = true
	}
	return &SnapshotService{
		exchange:      exchange,
		ledgerService: ledgerService,
		historyRepo:   historyRepo,
		candleRepo:    candleRepo,
		refFiat:       refFiat,
		minUSDIgnore:  minUSDIgnore,
		alwaysInclude: include,
		now:           time.Now,
	}
}

// SetClock overrides the service clock for deterministic snapshot timestamps
// in tests.
func (s *SnapshotService) SetClock(now func() time.Time) {
	s.now = now
}

// SnapshotInput is everything ComputeSnapshot needs. Balances come from the
// exchange, Prices from the ticker feed (possibly empty on feed failure),
// Summaries from the reconciled ledger.
type SnapshotInput struct {
	Balances      map[string]float64
	Prices        map[string]model.Quote
	Summaries     map[string]lotengine.AssetSummary
	RefFiat       string
	MinUSDIgnore  float64
	AlwaysInclude map[string]bool
	Now           time.Time
}

// ComputeSnapshot values the balances against the prices and cost basis.
//
// Symbols without a price are skipped unless force-included; positions worth
// less than MinUSDIgnore are likewise dropped unless force-included. The
// portfolio 24h change is weighted by position value, with positions of
// unknown day change contributing value to the denominator but nothing to
// the numerator. Positions are sorted by value descending.
func ComputeSnapshot(in SnapshotInput) model.Snapshot {
	snapshot := model.Snapshot{
		Time:      in.Now.Unix(),
		RefFiat:   in.RefFiat,
		Positions: []model.Position{},
	}

	symbols := make([]string, 0, len(in.Balances))
	for sym := range in.Balances {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var weightedDayChange float64
	for _, sym := range symbols {
		free := in.Balances[sym]
		if free <= 0 {
			continue
		}
		forced := in.AlwaysInclude[sym]

		quote, hasQuote := in.Prices[sym]
		if (!hasQuote || quote.Price == nil) && !forced {
			continue
		}

		pos := model.Position{Symbol: sym, Free: free}
		if hasQuote && quote.Price != nil {
			pos.Price = quote.Price
			pos.Value = free * *quote.Price
			pos.DayPct = quote.DayPct
		}

		summary := in.Summaries[sym]
		if summary.AvgCostUSD != nil && *summary.AvgCostUSD > 0 && pos.Price != nil {
			pos.PnlPct = model.Float64Ptr((*pos.Price / *summary.AvgCostUSD - 1) * 100)
		}
		pos.Unreconciled = math.Abs(summary.TotalQty-free) > balanceDriftTolerance

		if !forced && pos.Value < in.MinUSDIgnore {
			continue
		}

		snapshot.TotalValueUSD += pos.Value
		if pos.DayPct != nil {
			weightedDayChange += pos.Value * *pos.DayPct
		}
		snapshot.Positions = append(snapshot.Positions, pos)
	}

	if snapshot.TotalValueUSD > 0 {
		snapshot.TotalChange24hPct = weightedDayChange / snapshot.TotalValueUSD
	}

	sort.SliceStable(snapshot.Positions, func(i, j int) bool {
		return snapshot.Positions[i].Value > snapshot.Positions[j].Value
	})
	return snapshot
}

// Capture values the current exchange balances and appends the snapshot to
// the history. A failing ticker feed degrades to a price-less snapshot
// rather than failing the capture; a failing balance fetch fails it.
func (s *SnapshotService) Capture(ctx context.Context) (model.Snapshot, error) {
	balances, err := s.exchange.GetBalances(ctx)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to fetch balances: %w", err)
	}

	symbols := make([]string, 0, len(balances))
	for sym := range balances {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	prices, err := s.exchange.GetQuotes(ctx, symbols)
	if err != nil {
		log.Printf("Warning: ticker feed unavailable, capturing without prices: %v", err)
		prices = map[string]model.Quote{}
	}

	summaries, err := s.ledgerSummaries(prices)
	if err != nil {
		return model.Snapshot{}, err
	}

	snapshot := ComputeSnapshot(SnapshotInput{
		Balances:      balances,
		Prices:        prices,
		Summaries:     summaries,
		RefFiat:       s.refFiat,
		MinUSDIgnore:  s.minUSDIgnore,
		AlwaysInclude: s.alwaysInclude,
		Now:           s.now(),
	})

	if err := s.historyRepo.Append(snapshot); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToSaveHistory, err)
	}
	return snapshot, nil
}

// Latest returns the most recent snapshot in the history.
func (s *SnapshotService) Latest() (model.Snapshot, error) {
	return s.historyRepo.Latest()
}

// History returns the most recent n snapshots, oldest first.
func (s *SnapshotService) History(n int) ([]model.Snapshot, error) {
	return s.historyRepo.Last(n)
}

// LatestPrices extracts per-symbol prices from the most recent snapshot, for
// valuing the ledger view without another exchange round trip. An empty
// history yields an empty map.
func (s *SnapshotService) LatestPrices() map[string]float64 {
	latest, err := s.historyRepo.Latest()
	if err != nil {
		return map[string]float64{}
	}
	prices := make(map[string]float64, len(latest.Positions))
	for _, pos := range latest.Positions {
		if pos.Price != nil {
			prices[pos.Symbol] = *pos.Price
		}
	}
	return prices
}

// Backfill seeds an empty snapshot history with one synthetic snapshot per
// day, valued at each day's daily candle close. It does nothing when history
// already exists. Daily candles are fetched concurrently per symbol and also
// cached for baseline pricing. Returns the number of snapshots created.
func (s *SnapshotService) Backfill(ctx context.Context, days int) (int, error) {
	existing, err := s.historyRepo.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrFailedToLoadHistory, err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	balances, err := s.exchange.GetBalances(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch balances: %w", err)
	}

	symbols := make([]string, 0, len(balances))
	for sym, free := range balances {
		if free > 0 {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	barsBySymbol := make(map[string][]model.Candle, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			bars, err := s.exchange.GetKlines(gctx, sym, model.PeriodDaily, days+1)
			if err != nil {
				// Symbols without a USDT market are simply not backfilled.
				log.Printf("Warning: no kline history for %s: %v", sym, err)
				return nil
			}
			if s.candleRepo != nil {
				if err := s.candleRepo.Upsert(gctx, bars); err != nil {
					log.Printf("Warning: failed to cache candles for %s: %v", sym, err)
				}
			}
			mu.Lock()
			barsBySymbol[sym] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrFailedToFetchKlines, err)
	}

	summaries, err := s.ledgerSummaries(nil)
	if err != nil {
		return 0, err
	}

	// Union of bar starts across all symbols, oldest first, capped at days.
	tsSet := make(map[int64]bool)
	for _, bars := range barsBySymbol {
		for _, bar := range bars {
			tsSet[bar.TS.Unix()] = true
		}
	}
	timeline := make([]int64, 0, len(tsSet))
	for ts := range tsSet {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i] < timeline[j] })
	if len(timeline) > days {
		timeline = timeline[len(timeline)-days:]
	}

	snapshots := make([]model.Snapshot, 0, len(timeline))
	for _, ts := range timeline {
		prices := make(map[string]model.Quote)
		for sym, bars := range barsBySymbol {
			for _, bar := range bars {
				if bar.TS.Unix() == ts {
					prices[sym] = model.Quote{Price: model.Float64Ptr(bar.Close), DayPct: bar.DayPct()}
					break
				}
			}
		}
		for _, stable := range []string{"USDT", "USDC"} {
			if _, held := balances[stable]; held {
				if _, ok := prices[stable]; !ok {
					prices[stable] = model.Quote{Price: model.Float64Ptr(1), DayPct: model.Float64Ptr(0)}
				}
			}
		}

		snapshot := ComputeSnapshot(SnapshotInput{
			Balances:      balances,
			Prices:        prices,
			Summaries:     summaries,
			RefFiat:       s.refFiat,
			MinUSDIgnore:  s.minUSDIgnore,
			AlwaysInclude: s.alwaysInclude,
			Now:           time.Unix(ts, 0).UTC(),
		})
		snapshots = append(snapshots, snapshot)
	}

	if err := s.historyRepo.Append(snapshots...); err != nil {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrFailedToSaveHistory, err)
	}
	return len(snapshots), nil
}

// ledgerSummaries reconciles the committed ledger, converting quote prices
// when present. A reconciliation failure here means the ledger file was
// edited out-of-band; the snapshot proceeds without cost basis.
func (s *SnapshotService) ledgerSummaries(prices map[string]model.Quote) (map[string]lotengine.AssetSummary, error) {
	priceMap := make(map[string]float64, len(prices))
	for sym, q := range prices {
		if q.Price != nil {
			priceMap[sym] = *q.Price
		}
	}
	summaries, err := s.ledgerService.Summaries(priceMap)
	if err != nil {
		var batchErr *lotengine.BatchReconciliationError
		if errors.As(err, &batchErr) {
			log.Printf("Warning: ledger does not reconcile, snapshot proceeds without cost basis: %v", err)
			return map[string]lotengine.AssetSummary{}, nil
		}
		return nil, err
	}
	return summaries, nil
}
