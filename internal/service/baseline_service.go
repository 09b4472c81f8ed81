package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/repository"
)

// BaselineMode selects how a day's reference price is derived.
type BaselineMode string

const (
	// BaselineClose uses the daily candle's closing price.
	BaselineClose BaselineMode = "close"

	// BaselineVWAP uses the volume-weighted average of intraday typical
	// prices, falling back to the daily typical price when no intraday
	// volume is cached.
	BaselineVWAP BaselineMode = "vwap"
)

// BaselineService derives reference prices from the local candle cache, for
// comparing a current price against "where it stood on day X".
type BaselineService struct {
	candleRepo *repository.CandleRepository
}

// NewBaselineService creates a new BaselineService over the candle cache.
func NewBaselineService(candleRepo *repository.CandleRepository) *BaselineService {
	return &BaselineService{candleRepo: candleRepo}
}

// BaselinePrice computes the reference price of symbol for the UTC day
// containing at. Returns nil without error when the cache holds no usable
// candle for that day.
func (s *BaselineService) BaselinePrice(ctx context.Context, symbol string, at time.Time, mode BaselineMode) (*float64, error) {
	dayStart := at.UTC().Truncate(24 * time.Hour)

	switch mode {
	case BaselineClose:
		return s.closeBaseline(ctx, symbol, dayStart)
	case BaselineVWAP:
		return s.vwapBaseline(ctx, symbol, dayStart)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", apperrors.ErrFailedToComputeBaseline, mode)
	}
}

func (s *BaselineService) closeBaseline(ctx context.Context, symbol string, dayStart time.Time) (*float64, error) {
	daily, err := s.candleRepo.GetDay(ctx, symbol, model.PeriodDaily, dayStart)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFailedToComputeBaseline, err)
	}
	if len(daily) == 0 {
		return nil, nil
	}
	return model.Float64Ptr(daily[0].Close), nil
}

func (s *BaselineService) vwapBaseline(ctx context.Context, symbol string, dayStart time.Time) (*float64, error) {
	intraday, err := s.candleRepo.GetDay(ctx, symbol, model.PeriodIntraday, dayStart)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFailedToComputeBaseline, err)
	}

	var sumPV, sumV float64
	for _, c := range intraday {
		tp := c.TypicalPrice()
		if c.Volume <= 0 || tp <= 0 {
			continue
		}
		sumPV += tp * c.Volume
		sumV += c.Volume
	}
	if sumV > 0 {
		return model.Float64Ptr(sumPV / sumV), nil
	}

	// No intraday volume cached for that day: fall back to the daily
	// typical price.
	daily, err := s.candleRepo.GetDay(ctx, symbol, model.PeriodDaily, dayStart)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFailedToComputeBaseline, err)
	}
	if len(daily) == 0 {
		return nil, nil
	}
	return model.Float64Ptr(daily[0].TypicalPrice()), nil
}

// PctChange returns the percent change from baseline to current, or nil
// when either side is not a positive price.
func PctChange(current, baseline float64) *float64 {
	if current <= 0 || baseline <= 0 {
		return nil
	}
	return model.Float64Ptr((current/baseline - 1) * 100)
}
