package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/api/response"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/htx"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/service"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/validation"
)

// maxKlineSize caps one kline request, matching the exchange's page limit.
const maxKlineSize = 2000

// MarketHandler handles HTTP requests for market data endpoints: kline
// history, multi-horizon price change and baseline pricing.
type MarketHandler struct {
	exchange            htx.Client
	marketChangeService *service.MarketChangeService
	baselineService     *service.BaselineService
}

// NewMarketHandler creates a new MarketHandler with the provided dependencies.
func NewMarketHandler(exchange htx.Client, marketChangeService *service.MarketChangeService, baselineService *service.BaselineService) *MarketHandler {
	return &MarketHandler{
		exchange:            exchange,
		marketChangeService: marketChangeService,
		baselineService:     baselineService,
	}
}

// Kline handles GET requests to fetch OHLCV history for a USDT-quoted symbol.
//
// Endpoint: GET /api/market/kline?symbol=BTC&period=1day&size=30
// Response: 200 OK with array of Candle, ascending by bar start
// Error: 400 Bad Request on a missing symbol or invalid period/size
// Error: 502 Bad Gateway when the exchange is unreachable
func (h *MarketHandler) Kline(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		response.RespondError(w, http.StatusBadRequest, "symbol is required", "")
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = model.PeriodDaily
	}
	if period != model.PeriodDaily && period != model.PeriodIntraday {
		response.RespondError(w, http.StatusBadRequest, "invalid period", "expected 1day or 60min")
		return
	}

	size := 30
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxKlineSize {
			response.RespondError(w, http.StatusBadRequest, "invalid size", "size must be between 1 and 2000")
			return
		}
		size = parsed
	}

	bars, err := h.exchange.GetKlines(r.Context(), symbol, period, size)
	if err != nil {
		response.RespondError(w, http.StatusBadGateway, apperrors.ErrFailedToFetchKlines.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, bars)
}

// Change handles GET requests for a symbol's 1/7/30 day price change.
//
// Endpoint: GET /api/market/change?symbol=BTC
// Response: 200 OK with MarketChange (nil fields where no history exists)
// Error: 400 Bad Request on a missing symbol
func (h *MarketHandler) Change(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		response.RespondError(w, http.StatusBadRequest, "symbol is required", "")
		return
	}

	change, err := h.marketChangeService.Changes(r.Context(), symbol)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to compute market change", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, change)
}

// BaselineResponse is the baseline pricing result. BaselinePrice is null when
// the candle cache holds nothing usable for the requested day; PctChange is
// present only when a current price was supplied and both sides are positive.
type BaselineResponse struct {
	Symbol        string   `json:"symbol"`
	Date          string   `json:"date"`
	Mode          string   `json:"mode"`
	BaselinePrice *float64 `json:"baseline_price"`
	PctChange     *float64 `json:"pct_change,omitempty"`
}

// Baseline handles GET requests for a symbol's reference price on a given
// UTC day, derived from the local candle cache.
//
// Endpoint: GET /api/market/baseline?symbol=BTC&date=2026-08-01&mode=vwap&current=109000
// Response: 200 OK with BaselineResponse
// Error: 400 Bad Request on missing/invalid parameters
// Error: 500 Internal Server Error when the candle cache fails
func (h *MarketHandler) Baseline(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		response.RespondError(w, http.StatusBadRequest, "symbol is required", "")
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		response.RespondError(w, http.StatusBadRequest, "date is required", "")
		return
	}
	at, err := validation.ParseTimestamp(date)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid date", err.Error())
		return
	}

	mode := service.BaselineMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = service.BaselineClose
	}
	if mode != service.BaselineClose && mode != service.BaselineVWAP {
		response.RespondError(w, http.StatusBadRequest, "invalid mode", "expected close or vwap")
		return
	}

	baseline, err := h.baselineService.BaselinePrice(r.Context(), symbol, at, mode)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToComputeBaseline.Error(), err.Error())
		return
	}

	resp := BaselineResponse{
		Symbol:        symbol,
		Date:          at.UTC().Truncate(24 * time.Hour).Format("2006-01-02"),
		Mode:          string(mode),
		BaselinePrice: baseline,
	}
	if raw := r.URL.Query().Get("current"); raw != "" && baseline != nil {
		current, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.RespondError(w, http.StatusBadRequest, "invalid current", "current must be a number")
			return
		}
		resp.PctChange = service.PctChange(current, *baseline)
	}

	response.RespondJSON(w, http.StatusOK, resp)
}
