package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/api/response"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/service"
)

// defaultHistoryCount is how many snapshots History returns when no count is
// given.
const defaultHistoryCount = 50

// SnapshotHandler handles HTTP requests for valuation snapshot endpoints.
type SnapshotHandler struct {
	snapshotService *service.SnapshotService
}

// NewSnapshotHandler creates a new SnapshotHandler with the provided service dependency.
func NewSnapshotHandler(snapshotService *service.SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{
		snapshotService: snapshotService,
	}
}

// Latest handles GET requests to retrieve the most recent snapshot.
//
// Endpoint: GET /api/snapshot/latest
// Response: 200 OK with Snapshot
// Error: 404 Not Found when no snapshot has been captured yet
func (h *SnapshotHandler) Latest(w http.ResponseWriter, _ *http.Request) {
	snapshot, err := h.snapshotService.Latest()
	if err != nil {
		if errors.Is(err, apperrors.ErrNoSnapshot) {
			response.RespondError(w, http.StatusNotFound, apperrors.ErrNoSnapshot.Error(), "")
			return
		}
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToLoadHistory.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, snapshot)
}

// History handles GET requests to retrieve recent snapshots, oldest first.
//
// Endpoint: GET /api/snapshot/history?n=50
// Response: 200 OK with array of Snapshot
// Error: 400 Bad Request on a non-positive or unparseable n
func (h *SnapshotHandler) History(w http.ResponseWriter, r *http.Request) {
	n := defaultHistoryCount
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.RespondError(w, http.StatusBadRequest, "invalid n", "n must be a positive integer")
			return
		}
		n = parsed
	}

	snapshots, err := h.snapshotService.History(n)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToLoadHistory.Error(), err.Error())
		return
	}
	if snapshots == nil {
		snapshots = []model.Snapshot{}
	}

	response.RespondJSON(w, http.StatusOK, snapshots)
}

// Refresh handles POST requests to capture a snapshot immediately instead of
// waiting for the next scheduled pull.
//
// Endpoint: POST /api/snapshot/refresh
// Response: 200 OK with the captured Snapshot
// Error: 502 Bad Gateway when the exchange is unreachable
func (h *SnapshotHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.snapshotService.Capture(r.Context())
	if err != nil {
		if errors.Is(err, apperrors.ErrExchangeKeysNotSet) {
			response.RespondError(w, http.StatusBadGateway, apperrors.ErrExchangeKeysNotSet.Error(), "")
			return
		}
		response.RespondError(w, http.StatusBadGateway, "failed to capture snapshot", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, snapshot)
}
