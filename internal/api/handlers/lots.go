package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/api/request"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/api/response"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/repository"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/service"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/validation"
)

// maxImportBody bounds CSV import uploads.
const maxImportBody = 8 << 20

// LotHandler handles HTTP requests for cost-basis lot endpoints.
// It serves as the HTTP layer adapter, parsing requests and delegating
// business logic to the ledgerService.
type LotHandler struct {
	ledgerService   *service.LedgerService
	snapshotService *service.SnapshotService
}

// NewLotHandler creates a new LotHandler with the provided service dependencies.
func NewLotHandler(ledgerService *service.LedgerService, snapshotService *service.SnapshotService) *LotHandler {
	return &LotHandler{
		ledgerService:   ledgerService,
		snapshotService: snapshotService,
	}
}

// CreateLotResponse pairs a committed lot with its asset's post-commit summary.
type CreateLotResponse struct {
	Lot     model.Lot   `json:"lot"`
	Summary interface{} `json:"summary"`
}

// GetLedger handles GET requests to retrieve the full reconciled ledger.
// Unrealized P/L is valued against the prices of the latest snapshot, so no
// exchange round trip happens on this path.
//
// Endpoint: GET /api/lots
// Response: 200 OK with LedgerView
// Error: 500 Internal Server Error if the ledger cannot be loaded
func (h *LotHandler) GetLedger(w http.ResponseWriter, _ *http.Request) {
	view, err := h.ledgerService.GetLedger(h.snapshotService.LatestPrices())
	if err != nil {
		respondLedgerError(w, err, apperrors.ErrFailedToLoadLedger.Error())
		return
	}
	response.RespondJSON(w, http.StatusOK, view)
}

// CreateLot handles POST requests to record a new lot.
// The whole ledger is re-validated and LOFO-reconciled before the lot is
// committed; a lot that would drive any asset's inventory negative is
// rejected and nothing is persisted.
//
// Endpoint: POST /api/lots
// Request Body: CreateLotRequest (action, asset, qty, unit_cost_usd, date, note)
// Response: 201 Created with CreateLotResponse
// Error: 400 Bad Request if validation fails or request body is invalid
// Error: 422 Unprocessable Entity if the ledger no longer reconciles
// Error: 500 Internal Server Error if persistence fails
func (h *LotHandler) CreateLot(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.CreateLotRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateCreateLot(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	lot, err := lotFromCreateRequest(req)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	created, summary, err := h.ledgerService.CreateLot(lot)
	if err != nil {
		respondLedgerError(w, err, apperrors.ErrFailedToSaveLedger.Error())
		return
	}

	response.RespondJSON(w, http.StatusCreated, CreateLotResponse{Lot: created, Summary: summary})
}

// UpdateLot handles PUT requests to edit an existing lot.
// Only date, qty, unit_cost_usd and note are editable; supply lots already
// drawn upon by a later sell/withdraw are immutable.
//
// Endpoint: PUT /api/lots/{id}
// Request Body: UpdateLotRequest (all fields optional; unit_cost_usd accepts null)
// Response: 200 OK with the updated Lot
// Error: 400 Bad Request if validation fails or request body is invalid
// Error: 404 Not Found if the lot does not exist
// Error: 409 Conflict if the lot has been consumed
// Error: 422 Unprocessable Entity if the edited ledger no longer reconciles
func (h *LotHandler) UpdateLot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := parseJSON[request.UpdateLotRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateUpdateLot(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	patch := service.LotPatch{
		Qty:     req.Qty,
		Cost:    req.UnitCostUSD.Value,
		CostSet: req.UnitCostUSD.Set,
		Note:    req.Note,
	}
	if req.Date != nil {
		ts, err := validation.ParseTimestamp(*req.Date)
		if err != nil {
			response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
			return
		}
		patch.TS = &ts
	}

	updated, err := h.ledgerService.UpdateLot(id, patch)
	if err != nil {
		respondLedgerError(w, err, apperrors.ErrFailedToSaveLedger.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, updated)
}

// DeleteLot handles DELETE requests to remove a lot.
//
// Endpoint: DELETE /api/lots/{id}
// Response: 204 No Content
// Error: 404 Not Found if the lot does not exist
// Error: 409 Conflict if the lot has been consumed
// Error: 422 Unprocessable Entity if removal breaks reconciliation
func (h *LotHandler) DeleteLot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.ledgerService.DeleteLot(id); err != nil {
		respondLedgerError(w, err, apperrors.ErrFailedToSaveLedger.Error())
		return
	}

	response.RespondJSON(w, http.StatusNoContent, nil)
}

// ImportLots handles POST requests to merge a batch of lots into the ledger.
// The body is either JSON ({"lots": [...]}) or a raw CSV table in the export
// format. The on_conflict query parameter selects how caller-supplied ids
// that already exist are handled: "skip" drops them, "abort" (default)
// rejects the whole batch.
//
// Endpoint: POST /api/lots/import?on_conflict=skip|abort
// Response: 200 OK with ImportResult
// Error: 400 Bad Request if the body or any record is invalid
// Error: 409 Conflict on an id conflict with on_conflict=abort
// Error: 422 Unprocessable Entity if the merged ledger does not reconcile
func (h *LotHandler) ImportLots(w http.ResponseWriter, r *http.Request) {
	skipOnConflict := false
	switch r.URL.Query().Get("on_conflict") {
	case "", "abort":
	case "skip":
		skipOnConflict = true
	default:
		response.RespondError(w, http.StatusBadRequest, "invalid on_conflict value", "expected skip or abort")
		return
	}

	var lots []model.Lot
	if strings.Contains(r.Header.Get("Content-Type"), "text/csv") {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBody))
		if err != nil {
			response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		lots, err = repository.ParseLedgerCSV(data)
		if err != nil {
			response.RespondError(w, http.StatusBadRequest, "invalid csv", err.Error())
			return
		}
	} else {
		req, err := parseJSON[request.ImportLotsRequest](r)
		if err != nil {
			response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		if err := validation.ValidateImportLots(req); err != nil {
			response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
			return
		}
		lots, err = lotsFromImportRequest(req)
		if err != nil {
			response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
			return
		}
	}

	result, err := h.ledgerService.ImportLots(lots, skipOnConflict)
	if err != nil {
		respondLedgerError(w, err, apperrors.ErrFailedToSaveLedger.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// ExportLots handles GET requests to download the ledger.
//
// Endpoint: GET /api/lots/export?format=csv|json
// Response: 200 OK with the encoded ledger as an attachment
// Error: 400 Bad Request on an unknown format
func (h *LotHandler) ExportLots(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	data, contentType, err := h.ledgerService.Export(format)
	if err != nil {
		if strings.Contains(err.Error(), apperrors.ErrUnknownBackend.Error()) {
			response.RespondError(w, http.StatusBadRequest, "invalid format", "expected csv or json")
			return
		}
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToLoadLedger.Error(), err.Error())
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=cost_basis_lots.%s", format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		// Response already committed; nothing to do but note it.
		return
	}
}

func lotFromCreateRequest(req request.CreateLotRequest) (model.Lot, error) {
	ts, err := validation.ParseTimestamp(req.Date)
	if err != nil {
		return model.Lot{}, err
	}
	return model.Lot{
		Action:      model.Action(req.Action),
		Asset:       strings.ToUpper(strings.TrimSpace(req.Asset)),
		Qty:         req.Qty,
		UnitCostUSD: req.UnitCostUSD,
		TS:          ts,
		Note:        req.Note,
	}, nil
}

func lotsFromImportRequest(req request.ImportLotsRequest) ([]model.Lot, error) {
	lots := make([]model.Lot, 0, len(req.Lots))
	for i, rec := range req.Lots {
		date := rec.TS
		if date == "" {
			date = rec.Date
		}
		ts, err := validation.ParseTimestamp(date)
		if err != nil {
			return nil, fmt.Errorf("lots[%d]: %w", i, err)
		}
		lots = append(lots, model.Lot{
			ID:          rec.ID,
			Action:      model.Action(rec.Action),
			Asset:       strings.ToUpper(strings.TrimSpace(rec.Asset)),
			Qty:         rec.Qty,
			UnitCostUSD: rec.UnitCostUSD,
			TS:          ts,
			Note:        rec.Note,
		})
	}
	return lots, nil
}
