package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/api/response"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/lotengine"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/validation"
)

// parseJSON decodes a request body into the given request type.
func parseJSON[T any](r *http.Request) (T, error) {
	var req T
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

// respondLedgerError maps ledger service errors onto HTTP statuses:
// validation failures are 400, unmet LOFO inventory is 422, consumed-lot and
// id-conflict rejections are 409, unknown lots are 404. Anything else is a
// 500 with the fallback message.
func respondLedgerError(w http.ResponseWriter, err error, fallback string) {
	var validationErr *validation.Error
	var lotErr *lotengine.ValidationError
	var reconcileErr *lotengine.BatchReconciliationError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &lotErr):
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
	case errors.As(err, &reconcileErr):
		response.RespondError(w, http.StatusUnprocessableEntity, "ledger does not reconcile", err.Error())
	case errors.Is(err, apperrors.ErrConsumedLot), errors.Is(err, apperrors.ErrIDConflict):
		response.RespondError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, apperrors.ErrLotNotFound):
		response.RespondError(w, http.StatusNotFound, apperrors.ErrLotNotFound.Error(), err.Error())
	default:
		response.RespondError(w, http.StatusInternalServerError, fallback, err.Error())
	}
}
