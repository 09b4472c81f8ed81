package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/api/request"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

// ValidLotAction contains the allowed lot action values.
var ValidLotAction = map[string]bool{
	"buy": true, "sell": true, "deposit": true, "withdraw": true,
}

// timestampLayouts are the accepted date formats, most precise first.
var timestampLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// ParseTimestamp parses a lot date in RFC3339 (with or without fractional
// seconds) or plain YYYY-MM-DD form, normalized to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected RFC3339 or YYYY-MM-DD", s)
}

// ValidateCreateLot validates a lot creation request.
//
// Required fields:
//   - asset: Must be non-empty
//   - action: Must be one of: buy, sell, deposit, withdraw
//   - date: Must be RFC3339 or YYYY-MM-DD
//   - qty: Must be non-zero, positive for buy/deposit, negative for sell/withdraw
//   - unit_cost_usd: Required and positive for buy; forbidden for withdraw;
//     optional but positive when given for sell/deposit
//
// Returns a validation Error with field-specific error messages if validation fails.
func ValidateCreateLot(req request.CreateLotRequest) error {
	errors := make(map[string]string)

	if strings.TrimSpace(req.Asset) == "" {
		errors["asset"] = "asset is required"
	}

	action := model.Action(req.Action)
	if strings.TrimSpace(req.Action) == "" {
		errors["action"] = "action is required"
	} else if !ValidLotAction[req.Action] {
		errors["action"] = fmt.Sprintf("invalid action: %s", req.Action)
	}

	if strings.TrimSpace(req.Date) == "" {
		errors["date"] = "date is required"
	} else if _, err := ParseTimestamp(req.Date); err != nil {
		errors["date"] = err.Error()
	}

	validateQty(errors, action, req.Qty)
	validateCost(errors, action, req.UnitCostUSD, true)

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}

// ValidateUpdateLot validates a lot update request. All fields are optional;
// sign and cost constraints against the lot's action are re-checked by the
// ledger engine after the patch is applied.
func ValidateUpdateLot(req request.UpdateLotRequest) error {
	errors := make(map[string]string)

	if req.Date != nil {
		if _, err := ParseTimestamp(*req.Date); err != nil {
			errors["date"] = err.Error()
		}
	}
	if req.Qty != nil {
		if math.IsNaN(*req.Qty) || math.IsInf(*req.Qty, 0) || *req.Qty == 0 {
			errors["qty"] = "qty must be a non-zero number"
		}
	}
	if req.UnitCostUSD.Set && req.UnitCostUSD.Value != nil {
		c := *req.UnitCostUSD.Value
		if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
			errors["unit_cost_usd"] = "unit_cost_usd must be positive"
		}
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}

// ValidateImportLots validates a JSON import batch. Per-record constraints
// match create; cross-record constraints (id conflicts, inventory) are
// enforced by the ledger engine.
func ValidateImportLots(req request.ImportLotsRequest) error {
	if len(req.Lots) == 0 {
		return &Error{Fields: map[string]string{"lots": "lots must be a non-empty array"}}
	}

	errors := make(map[string]string)
	for i, rec := range req.Lots {
		recErrors := make(map[string]string)

		if strings.TrimSpace(rec.Asset) == "" {
			recErrors["asset"] = "asset is required"
		}
		action := model.Action(rec.Action)
		if !ValidLotAction[rec.Action] {
			recErrors["action"] = fmt.Sprintf("invalid action: %s", rec.Action)
		}

		date := rec.TS
		if date == "" {
			date = rec.Date
		}
		if strings.TrimSpace(date) == "" {
			recErrors["ts"] = "ts is required"
		} else if _, err := ParseTimestamp(date); err != nil {
			recErrors["ts"] = err.Error()
		}

		validateQty(recErrors, action, rec.Qty)
		validateCost(recErrors, action, rec.UnitCostUSD, true)

		for field, msg := range recErrors {
			errors[fmt.Sprintf("lots[%d].%s", i, field)] = msg
		}
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}

func validateQty(errors map[string]string, action model.Action, qty float64) {
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty == 0 {
		errors["qty"] = "qty must be a non-zero number"
		return
	}
	switch {
	case action.IsSupply() && qty < 0:
		errors["qty"] = fmt.Sprintf("qty must be positive for %s", action)
	case action.IsConsuming() && qty > 0:
		errors["qty"] = fmt.Sprintf("qty must be negative for %s", action)
	}
}

func validateCost(errors map[string]string, action model.Action, cost *float64, required bool) {
	if cost == nil {
		if required && action == model.ActionBuy {
			errors["unit_cost_usd"] = "unit_cost_usd is required for buy"
		}
		return
	}
	if action == model.ActionWithdraw {
		errors["unit_cost_usd"] = "unit_cost_usd is not allowed for withdraw"
		return
	}
	if math.IsNaN(*cost) || math.IsInf(*cost, 0) || *cost <= 0 {
		errors["unit_cost_usd"] = "unit_cost_usd must be positive"
	}
}
