package request

import "encoding/json"

// OptionalFloat distinguishes an absent field from an explicit null in a
// JSON body. Set is true whenever the field was present; Value is nil for an
// explicit null.
type OptionalFloat struct {
	Set   bool
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked for fields
// present in the body, so Set marks presence.
func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	o.Value = &f
	return nil
}

// CreateLotRequest is the body for creating a single lot.
type CreateLotRequest struct {
	Action      string   `json:"action"`
	Asset       string   `json:"asset"`
	Qty         float64  `json:"qty"`
	UnitCostUSD *float64 `json:"unit_cost_usd"`
	Date        string   `json:"date"`
	Note        string   `json:"note"`
}

// UpdateLotRequest is the body for editing a lot. All fields are optional;
// unit_cost_usd accepts an explicit null to clear a deposit's cost.
type UpdateLotRequest struct {
	Date        *string       `json:"date"`
	Qty         *float64      `json:"qty"`
	UnitCostUSD OptionalFloat `json:"unit_cost_usd"`
	Note        *string       `json:"note"`
}

// ImportLotRecord is one lot in a JSON import batch. An empty id means
// "assign the next one"; ts and date are accepted interchangeably.
type ImportLotRecord struct {
	ID          string   `json:"id"`
	Action      string   `json:"action"`
	Asset       string   `json:"asset"`
	Qty         float64  `json:"qty"`
	UnitCostUSD *float64 `json:"unit_cost_usd"`
	TS          string   `json:"ts"`
	Date        string   `json:"date"`
	Note        string   `json:"note"`
}

// ImportLotsRequest is the body for a JSON lot import.
type ImportLotsRequest struct {
	Lots []ImportLotRecord `json:"lots"`
}
