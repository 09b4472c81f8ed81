package htx

// accountsResponse is the envelope of GET /v1/account/accounts.
type accountsResponse struct {
	Status  string    `json:"status"`
	ErrCode string    `json:"err-code"`
	ErrMsg  string    `json:"err-msg"`
	Data    []account `json:"data"`
}

type account struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	State string `json:"state"`
}

// balanceResponse is the envelope of GET /v1/account/accounts/{id}/balance.
type balanceResponse struct {
	Status  string      `json:"status"`
	ErrCode string      `json:"err-code"`
	ErrMsg  string      `json:"err-msg"`
	Data    balanceData `json:"data"`
}

type balanceData struct {
	Type string         `json:"type"`
	List []balanceEntry `json:"list"`
}

type balanceEntry struct {
	Currency string `json:"currency"`
	Type     string `json:"type"`
	Balance  string `json:"balance"`
}

// tickersResponse is the envelope of GET /market/tickers.
type tickersResponse struct {
	Status  string   `json:"status"`
	ErrCode string   `json:"err-code"`
	ErrMsg  string   `json:"err-msg"`
	Data    []ticker `json:"data"`
}

type ticker struct {
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
}

// klineResponse is the envelope of GET /market/history/kline.
// Bars arrive newest first; ID is the bar start in epoch seconds.
type klineResponse struct {
	Status  string     `json:"status"`
	ErrCode string     `json:"err-code"`
	ErrMsg  string     `json:"err-msg"`
	Data    []klineBar `json:"data"`
}

type klineBar struct {
	ID     int64   `json:"id"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"vol"`
}
