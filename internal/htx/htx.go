// Package htx is a minimal HTX (Huobi) spot REST client covering the calls
// the portfolio tracker needs: account balances, USDT-quoted tickers and
// kline history. Account endpoints are signed with HMAC-SHA256 per the
// exchange's v2 signature scheme; market endpoints are public.
package htx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

// Client is the exchange surface consumed by the snapshot and market
// services. Tests substitute a fake.
type Client interface {
	// GetBalances returns free quantities per currency, merged across the
	// spot and deposit-earning accounts.
	GetBalances(ctx context.Context) (map[string]float64, error)

	// GetQuotes returns last price and 24h change for the requested base
	// symbols, quoted in USDT. Unknown symbols are absent from the result;
	// USDT/USDC fall back to a fixed price of 1.
	GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error)

	// GetKlines returns OHLCV bars for a USDT-quoted base symbol, sorted
	// ascending by bar start. period is one of model.PeriodDaily or
	// model.PeriodIntraday.
	GetKlines(ctx context.Context, symbol, period string, size int) ([]model.Candle, error)
}

// RESTClient implements Client against the HTX REST API.
type RESTClient struct {
	httpClient *http.Client
	host       string
	accessKey  string
	secretKey  string
	accountID  string
}

// NewRESTClient creates an HTX client. accountID optionally pins the spot
// account instead of discovering it through /v1/account/accounts.
func NewRESTClient(host, accessKey, secretKey, accountID string) *RESTClient {
	return &RESTClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		host:       host,
		accessKey:  accessKey,
		secretKey:  secretKey,
		accountID:  accountID,
	}
}

// GetBalances merges free balances across the spot and deposit-earning
// accounts. Spot counts "trade" entries; deposit-earning also counts
// "lending".
func (c *RESTClient) GetBalances(ctx context.Context) (map[string]float64, error) {
	accounts, err := c.listAccounts(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[int64]string)
	hasSpot := c.accountID != ""
	if c.accountID != "" {
		if id, err := strconv.ParseInt(c.accountID, 10, 64); err == nil {
			ids[id] = "spot"
		}
	}
	for _, a := range accounts {
		switch strings.ToLower(a.Type) {
		case "spot":
			ids[a.ID] = "spot"
			hasSpot = true
		case "deposit-earning":
			ids[a.ID] = "deposit-earning"
		}
	}
	if !hasSpot {
		return nil, fmt.Errorf("htx spot account id not found")
	}

	merged := make(map[string]float64)
	for id, accType := range ids {
		balances, err := c.fetchAccountBalances(ctx, id, accType)
		if err != nil {
			return nil, err
		}
		for cur, free := range balances {
			merged[cur] += free
		}
	}
	return merged, nil
}

// GetQuotes maps base symbols to their USDT ticker price and 24h change.
func (c *RESTClient) GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	var resp tickersResponse
	if err := c.publicGet(ctx, "/market/tickers", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, apiError("tickers", resp.Status, resp.ErrCode, resp.ErrMsg)
	}

	need := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		need[strings.ToUpper(s)] = true
	}

	out := make(map[string]model.Quote)
	for _, t := range resp.Data {
		sym := strings.ToUpper(t.Symbol)
		if !strings.HasSuffix(sym, "USDT") {
			continue
		}
		base := strings.TrimSuffix(sym, "USDT")
		if !need[base] {
			continue
		}
		q := model.Quote{Price: model.Float64Ptr(t.Close)}
		if t.Open != 0 {
			q.DayPct = model.Float64Ptr((t.Close/t.Open - 1) * 100)
		}
		out[base] = q
	}

	// Stablecoin fallback so USD-pegged holdings are always valued.
	for _, s := range []string{"USDT", "USDC"} {
		if need[s] {
			if _, ok := out[s]; !ok {
				out[s] = model.Quote{Price: model.Float64Ptr(1), DayPct: model.Float64Ptr(0)}
			}
		}
	}
	return out, nil
}

// GetKlines fetches OHLCV history for base+"usdt" and normalizes it to
// ascending bar order.
func (c *RESTClient) GetKlines(ctx context.Context, symbol, period string, size int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToLower(symbol)+"usdt")
	params.Set("period", period)
	params.Set("size", strconv.Itoa(size))

	var resp klineResponse
	if err := c.publicGet(ctx, "/market/history/kline", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, apiError("kline", resp.Status, resp.ErrCode, resp.ErrMsg)
	}

	out := make([]model.Candle, 0, len(resp.Data))
	// API returns reverse chronological; normalize to ascending.
	for i := len(resp.Data) - 1; i >= 0; i-- {
		bar := resp.Data[i]
		out = append(out, model.Candle{
			Symbol: strings.ToUpper(symbol),
			Period: period,
			TS:     time.Unix(bar.ID, 0).UTC(),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		})
	}
	return out, nil
}

func (c *RESTClient) listAccounts(ctx context.Context) ([]account, error) {
	var resp accountsResponse
	if err := c.privateGet(ctx, "/v1/account/accounts", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, apiError("accounts", resp.Status, resp.ErrCode, resp.ErrMsg)
	}
	return resp.Data, nil
}

func (c *RESTClient) fetchAccountBalances(ctx context.Context, id int64, accType string) (map[string]float64, error) {
	var resp balanceResponse
	path := fmt.Sprintf("/v1/account/accounts/%d/balance", id)
	if err := c.privateGet(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, apiError("balance", resp.Status, resp.ErrCode, resp.ErrMsg)
	}

	// Spot free balance is "trade"; deposit-earning additionally reports
	// "lending".
	allowed := map[string]bool{"trade": true}
	if accType == "deposit-earning" {
		allowed["lending"] = true
	}

	out := make(map[string]float64)
	for _, entry := range resp.Data.List {
		if !allowed[strings.ToLower(entry.Type)] {
			continue
		}
		bal, err := strconv.ParseFloat(entry.Balance, 64)
		if err != nil || entry.Currency == "" {
			continue
		}
		out[strings.ToUpper(entry.Currency)] += bal
	}
	return out, nil
}

func (c *RESTClient) publicGet(ctx context.Context, path string, params url.Values, v any) error {
	u := "https://" + c.host + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.doGet(ctx, u, v)
}

func (c *RESTClient) privateGet(ctx context.Context, path string, params url.Values, v any) error {
	if c.accessKey == "" || c.secretKey == "" {
		return apperrors.ErrExchangeKeysNotSet
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("AccessKeyId", c.accessKey)
	params.Set("SignatureMethod", "HmacSHA256")
	params.Set("SignatureVersion", "2")
	// The exchange expects UTC to the second, no zone suffix.
	params.Set("Timestamp", time.Now().UTC().Format("2006-01-02T15:04:05"))

	query := canonicalQuery(params)
	payload := strings.Join([]string{"GET", c.host, path, query}, "\n")
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	u := "https://" + c.host + path + "?" + query + "&Signature=" + url.QueryEscape(signature)
	return c.doGet(ctx, u, v)
}

func (c *RESTClient) doGet(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build htx request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("htx request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read htx response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse htx response: %w", err)
	}
	return nil
}

// canonicalQuery encodes params sorted by key, as required by the signature.
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(params.Get(k)))
	}
	return strings.Join(pairs, "&")
}

func apiError(op, status, code, msg string) error {
	detail := strings.TrimSpace(strings.Join([]string{code, msg}, " "))
	if detail == "" {
		detail = status
	}
	return fmt.Errorf("htx %s error: %s", op, detail)
}
