package testutil

import (
	"context"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/model"
)

// MockExchangeClient is a mock implementation of htx.Client for testing.
// It returns predefined test data instead of making actual API calls.
type MockExchangeClient struct {
	// Balances is the response returned from GetBalances
	Balances map[string]float64
	// Quotes is the response returned from GetQuotes
	Quotes map[string]model.Quote
	// Klines is the response returned from GetKlines, keyed by symbol
	Klines map[string][]model.Candle

	// BalancesErr, QuotesErr and KlinesErr force the respective call to fail
	BalancesErr error
	QuotesErr   error
	KlinesErr   error

	// Call counters
	BalancesCalls int
	QuotesCalls   int
	KlinesCalls   int
}

// NewMockExchangeClient creates a mock exchange with empty data.
func NewMockExchangeClient() *MockExchangeClient {
	return &MockExchangeClient{
		Balances: map[string]float64{},
		Quotes:   map[string]model.Quote{},
		Klines:   map[string][]model.Candle{},
	}
}

// GetBalances returns the configured balances or error.
func (m *MockExchangeClient) GetBalances(_ context.Context) (map[string]float64, error) {
	m.BalancesCalls++
	if m.BalancesErr != nil {
		return nil, m.BalancesErr
	}
	return m.Balances, nil
}

// GetQuotes returns the configured quotes or error. The symbol filter is
// ignored; tests configure exactly the quotes they expect.
func (m *MockExchangeClient) GetQuotes(_ context.Context, _ []string) (map[string]model.Quote, error) {
	m.QuotesCalls++
	if m.QuotesErr != nil {
		return nil, m.QuotesErr
	}
	return m.Quotes, nil
}

// GetKlines returns the configured bars for symbol or error. size is applied
// as a suffix cap, matching how the exchange pages from the newest bar back.
func (m *MockExchangeClient) GetKlines(_ context.Context, symbol, _ string, size int) ([]model.Candle, error) {
	m.KlinesCalls++
	if m.KlinesErr != nil {
		return nil, m.KlinesErr
	}
	bars := m.Klines[symbol]
	if size > 0 && len(bars) > size {
		bars = bars[len(bars)-size:]
	}
	return bars, nil
}
