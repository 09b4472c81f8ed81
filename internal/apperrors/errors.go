package apperrors

import "errors"

// Domain entity errors represent missing or invalid entities in the system.
var (
	// ErrLotNotFound indicates that a lot with the given id does not exist.
	ErrLotNotFound = errors.New("lot not found")

	// ErrNoSnapshot indicates that no valuation snapshot has been captured yet.
	ErrNoSnapshot = errors.New("no snapshot available")

	// ErrCandleNotFound indicates no cached candle for a symbol/period/day.
	ErrCandleNotFound = errors.New("candle not found")
)

// Business logic errors represent constraint violations in the ledger.
// These reject the attempted change entirely; the persisted ledger is
// untouched.
var (
	// ErrConsumedLot indicates that an edit or delete targeted a buy/deposit
	// lot whose supply has already been drawn upon by a later sell/withdraw.
	ErrConsumedLot = errors.New("lot already consumed")

	// ErrIDConflict indicates that an import carried a caller-supplied id
	// that is already present in the ledger.
	ErrIDConflict = errors.New("lot id conflict")

	// ErrUnknownBackend indicates an unrecognized ledger storage backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrExchangeKeysNotSet indicates the HTX access/secret keys are missing.
	ErrExchangeKeysNotSet = errors.New("exchange keys not set")
)

// Operation failure errors for the HTTP layer.
var (
	ErrFailedToLoadLedger      = errors.New("failed to load ledger")
	ErrFailedToSaveLedger      = errors.New("failed to save ledger")
	ErrFailedToLoadHistory     = errors.New("failed to load snapshot history")
	ErrFailedToSaveHistory     = errors.New("failed to save snapshot history")
	ErrFailedToFetchKlines     = errors.New("failed to fetch klines")
	ErrFailedToComputeBaseline = errors.New("failed to compute baseline price")
)
