package chain

import "errors"

// Error kinds shared across components, per the error-handling design:
// each is a sentinel that call sites wrap with context via fmt.Errorf("%w: ...", ErrX, ...).
var (
	// ErrMalformedRecord means a decoded record was missing a required field
	// or had the wrong arity. Fatal for the record being decoded.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnknownTxType means the type tag was not one of pay|keyreg|acfg|axfer|afrz.
	// Fatal for the block containing the transaction.
	ErrUnknownTxType = errors.New("unknown transaction type")

	// ErrUnexpectedRound means a fetched block's decoded round did not match
	// the round that was requested. Fatal for that fetch, retriable by the caller.
	ErrUnexpectedRound = errors.New("unexpected round in fetched block")

	// ErrTransport wraps node HTTP/network failures. Retriable.
	ErrTransport = errors.New("transport error")

	// ErrConfig means the process cannot continue with its current configuration.
	// Fatal, process exit.
	ErrConfig = errors.New("configuration error")

	// ErrStorage wraps database failures. Retriable once with reconnection, then fatal.
	ErrStorage = errors.New("storage error")

	// ErrWatermarkAdvance means a commit's resulting watermark was not exactly
	// the expected previous+1. Fatal.
	ErrWatermarkAdvance = errors.New("watermark did not advance by one")
)
