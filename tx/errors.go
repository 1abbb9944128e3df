package tx

import "errors"

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("tx: required parameter is nil")

	// ErrInsufficientFunds indicates the fee inputs cannot cover fees and the token output.
	ErrInsufficientFunds = errors.New("tx: insufficient funds")

	// ErrInvalidPayload indicates the record is empty or exceeds limits.
	ErrInvalidPayload = errors.New("tx: invalid payload")

	// ErrInvalidObjectID indicates an object id is not a 32-byte txid.
	ErrInvalidObjectID = errors.New("tx: object id must be 32 bytes")

	// ErrSigningFailed indicates transaction signing failed.
	ErrSigningFailed = errors.New("tx: signing failed")

	// ErrScriptBuild indicates script construction failed.
	ErrScriptBuild = errors.New("tx: script build failed")

	// ErrInvalidOPReturn indicates the OP_RETURN script is malformed.
	ErrInvalidOPReturn = errors.New("tx: invalid OP_RETURN format")

	// ErrNotTokenTx indicates the transaction carries no token record.
	ErrNotTokenTx = errors.New("tx: not a token record transaction")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("tx: invalid parameters")
)
