// Package ledger is the ledger client adapter: it mints, re-mints and burns
// the single-unit tokens that carry object records, waits for receipts and
// reads records back.
//
// Two implementations are provided: BSV, which talks to a Bitcoin SV node,
// and Memory, an in-process ledger for tests and local runs.
package ledger

import "context"

// Ledger is the interface the lifecycle manager and verifier depend on.
type Ledger interface {
	// SubmitCreate mints a token carrying record and blocks until a receipt
	// is observed. The returned ObjectID is the mint txid.
	SubmitCreate(ctx context.Context, record []byte, params TokenParams) (*Receipt, error)

	// SubmitUpdate replaces the record of objectID by re-minting its token.
	SubmitUpdate(ctx context.Context, objectID string, record []byte) (*Receipt, error)

	// SubmitDelete burns the token of objectID.
	SubmitDelete(ctx context.Context, objectID string) (*Receipt, error)

	// QueryRecord returns the current record of objectID.
	// Fails with ErrTokenNotFound or ErrTokenDeleted.
	QueryRecord(ctx context.Context, objectID string) ([]byte, error)
}

// TokenParams tunes a mint.
type TokenParams struct {
	// KeyRef selects the custody key that owns the token. Empty uses the
	// adapter default. Later updates and burns reuse the same key.
	KeyRef string
	// Label is logged with the submission; it is not written to the ledger.
	Label string
}

// Receipt identifies an accepted ledger transaction.
type Receipt struct {
	ObjectID string `json:"objectId"`
	TxID     string `json:"transactionId"`
}
