package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRejected indicates the ledger refused a submission. The concrete
	// error is a *RejectedError carrying the reason.
	ErrRejected = errors.New("ledger: submission rejected")

	// ErrTimeout indicates no receipt was observed within the poll budget.
	// The transaction may still be accepted later; it is never rolled back.
	ErrTimeout = errors.New("ledger: timed out waiting for receipt")

	// ErrTokenNotFound indicates the object id names no known token.
	ErrTokenNotFound = errors.New("ledger: token not found")

	// ErrTokenDeleted indicates the token has been burned.
	ErrTokenDeleted = errors.New("ledger: token deleted")

	// ErrTipNotFound indicates the tip store holds no entry for the object.
	ErrTipNotFound = errors.New("ledger: token tip not found")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("ledger: required parameter is nil")
)

// RejectReason classifies a ledger rejection.
type RejectReason string

const (
	ReasonInsufficientBalance RejectReason = "insufficient_balance"
	ReasonInvalidSignature    RejectReason = "invalid_signature"
	ReasonFeeMismatch         RejectReason = "fee_mismatch"
	ReasonConflict            RejectReason = "conflict"
	ReasonOther               RejectReason = "other"
)

// RejectedError is returned when the ledger refuses a submission.
// errors.Is(err, ErrRejected) holds for every RejectedError.
type RejectedError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ledger: submission rejected: %s", e.Reason)
	}
	return fmt.Sprintf("ledger: submission rejected: %s: %s", e.Reason, e.Detail)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// Rejected builds a RejectedError.
func Rejected(reason RejectReason, detail string) error {
	return &RejectedError{Reason: reason, Detail: detail}
}

// ReasonOf returns the rejection reason carried by err, or "" when err is
// not a rejection.
func ReasonOf(err error) RejectReason {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

// classifyReject maps a node reject message onto a RejectReason.
func classifyReject(msg string) RejectReason {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "mandatory-script-verify"),
		strings.Contains(m, "signature"):
		return ReasonInvalidSignature
	case strings.Contains(m, "txn-mempool-conflict"),
		strings.Contains(m, "missing inputs"),
		strings.Contains(m, "missingorspent"),
		strings.Contains(m, "double spend"),
		strings.Contains(m, "spent"):
		return ReasonConflict
	case strings.Contains(m, "min relay fee"),
		strings.Contains(m, "fee"):
		return ReasonFeeMismatch
	case strings.Contains(m, "insufficient"):
		return ReasonInsufficientBalance
	default:
		return ReasonOther
	}
}
