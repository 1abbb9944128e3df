package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/bitfsorg/ledgerfs-go/envelope"
	"github.com/bitfsorg/ledgerfs-go/ledger"
	"github.com/bitfsorg/ledgerfs-go/objectstore"
	"github.com/bitfsorg/ledgerfs-go/verify"
)

// errBadRequest marks malformed requests rejected before reaching the manager.
var errBadRequest = errors.New("bad request")

// statusOf maps an error onto an HTTP status and a stable error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, objectstore.ErrInvalidName),
		errors.Is(err, objectstore.ErrInvalidOwner),
		errors.Is(err, objectstore.ErrParentRequired),
		errors.Is(err, objectstore.ErrInvalidVersion),
		errors.Is(err, objectstore.ErrNotFolder),
		errors.Is(err, objectstore.ErrNotFile),
		errors.Is(err, verify.ErrInvalidObjectID):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, errMissingToken), errors.Is(err, errMissingSub):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, objectstore.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, objectstore.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, objectstore.ErrObjectGone):
		return http.StatusGone, "object_gone"
	case errors.Is(err, objectstore.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, objectstore.ErrFolderNotEmpty):
		return http.StatusConflict, "folder_not_empty"
	case errors.Is(err, objectstore.ErrNameTaken):
		return http.StatusConflict, "name_taken"
	case errors.Is(err, envelope.ErrEnvelopeTooLarge):
		return http.StatusRequestEntityTooLarge, "envelope_too_large"
	case errors.Is(err, envelope.ErrEnvelopeHashMismatch),
		errors.Is(err, envelope.ErrEnvelopeCorrupt):
		return http.StatusBadGateway, "ledger_integrity"
	case errors.Is(err, objectstore.ErrContentUnavailable):
		return http.StatusServiceUnavailable, "content_unavailable"
	case errors.Is(err, ledger.ErrRejected):
		switch ledger.ReasonOf(err) {
		case ledger.ReasonConflict:
			return http.StatusConflict, "ledger_conflict"
		case ledger.ReasonInsufficientBalance:
			return http.StatusServiceUnavailable, "insufficient_balance"
		default:
			return http.StatusBadGateway, "ledger_rejected"
		}
	case errors.Is(err, ledger.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "ledger_timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
