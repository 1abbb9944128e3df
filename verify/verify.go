// Package verify checks that the ledger and the secondary index agree.
//
// Verification never writes to the ledger. For each object it performs two
// checks:
//  1. Ledger self-consistency: the content hash stored in the record matches
//     the hash of the content, read inline or from the blob store.
//  2. Index purity: the stored index record carries pointer keys only.
//
// An object is valid only when both hold.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/ledgerfs-go/blobstore"
	"github.com/bitfsorg/ledgerfs-go/envelope"
	"github.com/bitfsorg/ledgerfs-go/index"
	"github.com/bitfsorg/ledgerfs-go/ledger"
	"github.com/bitfsorg/ledgerfs-go/logging"
	"github.com/bitfsorg/ledgerfs-go/metrics"
)

// LedgerState is the state of an object's token on the ledger.
type LedgerState string

const (
	StateLive    LedgerState = "live"
	StateDeleted LedgerState = "deleted"
	StateUnknown LedgerState = "unknown"
	// StateUnreadable means the record exists but could not be decoded.
	StateUnreadable LedgerState = "unreadable"
)

// DefaultConcurrency bounds the number of objects Sweep verifies at once.
const DefaultConcurrency = 8

// Result is the outcome of verifying one object.
type Result struct {
	ObjectID         string      `json:"objectId"`
	IntegrityValid   bool        `json:"integrityValid"`
	LedgerHash       string      `json:"ledgerHash,omitempty"`
	RecomputedHash   string      `json:"recomputedHash,omitempty"`
	IndexHasMetadata bool        `json:"indexHasMetadata"`
	IndexRecordFound bool        `json:"indexRecordFound"`
	LedgerState      LedgerState `json:"ledgerState"`
	// ExtraIndexKeys lists the non-pointer keys found in the index record.
	ExtraIndexKeys []string `json:"extraIndexKeys,omitempty"`
	Problems       []string `json:"problems,omitempty"`
}

func (r *Result) problem(format string, args ...interface{}) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Config wires a Verifier.
type Config struct {
	Ledger ledger.Ledger
	Index  index.Index
	Codec  *envelope.Codec
	// Blobs resolves externally stored content. Without it, external
	// content cannot be recomputed and such objects verify as invalid.
	Blobs       *blobstore.Store
	Concurrency int
	Logger      log.FieldLogger
	Metrics     *metrics.Metrics
}

// Verifier checks objects against the ledger and the index.
type Verifier struct {
	ledger      ledger.Ledger
	index       index.Index
	codec       *envelope.Codec
	blobs       *blobstore.Store
	concurrency int
	log         log.FieldLogger
	metrics     *metrics.Metrics
}

// New returns a Verifier. Ledger, Index and Codec are required.
func New(cfg Config) (*Verifier, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger", ErrNilParam)
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("%w: index", ErrNilParam)
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("%w: codec", ErrNilParam)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Verifier{
		ledger:      cfg.Ledger,
		index:       cfg.Index,
		codec:       cfg.Codec,
		blobs:       cfg.Blobs,
		concurrency: cfg.Concurrency,
		log:         logging.OrDiscard(cfg.Logger),
		metrics:     cfg.Metrics,
	}, nil
}

// Verify checks one object. Integrity findings are reported in the Result;
// the error is reserved for failures to reach the ledger or the index.
func (v *Verifier) Verify(ctx context.Context, objectID string) (*Result, error) {
	if objectID == "" {
		return nil, ErrInvalidObjectID
	}
	res := &Result{ObjectID: objectID}

	ledgerOK, err := v.checkLedger(ctx, res)
	if err != nil {
		return nil, err
	}
	if err := v.checkIndex(ctx, res); err != nil {
		return nil, err
	}

	res.IntegrityValid = ledgerOK && !res.IndexHasMetadata
	v.metrics.Verification(outcome(res))
	if !res.IntegrityValid {
		v.log.WithFields(log.Fields{
			"object_id": objectID, "ledger_state": res.LedgerState, "problems": strings.Join(res.Problems, "; "),
		}).Warn("integrity check failed")
	}
	return res, nil
}

// checkLedger fills the ledger half of res and reports whether the record is
// self-consistent.
func (v *Verifier) checkLedger(ctx context.Context, res *Result) (bool, error) {
	record, err := v.ledger.QueryRecord(ctx, res.ObjectID)
	switch {
	case errors.Is(err, ledger.ErrTokenNotFound):
		res.LedgerState = StateUnknown
		res.problem("no token on the ledger")
		return false, nil
	case errors.Is(err, ledger.ErrTokenDeleted):
		res.LedgerState = StateDeleted
		res.problem("token is burned")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("verify: query %s: %w", res.ObjectID, err)
	}

	env, err := v.codec.DecodeUnverified(record)
	if err != nil {
		res.LedgerState = StateUnreadable
		res.problem("record does not decode: %v", err)
		return false, nil
	}
	res.LedgerState = StateLive

	if env.Metadata.Kind == envelope.KindFolder && env.ContentHash == "" {
		return true, nil
	}
	res.LedgerHash = env.ContentHash

	switch {
	case env.HasContent():
		res.RecomputedHash = envelope.HashContent(env.Content)
	case env.IsExternal():
		if v.blobs == nil {
			res.problem("content is stored externally and no blob store is configured")
			return false, nil
		}
		content, err := v.blobs.GetUnverified(ctx, env.ContentRef)
		if err != nil {
			res.problem("external content %s unreadable: %v", env.ContentRef, err)
			return false, nil
		}
		res.RecomputedHash = envelope.HashContent(content)
	default:
		res.problem("file record carries neither content nor a content reference")
		return false, nil
	}

	if res.LedgerHash != res.RecomputedHash {
		res.problem("stored hash %s does not match content hash %s", res.LedgerHash, res.RecomputedHash)
		return false, nil
	}
	return true, nil
}

// checkIndex fills the index half of res.
func (v *Verifier) checkIndex(ctx context.Context, res *Result) error {
	raw, err := v.index.GetRaw(ctx, res.ObjectID)
	if errors.Is(err, index.ErrNotFound) {
		if res.LedgerState == StateLive {
			res.problem("live object has no index record")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("verify: index lookup %s: %w", res.ObjectID, err)
	}
	res.IndexRecordFound = true

	if extra := index.ExtraKeys(raw); len(extra) > 0 {
		res.IndexHasMetadata = true
		res.ExtraIndexKeys = extra
		res.problem("index record carries non-pointer keys: %s", strings.Join(extra, ", "))
	}
	if res.LedgerState != StateLive {
		res.problem("index record points at a %s object", res.LedgerState)
	}
	return nil
}

func outcome(r *Result) string {
	switch {
	case r.IntegrityValid:
		return "valid"
	case r.LedgerState == StateUnknown || r.LedgerState == StateDeleted:
		return "dangling"
	default:
		return "invalid"
	}
}

// SweepReport summarizes a reconciliation sweep.
type SweepReport struct {
	OwnerID  string    `json:"ownerId"`
	Checked  int       `json:"checked"`
	Valid    int       `json:"valid"`
	Invalid  []*Result `json:"invalid,omitempty"`
	Dangling []string  `json:"dangling,omitempty"`
	Repaired []string  `json:"repaired,omitempty"`
}

// Dangling reports whether the index record of r points at an object that is
// burned or unknown on the ledger.
func (r *Result) Dangling() bool {
	return r.IndexRecordFound && (r.LedgerState == StateDeleted || r.LedgerState == StateUnknown)
}

// Sweep verifies every index record owned by ownerID. With repair set,
// dangling pointers are deleted from the index. The ledger is never written.
func (v *Verifier) Sweep(ctx context.Context, ownerID string, repair bool) (*SweepReport, error) {
	records, err := v.index.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("verify: list %s: %w", ownerID, err)
	}
	index.Sort(records)

	results := make([]*Result, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i := range records {
		i := i
		g.Go(func() error {
			res, err := v.Verify(gctx, records[i].ObjectID)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &SweepReport{OwnerID: ownerID, Checked: len(results)}
	for _, res := range results {
		switch {
		case res.IntegrityValid:
			report.Valid++
		case res.Dangling():
			report.Dangling = append(report.Dangling, res.ObjectID)
		default:
			report.Invalid = append(report.Invalid, res)
		}
	}

	if repair {
		for _, id := range report.Dangling {
			if err := v.index.Delete(ctx, id); err != nil && !errors.Is(err, index.ErrNotFound) {
				v.log.WithError(err).WithField("object_id", id).Warn("could not remove dangling pointer")
				continue
			}
			report.Repaired = append(report.Repaired, id)
		}
	}
	sort.Strings(report.Repaired)

	v.log.WithFields(log.Fields{
		"owner_id": ownerID, "checked": report.Checked, "valid": report.Valid,
		"invalid": len(report.Invalid), "dangling": len(report.Dangling), "repaired": len(report.Repaired),
	}).Info("sweep complete")
	return report, nil
}
