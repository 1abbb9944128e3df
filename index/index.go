// Package index is the secondary index: pointer records that let objects be
// listed by owner and parent without reading the ledger.
//
// A pointer record carries identifiers only. Object metadata and content
// live on the ledger; any other key found in a stored record is a defect
// the verifier reports.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// StorageLedgerOnly is the only storage kind a pointer record may carry.
const StorageLedgerOnly = "ledger_only"

// PointerKeys are the JSON keys a stored pointer record may contain.
var PointerKeys = []string{
	"objectId", "ownerId", "parentId", "name", "createdAt", "transactionId", "storageKind",
}

// Record is a pointer from an object id to its ledger transaction.
type Record struct {
	ObjectID      string `json:"objectId" storm:"id"`
	OwnerID       string `json:"ownerId" storm:"index"`
	ParentID      string `json:"parentId,omitempty" storm:"index"`
	Name          string `json:"name"`
	CreatedAt     int64  `json:"createdAt"`
	TransactionID string `json:"transactionId"`
	StorageKind   string `json:"storageKind"`
}

// Validate checks the required fields and fills StorageKind.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	switch {
	case r.ObjectID == "":
		return fmt.Errorf("%w: objectId is empty", ErrInvalidRecord)
	case r.OwnerID == "":
		return fmt.Errorf("%w: ownerId is empty", ErrInvalidRecord)
	case r.Name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidRecord)
	case r.TransactionID == "":
		return fmt.Errorf("%w: transactionId is empty", ErrInvalidRecord)
	}
	if r.StorageKind == "" {
		r.StorageKind = StorageLedgerOnly
	}
	if r.StorageKind != StorageLedgerOnly {
		return fmt.Errorf("%w: storageKind %q", ErrInvalidRecord, r.StorageKind)
	}
	return nil
}

// Index stores pointer records.
type Index interface {
	// Put inserts or replaces the record of r.ObjectID.
	Put(ctx context.Context, r *Record) error
	// Get returns the record of objectID or ErrNotFound.
	Get(ctx context.Context, objectID string) (*Record, error)
	// GetRaw returns the stored record as raw JSON fields, exactly as kept
	// by the backend, or ErrNotFound.
	GetRaw(ctx context.Context, objectID string) (map[string]json.RawMessage, error)
	// Delete removes the record of objectID. Deleting a missing record
	// returns ErrNotFound.
	Delete(ctx context.Context, objectID string) error
	// ListByOwner returns every record owned by ownerID.
	ListByOwner(ctx context.Context, ownerID string) ([]Record, error)
	// ListByParent returns every record whose parent is parentID.
	ListByParent(ctx context.Context, parentID string) ([]Record, error)
	Close() error
}

// Sort orders records by CreatedAt, then ObjectID.
func Sort(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ObjectID < records[j].ObjectID
	})
}

// ExtraKeys returns the keys of raw that are not pointer keys, sorted.
func ExtraKeys(raw map[string]json.RawMessage) []string {
	allowed := make(map[string]bool, len(PointerKeys))
	for _, k := range PointerKeys {
		allowed[k] = true
	}
	var extra []string
	for k := range raw {
		if !allowed[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

// decodeRaw splits a stored JSON record into its fields.
func decodeRaw(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("index: decode record: %w", err)
	}
	return raw, nil
}
