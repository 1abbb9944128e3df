package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	storm "github.com/asdine/storm/v3"
)

// recordBucket is the storm bucket holding Record values (the struct name).
const recordBucket = "Record"

// StormIndex stores records in a storm (bbolt) database.
type StormIndex struct {
	db *storm.DB
}

var _ Index = (*StormIndex)(nil)

// OpenStormIndex opens or creates the database at path.
func OpenStormIndex(path string) (*StormIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("index: create directory: %w", err)
	}
	db, err := storm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: open storm db: %w", err)
	}
	if err := db.Init(&Record{}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index: could not create record bucket: %w", err)
	}
	return &StormIndex{db: db}, nil
}

func (s *StormIndex) Put(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if err := s.db.Save(r); err != nil {
		return fmt.Errorf("index: save %s: %w", r.ObjectID, err)
	}
	return nil
}

func (s *StormIndex) Get(ctx context.Context, objectID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var r Record
	if err := s.db.One("ObjectID", objectID, &r); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
		}
		return nil, fmt.Errorf("index: get %s: %w", objectID, err)
	}
	return &r, nil
}

func (s *StormIndex) GetRaw(ctx context.Context, objectID string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.db.GetBytes(recordBucket, objectID)
	if err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
		}
		return nil, fmt.Errorf("index: get %s: %w", objectID, err)
	}
	return decodeRaw(data)
}

func (s *StormIndex) Delete(ctx context.Context, objectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DeleteStruct(&Record{ObjectID: objectID}); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, objectID)
		}
		return fmt.Errorf("index: delete %s: %w", objectID, err)
	}
	return nil
}

func (s *StormIndex) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	return s.find(ctx, "OwnerID", ownerID)
}

func (s *StormIndex) ListByParent(ctx context.Context, parentID string) ([]Record, error) {
	if parentID == "" {
		// storm does not index zero values.
		return s.all(ctx, func(r *Record) bool { return r.ParentID == "" })
	}
	return s.find(ctx, "ParentID", parentID)
}

func (s *StormIndex) find(ctx context.Context, field, value string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	if err := s.db.Find(field, value, &out); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("index: find by %s: %w", field, err)
	}
	Sort(out)
	return out, nil
}

func (s *StormIndex) all(ctx context.Context, match func(*Record) bool) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var all []Record
	if err := s.db.All(&all); err != nil {
		return nil, fmt.Errorf("index: list: %w", err)
	}
	out := make([]Record, 0, len(all))
	for i := range all {
		if match(&all[i]) {
			out = append(out, all[i])
		}
	}
	Sort(out)
	return out, nil
}

// Close closes the database.
func (s *StormIndex) Close() error { return s.db.Close() }
