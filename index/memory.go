package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryIndex keeps records as JSON in memory.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string][]byte

	// FailPut, when set, is returned by Put. Used to simulate an
	// unavailable index.
	FailPut error
	// FailDelete, when set, is returned by Delete.
	FailDelete error
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string][]byte)}
}

func (m *MemoryIndex) Put(ctx context.Context, r *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut != nil {
		return m.FailPut
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("index: encode record: %w", err)
	}
	m.records[r.ObjectID] = data
	return nil
}

// PutRaw stores arbitrary JSON fields under objectID, bypassing validation.
// It exists to simulate records written by other tools.
func (m *MemoryIndex) PutRaw(objectID string, raw map[string]interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("index: encode record: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[objectID] = data
	return nil
}

func (m *MemoryIndex) Get(ctx context.Context, objectID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.records[objectID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("index: decode record: %w", err)
	}
	return &r, nil
}

func (m *MemoryIndex) GetRaw(ctx context.Context, objectID string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.records[objectID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
	}
	return decodeRaw(data)
}

func (m *MemoryIndex) Delete(ctx context.Context, objectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return m.FailDelete
	}
	if _, ok := m.records[objectID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, objectID)
	}
	delete(m.records, objectID)
	return nil
}

func (m *MemoryIndex) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	return m.list(ctx, func(r *Record) bool { return r.OwnerID == ownerID })
}

func (m *MemoryIndex) ListByParent(ctx context.Context, parentID string) ([]Record, error) {
	return m.list(ctx, func(r *Record) bool { return r.ParentID == parentID })
}

func (m *MemoryIndex) list(ctx context.Context, match func(*Record) bool) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0)
	for _, data := range m.records {
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("index: decode record: %w", err)
		}
		if match(&r) {
			out = append(out, r)
		}
	}
	Sort(out)
	return out, nil
}

func (m *MemoryIndex) Close() error { return nil }
