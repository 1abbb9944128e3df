package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
)

// Memory operations, used to target injected failures.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpQuery  = "query"
)

type memToken struct {
	record  []byte
	txid    string
	deleted bool
}

// Memory is an in-process Ledger. Ids are derived from a counter, so a fresh
// Memory produces the same ids in the same order. Failures can be injected
// per operation.
type Memory struct {
	mu     sync.Mutex
	seq    uint64
	tokens map[string]*memToken
	faults map[string][]error
}

var _ Ledger = (*Memory)(nil)

// NewMemory returns an empty Memory ledger.
func NewMemory() *Memory {
	return &Memory{
		tokens: make(map[string]*memToken),
		faults: make(map[string][]error),
	}
}

// Inject queues err to be returned by the next call of op
// (OpCreate, OpUpdate, OpDelete or OpQuery). Queued errors are consumed in order.
func (m *Memory) Inject(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], err)
}

// Tamper overwrites the stored record of objectID without a transaction.
// It stands in for a corrupted or forged ledger record in tests.
func (m *Memory) Tamper(objectID string, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[objectID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, objectID)
	}
	t.record = append([]byte(nil), record...)
	return nil
}

// Len returns the number of tokens, burned ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

func (m *Memory) fault(op string) error {
	q := m.faults[op]
	if len(q) == 0 {
		return nil
	}
	m.faults[op] = q[1:]
	return q[0]
}

func (m *Memory) nextTxID() string {
	m.seq++
	var buf [16]byte
	copy(buf[:8], "ledgerfs")
	binary.BigEndian.PutUint64(buf[8:], m.seq)
	sum := sha256.Sum256(buf[:])
	return hex.EncodeToString(sum[:])
}

func (m *Memory) SubmitCreate(ctx context.Context, record []byte, _ TokenParams) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpCreate); err != nil {
		return nil, err
	}
	txid := m.nextTxID()
	m.tokens[txid] = &memToken{record: append([]byte(nil), record...), txid: txid}
	return &Receipt{ObjectID: txid, TxID: txid}, nil
}

func (m *Memory) SubmitUpdate(ctx context.Context, objectID string, record []byte) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpUpdate); err != nil {
		return nil, err
	}
	t, err := m.live(objectID)
	if err != nil {
		return nil, err
	}
	t.record = append([]byte(nil), record...)
	t.txid = m.nextTxID()
	return &Receipt{ObjectID: objectID, TxID: t.txid}, nil
}

func (m *Memory) SubmitDelete(ctx context.Context, objectID string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpDelete); err != nil {
		return nil, err
	}
	t, err := m.live(objectID)
	if err != nil {
		return nil, err
	}
	t.deleted = true
	t.record = nil
	t.txid = m.nextTxID()
	return &Receipt{ObjectID: objectID, TxID: t.txid}, nil
}

func (m *Memory) QueryRecord(ctx context.Context, objectID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpQuery); err != nil {
		return nil, err
	}
	t, err := m.live(objectID)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), t.record...), nil
}

func (m *Memory) live(objectID string) (*memToken, error) {
	t, ok := m.tokens[objectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, objectID)
	}
	if t.deleted {
		return nil, fmt.Errorf("%w: %s", ErrTokenDeleted, objectID)
	}
	return t, nil
}
