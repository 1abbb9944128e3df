package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	r, err := m.SubmitCreate(ctx, []byte("v1"), TokenParams{})
	require.NoError(t, err)
	assert.Len(t, r.ObjectID, 64)
	assert.Equal(t, r.ObjectID, r.TxID)

	rec, err := m.QueryRecord(ctx, r.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), rec)

	u, err := m.SubmitUpdate(ctx, r.ObjectID, []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, r.ObjectID, u.ObjectID)
	assert.NotEqual(t, r.TxID, u.TxID)

	rec, err = m.QueryRecord(ctx, r.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), rec)

	_, err = m.SubmitDelete(ctx, r.ObjectID)
	require.NoError(t, err)

	_, err = m.QueryRecord(ctx, r.ObjectID)
	assert.ErrorIs(t, err, ErrTokenDeleted)
	_, err = m.SubmitUpdate(ctx, r.ObjectID, []byte("v3"))
	assert.ErrorIs(t, err, ErrTokenDeleted)
	_, err = m.SubmitDelete(ctx, r.ObjectID)
	assert.ErrorIs(t, err, ErrTokenDeleted)

	_, err = m.QueryRecord(ctx, "unknown")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryDeterministicIDs(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemory(), NewMemory()
	ra, err := a.SubmitCreate(ctx, []byte("x"), TokenParams{})
	require.NoError(t, err)
	rb, err := b.SubmitCreate(ctx, []byte("y"), TokenParams{})
	require.NoError(t, err)
	assert.Equal(t, ra.ObjectID, rb.ObjectID)

	rc, err := a.SubmitCreate(ctx, []byte("z"), TokenParams{})
	require.NoError(t, err)
	assert.NotEqual(t, ra.ObjectID, rc.ObjectID)
}

func TestMemoryInject(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Inject(OpCreate, Rejected(ReasonFeeMismatch, "fee"))
	m.Inject(OpCreate, ErrTimeout)

	_, err := m.SubmitCreate(ctx, []byte("x"), TokenParams{})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, ReasonFeeMismatch, ReasonOf(err))

	_, err = m.SubmitCreate(ctx, []byte("x"), TokenParams{})
	assert.ErrorIs(t, err, ErrTimeout)

	r, err := m.SubmitCreate(ctx, []byte("x"), TokenParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	boom := errors.New("boom")
	m.Inject(OpQuery, boom)
	_, err = m.QueryRecord(ctx, r.ObjectID)
	assert.ErrorIs(t, err, boom)
}

func TestMemoryTamper(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r, err := m.SubmitCreate(ctx, []byte("good"), TokenParams{})
	require.NoError(t, err)

	require.NoError(t, m.Tamper(r.ObjectID, []byte("bad")))
	rec, err := m.QueryRecord(ctx, r.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, []byte("bad"), rec)

	assert.ErrorIs(t, m.Tamper("nope", nil), ErrTokenNotFound)
}

func TestMemoryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().SubmitCreate(ctx, []byte("x"), TokenParams{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyReject(t *testing.T) {
	tests := []struct {
		msg  string
		want RejectReason
	}{
		{"insufficient funds", ReasonInsufficientBalance},
		{"mandatory-script-verify-flag-failed (Signature must be zero for failed CHECK(MULTI)SIG operation)", ReasonInvalidSignature},
		{"66: min relay fee not met", ReasonFeeMismatch},
		{"insufficient fee", ReasonFeeMismatch},
		{"258: txn-mempool-conflict", ReasonConflict},
		{"Missing inputs", ReasonConflict},
		{"bad-txns-inputs-missingorspent", ReasonConflict},
		{"something odd", ReasonOther},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyReject(tt.msg))
		})
	}
}

func TestRejectedError(t *testing.T) {
	err := Rejected(ReasonConflict, "txn-mempool-conflict")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "conflict")
	assert.Equal(t, RejectReason(""), ReasonOf(errors.New("x")))
}
