package tx

import (
	"bytes"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestKeyPair(t *testing.T) (*ec.PrivateKey, *ec.PublicKey) {
	t.Helper()
	privKey, err := ec.NewPrivateKey()
	require.NoError(t, err)
	return privKey, privKey.PubKey()
}

func testFeeUTXO(t *testing.T, amount uint64) *UTXO {
	t.Helper()
	return &UTXO{
		TxID:   bytes.Repeat([]byte{0x01}, 32),
		Vout:   0,
		Amount: amount,
	}
}

// --- OP_RETURN tests ---

func TestBuildOPReturnData_Mint(t *testing.T) {
	record := []byte(`{"v":1}`)

	pushes, err := BuildOPReturnData(OpMint, nil, record)
	require.NoError(t, err)
	require.Len(t, pushes, 4)
	assert.Equal(t, ProtocolFlag, pushes[0])
	assert.Equal(t, []byte{byte(OpMint)}, pushes[1])
	assert.Empty(t, pushes[2], "mint carries no object id")
	assert.Equal(t, record, pushes[3])
}

func TestBuildOPReturnData_Errors(t *testing.T) {
	id := bytes.Repeat([]byte{0xab}, 32)

	tests := []struct {
		name     string
		op       Op
		objectID []byte
		record   []byte
		wantErr  error
	}{
		{"mint with id", OpMint, id, []byte("r"), ErrInvalidObjectID},
		{"mint empty record", OpMint, nil, nil, ErrInvalidPayload},
		{"update short id", OpUpdate, id[:31], []byte("r"), ErrInvalidObjectID},
		{"update empty record", OpUpdate, id, nil, ErrInvalidPayload},
		{"burn with record", OpBurn, id, []byte("r"), ErrInvalidPayload},
		{"burn without id", OpBurn, nil, nil, ErrInvalidObjectID},
		{"unknown op", Op(9), id, []byte("r"), ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildOPReturnData(tt.op, tt.objectID, tt.record)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOPReturn_RoundTrip(t *testing.T) {
	id := bytes.Repeat([]byte{0xcd}, 32)
	record := []byte("updated record")

	pushes, err := BuildOPReturnData(OpUpdate, id, record)
	require.NoError(t, err)

	op, gotID, gotRecord, err := ParseOPReturnData(pushes)
	require.NoError(t, err)
	assert.Equal(t, OpUpdate, op)
	assert.Equal(t, id, gotID)
	assert.Equal(t, record, gotRecord)
}

func TestParseOPReturnData_Errors(t *testing.T) {
	id := bytes.Repeat([]byte{0xcd}, 32)

	_, _, _, err := ParseOPReturnData([][]byte{ProtocolFlag})
	assert.ErrorIs(t, err, ErrInvalidOPReturn)

	_, _, _, err = ParseOPReturnData([][]byte{[]byte("meta"), {1}, nil, []byte("r")})
	assert.ErrorIs(t, err, ErrNotTokenTx)

	_, _, _, err = ParseOPReturnData([][]byte{ProtocolFlag, {1, 2}, nil, []byte("r")})
	assert.ErrorIs(t, err, ErrInvalidOPReturn)

	_, _, _, err = ParseOPReturnData([][]byte{ProtocolFlag, {byte(OpUpdate)}, id, nil})
	assert.ErrorIs(t, err, ErrInvalidOPReturn)

	_, _, _, err = ParseOPReturnData([][]byte{ProtocolFlag, {0x7f}, id, nil})
	assert.ErrorIs(t, err, ErrInvalidOPReturn)
}

func TestOpReturnPushes(t *testing.T) {
	big := bytes.Repeat([]byte{0x42}, 300)
	s, err := buildOPReturnScript([][]byte{ProtocolFlag, nil, big})
	require.NoError(t, err)

	pushes, ok := opReturnPushes([]byte(*s))
	require.True(t, ok)
	require.Len(t, pushes, 3)
	assert.Equal(t, ProtocolFlag, pushes[0])
	assert.Empty(t, pushes[1])
	assert.Equal(t, big, pushes[2])

	_, ok = opReturnPushes([]byte{0x76, 0xa9})
	assert.False(t, ok, "P2PKH prefix is not OP_RETURN")

	_, ok = opReturnPushes([]byte{0x00, 0x6a, 0x05, 0x01})
	assert.False(t, ok, "truncated push")
}

func TestEstimateFee(t *testing.T) {
	tests := []struct {
		size    int
		rate    uint64
		wantFee uint64
	}{
		{1000, 1, 1},
		{1001, 1, 2},
		{250, 0, 1},
		{2000, 50, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.wantFee, EstimateFee(tt.size, tt.rate))
	}
}

func TestEstimateTxSize(t *testing.T) {
	small := EstimateTxSize(1, 2, 100)
	large := EstimateTxSize(2, 2, 1000)
	assert.Greater(t, large, small)
	assert.Equal(t, 900+148, large-small)
}

func TestTxIDStringRoundTrip(t *testing.T) {
	raw := make([]byte, 32)
	raw[0] = 0x01
	s, err := TxIDString(raw)
	require.NoError(t, err)
	assert.Len(t, s, 64)
	assert.Equal(t, "01", s[62:], "display hex is byte-reversed")

	back, err := ParseTxID(s)
	require.NoError(t, err)
	assert.Equal(t, raw, back)

	_, err = ParseTxID("abc")
	assert.ErrorIs(t, err, ErrInvalidObjectID)
}
