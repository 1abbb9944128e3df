package tx

import (
	"encoding/binary"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// Record is a token record read back from a transaction.
type Record struct {
	TxID     []byte // transaction carrying the record, internal byte order
	Op       Op
	ObjectID []byte // 32 bytes; for mints this equals TxID
	Data     []byte // envelope bytes, empty for burns
}

// ParseRecord finds and decodes the token record in a raw transaction.
// Returns ErrNotTokenTx when no output carries one.
func ParseRecord(rawTx []byte) (*Record, error) {
	if len(rawTx) == 0 {
		return nil, fmt.Errorf("%w: raw tx", ErrNilParam)
	}
	sdkTx, err := transaction.NewTransactionFromBytes(rawTx)
	if err != nil {
		return nil, fmt.Errorf("%w: parse raw tx: %w", ErrInvalidParams, err)
	}
	txID := sdkTx.TxID().CloneBytes()

	for _, out := range sdkTx.Outputs {
		if out.LockingScript == nil {
			continue
		}
		pushes, ok := opReturnPushes([]byte(*out.LockingScript))
		if !ok {
			continue
		}
		op, objectID, data, err := ParseOPReturnData(pushes)
		if err != nil {
			continue
		}
		rec := &Record{TxID: txID, Op: op, ObjectID: objectID, Data: data}
		if op == OpMint {
			rec.ObjectID = txID
		}
		return rec, nil
	}
	return nil, ErrNotTokenTx
}

// opReturnPushes returns the data pushes of an OP_FALSE OP_RETURN script.
// Any non-push opcode after OP_RETURN makes the script unparseable.
func opReturnPushes(s []byte) ([][]byte, bool) {
	if len(s) < 2 || s[0] != script.Op0 || s[1] != script.OpRETURN {
		return nil, false
	}
	var pushes [][]byte
	i := 2
	for i < len(s) {
		op := s[i]
		i++
		var n int
		switch {
		case op == script.Op0:
			n = 0
		case op >= script.OpDATA1 && op <= script.OpDATA75:
			n = int(op)
		case op == script.OpPUSHDATA1:
			if i+1 > len(s) {
				return nil, false
			}
			n = int(s[i])
			i++
		case op == script.OpPUSHDATA2:
			if i+2 > len(s) {
				return nil, false
			}
			n = int(binary.LittleEndian.Uint16(s[i:]))
			i += 2
		case op == script.OpPUSHDATA4:
			if i+4 > len(s) {
				return nil, false
			}
			n = int(binary.LittleEndian.Uint32(s[i:]))
			i += 4
		default:
			return nil, false
		}
		if n < 0 || i+n > len(s) {
			return nil, false
		}
		pushes = append(pushes, s[i:i+n])
		i += n
	}
	return pushes, true
}
