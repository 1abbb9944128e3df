package tx

import (
	"bytes"
	"fmt"
)

// ProtocolFlag marks OP_RETURN outputs that carry token records.
var ProtocolFlag = []byte("lfs1")

// Op identifies what a token transaction does to its object.
type Op byte

const (
	// OpMint creates a new token; the object id is the mint txid.
	OpMint Op = 0x01
	// OpUpdate replaces the token record.
	OpUpdate Op = 0x02
	// OpBurn destroys the token.
	OpBurn Op = 0x03
)

func (o Op) String() string {
	switch o {
	case OpMint:
		return "mint"
	case OpUpdate:
		return "update"
	case OpBurn:
		return "burn"
	default:
		return fmt.Sprintf("op(%d)", byte(o))
	}
}

const (
	// DustLimit is the value of token outputs and the minimum change output.
	DustLimit = uint64(546)

	// DefaultFeeRate is the default fee rate in sat/KB.
	DefaultFeeRate = uint64(1)

	// TxIDLen is the length of a transaction ID.
	TxIDLen = 32

	// TokenVout is the output index of the token in mint and update transactions.
	TokenVout = uint32(1)
)

// BuildOPReturnData constructs the OP_RETURN data pushes of a token record.
//
// Layout:
//
//	pushdata[0]: ProtocolFlag (4 bytes, "lfs1")
//	pushdata[1]: Op           (1 byte)
//	pushdata[2]: ObjectID     (0 bytes for mint, 32 bytes otherwise)
//	pushdata[3]: Record       (envelope bytes; empty for burn)
func BuildOPReturnData(op Op, objectID []byte, record []byte) ([][]byte, error) {
	switch op {
	case OpMint:
		if len(objectID) != 0 {
			return nil, fmt.Errorf("%w: mint carries no object id", ErrInvalidObjectID)
		}
		if len(record) == 0 {
			return nil, ErrInvalidPayload
		}
	case OpUpdate:
		if len(objectID) != TxIDLen {
			return nil, ErrInvalidObjectID
		}
		if len(record) == 0 {
			return nil, ErrInvalidPayload
		}
	case OpBurn:
		if len(objectID) != TxIDLen {
			return nil, ErrInvalidObjectID
		}
		if len(record) != 0 {
			return nil, fmt.Errorf("%w: burn carries no record", ErrInvalidPayload)
		}
	default:
		return nil, fmt.Errorf("%w: unknown op %d", ErrInvalidParams, byte(op))
	}

	return [][]byte{
		ProtocolFlag,
		{byte(op)},
		objectID,
		record,
	}, nil
}

// ParseOPReturnData extracts the token record fields from OP_RETURN data pushes.
func ParseOPReturnData(pushes [][]byte) (op Op, objectID []byte, record []byte, err error) {
	if len(pushes) < 4 {
		return 0, nil, nil, fmt.Errorf("%w: expected 4 data pushes, got %d", ErrInvalidOPReturn, len(pushes))
	}
	if !bytes.Equal(pushes[0], ProtocolFlag) {
		return 0, nil, nil, fmt.Errorf("%w: missing protocol flag", ErrNotTokenTx)
	}
	if len(pushes[1]) != 1 {
		return 0, nil, nil, fmt.Errorf("%w: op must be 1 byte, got %d", ErrInvalidOPReturn, len(pushes[1]))
	}

	op = Op(pushes[1][0])
	objectID = pushes[2]
	record = pushes[3]

	switch op {
	case OpMint:
		if len(objectID) != 0 || len(record) == 0 {
			return 0, nil, nil, fmt.Errorf("%w: malformed mint", ErrInvalidOPReturn)
		}
	case OpUpdate:
		if len(objectID) != TxIDLen || len(record) == 0 {
			return 0, nil, nil, fmt.Errorf("%w: malformed update", ErrInvalidOPReturn)
		}
	case OpBurn:
		if len(objectID) != TxIDLen {
			return 0, nil, nil, fmt.Errorf("%w: malformed burn", ErrInvalidOPReturn)
		}
	default:
		return 0, nil, nil, fmt.Errorf("%w: unknown op %d", ErrInvalidOPReturn, byte(op))
	}
	return op, objectID, record, nil
}

// EstimateFee estimates the transaction fee for a given size and fee rate.
// Returns ceil(txSizeBytes * feeRate / 1000).
func EstimateFee(txSizeBytes int, feeRate uint64) uint64 {
	if feeRate == 0 {
		feeRate = DefaultFeeRate
	}
	fee := uint64(txSizeBytes) * feeRate
	return (fee + 999) / 1000
}

// EstimateTxSize estimates the size of a token transaction in bytes.
func EstimateTxSize(numInputs, numP2PKHOutputs int, recordSize int) int {
	// version(4) + locktime(4) + varints(2)
	base := 10
	// prevout(36) + script varint(1) + P2PKH unlock(~107) + sequence(4)
	inputs := numInputs * 148
	// value(8) + script varint(1) + P2PKH lock(25)
	outputs := numP2PKHOutputs * 34
	// value(8) + varint(3) + OP_FALSE OP_RETURN(2) + flag(5) + op(2) + objectID(33) + record(+5 header)
	opReturn := 8 + 3 + 2 + 5 + 2 + 1 + TxIDLen + 5 + recordSize

	return base + inputs + outputs + opReturn
}
