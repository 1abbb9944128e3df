package network

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRPCErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    *RPCError
		target error
		want   bool
	}{
		{"not found", &RPCError{Code: -5, Message: "No such mempool or blockchain transaction"}, ErrTxNotFound, true},
		{"verify rejected", &RPCError{Code: -26, Message: "258: txn-mempool-conflict"}, ErrBroadcastRejected, true},
		{"verify error", &RPCError{Code: -25, Message: "Missing inputs"}, ErrBroadcastRejected, true},
		{"already in chain", &RPCError{Code: -27, Message: "Transaction already in block chain"}, ErrAlreadyKnown, true},
		{"already in mempool", &RPCError{Code: -26, Message: "257: txn-already-known"}, ErrAlreadyKnown, true},
		{"unrelated", &RPCError{Code: -8, Message: "parameter error"}, ErrTxNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("call: %w", tt.err)
			assert.Equal(t, tt.want, errors.Is(wrapped, tt.target))
		})
	}
}

func TestRPCErrorMessage(t *testing.T) {
	err := &RPCError{Code: -5, Message: "No such mempool"}
	assert.Equal(t, "network: rpc error -5: No such mempool", err.Error())
}
