package network

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnectionFailed indicates the client could not connect to the node.
	ErrConnectionFailed = errors.New("network: connection failed")

	// ErrAuthFailed indicates authentication (e.g., RPC credentials) was rejected.
	ErrAuthFailed = errors.New("network: authentication failed")

	// ErrTxNotFound indicates the requested transaction does not exist.
	ErrTxNotFound = errors.New("network: transaction not found")

	// ErrBroadcastRejected indicates the node rejected the broadcast transaction.
	ErrBroadcastRejected = errors.New("network: broadcast rejected")

	// ErrInvalidResponse indicates the node returned a malformed or unexpected response.
	ErrInvalidResponse = errors.New("network: invalid response")

	// ErrAlreadyKnown indicates a broadcast transaction is already in the mempool or chain.
	ErrAlreadyKnown = errors.New("network: transaction already known")
)

// Node RPC error codes this package interprets.
const (
	rpcCodeInvalidAddress = -5 // also "no such mempool or blockchain transaction"
	rpcCodeVerifyError    = -25
	rpcCodeVerifyRejected = -26
	rpcCodeAlreadyInChain = -27
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("network: rpc error %d: %s", e.Code, e.Message)
}

// Is maps node error codes onto this package's sentinels.
func (e *RPCError) Is(target error) bool {
	switch target {
	case ErrTxNotFound:
		return e.Code == rpcCodeInvalidAddress
	case ErrBroadcastRejected:
		return e.Code == rpcCodeVerifyError || e.Code == rpcCodeVerifyRejected
	case ErrAlreadyKnown:
		return e.Code == rpcCodeAlreadyInChain || strings.Contains(e.Message, "txn-already-known")
	}
	return false
}
