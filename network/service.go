// Package network talks to a BSV node over its JSON-RPC interface.
package network

import "context"

// BlockchainService is what the ledger adapter needs from a node. Fee
// outputs and token outputs are both tracked by the node's watch-only wallet.
type BlockchainService interface {
	ListUnspent(ctx context.Context, address string) ([]*UTXO, error)
	GetUTXO(ctx context.Context, txid string, vout uint32) (*UTXO, error)
	BroadcastTx(ctx context.Context, rawTxHex string) (string, error)
	GetRawTx(ctx context.Context, txid string) ([]byte, error)
	GetTxStatus(ctx context.Context, txid string) (*TxStatus, error)
	ImportAddress(ctx context.Context, address string) error
}

// UTXO is an unspent output. Amount is in satoshis.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Amount        uint64 `json:"amount"`
	ScriptPubKey  string `json:"script_pubkey"`
	Address       string `json:"address"`
	Confirmations int64  `json:"confirmations"`
}

// TxStatus is the node's view of a transaction. Mempool transactions have
// zero confirmations.
type TxStatus struct {
	Confirmed     bool   `json:"confirmed"`
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"block_hash"`
	BlockHeight   uint64 `json:"block_height"`
}
