package network

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

var _ BlockchainService = (*RPCClient)(nil)

// maxConfirmations is the upper listunspent bound; it covers every output.
const maxConfirmations = 9999999

// satoshis converts a node amount in BSV to satoshis without float truncation.
func satoshis(bsv float64) uint64 {
	return uint64(math.Round(bsv * 1e8))
}

// unspentEntry is one element of a listunspent reply.
type unspentEntry struct {
	TxID          string  `json:"txid"`
	Vout          uint32  `json:"vout"`
	Amount        float64 `json:"amount"`
	ScriptPubKey  string  `json:"scriptPubKey"`
	Address       string  `json:"address"`
	Confirmations int64   `json:"confirmations"`
}

func (e unspentEntry) utxo() *UTXO {
	return &UTXO{
		TxID:          e.TxID,
		Vout:          e.Vout,
		Amount:        satoshis(e.Amount),
		ScriptPubKey:  e.ScriptPubKey,
		Address:       e.Address,
		Confirmations: e.Confirmations,
	}
}

// txOutEntry is a gettxout reply. The node answers null for spent outputs.
type txOutEntry struct {
	Value         float64 `json:"value"`
	Confirmations int64   `json:"confirmations"`
	ScriptPubKey  struct {
		Hex       string   `json:"hex"`
		Addresses []string `json:"addresses"`
	} `json:"scriptPubKey"`
}

func (e txOutEntry) utxo(txid string, vout uint32) *UTXO {
	u := &UTXO{
		TxID:          txid,
		Vout:          vout,
		Amount:        satoshis(e.Value),
		ScriptPubKey:  e.ScriptPubKey.Hex,
		Confirmations: e.Confirmations,
	}
	if len(e.ScriptPubKey.Addresses) > 0 {
		u.Address = e.ScriptPubKey.Addresses[0]
	}
	return u
}

// ListUnspent returns every unspent output the node's wallet holds for
// address, mempool outputs included. The operator address must have been
// imported with ImportAddress first.
func (c *RPCClient) ListUnspent(ctx context.Context, address string) ([]*UTXO, error) {
	var entries []unspentEntry
	params := []interface{}{0, maxConfirmations, []string{address}}
	if err := c.Call(ctx, "listunspent", params, &entries); err != nil {
		return nil, err
	}
	out := make([]*UTXO, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.utxo())
	}
	return out, nil
}

// GetUTXO looks up a single output. A spent or unknown output yields
// ErrTxNotFound, which is how a burned or re-minted token tip shows up.
func (c *RPCClient) GetUTXO(ctx context.Context, txid string, vout uint32) (*UTXO, error) {
	var entry *txOutEntry
	if err := c.Call(ctx, "gettxout", []interface{}{txid, vout}, &entry); err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: output %s:%d is spent", ErrTxNotFound, txid, vout)
	}
	return entry.utxo(txid, vout), nil
}

// BroadcastTx submits a signed transaction and returns its txid. Node
// rejections wrap ErrBroadcastRejected and carry the reject message so the
// ledger adapter can classify them. A duplicate submission wraps
// ErrAlreadyKnown instead.
func (c *RPCClient) BroadcastTx(ctx context.Context, rawTxHex string) (string, error) {
	var txid string
	err := c.Call(ctx, "sendrawtransaction", []interface{}{rawTxHex}, &txid)
	if err == nil {
		return txid, nil
	}
	var rpcErr *RPCError
	switch {
	case !errors.As(err, &rpcErr):
		return "", err
	case errors.Is(rpcErr, ErrAlreadyKnown):
		return "", fmt.Errorf("%w: %s", ErrAlreadyKnown, rpcErr.Message)
	default:
		return "", fmt.Errorf("%w: %s", ErrBroadcastRejected, rpcErr.Message)
	}
}

// GetRawTx fetches the serialized transaction for txid.
func (c *RPCClient) GetRawTx(ctx context.Context, txid string) ([]byte, error) {
	var rawHex string
	if err := c.Call(ctx, "getrawtransaction", []interface{}{txid, false}, &rawHex); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction %s: %v", ErrInvalidResponse, txid, err)
	}
	return raw, nil
}

// GetTxStatus reports how many confirmations the node has seen for txid.
// ErrTxNotFound means the node does not know the transaction yet.
func (c *RPCClient) GetTxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	var verbose struct {
		Confirmations int64  `json:"confirmations"`
		BlockHash     string `json:"blockhash"`
		BlockHeight   uint64 `json:"blockheight"`
	}
	if err := c.Call(ctx, "getrawtransaction", []interface{}{txid, true}, &verbose); err != nil {
		return nil, err
	}
	return &TxStatus{
		Confirmed:     verbose.Confirmations > 0,
		Confirmations: verbose.Confirmations,
		BlockHash:     verbose.BlockHash,
		BlockHeight:   verbose.BlockHeight,
	}, nil
}

// ImportAddress adds address to the node's watch-only wallet. Repeated
// imports are harmless.
func (c *RPCClient) ImportAddress(ctx context.Context, address string) error {
	return c.Call(ctx, "importaddress", []interface{}{address, "", c.rescan}, nil)
}
