package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode answers JSON-RPC calls from a per-method script and records the
// params it was called with.
type fakeNode struct {
	t      *testing.T
	mu     sync.Mutex
	script map[string]func(params []interface{}) (interface{}, *RPCError)
	calls  map[string][][]interface{}
}

func newFakeNode(t *testing.T) (*fakeNode, *RPCClient) {
	t.Helper()
	n := &fakeNode{
		t:      t,
		script: map[string]func([]interface{}) (interface{}, *RPCError){},
		calls:  map[string][][]interface{}{},
	}
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return n, NewRPCClient(RPCConfig{URL: srv.URL, Rescan: true})
}

func (n *fakeNode) on(method string, fn func(params []interface{}) (interface{}, *RPCError)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.script[method] = fn
}

func (n *fakeNode) reply(method string, result interface{}) {
	n.on(method, func([]interface{}) (interface{}, *RPCError) { return result, nil })
}

func (n *fakeNode) fail(method string, code int, msg string) {
	n.on(method, func([]interface{}) (interface{}, *RPCError) { return nil, &RPCError{Code: code, Message: msg} })
}

func (n *fakeNode) lastParams(method string) []interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	calls := n.calls[method]
	require.NotEmpty(n.t, calls, "no %s call", method)
	return calls[len(calls)-1]
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls[req.Method] = append(n.calls[req.Method], req.Params)
	fn, ok := n.script[req.Method]
	n.mu.Unlock()
	if !ok {
		n.t.Errorf("unexpected RPC method %s", req.Method)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	result, rpcErr := fn(req.Params)
	resp := rpcResponse{ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
		w.WriteHeader(http.StatusInternalServerError)
	} else {
		resp.Result, _ = json.Marshal(result)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

const operatorAddr = "mzBc4XEFSdzCDcTxAgf6EZXgsZWpztRhef"

func TestListUnspentFeeAndTokenOutputs(t *testing.T) {
	node, client := newFakeNode(t)
	node.reply("listunspent", []map[string]interface{}{
		{"txid": "aa11", "vout": 0, "amount": 0.001, "scriptPubKey": "76a914aa88ac", "address": operatorAddr, "confirmations": 6},
		{"txid": "bb22", "vout": 1, "amount": 0.00000546, "scriptPubKey": "76a914aa88ac", "address": operatorAddr, "confirmations": 0},
	})

	utxos, err := client.ListUnspent(context.Background(), operatorAddr)
	require.NoError(t, err)
	require.Len(t, utxos, 2)

	assert.Equal(t, &UTXO{TxID: "aa11", Vout: 0, Amount: 100000, ScriptPubKey: "76a914aa88ac", Address: operatorAddr, Confirmations: 6}, utxos[0])
	assert.Equal(t, uint64(546), utxos[1].Amount, "token dust amount survives float conversion")
	assert.Equal(t, uint32(1), utxos[1].Vout)

	params := node.lastParams("listunspent")
	require.Len(t, params, 3)
	assert.Equal(t, float64(0), params[0], "mempool outputs are included")
	assert.Equal(t, []interface{}{operatorAddr}, params[2])
}

func TestListUnspentEmptyWallet(t *testing.T) {
	node, client := newFakeNode(t)
	node.reply("listunspent", []interface{}{})

	utxos, err := client.ListUnspent(context.Background(), operatorAddr)
	require.NoError(t, err)
	assert.Empty(t, utxos)
}

func TestGetUTXO(t *testing.T) {
	node, client := newFakeNode(t)
	node.reply("gettxout", map[string]interface{}{
		"value":         0.00000546,
		"confirmations": 3,
		"scriptPubKey":  map[string]interface{}{"hex": "76a914aa88ac", "addresses": []string{operatorAddr}},
	})

	utxo, err := client.GetUTXO(context.Background(), "cc33", 1)
	require.NoError(t, err)
	assert.Equal(t, &UTXO{TxID: "cc33", Vout: 1, Amount: 546, ScriptPubKey: "76a914aa88ac", Address: operatorAddr, Confirmations: 3}, utxo)
	assert.Equal(t, []interface{}{"cc33", float64(1)}, node.lastParams("gettxout"))
}

func TestGetUTXOSpentOutput(t *testing.T) {
	node, client := newFakeNode(t)
	node.reply("gettxout", nil)

	utxo, err := client.GetUTXO(context.Background(), "burned", 1)
	assert.Nil(t, utxo)
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestBroadcastTx(t *testing.T) {
	const txid = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	tests := []struct {
		name     string
		script   func(n *fakeNode)
		wantTxID string
		wantErr  error
		notErr   error
		wantMsg  string
	}{
		{
			name:     "accepted",
			script:   func(n *fakeNode) { n.reply("sendrawtransaction", txid) },
			wantTxID: txid,
		},
		{
			name:    "script failure",
			script:  func(n *fakeNode) { n.fail("sendrawtransaction", -26, "mandatory-script-verify-flag-failed") },
			wantErr: ErrBroadcastRejected,
			wantMsg: "mandatory-script-verify-flag-failed",
		},
		{
			name:    "double spend of a token output",
			script:  func(n *fakeNode) { n.fail("sendrawtransaction", -26, "258: txn-mempool-conflict") },
			wantErr: ErrBroadcastRejected,
			wantMsg: "txn-mempool-conflict",
		},
		{
			name:    "already known",
			script:  func(n *fakeNode) { n.fail("sendrawtransaction", -27, "Transaction already in block chain") },
			wantErr: ErrAlreadyKnown,
			notErr:  ErrBroadcastRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, client := newFakeNode(t)
			tt.script(node)

			got, err := client.BroadcastTx(context.Background(), "0100000001abcdef")
			assert.Equal(t, []interface{}{"0100000001abcdef"}, node.lastParams("sendrawtransaction"))
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.wantTxID, got)
				return
			}
			assert.Empty(t, got)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.notErr != nil {
				assert.NotErrorIs(t, err, tt.notErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestGetRawTx(t *testing.T) {
	node, client := newFakeNode(t)
	node.reply("getrawtransaction", "0100000001abcdef")

	raw, err := client.GetRawTx(context.Background(), "dd44")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0xab, 0xcd, 0xef}, raw)
	assert.Equal(t, []interface{}{"dd44", false}, node.lastParams("getrawtransaction"))
}

func TestGetRawTxErrors(t *testing.T) {
	node, client := newFakeNode(t)
	node.fail("getrawtransaction", -5, "No such mempool or blockchain transaction")
	_, err := client.GetRawTx(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTxNotFound)

	node.reply("getrawtransaction", "not-hex")
	_, err = client.GetRawTx(context.Background(), "garbled")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGetTxStatus(t *testing.T) {
	node, client := newFakeNode(t)
	node.reply("getrawtransaction", map[string]interface{}{
		"confirmations": 10,
		"blockhash":     "00000000000000000abcdef",
		"blockheight":   800000,
	})

	status, err := client.GetTxStatus(context.Background(), "ee55")
	require.NoError(t, err)
	assert.Equal(t, &TxStatus{Confirmed: true, Confirmations: 10, BlockHash: "00000000000000000abcdef", BlockHeight: 800000}, status)
	assert.Equal(t, []interface{}{"ee55", true}, node.lastParams("getrawtransaction"))

	node.reply("getrawtransaction", map[string]interface{}{"confirmations": 0})
	status, err = client.GetTxStatus(context.Background(), "mempool")
	require.NoError(t, err)
	assert.False(t, status.Confirmed)
	assert.Empty(t, status.BlockHash)
}

func TestImportAddressRescans(t *testing.T) {
	node, client := newFakeNode(t)
	node.reply("importaddress", nil)

	require.NoError(t, client.ImportAddress(context.Background(), operatorAddr))
	assert.Equal(t, []interface{}{operatorAddr, "", true}, node.lastParams("importaddress"))
}
