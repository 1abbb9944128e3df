package tx

// UTXO represents an unspent transaction output spent by a token transaction.
type UTXO struct {
	TxID         []byte `json:"txid"`          // 32 bytes, internal byte order
	Vout         uint32 `json:"vout"`
	Amount       uint64 `json:"amount"`        // satoshis
	ScriptPubKey []byte `json:"script_pubkey"` // locking script bytes
}

// TokenTx wraps a built token transaction with the outputs it produces.
type TokenTx struct {
	Op         Op
	RawTx      []byte  // serialized transaction, unsigned until SignTokenTx
	TxID       []byte  // 32 bytes, set by SignTokenTx
	Inputs     []*UTXO // spent outputs, in input order
	TokenUTXO  *UTXO   // re-created token output (nil for burns)
	ChangeUTXO *UTXO   // change output (nil if dust)
	Fee        uint64
}
