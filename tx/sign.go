package tx

import (
	"encoding/hex"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"
)

// SignTokenTx signs every input of ttx with priv and returns the signed hex.
//
// All inputs of a token transaction are locked to the operator key, so one
// key signs them all. Inputs without a ScriptPubKey get the P2PKH script of
// priv. On success ttx.RawTx and ttx.TxID hold the signed transaction.
func SignTokenTx(ttx *TokenTx, priv *ec.PrivateKey) (string, error) {
	if ttx == nil {
		return "", fmt.Errorf("%w: TokenTx", ErrNilParam)
	}
	if priv == nil {
		return "", fmt.Errorf("%w: private key", ErrNilParam)
	}
	if len(ttx.RawTx) == 0 {
		return "", fmt.Errorf("%w: RawTx is empty", ErrSigningFailed)
	}

	sdkTx, err := transaction.NewTransactionFromBytes(ttx.RawTx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse raw tx: %w", ErrSigningFailed, err)
	}
	if len(ttx.Inputs) != len(sdkTx.Inputs) {
		return "", fmt.Errorf("%w: have %d UTXOs but tx has %d inputs",
			ErrSigningFailed, len(ttx.Inputs), len(sdkTx.Inputs))
	}

	ownerScript, err := BuildP2PKHScript(priv.PubKey())
	if err != nil {
		return "", err
	}
	unlocker, err := p2pkh.Unlock(priv, nil)
	if err != nil {
		return "", fmt.Errorf("%w: unlocker: %w", ErrSigningFailed, err)
	}

	for i, utxo := range ttx.Inputs {
		if utxo == nil {
			return "", fmt.Errorf("%w: utxo[%d] is nil", ErrNilParam, i)
		}
		lock := utxo.ScriptPubKey
		if len(lock) == 0 {
			lock = ownerScript
		}
		sdkTx.Inputs[i].SetSourceTxOutput(&transaction.TransactionOutput{
			Satoshis:      utxo.Amount,
			LockingScript: script.NewFromBytes(lock),
		})
		sdkTx.Inputs[i].UnlockingScriptTemplate = unlocker
	}

	if err := sdkTx.Sign(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	ttx.RawTx = sdkTx.Bytes()
	ttx.TxID = sdkTx.TxID().CloneBytes()
	if ttx.TokenUTXO != nil {
		ttx.TokenUTXO.TxID = ttx.TxID
	}
	if ttx.ChangeUTXO != nil {
		ttx.ChangeUTXO.TxID = ttx.TxID
	}

	return sdkTx.Hex(), nil
}

// BuildP2PKHScript creates a P2PKH locking script for the given public key.
func BuildP2PKHScript(pubKey *ec.PublicKey) ([]byte, error) {
	if pubKey == nil {
		return nil, fmt.Errorf("%w: public key", ErrNilParam)
	}
	addr, err := script.NewAddressFromPublicKey(pubKey, true)
	if err != nil {
		return nil, fmt.Errorf("%w: address from pubkey: %w", ErrScriptBuild, err)
	}
	lockScript, err := p2pkh.Lock(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: P2PKH lock script: %w", ErrScriptBuild, err)
	}
	return []byte(*lockScript), nil
}

// AddressFor returns the P2PKH address string of pubKey on mainnet or testnet.
func AddressFor(pubKey *ec.PublicKey, mainnet bool) (string, error) {
	if pubKey == nil {
		return "", fmt.Errorf("%w: public key", ErrNilParam)
	}
	addr, err := script.NewAddressFromPublicKey(pubKey, mainnet)
	if err != nil {
		return "", fmt.Errorf("%w: address from pubkey: %w", ErrScriptBuild, err)
	}
	return addr.AddressString, nil
}

// buildOPReturnScript creates an OP_FALSE OP_RETURN script from data pushes.
func buildOPReturnScript(pushes [][]byte) (*script.Script, error) {
	s := &script.Script{}
	*s = append(*s, script.Op0, script.OpRETURN)
	for _, push := range pushes {
		if err := s.AppendPushData(push); err != nil {
			return nil, fmt.Errorf("%w: OP_RETURN push data: %w", ErrScriptBuild, err)
		}
	}
	return s, nil
}

// TxHexFromBytes converts raw transaction bytes to a hex string.
func TxHexFromBytes(rawTx []byte) string {
	return hex.EncodeToString(rawTx)
}
