package tx

import (
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
)

// TokenTxParams describes one token transaction.
type TokenTxParams struct {
	Op       Op
	ObjectID []byte // 32 bytes for update and burn, nil for mint
	Record   []byte // envelope bytes, nil for burn
	// Token is the current token output; required for update and burn.
	Token *UTXO
	// FeeInputs fund the transaction. Must be non-empty.
	FeeInputs []*UTXO
	// Owner receives the token output and any change.
	Owner   *ec.PublicKey
	FeeRate uint64
}

// BuildMintTx builds an unsigned transaction that mints a token carrying record.
func BuildMintTx(owner *ec.PublicKey, record []byte, feeInputs []*UTXO, feeRate uint64) (*TokenTx, error) {
	return BuildTokenTx(&TokenTxParams{
		Op: OpMint, Record: record, FeeInputs: feeInputs, Owner: owner, FeeRate: feeRate,
	})
}

// BuildUpdateTx builds an unsigned transaction that spends token and re-creates
// it with a new record.
func BuildUpdateTx(owner *ec.PublicKey, objectID []byte, token *UTXO, record []byte, feeInputs []*UTXO, feeRate uint64) (*TokenTx, error) {
	return BuildTokenTx(&TokenTxParams{
		Op: OpUpdate, ObjectID: objectID, Record: record, Token: token,
		FeeInputs: feeInputs, Owner: owner, FeeRate: feeRate,
	})
}

// BuildBurnTx builds an unsigned transaction that spends token without
// re-creating it.
func BuildBurnTx(owner *ec.PublicKey, objectID []byte, token *UTXO, feeInputs []*UTXO, feeRate uint64) (*TokenTx, error) {
	return BuildTokenTx(&TokenTxParams{
		Op: OpBurn, ObjectID: objectID, Token: token,
		FeeInputs: feeInputs, Owner: owner, FeeRate: feeRate,
	})
}

// BuildTokenTx constructs a token transaction.
//
// Output layout:
//
//	[0] OP_FALSE OP_RETURN [ProtocolFlag, Op, ObjectID, Record]
//	[1] P2PKH -> Owner (DustLimit), the token; absent for burns
//	[last] P2PKH -> Owner, change (absent if dust)
//
// Inputs:
//
//	[0] the current token output (update and burn only)
//	fee inputs follow
func BuildTokenTx(p *TokenTxParams) (*TokenTx, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: params", ErrNilParam)
	}
	if p.Owner == nil {
		return nil, fmt.Errorf("%w: owner public key", ErrNilParam)
	}
	if len(p.FeeInputs) == 0 {
		return nil, fmt.Errorf("%w: no fee inputs", ErrNilParam)
	}
	if p.Op != OpMint && p.Token == nil {
		return nil, fmt.Errorf("%w: %s requires the token output", ErrNilParam, p.Op)
	}
	if p.Op == OpMint && p.Token != nil {
		return nil, fmt.Errorf("%w: mint spends no token", ErrInvalidParams)
	}

	pushes, err := BuildOPReturnData(p.Op, p.ObjectID, p.Record)
	if err != nil {
		return nil, err
	}

	inputs := make([]*UTXO, 0, len(p.FeeInputs)+1)
	if p.Token != nil {
		inputs = append(inputs, p.Token)
	}
	for i, fi := range p.FeeInputs {
		if fi == nil {
			return nil, fmt.Errorf("%w: feeInput[%d]", ErrNilParam, i)
		}
		inputs = append(inputs, fi)
	}

	createsToken := p.Op != OpBurn
	numP2PKH := 1 // change
	if createsToken {
		numP2PKH++
	}
	estFee := EstimateFee(EstimateTxSize(len(inputs), numP2PKH, len(p.Record)), p.FeeRate)

	var totalAvailable uint64
	for _, in := range inputs {
		totalAvailable += in.Amount
	}
	totalNeeded := estFee
	if createsToken {
		totalNeeded += DustLimit
	}
	if totalAvailable < totalNeeded {
		return nil, fmt.Errorf("%w: need %d sat, have %d sat",
			ErrInsufficientFunds, totalNeeded, totalAvailable)
	}

	ownerScript, err := BuildP2PKHScript(p.Owner)
	if err != nil {
		return nil, err
	}

	sdkTx := transaction.NewTransaction()
	for i, in := range inputs {
		h, err := chainhash.NewHash(in.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: input[%d] txid: %w", ErrScriptBuild, i, err)
		}
		sdkTx.AddInput(&transaction.TransactionInput{
			SourceTXID:       h,
			SourceTxOutIndex: in.Vout,
			SequenceNumber:   transaction.DefaultSequenceNumber,
		})
	}

	opReturnScript, err := buildOPReturnScript(pushes)
	if err != nil {
		return nil, err
	}
	sdkTx.Outputs = append(sdkTx.Outputs, &transaction.TransactionOutput{
		Satoshis:      0,
		LockingScript: opReturnScript,
	})

	result := &TokenTx{Op: p.Op, Inputs: inputs}
	vout := uint32(1)

	if createsToken {
		sdkTx.Outputs = append(sdkTx.Outputs, &transaction.TransactionOutput{
			Satoshis:      DustLimit,
			LockingScript: script.NewFromBytes(ownerScript),
		})
		result.TokenUTXO = &UTXO{Vout: vout, Amount: DustLimit, ScriptPubKey: ownerScript}
		vout++
	}

	change := totalAvailable - totalNeeded
	if change > DustLimit {
		sdkTx.Outputs = append(sdkTx.Outputs, &transaction.TransactionOutput{
			Satoshis:      change,
			LockingScript: script.NewFromBytes(ownerScript),
		})
		result.ChangeUTXO = &UTXO{Vout: vout, Amount: change, ScriptPubKey: ownerScript}
		result.Fee = estFee
	} else {
		result.Fee = estFee + change
	}

	result.RawTx = sdkTx.Bytes()
	return result, nil
}
