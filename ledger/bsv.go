package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bitfsorg/ledgerfs-go/keycustody"
	"github.com/bitfsorg/ledgerfs-go/logging"
	"github.com/bitfsorg/ledgerfs-go/metrics"
	"github.com/bitfsorg/ledgerfs-go/network"
	"github.com/bitfsorg/ledgerfs-go/tx"
)

// BSVConfig configures the BSV adapter.
type BSVConfig struct {
	// KeyRef is the default custody reference of the operator key.
	KeyRef  string
	Mainnet bool
	// MinConfirmations a transaction needs before it counts as received.
	// Zero accepts mempool acceptance.
	MinConfirmations int64
	FeeRate          uint64
	Poller           *Poller

	Logger  log.FieldLogger
	Metrics *metrics.Metrics
}

// BSV implements Ledger on a Bitcoin SV node.
type BSV struct {
	chain   network.BlockchainService
	custody keycustody.Custody
	tips    *TipStore
	cfg     BSVConfig
	log     log.FieldLogger

	// spendMu serializes fee selection and broadcast so concurrent
	// submissions do not pick the same fee output.
	spendMu sync.Mutex

	importedMu sync.Mutex
	imported   map[string]bool
}

var _ Ledger = (*BSV)(nil)

// NewBSV returns a BSV adapter.
func NewBSV(chain network.BlockchainService, custody keycustody.Custody, tips *TipStore, cfg BSVConfig) (*BSV, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: blockchain service", ErrNilParam)
	}
	if custody == nil {
		return nil, fmt.Errorf("%w: key custody", ErrNilParam)
	}
	if tips == nil {
		return nil, fmt.Errorf("%w: tip store", ErrNilParam)
	}
	if cfg.FeeRate == 0 {
		cfg.FeeRate = tx.DefaultFeeRate
	}
	if cfg.Poller == nil {
		cfg.Poller = NewPoller(0, 0, 0)
	}
	return &BSV{
		chain:    chain,
		custody:  custody,
		tips:     tips,
		cfg:      cfg,
		log:      logging.OrDiscard(cfg.Logger),
		imported: make(map[string]bool),
	}, nil
}

// SubmitCreate mints a token carrying record.
func (b *BSV) SubmitCreate(ctx context.Context, record []byte, params TokenParams) (*Receipt, error) {
	keyRef := params.KeyRef
	if keyRef == "" {
		keyRef = b.cfg.KeyRef
	}
	var receipt *Receipt
	err := keycustody.WithOperatorKey(ctx, b.custody, keyRef, func(key *keycustody.OperatorKey) error {
		ttx, err := b.buildAndBroadcast(ctx, key, func(fee []*tx.UTXO) (*tx.TokenTx, error) {
			return tx.BuildMintTx(key.PublicKey(), record, fee, b.cfg.FeeRate)
		}, len(record), false)
		if err != nil {
			return err
		}
		txid, err := tx.TxIDString(ttx.TxID)
		if err != nil {
			return err
		}
		tip := &Tip{
			ObjectID:  txid,
			TxID:      ttx.TxID,
			Vout:      ttx.TokenUTXO.Vout,
			Amount:    ttx.TokenUTXO.Amount,
			KeyRef:    keyRef,
			UpdatedAt: time.Now().Unix(),
		}
		if err := b.tips.Put(tip); err != nil {
			return fmt.Errorf("ledger: record tip %s: %w", txid, err)
		}
		b.log.WithFields(log.Fields{"object_id": txid, "label": params.Label}).Debug("token minted")
		receipt = &Receipt{ObjectID: txid, TxID: txid}
		return nil
	})
	if err != nil {
		b.observe(tx.OpMint, err)
		return nil, err
	}
	return receipt, b.awaitReceipt(ctx, tx.OpMint, receipt.TxID)
}

// SubmitUpdate re-mints the token of objectID with record.
func (b *BSV) SubmitUpdate(ctx context.Context, objectID string, record []byte) (*Receipt, error) {
	return b.spendToken(ctx, tx.OpUpdate, objectID, record)
}

// SubmitDelete burns the token of objectID.
func (b *BSV) SubmitDelete(ctx context.Context, objectID string) (*Receipt, error) {
	return b.spendToken(ctx, tx.OpBurn, objectID, nil)
}

func (b *BSV) spendToken(ctx context.Context, op tx.Op, objectID string, record []byte) (*Receipt, error) {
	objID, err := tx.ParseTxID(objectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenNotFound, err)
	}
	tip, err := b.tip(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if tip.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrTokenDeleted, objectID)
	}
	keyRef := tip.KeyRef
	if keyRef == "" {
		keyRef = b.cfg.KeyRef
	}
	token := &tx.UTXO{TxID: tip.TxID, Vout: tip.Vout, Amount: tip.Amount}

	var receipt *Receipt
	err = keycustody.WithOperatorKey(ctx, b.custody, keyRef, func(key *keycustody.OperatorKey) error {
		ttx, err := b.buildAndBroadcast(ctx, key, func(fee []*tx.UTXO) (*tx.TokenTx, error) {
			if op == tx.OpBurn {
				return tx.BuildBurnTx(key.PublicKey(), objID, token, fee, b.cfg.FeeRate)
			}
			return tx.BuildUpdateTx(key.PublicKey(), objID, token, record, fee, b.cfg.FeeRate)
		}, len(record), true)
		if err != nil {
			return err
		}
		txid, err := tx.TxIDString(ttx.TxID)
		if err != nil {
			return err
		}
		next := &Tip{
			ObjectID:  objectID,
			TxID:      ttx.TxID,
			KeyRef:    keyRef,
			Deleted:   op == tx.OpBurn,
			UpdatedAt: time.Now().Unix(),
		}
		if ttx.TokenUTXO != nil {
			next.Vout = ttx.TokenUTXO.Vout
			next.Amount = ttx.TokenUTXO.Amount
		}
		if err := b.tips.Put(next); err != nil {
			return fmt.Errorf("ledger: record tip %s: %w", objectID, err)
		}
		b.log.WithFields(log.Fields{"object_id": objectID, "txid": txid, "op": op}).Debug("token spent")
		receipt = &Receipt{ObjectID: objectID, TxID: txid}
		return nil
	})
	if err != nil {
		b.observe(op, err)
		return nil, err
	}
	return receipt, b.awaitReceipt(ctx, op, receipt.TxID)
}

type buildFunc func(feeInputs []*tx.UTXO) (*tx.TokenTx, error)

// buildAndBroadcast selects fee inputs, builds, signs and broadcasts one
// token transaction under spendMu.
func (b *BSV) buildAndBroadcast(ctx context.Context, key *keycustody.OperatorKey, build buildFunc, recordLen int, spendsToken bool) (*tx.TokenTx, error) {
	priv, err := key.PrivateKey()
	if err != nil {
		return nil, err
	}
	addr, err := tx.AddressFor(key.PublicKey(), b.cfg.Mainnet)
	if err != nil {
		return nil, err
	}
	if err := b.ensureImported(ctx, addr); err != nil {
		return nil, err
	}

	b.spendMu.Lock()
	defer b.spendMu.Unlock()

	fee, err := b.selectFeeInputs(ctx, addr, recordLen, spendsToken)
	if err != nil {
		return nil, err
	}
	ttx, err := build(fee)
	if err != nil {
		if errors.Is(err, tx.ErrInsufficientFunds) {
			return nil, Rejected(ReasonInsufficientBalance, err.Error())
		}
		return nil, fmt.Errorf("ledger: build transaction: %w", err)
	}
	rawHex, err := tx.SignTokenTx(ttx, priv)
	if err != nil {
		return nil, Rejected(ReasonInvalidSignature, err.Error())
	}

	want, _ := tx.TxIDString(ttx.TxID)
	got, err := b.chain.BroadcastTx(ctx, rawHex)
	switch {
	case err == nil:
		if got != "" && got != want {
			b.log.WithFields(log.Fields{"txid": want, "node_txid": got}).Warn("node reported a different txid")
		}
	case errors.Is(err, network.ErrAlreadyKnown):
		b.log.WithField("txid", want).Debug("transaction already known to node")
	case errors.Is(err, network.ErrBroadcastRejected):
		return nil, Rejected(classifyReject(err.Error()), err.Error())
	default:
		return nil, fmt.Errorf("ledger: broadcast: %w", err)
	}
	return ttx, nil
}

func (b *BSV) ensureImported(ctx context.Context, addr string) error {
	b.importedMu.Lock()
	defer b.importedMu.Unlock()
	if b.imported[addr] {
		return nil
	}
	if err := b.chain.ImportAddress(ctx, addr); err != nil {
		return fmt.Errorf("ledger: import operator address: %w", err)
	}
	b.imported[addr] = true
	return nil
}

// selectFeeInputs picks the largest spendable outputs of addr until they
// cover the estimated fee plus the token output. Live token outputs are
// never used as fee inputs.
func (b *BSV) selectFeeInputs(ctx context.Context, addr string, recordLen int, spendsToken bool) ([]*tx.UTXO, error) {
	utxos, err := b.chain.ListUnspent(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("ledger: list unspent: %w", err)
	}

	candidates := make([]*tx.UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Amount <= tx.DustLimit {
			continue
		}
		txID, err := tx.ParseTxID(u.TxID)
		if err != nil {
			continue
		}
		isToken, err := b.tips.IsTokenOutpoint(txID, u.Vout)
		if err != nil {
			return nil, fmt.Errorf("ledger: tip lookup: %w", err)
		}
		if isToken {
			continue
		}
		lock, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			continue
		}
		candidates = append(candidates, &tx.UTXO{TxID: txID, Vout: u.Vout, Amount: u.Amount, ScriptPubKey: lock})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Amount != candidates[j].Amount {
			return candidates[i].Amount > candidates[j].Amount
		}
		return bytes.Compare(candidates[i].TxID, candidates[j].TxID) < 0
	})

	var (
		selected []*tx.UTXO
		total    uint64
	)
	for _, c := range candidates {
		selected = append(selected, c)
		total += c.Amount
		inputs := len(selected)
		if spendsToken {
			inputs++
		}
		need := tx.EstimateFee(tx.EstimateTxSize(inputs, 2, recordLen), b.cfg.FeeRate) + tx.DustLimit
		if total >= need {
			return selected, nil
		}
	}
	if len(selected) == 0 {
		return nil, Rejected(ReasonInsufficientBalance, fmt.Sprintf("no spendable outputs for %s", addr))
	}
	// Let the builder report the exact shortfall.
	return selected, nil
}

// awaitReceipt polls until txid has MinConfirmations confirmations.
func (b *BSV) awaitReceipt(ctx context.Context, op tx.Op, txid string) error {
	start := time.Now()
	err := b.cfg.Poller.Wait(ctx, func(ctx context.Context) (bool, error) {
		st, err := b.chain.GetTxStatus(ctx, txid)
		if err != nil {
			if !errors.Is(err, network.ErrTxNotFound) {
				b.log.WithError(err).WithField("txid", txid).Debug("receipt poll failed")
			}
			return false, nil
		}
		return st.Confirmations >= b.cfg.MinConfirmations, nil
	})
	b.observe(op, err)
	if err != nil {
		b.log.WithError(err).WithFields(log.Fields{"txid": txid, "op": op}).Warn("no receipt")
		if errors.Is(err, ErrTimeout) {
			return fmt.Errorf("%w: %s", ErrTimeout, txid)
		}
		return err
	}
	b.cfg.Metrics.ReceiptWait(op.String(), time.Since(start))
	return nil
}

func (b *BSV) observe(op tx.Op, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrRejected):
		outcome = metrics.OutcomeRejected
	case errors.Is(err, ErrTimeout):
		outcome = metrics.OutcomeTimeout
	default:
		outcome = metrics.OutcomeError
	}
	b.cfg.Metrics.Submission(op.String(), outcome)
}

// tip returns the stored tip of objectID. When the tip store has no entry,
// the mint is looked up on the ledger: an unspent token output is adopted,
// anything else is reported as not found.
func (b *BSV) tip(ctx context.Context, objectID string) (*Tip, error) {
	t, err := b.tips.Get(objectID)
	if err == nil {
		return t, nil
	}
	if !isTipNotFound(err) {
		return nil, fmt.Errorf("ledger: tip lookup: %w", err)
	}

	rec, err := b.fetchRecord(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if rec.Op != tx.OpMint {
		return nil, fmt.Errorf("%w: %s is not a mint", ErrTokenNotFound, objectID)
	}
	out, err := b.chain.GetUTXO(ctx, objectID, tx.TokenVout)
	if err != nil {
		if errors.Is(err, network.ErrTxNotFound) {
			return nil, fmt.Errorf("%w: %s has moved past the local tip store", ErrTokenNotFound, objectID)
		}
		return nil, fmt.Errorf("ledger: token output: %w", err)
	}
	t = &Tip{
		ObjectID:  objectID,
		TxID:      rec.TxID,
		Vout:      tx.TokenVout,
		Amount:    out.Amount,
		KeyRef:    b.cfg.KeyRef,
		UpdatedAt: time.Now().Unix(),
	}
	if err := b.tips.Put(t); err != nil {
		return nil, fmt.Errorf("ledger: record tip %s: %w", objectID, err)
	}
	return t, nil
}

// fetchRecord fetches txid and parses its token record, checking that the
// fetched bytes hash to the requested txid.
func (b *BSV) fetchRecord(ctx context.Context, txid string) (*tx.Record, error) {
	raw, err := b.chain.GetRawTx(ctx, txid)
	if err != nil {
		if errors.Is(err, network.ErrTxNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, txid)
		}
		return nil, fmt.Errorf("ledger: get transaction %s: %w", txid, err)
	}
	rec, err := tx.ParseRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTokenNotFound, txid, err)
	}
	got, err := tx.TxIDString(rec.TxID)
	if err != nil || got != txid {
		return nil, fmt.Errorf("ledger: node returned transaction %s for %s", got, txid)
	}
	return rec, nil
}

// QueryRecord returns the record carried by the current token output of objectID.
func (b *BSV) QueryRecord(ctx context.Context, objectID string) ([]byte, error) {
	objID, err := tx.ParseTxID(objectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenNotFound, err)
	}
	t, err := b.tip(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if t.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrTokenDeleted, objectID)
	}
	txid, err := tx.TxIDString(t.TxID)
	if err != nil {
		return nil, err
	}
	rec, err := b.fetchRecord(ctx, txid)
	if err != nil {
		return nil, err
	}
	if rec.Op == tx.OpBurn || !bytes.Equal(rec.ObjectID, objID) {
		return nil, fmt.Errorf("ledger: transaction %s does not carry the record of %s", txid, objectID)
	}
	return rec.Data, nil
}
