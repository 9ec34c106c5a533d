package btc

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/database"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

type Utxo struct {
	TxHash string
	Index  uint32
	Value  int64
}

type UtxoSource interface {
	UnspentOf(ctx context.Context, address string) ([]*Utxo, error)
}

// Family implements chains.Family for bitcoin-like chains whose custody is an m-of-n P2WSH
// address. Bridge transactions are tagged with a null data memo.
type Family struct {
	cfg    config.Chain
	params *chaincfg.Params
	utxos  UtxoSource
	db     database.Database

	lock     *sync.RWMutex
	current  *multisig
	history  map[string]bool
	upcoming map[string]*multisig
}

func NewFamily(cfg config.Chain, utxos UtxoSource, db database.Database) (*Family, error) {
	params, err := NetParams(cfg.BtcNetwork)
	if err != nil {
		return nil, err
	}

	current, err := newMultisig(cfg.MultisigPubkeys, cfg.MultisigThreshold, params)
	if err != nil {
		return nil, err
	}
	if cfg.MultisigAddress != "" && cfg.MultisigAddress != current.address {
		return nil, fmt.Errorf("multisig address %s of chain %s does not match its pubkeys (%s)",
			cfg.MultisigAddress, cfg.Chain, current.address)
	}

	return &Family{
		cfg:      cfg,
		params:   params,
		utxos:    utxos,
		db:       db,
		lock:     &sync.RWMutex{},
		current:  current,
		history:  map[string]bool{current.address: true},
		upcoming: make(map[string]*multisig),
	}, nil
}

func (f *Family) NativeDecimals() int {
	return f.cfg.NativeDecimals
}

func (f *Family) MultisigAddress() string {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return f.current.address
}

func (f *Family) multisig() *multisig {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return f.current
}

// UpdateMultisig switches to a multisig created by a manager change. The keys of the new address
// are known once the change has been validated or built by this node.
func (f *Family) UpdateMultisig(current string, history []string) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, addr := range history {
		f.history[addr] = true
	}

	if current == f.current.address {
		return
	}

	next, ok := f.upcoming[current]
	if !ok {
		log.Errorf("%s: keys of the new multisig %s are unknown", f.cfg.Chain, current)
		return
	}

	f.history[f.current.address] = true
	f.history[current] = true
	f.current = next
	delete(f.upcoming, current)
}

func (f *Family) isMultisig(addr string) bool {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return f.history[addr]
}

func (f *Family) Analyze(ctx context.Context, block *types.Block) ([]*types.UnconfirmedTx, error) {
	ret := make([]*types.UnconfirmedTx, 0)
	for _, tx := range block.Txs {
		utx := f.analyzeTx(tx)
		if utx == nil {
			continue
		}

		utx.BlockHeight = block.Height
		utx.BlockTime = block.Time
		utx.CreatedAt = time.Now()
		ret = append(ret, utx)
	}

	return ret, nil
}

func (f *Family) analyzeTx(tx *types.ChainTx) *types.UnconfirmedTx {
	var memo []byte
	var from string
	spendsMultisig := false
	for _, in := range tx.Inputs {
		if f.isMultisig(in.Address) {
			spendsMultisig = true
			from = in.Address
		} else if from == "" {
			from = in.Address
		}
	}

	toMultisig := int64(0)
	paid := int64(0)
	to := ""
	for _, out := range tx.Outputs {
		switch {
		case out.Data != nil:
			memo = out.Data
		case f.isMultisig(out.Address):
			toMultisig += out.Value
		default:
			paid += out.Value
			if to == "" {
				to = out.Address
			}
		}
	}

	txType, nerveTxHash, typed := decodeMemo(memo)

	if spendsMultisig {
		if !typed || !txType.IsBroadcast() {
			return nil
		}

		utx := &types.UnconfirmedTx{
			TxHash:      tx.Hash,
			NerveTxHash: nerveTxHash,
			TxType:      txType,
			Status:      types.TxStatusCompleted,
			From:        from,
			Amount:      big.NewInt(paid),
			Decimals:    f.cfg.NativeDecimals,
		}
		if txType == types.TxTypeChange {
			// The change sweeps to the new multisig.
			utx.To = to
		}

		return utx
	}

	if toMultisig == 0 || len(memo) == 0 {
		return nil
	}

	if typed {
		if txType != types.TxTypeFeeRecharge {
			return nil
		}
		return &types.UnconfirmedTx{
			TxHash:      tx.Hash,
			NerveTxHash: nerveTxHash,
			TxType:      types.TxTypeFeeRecharge,
			From:        from,
			Amount:      big.NewInt(toMultisig),
			Decimals:    f.cfg.NativeDecimals,
		}
	}

	return &types.UnconfirmedTx{
		TxHash:   tx.Hash,
		TxType:   types.TxTypeDeposit,
		From:     from,
		To:       string(memo),
		Amount:   big.NewInt(toMultisig),
		Decimals: f.cfg.NativeDecimals,
	}
}

func (f *Family) Validate(ctx context.Context, req *types.Request) error {
	completed, err := f.IsCompleted(ctx, req.NerveTxHash())
	if err != nil {
		return err
	}
	if completed {
		return types.ErrAlreadyCompleted
	}

	switch req.Type {
	case types.TxTypeWithdraw:
		w := req.Withdraw
		if w.IsContractAsset {
			return fmt.Errorf("%w: %s", types.ErrAssetNotBound, w.ContractAddress)
		}
		if _, err := btcutil.DecodeAddress(w.To, f.params); err != nil {
			return fmt.Errorf("invalid recipient %s: %w", w.To, err)
		}

		utxos, err := f.utxos.UnspentOf(ctx, f.MultisigAddress())
		if err != nil {
			return err
		}
		if balance := sumUtxos(utxos); balance < w.Amount.Int64() {
			return fmt.Errorf("%w: balance = %d, amount = %s", types.ErrInsufficientBalance, balance, w.Amount)
		}

	case types.TxTypeChange:
		current := f.multisig()
		for _, add := range req.Change.Adds {
			if current.indexOf(add) >= 0 {
				return fmt.Errorf("%w: %s", types.ErrDuplicateManager, add)
			}
		}
		for _, remove := range req.Change.Removes {
			if current.indexOf(remove) < 0 {
				return fmt.Errorf("%w: %s", types.ErrManagerNotFound, remove)
			}
		}

		if !req.Change.IsEmpty() {
			if _, err := f.prepareChange(req.Change); err != nil {
				return err
			}
		}

	default:
		return types.ErrNotSupported
	}

	return nil
}

// prepareChange builds the multisig resulting from the change and remembers it so that the
// switch can happen once the change is confirmed.
func (f *Family) prepareChange(req *types.ChangeRequest) (*multisig, error) {
	pubkeys := f.multisig().changed(req.Adds, req.Removes)
	next, err := newMultisig(pubkeys, config.ByzantineThreshold(len(pubkeys)), f.params)
	if err != nil {
		return nil, err
	}

	f.lock.Lock()
	f.upcoming[next.address] = next
	f.lock.Unlock()

	return next, nil
}

func (f *Family) EstimateWithdrawCost(ctx context.Context, req *types.WithdrawRequest, feeRate *big.Int) (*big.Int, error) {
	utxos, err := f.utxos.UnspentOf(ctx, f.MultisigAddress())
	if err != nil {
		return nil, err
	}

	_, fee, err := f.selectUtxos(utxos, req.Amount.Int64(), feeRate.Int64())
	if err != nil {
		return nil, err
	}

	return big.NewInt(fee), nil
}

// selectUtxos picks the largest outputs first until they cover the amount and the fee of a
// transaction with one payment, one change output and the memo.
func (f *Family) selectUtxos(utxos []*Utxo, amount, feeRate int64) ([]*Utxo, int64, error) {
	sorted := make([]*Utxo, len(utxos))
	copy(sorted, utxos)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value > sorted[j].Value
		}
		if sorted[i].TxHash != sorted[j].TxHash {
			return sorted[i].TxHash < sorted[j].TxHash
		}
		return sorted[i].Index < sorted[j].Index
	})

	current := f.multisig()
	total := int64(0)
	for i, utxo := range sorted {
		total += utxo.Value
		fee := EstimateSize(i+1, 2, memoLen, current.threshold, len(current.pubkeys)) * feeRate
		if total >= amount+fee {
			return sorted[:i+1], fee, nil
		}
	}

	return nil, 0, fmt.Errorf("%w: balance = %d, amount = %d", types.ErrInsufficientBalance, total, amount)
}

func (f *Family) Build(ctx context.Context, req *types.Request, feeRate *big.Int) (*types.OutboundTx, error) {
	utxos, err := f.utxos.UnspentOf(ctx, f.MultisigAddress())
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case types.TxTypeWithdraw:
		return f.buildWithdraw(req.Withdraw, utxos, feeRate.Int64())
	case types.TxTypeChange:
		return f.buildChange(req.Change, utxos, feeRate.Int64())
	}

	return nil, types.ErrNotSupported
}

func (f *Family) buildWithdraw(req *types.WithdrawRequest, utxos []*Utxo, feeRate int64) (*types.OutboundTx, error) {
	current := f.multisig()
	amount := req.Amount.Int64()

	selected, _, err := f.selectUtxos(utxos, amount, feeRate)
	if err != nil {
		return nil, err
	}
	total := sumUtxos(selected)

	// The fee depends on how many change outputs there are. The count only grows between
	// rounds and is capped by MaxSplitOutputs.
	var splits []int64
	for changeOutputs := 1; ; {
		fee := EstimateSize(len(selected), 1+changeOutputs, memoLen, current.threshold, len(current.pubkeys)) * feeRate
		splits = SplitOutputs(total-amount-fee, f.cfg.SplitGranularity)
		if len(splits) <= changeOutputs {
			break
		}
		changeOutputs = len(splits)
	}

	recipient, err := btcutil.DecodeAddress(req.To, f.params)
	if err != nil {
		return nil, err
	}
	recipientScript, err := txscript.PayToAddrScript(recipient)
	if err != nil {
		return nil, err
	}

	msg := wire.NewMsgTx(wire.TxVersion)
	if err := addInputs(msg, selected); err != nil {
		return nil, err
	}
	msg.AddTxOut(wire.NewTxOut(amount, recipientScript))
	for _, value := range splits {
		msg.AddTxOut(wire.NewTxOut(value, current.pkScript))
	}
	if err := addMemo(msg, types.TxTypeWithdraw, req.NerveTxHash); err != nil {
		return nil, err
	}

	if err := addWitness(msg, current, req.Signatures); err != nil {
		return nil, err
	}

	return f.outbound(msg, &types.SentTxRecord{
		NerveTxHash: req.NerveTxHash,
		TxType:      types.TxTypeWithdraw,
		GasPrice:    big.NewInt(feeRate),
		From:        current.address,
		To:          req.To,
		Value:       big.NewInt(amount),
	})
}

// buildChange sweeps every output of the multisig to the multisig of the new manager set.
func (f *Family) buildChange(req *types.ChangeRequest, utxos []*Utxo, feeRate int64) (*types.OutboundTx, error) {
	if len(utxos) == 0 {
		return nil, fmt.Errorf("%w: nothing to move", types.ErrInsufficientBalance)
	}

	current := f.multisig()
	next, err := f.prepareChange(req)
	if err != nil {
		return nil, err
	}

	total := sumUtxos(utxos)
	fee := EstimateSize(len(utxos), 1, memoLen, current.threshold, len(current.pubkeys)) * feeRate
	if total-fee < DustLimit {
		return nil, fmt.Errorf("%w: balance %d does not cover fee %d", types.ErrInsufficientBalance, total, fee)
	}

	msg := wire.NewMsgTx(wire.TxVersion)
	if err := addInputs(msg, utxos); err != nil {
		return nil, err
	}
	msg.AddTxOut(wire.NewTxOut(total-fee, next.pkScript))
	if err := addMemo(msg, types.TxTypeChange, req.NerveTxHash); err != nil {
		return nil, err
	}

	if err := addWitness(msg, current, req.Signatures); err != nil {
		return nil, err
	}

	return f.outbound(msg, &types.SentTxRecord{
		NerveTxHash: req.NerveTxHash,
		TxType:      types.TxTypeChange,
		GasPrice:    big.NewInt(feeRate),
		From:        current.address,
		To:          next.address,
		Value:       big.NewInt(total - fee),
	})
}

func (f *Family) outbound(msg *wire.MsgTx, record *types.SentTxRecord) (*types.OutboundTx, error) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return nil, err
	}

	record.TxHash = msg.TxHash().String()
	record.Payload = buf.Bytes()
	record.CreatedAt = time.Now()

	return &types.OutboundTx{
		Raw:    record.Payload,
		Hash:   record.TxHash,
		Record: record,
	}, nil
}

// BuildReplacement returns the stored transaction. Its fee cannot change without new signatures
// from the bank, so a resend rebroadcasts it as is.
func (f *Family) BuildReplacement(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error) {
	if len(sent.Payload) == 0 {
		return nil, fmt.Errorf("sent tx %s has no payload", sent.TxHash)
	}

	return &types.OutboundTx{
		Raw:    sent.Payload,
		Hash:   sent.TxHash,
		Record: sent,
	}, nil
}

func (f *Family) BuildNonceClear(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error) {
	return nil, types.ErrNotSupported
}

// IsCompleted looks for an observed multisig spend carrying the home chain hash.
func (f *Family) IsCompleted(ctx context.Context, nerveTxHash string) (bool, error) {
	txs, err := f.db.GetTxsByNerveHash(f.cfg.Chain, nerveTxHash)
	if err != nil {
		return false, err
	}

	for _, tx := range txs {
		if tx.TxType.IsBroadcast() && tx.Status == types.TxStatusCompleted {
			return true, nil
		}
	}

	return false, nil
}

func addInputs(msg *wire.MsgTx, utxos []*Utxo) error {
	for _, utxo := range utxos {
		hash, err := chainhash.NewHashFromStr(utxo.TxHash)
		if err != nil {
			return err
		}
		msg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, utxo.Index), nil, nil))
	}

	return nil
}

func addMemo(msg *wire.MsgTx, txType types.TxType, nerveTxHash string) error {
	memo, err := encodeMemo(txType, nerveTxHash)
	if err != nil {
		return err
	}

	script, err := txscript.NullDataScript(memo)
	if err != nil {
		return err
	}
	msg.AddTxOut(wire.NewTxOut(0, script))

	return nil
}

// addWitness attaches the bank signatures to every input. Signers are the hex public keys of the
// members and each signature carries one entry per input. CHECKMULTISIG needs the signatures in
// the order of the keys in the script.
func addWitness(msg *wire.MsgTx, ms *multisig, sigs []types.Signature) error {
	ordered := make([]types.Signature, 0, len(sigs))
	seen := make(map[int]bool)
	for _, sig := range sigs {
		index := ms.indexOf(sig.Signer)
		if index < 0 || seen[index] {
			continue
		}
		if len(sig.Data) != len(msg.TxIn) {
			return fmt.Errorf("signer %s signed %d inputs, tx has %d", sig.Signer, len(sig.Data), len(msg.TxIn))
		}
		seen[index] = true
		ordered = append(ordered, sig)
	}

	if len(ordered) < ms.threshold {
		return fmt.Errorf("%w: %d of %d", types.ErrInsufficientSignatures, len(ordered), ms.threshold)
	}

	sort.Slice(ordered, func(i, j int) bool {
		return ms.indexOf(ordered[i].Signer) < ms.indexOf(ordered[j].Signer)
	})
	ordered = ordered[:ms.threshold]

	for i, in := range msg.TxIn {
		witness := wire.TxWitness{nil}
		for _, sig := range ordered {
			witness = append(witness, sig.Data[i])
		}
		witness = append(witness, ms.redeemScript)
		in.Witness = witness
	}

	return nil
}

func sumUtxos(utxos []*Utxo) int64 {
	total := int64(0)
	for _, utxo := range utxos {
		total += utxo.Value
	}

	return total
}
