package core

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sisu-network/hbridge/metrics"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

// Orchestrator receives the outbound requests of the home chain. Every bank member registers the
// request for the rotation; the member whose turn it is validates, builds and broadcasts it.
type Orchestrator struct {
	c *Chain
}

func (o *Orchestrator) CreateOrSignWithdraw(ctx context.Context, req *types.WithdrawRequest, checkOrder bool) (string, error) {
	return o.handle(ctx, &types.Request{Type: types.TxTypeWithdraw, Withdraw: req}, checkOrder)
}

func (o *Orchestrator) CreateOrSignManagerChange(ctx context.Context, req *types.ChangeRequest, checkOrder bool) (string, error) {
	return o.handle(ctx, &types.Request{Type: types.TxTypeChange, Change: req}, checkOrder)
}

func (o *Orchestrator) CreateOrSignUpgrade(ctx context.Context, req *types.UpgradeRequest, checkOrder bool) (string, error) {
	return o.handle(ctx, &types.Request{Type: types.TxTypeUpgrade, Upgrade: req}, checkOrder)
}

func (o *Orchestrator) handle(ctx context.Context, req *types.Request, checkOrder bool) (string, error) {
	c := o.c
	nerveTxHash := req.NerveTxHash()
	if nerveTxHash == "" {
		return "", fmt.Errorf("request without nerve tx hash")
	}

	if req.Type == types.TxTypeChange && req.Change.IsEmpty() {
		return "", o.confirmEmptyChange(req)
	}

	waiting, err := o.register(req)
	if err != nil {
		return "", err
	}

	if waiting.Sent {
		// Already sent in this round. The coordinator decides on any resend.
		sent, err := c.db.GetSentTx(c.cfg.Chain, nerveTxHash)
		if err != nil || sent == nil {
			return "", err
		}
		return sent.TxHash, nil
	}

	if checkOrder && waiting.ThisNodeOrder != 1 {
		log.Verbosef("%s: %s is sent by order 1, this node has order %d", c.cfg.Chain, nerveTxHash, waiting.ThisNodeOrder)
		return "", nil
	}

	hash, err := o.send(ctx, req, waiting.CurrentBankOrder)
	if err != nil {
		if types.IsBusinessRejection(err) {
			log.Warnf("%s: %s %s rejected, err = %v", c.cfg.Chain, req.Type, nerveTxHash, err)
		}
		return "", err
	}

	waiting.Sent = true
	if err := c.waiting.Offer(queueKey(nerveTxHash), waiting); err != nil {
		return hash, err
	}

	return hash, nil
}

// confirmEmptyChange reports a manager change that neither adds nor removes anyone. Nothing is
// sent to the external chain.
func (o *Orchestrator) confirmEmptyChange(req *types.Request) error {
	c := o.c
	result, err := c.home.ConfirmBroadcast(&types.BroadcastConfirmation{
		Chain:           c.cfg.Chain,
		TxType:          types.TxTypeChange,
		NerveTxHash:     req.NerveTxHash(),
		MultisigAddress: c.family.MultisigAddress(),
		Signers:         req.Signers(),
	})
	if err != nil {
		return err
	}

	if result.Outcome == types.OutcomeFailed {
		return fmt.Errorf("home chain rejected empty change %s: %s", req.NerveTxHash(), result.Reason)
	}

	return nil
}

// register stores the waiting record of a request. The rotation of a known request is kept, only
// its signatures are refreshed.
func (o *Orchestrator) register(req *types.Request) (*types.WaitingTx, error) {
	c := o.c
	key := queueKey(req.NerveTxHash())

	existing, err := c.waiting.Get(key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Request = req
		return existing, c.waiting.Offer(key, existing)
	}

	bankOrder, err := c.home.CurrentBankOrder(c.cfg.Chain)
	if err != nil {
		return nil, err
	}
	if len(bankOrder) == 0 {
		return nil, fmt.Errorf("empty bank on chain %s", c.cfg.Chain)
	}

	nodeAddr, err := c.home.NodeAddress(c.cfg.Chain)
	if err != nil {
		return nil, err
	}

	orders := ComputeSendOrder(req.NerveTxHash(), bankOrder)
	thisOrder, ok := orders[strings.ToLower(nodeAddr)]
	if !ok {
		return nil, fmt.Errorf("node %s is not in the bank of chain %s", nodeAddr, c.cfg.Chain)
	}

	now := c.now()
	waiting := &types.WaitingTx{
		NerveTxHash:      req.NerveTxHash(),
		Request:          req,
		CurrentBankOrder: orders,
		ThisNodeOrder:    thisOrder,
	}
	resetRound(waiting, now, c.cfg.RoundPeriod(), c.cfg.MaxWaitPeriod())

	return waiting, c.waiting.Offer(key, waiting)
}

func resetRound(w *types.WaitingTx, now time.Time, interval, maxWait time.Duration) {
	w.RoundStart = now
	w.RoundDeadline = RoundDeadline(now, w.ThisNodeOrder, interval)
	w.MaxDeadline = MaxDeadline(now, len(w.CurrentBankOrder), interval, maxWait)
	w.InvokedResendThisRound = false
	w.Sent = false
}

// send validates, builds and broadcasts the request.
func (o *Orchestrator) send(ctx context.Context, req *types.Request, bankOrder map[string]int) (string, error) {
	c := o.c
	if !c.IsRpcAvailable() {
		return "", types.ErrRpcUnavailable
	}

	if m := c.threshold(len(bankOrder)); len(req.Signers()) < m {
		return "", types.ErrInsufficientSignatures
	}

	if err := c.family.Validate(ctx, req); err != nil {
		return "", err
	}

	feeRate, err := c.adapter.CurrentFeeRate(ctx)
	if err != nil {
		return "", err
	}

	if req.Type == types.TxTypeWithdraw {
		if err := o.checkFee(ctx, req.Withdraw, feeRate); err != nil {
			return "", err
		}
	}

	out, err := c.family.Build(ctx, req, feeRate)
	if err != nil {
		return "", err
	}

	hash, err := c.adapter.Broadcast(ctx, out.Raw)
	if err != nil {
		return "", err
	}
	if hash == "" {
		hash = out.Hash
	}
	out.Record.TxHash = hash

	if err := c.db.SaveSentTx(c.cfg.Chain, out.Record); err != nil {
		return hash, err
	}
	if err := o.track(out.Record, req); err != nil {
		return hash, err
	}

	log.Infof("%s: broadcast %s %s, tx = %s", c.cfg.Chain, req.Type, req.NerveTxHash(), hash)
	c.metrics.Inc(metrics.TxBroadcast, c.cfg.Chain, req.Type.String())
	return hash, nil
}

// track queues a transaction this node broadcast so that it is confirmed like the ones found by
// the scanner.
func (o *Orchestrator) track(record *types.SentTxRecord, req *types.Request) error {
	c := o.c

	utx := &types.UnconfirmedTx{
		TxHash:      record.TxHash,
		NerveTxHash: record.NerveTxHash,
		TxType:      record.TxType,
		CreatedAt:   c.now(),
		Status:      types.TxStatusInitial,
		From:        record.From,
		To:          record.To,
	}

	if req != nil {
		utx.Signers = req.Signers()
		switch {
		case req.Withdraw != nil:
			utx.To = req.Withdraw.To
			utx.Amount = req.Withdraw.Amount
			utx.Decimals = req.Withdraw.Decimals
			utx.IsContractAsset = req.Withdraw.IsContractAsset
			utx.ContractAddress = req.Withdraw.ContractAddress
		case req.Upgrade != nil:
			utx.To = strings.ToLower(req.Upgrade.UpgradeContract)
		}
	}

	if err := c.db.SaveTx(c.cfg.Chain, &types.StoredTx{
		TxHash:      record.TxHash,
		NerveTxHash: record.NerveTxHash,
		TxType:      record.TxType,
		Status:      types.TxStatusInitial,
	}); err != nil {
		return err
	}

	return c.unconfirmed.Offer(queueKey(record.TxHash), utx)
}

type feeQuote struct {
	amount    *big.Int
	decimals  int
	feeUsd    decimal.Decimal
	nativeUsd decimal.Decimal
}

func (o *Orchestrator) quoteFee(nerveTxHash string) (*feeQuote, error) {
	c := o.c

	fee, err := c.home.WithdrawFee(c.cfg.Chain, nerveTxHash)
	if err != nil {
		return nil, err
	}
	if fee == nil {
		return nil, types.ErrInsufficientFee
	}

	amount, ok := new(big.Int).SetString(fee.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid withdrawal fee %q of %s", fee.Amount, nerveTxHash)
	}

	feeUsd, err := c.usdPrice(fee.Asset)
	if err != nil {
		return nil, err
	}
	nativeUsd, err := c.usdPrice(c.cfg.NativeSymbol)
	if err != nil {
		return nil, err
	}

	return &feeQuote{amount: amount, decimals: fee.Decimals, feeUsd: feeUsd, nativeUsd: nativeUsd}, nil
}

func (o *Orchestrator) checkFee(ctx context.Context, req *types.WithdrawRequest, feeRate *big.Int) error {
	c := o.c

	quote, err := o.quoteFee(req.NerveTxHash)
	if err != nil {
		return err
	}

	cost, err := c.family.EstimateWithdrawCost(ctx, req, feeRate)
	if err != nil {
		return err
	}

	required := RequiredFee(cost, c.family.NativeDecimals(), quote.nativeUsd, quote.decimals, quote.feeUsd)
	if err := CheckFee(quote.amount, required); err != nil {
		log.Warnf("%s: fee of %s is %s, required %s", c.cfg.Chain, req.NerveTxHash, quote.amount, required)
		return err
	}

	return nil
}

// affordableGasPrice is the highest gas price the withdrawal fee covers for a sent transaction.
func (o *Orchestrator) affordableGasPrice(req *types.WithdrawRequest, sent *types.SentTxRecord) (*big.Int, error) {
	quote, err := o.quoteFee(req.NerveTxHash)
	if err != nil {
		return nil, err
	}

	return GasPriceForFee(quote.amount, quote.decimals, quote.feeUsd, o.c.family.NativeDecimals(),
		quote.nativeUsd, sent.GasLimit, sent.GasPrice)
}

func requestOf(w *types.WaitingTx) *types.Request {
	if w == nil {
		return nil
	}

	return w.Request
}
