package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sisu-network/hbridge/metrics"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

const (
	MaxHeightProbes = 10
	// A tx sent by this node that has no height after this long is checked for being dropped.
	UnpackagedTimeout = 3 * time.Minute
)

// Confirmer drains the unconfirmed queue: it waits for enough confirmations, reports each
// transaction to the home chain and keeps the reported ones until the home chain can no longer
// roll back the report.
type Confirmer struct {
	c *Chain
}

// cycle holds the chain state shared by every item of one confirmation cycle.
type cycle struct {
	homeHeight int64
	tip        int64
}

func (f *Confirmer) Run(ctx context.Context) error {
	c := f.c
	if !c.home.IsRunning() {
		return nil
	}

	homeHeight, err := c.home.HomeChainHeight()
	if err != nil {
		return err
	}

	tip, err := c.adapter.Height(ctx)
	if err != nil {
		return err
	}

	items, err := c.unconfirmed.Items()
	if err != nil {
		return err
	}
	c.metrics.Set(metrics.QueueSize, float64(len(items)), c.cfg.Chain, "unconfirmed")

	cy := &cycle{homeHeight: homeHeight, tip: tip}
	for _, utx := range items {
		stop, err := f.process(ctx, cy, utx)
		if err != nil {
			// The item stays queued for the next cycle.
			log.Errorf("%s: failed to process %s, err = %v", c.cfg.Chain, utx, err)
			c.metrics.Inc(metrics.TaskError, c.cfg.Chain, "confirmer")
			continue
		}
		if stop {
			break
		}
	}

	return nil
}

func (f *Confirmer) process(ctx context.Context, cy *cycle, utx *types.UnconfirmedTx) (bool, error) {
	c := f.c

	if utx.MarkedDeleted {
		return false, f.processDeleted(cy, utx)
	}

	if c.cfg.IsDenied(utx.TxHash) {
		return false, f.discard(utx, "denied")
	}
	if delay := c.cfg.DelayRounds(utx.TxHash); utx.SkipRounds < delay {
		utx.SkipRounds++
		return false, f.requeue(utx)
	}

	if utx.TxType == types.TxTypeRecovery {
		return true, f.recover(utx)
	}

	if utx.TxType.IsDepositLike() && utx.DepositErrorCount > c.bridgeCfg.DepositErrorLimit {
		return false, f.discard(utx, "deposit_error_limit")
	}

	if utx.BlockHeight == 0 {
		return false, f.probeHeight(ctx, utx)
	}

	if !HasEnoughConfirmations(cy.tip, utx.BlockHeight, c.requiredConfirmations(utx.TxType)) {
		return false, nil
	}

	switch {
	case utx.TxType == types.TxTypeDeposit:
		return false, f.confirmDeposit(ctx, cy, utx)
	case utx.TxType == types.TxTypeFeeRecharge:
		return false, f.confirmFeeRecharge(ctx, cy, utx)
	case utx.TxType.IsBroadcast():
		return false, f.processBroadcast(ctx, cy, utx)
	}

	return false, f.discard(utx, "unknown_type")
}

// processDeleted purges a reported item once the home chain is past the rollback window. If the
// home chain lost the report in the meantime the item is reported again.
func (f *Confirmer) processDeleted(cy *cycle, utx *types.UnconfirmedTx) error {
	c := f.c
	if cy.homeHeight >= utx.DeleteAtHeight {
		return f.purge(utx)
	}

	confirmed, err := c.home.IsAlreadyConfirmedOnHome(c.cfg.Chain, homeKey(utx))
	if err != nil {
		return err
	}
	if confirmed {
		return nil
	}

	log.Warnf("%s: report of %s was rolled back on the home chain", c.cfg.Chain, utx)
	utx.MarkedDeleted = false
	utx.DeleteAtHeight = 0
	utx.Validated = false
	return f.requeue(utx)
}

// recover drops the recovery signal and every manager change still pending.
func (f *Confirmer) recover(utx *types.UnconfirmedTx) error {
	c := f.c
	if err := c.unconfirmed.Remove(queueKey(utx.TxHash)); err != nil {
		return err
	}

	count, err := c.unconfirmed.RemoveIf(func(item *types.UnconfirmedTx) bool {
		return item.TxType == types.TxTypeChange && !item.MarkedDeleted
	})
	if err != nil {
		return err
	}

	log.Infof("%s: recovery %s removed %d pending manager changes", c.cfg.Chain, utx.NerveTxHash, count)
	return nil
}

func (f *Confirmer) probeHeight(ctx context.Context, utx *types.UnconfirmedTx) error {
	c := f.c

	stored, err := c.db.GetTx(c.cfg.Chain, utx.TxHash)
	if err != nil {
		return err
	}
	if stored != nil && stored.BlockHeight > 0 {
		utx.BlockHeight = stored.BlockHeight
		return f.requeue(utx)
	}

	utx.BlockHeightProbeCount++

	sent, err := f.sentByThisNode(utx)
	if err != nil {
		return err
	}
	overdue := sent && c.now().Sub(utx.CreatedAt) > UnpackagedTimeout

	if utx.BlockHeightProbeCount < MaxHeightProbes && !overdue {
		return f.requeue(utx)
	}

	tx, err := c.adapter.TxByHash(ctx, utx.TxHash)
	if err != nil {
		return err
	}

	if tx != nil && tx.BlockHeight > 0 {
		if tx.BlockHeight < c.maxObservedHeight.Load() {
			// The scanner is past this block and did not record the tx: another member's
			// transaction superseded it.
			return f.discard(utx, "superseded")
		}
		utx.BlockHeight = tx.BlockHeight
		return f.requeue(utx)
	}

	if overdue && (tx == nil || tx.BlockHeight == 0) {
		return f.resend(ctx, utx)
	}

	if tx == nil && utx.BlockHeightProbeCount >= MaxHeightProbes && !sent && utx.TxType.IsBroadcast() {
		return f.discard(utx, "not_found")
	}

	return f.requeue(utx)
}

func (f *Confirmer) sentByThisNode(utx *types.UnconfirmedTx) (bool, error) {
	if !utx.TxType.IsBroadcast() {
		return false, nil
	}

	sent, err := f.c.db.GetSentTx(f.c.cfg.Chain, utx.NerveTxHash)
	if err != nil {
		return false, err
	}

	return sent != nil && types.NormalizeHash(sent.TxHash) == types.NormalizeHash(utx.TxHash), nil
}

// validateInbound returns false if the tx is no longer on chain or did not succeed.
func (f *Confirmer) validateInbound(ctx context.Context, utx *types.UnconfirmedTx) (bool, error) {
	receipt, err := f.c.adapter.Receipt(ctx, utx.TxHash)
	if err != nil {
		return false, err
	}

	return receipt != nil && receipt.Status, nil
}

func (f *Confirmer) confirmDeposit(ctx context.Context, cy *cycle, utx *types.UnconfirmedTx) error {
	c := f.c

	ok, err := f.validateInbound(ctx, utx)
	if err != nil {
		return err
	}
	if !ok {
		return f.discard(utx, "invalid_deposit")
	}

	amount := "0"
	if utx.Amount != nil {
		amount = utx.Amount.String()
	}

	result, err := c.home.SubmitDeposit(&types.DepositInfo{
		Chain:           c.cfg.Chain,
		TxHash:          utx.TxHash,
		BlockHeight:     utx.BlockHeight,
		BlockTime:       utx.BlockTime,
		From:            utx.From,
		To:              utx.To,
		Amount:          amount,
		Decimals:        utx.Decimals,
		IsContractAsset: utx.IsContractAsset,
		ContractAddress: utx.ContractAddress,
	})

	return f.handleInboundResult(cy, utx, result, err)
}

func (f *Confirmer) confirmFeeRecharge(ctx context.Context, cy *cycle, utx *types.UnconfirmedTx) error {
	c := f.c

	ok, err := f.validateInbound(ctx, utx)
	if err != nil {
		return err
	}
	if !ok {
		return f.discard(utx, "invalid_fee_recharge")
	}

	amount := "0"
	if utx.Amount != nil {
		amount = utx.Amount.String()
	}

	result, err := c.home.RecordWithdrawFee(&types.WithdrawFeeRecord{
		Chain:       c.cfg.Chain,
		TxHash:      utx.TxHash,
		NerveTxHash: utx.NerveTxHash,
		BlockHeight: utx.BlockHeight,
		BlockTime:   utx.BlockTime,
		Amount:      amount,
	})

	return f.handleInboundResult(cy, utx, result, err)
}

func (f *Confirmer) handleInboundResult(cy *cycle, utx *types.UnconfirmedTx, result *types.SubmitResult, err error) error {
	if err != nil {
		utx.DepositErrorCount++
		if offerErr := f.requeue(utx); offerErr != nil {
			return offerErr
		}
		return err
	}

	switch result.Outcome {
	case types.OutcomeConfirmed, types.OutcomeAlreadyConfirmed:
		return f.markDeleted(cy, utx)
	case types.OutcomeFailed:
		log.Warnf("%s: home chain rejected %s: %s", f.c.cfg.Chain, utx, result.Reason)
		utx.DepositErrorCount++
		return f.requeue(utx)
	}

	return nil
}

func (f *Confirmer) processBroadcast(ctx context.Context, cy *cycle, utx *types.UnconfirmedTx) error {
	switch utx.Status {
	case types.TxStatusFailed:
		return f.processFailed(ctx, utx)
	case types.TxStatusCompleted:
		return f.processCompleted(ctx, cy, utx)
	}

	// Still waiting for the scanner to see the outcome.
	return nil
}

func (f *Confirmer) processFailed(ctx context.Context, utx *types.UnconfirmedTx) error {
	c := f.c

	if utx.ResendCount >= c.bridgeCfg.ResendLimit {
		return f.discard(utx, "resend_limit")
	}

	confirmed, err := c.home.IsAlreadyConfirmedOnHome(c.cfg.Chain, utx.NerveTxHash)
	if err != nil {
		return err
	}
	if confirmed {
		return f.discard(utx, "confirmed_elsewhere")
	}

	waiting, err := c.waiting.Get(queueKey(utx.NerveTxHash))
	if err != nil {
		return err
	}
	if waiting == nil {
		if c.now().Sub(utx.CreatedAt) > c.cfg.FailedTimeoutPeriod() {
			return f.discard(utx, "failed_timeout")
		}
		return nil
	}

	failedOrder := waiting.CurrentBankOrder[strings.ToLower(utx.From)]
	next := NextSenderOrder(failedOrder, len(waiting.CurrentBankOrder))
	if waiting.ThisNodeOrder != next || waiting.Sent {
		return f.discard(utx, "not_next_sender")
	}

	return f.resend(ctx, utx)
}

func (f *Confirmer) processCompleted(ctx context.Context, cy *cycle, utx *types.UnconfirmedTx) error {
	c := f.c

	if !utx.Validated {
		receipt, err := c.adapter.Receipt(ctx, utx.TxHash)
		if err != nil {
			return err
		}

		if receipt == nil {
			if c.now().Sub(utx.CreatedAt) > c.cfg.ReceiptTimeoutPeriod() {
				return f.resend(ctx, utx)
			}
			return nil
		}
		if !receipt.Status || len(receipt.Logs) == 0 {
			return f.resend(ctx, utx)
		}

		utx.Validated = true
		if err := f.requeue(utx); err != nil {
			return err
		}
	}

	signers := utx.Signers
	waiting, err := c.waiting.Get(queueKey(utx.NerveTxHash))
	if err != nil {
		return err
	}
	if len(signers) == 0 && waiting != nil && waiting.Request != nil {
		signers = waiting.Request.Signers()
	}

	multisig := c.family.MultisigAddress()
	result, err := c.home.ConfirmBroadcast(&types.BroadcastConfirmation{
		Chain:           c.cfg.Chain,
		TxType:          utx.TxType,
		NerveTxHash:     utx.NerveTxHash,
		TxHash:          utx.TxHash,
		BlockHeight:     utx.BlockHeight,
		BlockTime:       utx.BlockTime,
		MultisigAddress: multisig,
		Signers:         signers,
	})
	if err != nil {
		return err
	}

	if !result.Done() {
		if result.Outcome == types.OutcomeFailed {
			log.Warnf("%s: home chain rejected %s: %s", c.cfg.Chain, utx, result.Reason)
		}
		return nil
	}

	if (utx.TxType == types.TxTypeChange || utx.TxType == types.TxTypeUpgrade) &&
		utx.To != "" && !c.isMultisig(utx.To) {
		if err := f.switchMultisig(utx); err != nil {
			return err
		}
	}

	if err := c.waiting.Remove(queueKey(utx.NerveTxHash)); err != nil {
		return err
	}

	c.metrics.Inc(metrics.TxConfirmed, c.cfg.Chain, utx.TxType.String())
	return f.markDeleted(cy, utx)
}

func (f *Confirmer) switchMultisig(utx *types.UnconfirmedTx) error {
	c := f.c
	log.Infof("%s: multisig moved from %s to %s", c.cfg.Chain, c.family.MultisigAddress(), utx.To)

	if err := c.db.SaveMultisigAddress(c.cfg.Chain, c.family.MultisigAddress(), utx.BlockHeight-1); err != nil {
		return err
	}
	if err := c.db.SaveMultisigAddress(c.cfg.Chain, utx.To, utx.BlockHeight); err != nil {
		return err
	}

	history, err := c.db.LoadMultisigAddresses(c.cfg.Chain)
	if err != nil {
		return err
	}

	c.family.UpdateMultisig(utx.To, history)
	return nil
}

func (f *Confirmer) resend(ctx context.Context, utx *types.UnconfirmedTx) error {
	c := f.c

	if utx.ResendCount >= c.bridgeCfg.ResendLimit {
		return f.discard(utx, "resend_limit")
	}

	hash, err := c.resender.Resend(ctx, utx.NerveTxHash)
	switch {
	case errors.Is(err, types.ErrGasPriceCapReached), errors.Is(err, types.ErrRpcUnavailable):
		log.Verbosef("%s: cannot resend %s yet, err = %v", c.cfg.Chain, utx, err)
		return nil
	case errors.Is(err, types.ErrResendLimit):
		return f.discard(utx, "resend_limit")
	case errors.Is(err, types.ErrNoWaitingRecord):
		return f.discard(utx, "no_waiting_record")
	case err != nil:
		return err
	}

	utx.ResendCount++
	if queueKey(hash) == queueKey(utx.TxHash) {
		return f.requeue(utx)
	}

	// The new transaction is tracked under its own hash and inherits the resend count.
	resent, err := c.unconfirmed.Get(queueKey(hash))
	if err != nil {
		return err
	}
	if resent != nil {
		resent.ResendCount = utx.ResendCount
		if err := c.unconfirmed.Offer(queueKey(hash), resent); err != nil {
			return err
		}
	}

	return f.discard(utx, "resent")
}

func (f *Confirmer) markDeleted(cy *cycle, utx *types.UnconfirmedTx) error {
	utx.MarkedDeleted = true
	utx.DeleteAtHeight = cy.homeHeight + f.c.bridgeCfg.RollbackWindow
	return f.requeue(utx)
}

func (f *Confirmer) purge(utx *types.UnconfirmedTx) error {
	c := f.c
	if utx.TxType.IsBroadcast() {
		if err := c.db.DeleteSentTx(c.cfg.Chain, utx.NerveTxHash); err != nil {
			return err
		}
	}

	return c.unconfirmed.Remove(queueKey(utx.TxHash))
}

func (f *Confirmer) discard(utx *types.UnconfirmedTx, reason string) error {
	c := f.c
	log.Infof("%s: discarding %s, reason = %s", c.cfg.Chain, utx, reason)
	c.metrics.Inc(metrics.TxDiscarded, c.cfg.Chain, reason)

	return c.unconfirmed.Remove(queueKey(utx.TxHash))
}

func (f *Confirmer) requeue(utx *types.UnconfirmedTx) error {
	return f.c.unconfirmed.Offer(queueKey(utx.TxHash), utx)
}

// homeKey is the key under which the home chain knows the transaction.
func homeKey(utx *types.UnconfirmedTx) string {
	if utx.TxType.IsBroadcast() {
		return utx.NerveTxHash
	}

	return utx.TxHash
}
