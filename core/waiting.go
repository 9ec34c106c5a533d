package core

import (
	"context"
	"errors"

	"github.com/sisu-network/hbridge/metrics"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

// WaitingCoordinator picks the member that sends a pending outbound request. Order 1 sends first;
// when a round passes without the request being executed the member with the next order takes
// over, once. After the maximum wait the rotation starts again.
type WaitingCoordinator struct {
	c *Chain
}

func (w *WaitingCoordinator) Run(ctx context.Context) error {
	c := w.c
	if !c.home.IsRunning() {
		return nil
	}

	homeHeight, err := c.home.HomeChainHeight()
	if err != nil {
		return err
	}

	items, err := c.waiting.Items()
	if err != nil {
		return err
	}
	c.metrics.Set(metrics.QueueSize, float64(len(items)), c.cfg.Chain, "waiting")

	for _, item := range items {
		if err := w.process(ctx, homeHeight, item); err != nil {
			log.Errorf("%s: failed to process waiting tx %s, err = %v", c.cfg.Chain, item.NerveTxHash, err)
			c.metrics.Inc(metrics.TaskError, c.cfg.Chain, "waiting")
		}
	}

	return nil
}

func (w *WaitingCoordinator) process(ctx context.Context, homeHeight int64, item *types.WaitingTx) error {
	c := w.c
	key := queueKey(item.NerveTxHash)

	confirmed, err := c.home.IsAlreadyConfirmedOnHome(c.cfg.Chain, item.NerveTxHash)
	if err != nil {
		return err
	}
	if confirmed {
		return w.discard(item, "confirmed")
	}

	skipped, err := c.home.IsAlreadySkipped(c.cfg.Chain, item.NerveTxHash)
	if err != nil {
		return err
	}
	if skipped {
		return w.discard(item, "skipped")
	}

	if homeHeight-item.LastValidateHeight >= c.bridgeCfg.RevalidateInterval {
		completed, err := c.family.IsCompleted(ctx, item.NerveTxHash)
		if err != nil {
			return err
		}
		if completed {
			return w.discard(item, "completed")
		}

		item.LastValidateHeight = homeHeight
		if err := c.waiting.Offer(key, item); err != nil {
			return err
		}
	}

	if item.ResendCount >= c.bridgeCfg.ResendLimit {
		return w.discard(item, "resend_limit")
	}

	now := c.now()
	switch {
	case !now.Before(item.MaxDeadline):
		log.Infof("%s: %s waited too long, restarting the rotation", c.cfg.Chain, item.NerveTxHash)
		resetRound(item, now, c.cfg.RoundPeriod(), c.cfg.MaxWaitPeriod())
		if err := c.waiting.Offer(key, item); err != nil {
			return err
		}
		if item.ThisNodeOrder == 1 {
			return w.resend(ctx, item)
		}

	case !now.Before(item.RoundDeadline) && item.ThisNodeOrder != 1 && !item.InvokedResendThisRound:
		if w.hasPendingBroadcast(item.NerveTxHash) {
			return nil
		}
		return w.resend(ctx, item)
	}

	return nil
}

// hasPendingBroadcast returns true if a transaction of the request is on chain and not failed.
func (w *WaitingCoordinator) hasPendingBroadcast(nerveTxHash string) bool {
	items, err := w.c.unconfirmed.Items()
	if err != nil {
		return false
	}

	for _, utx := range items {
		if utx.NerveTxHash == nerveTxHash && utx.BlockHeight > 0 && utx.Status != types.TxStatusFailed {
			return true
		}
	}

	return false
}

func (w *WaitingCoordinator) resend(ctx context.Context, item *types.WaitingTx) error {
	c := w.c
	key := queueKey(item.NerveTxHash)

	_, err := c.resender.Resend(ctx, item.NerveTxHash)
	switch {
	case types.IsBusinessRejection(err):
		log.Warnf("%s: not resending %s, err = %v", c.cfg.Chain, item.NerveTxHash, err)
	case errors.Is(err, types.ErrGasPriceCapReached), errors.Is(err, types.ErrRpcUnavailable):
		log.Verbosef("%s: cannot resend %s yet, err = %v", c.cfg.Chain, item.NerveTxHash, err)
		return nil
	case err != nil:
		return err
	}

	// The resender updated the record.
	updated, getErr := c.waiting.Get(key)
	if getErr != nil {
		return getErr
	}
	if updated == nil {
		return nil
	}

	updated.InvokedResendThisRound = true
	return c.waiting.Offer(key, updated)
}

func (w *WaitingCoordinator) discard(item *types.WaitingTx, reason string) error {
	log.Infof("%s: removing waiting tx %s, reason = %s", w.c.cfg.Chain, item.NerveTxHash, reason)
	return w.c.waiting.Remove(queueKey(item.NerveTxHash))
}
