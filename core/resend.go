package core

import (
	"context"
	"errors"
	"math/big"

	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/metrics"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

// Resender sends an outbound request again. A transaction of this node still waiting in the
// mempool is replaced with a higher fee, otherwise the request is built and sent from scratch.
type Resender struct {
	c *Chain
}

func (r *Resender) Resend(ctx context.Context, nerveTxHash string) (string, error) {
	c := r.c
	if !c.IsRpcAvailable() {
		return "", types.ErrRpcUnavailable
	}

	waiting, err := c.waiting.Get(queueKey(nerveTxHash))
	if err != nil {
		return "", err
	}
	if waiting != nil && waiting.ResendCount >= c.bridgeCfg.ResendLimit {
		return "", types.ErrResendLimit
	}

	sent, err := c.db.GetSentTx(c.cfg.Chain, nerveTxHash)
	if err != nil {
		return "", err
	}

	var hash, kind string
	pending := false
	if sent != nil {
		pending, err = r.isPending(ctx, sent)
		if err != nil {
			return "", err
		}
	}

	if pending {
		kind = "replace"
		hash, err = r.replace(ctx, sent, waiting)
	} else {
		if waiting == nil || waiting.Request == nil {
			return "", types.ErrNoWaitingRecord
		}
		kind = "fresh"
		hash, err = c.orchestrator.send(ctx, waiting.Request, waiting.CurrentBankOrder)
	}
	if err != nil {
		return "", err
	}

	if waiting != nil {
		waiting.ResendCount++
		waiting.Sent = true
		if err := c.waiting.Offer(queueKey(nerveTxHash), waiting); err != nil {
			return hash, err
		}
	}

	log.Infof("%s: resent %s (%s), new tx = %s", c.cfg.Chain, nerveTxHash, kind, hash)
	c.metrics.Inc(metrics.TxResent, c.cfg.Chain, kind)
	return hash, nil
}

// isPending returns true if the sent transaction is still in the mempool, or it left the mempool
// unmined and its nonce is still free.
func (r *Resender) isPending(ctx context.Context, sent *types.SentTxRecord) (bool, error) {
	c := r.c

	tx, err := c.adapter.TxByHash(ctx, sent.TxHash)
	if err != nil {
		return false, err
	}
	if tx != nil {
		// Still in the mempool. The pending nonce of the sender already counts it.
		return tx.BlockHeight == 0, nil
	}

	nonce, err := c.adapter.LatestNonce(ctx, sent.From)
	if errors.Is(err, types.ErrNotSupported) {
		// UTXO chains: a tx that left the mempool is built again from the current utxos.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return nonce <= sent.Nonce, nil
}

func (r *Resender) replace(ctx context.Context, sent *types.SentTxRecord, waiting *types.WaitingTx) (string, error) {
	c := r.c

	price, err := r.replacementPrice(ctx, sent, waiting)
	if err != nil {
		return "", err
	}

	out, err := c.family.BuildReplacement(ctx, sent, price)
	if err != nil {
		return "", err
	}

	result, err := c.adapter.Simulate(ctx, &types.CallRequest{
		From:     sent.From,
		To:       sent.To,
		Value:    sent.Value,
		Data:     sent.Payload,
		Gas:      sent.GasLimit,
		GasPrice: price,
		Raw:      out.Raw,
	})
	if err != nil {
		return "", err
	}

	if !result.Success {
		completed, err := c.family.IsCompleted(ctx, sent.NerveTxHash)
		if err != nil {
			return "", err
		}
		if completed {
			// The multisig already executed the request, only the nonce has to be freed.
			log.Infof("%s: %s already completed, clearing nonce %d", c.cfg.Chain, sent.NerveTxHash, sent.Nonce)
			out, err = c.family.BuildNonceClear(ctx, sent, price)
			if err != nil {
				return "", err
			}
		} else {
			log.Warnf("%s: replacement of %s fails in simulation: %s", c.cfg.Chain, sent.NerveTxHash, result.Reason)
		}
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

	return hash, r.c.orchestrator.track(out.Record, requestOf(waiting))
}

func (r *Resender) replacementPrice(ctx context.Context, sent *types.SentTxRecord, waiting *types.WaitingTx) (*big.Int, error) {
	c := r.c

	// A UTXO transaction is broadcast again as it is.
	if c.cfg.Family == config.FamilyBtc {
		return sent.GasPrice, nil
	}

	current, err := c.adapter.CurrentFeeRate(ctx)
	if err != nil {
		return nil, err
	}

	price, err := EscalateGasPrice(sent.GasPrice, current, big.NewInt(c.cfg.GasPriceStep))
	if err != nil {
		return nil, err
	}

	if sent.TxType != types.TxTypeWithdraw || waiting == nil || waiting.Request == nil {
		return price, nil
	}

	affordable, err := r.c.orchestrator.affordableGasPrice(waiting.Request.Withdraw, sent)
	if err != nil {
		return nil, err
	}
	if affordable.Cmp(price) < 0 {
		price = affordable
	}
	if price.Cmp(sent.GasPrice) <= 0 {
		return nil, types.ErrGasPriceCapReached
	}

	return price, nil
}
