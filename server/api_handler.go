package server

import (
	"context"

	"github.com/sisu-network/hbridge/core"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

// ApiHandler is the rpc api the home chain node calls. Every method takes the chain the request
// is for.
type ApiHandler struct {
	processor *core.Processor
}

func NewApi(processor *core.Processor) *ApiHandler {
	return &ApiHandler{
		processor: processor,
	}
}

// Empty function for checking health only.
func (api *ApiHandler) CheckHealth() {
}

// RpcAvailable returns false when the chain height stopped increasing.
func (api *ApiHandler) RpcAvailable(chain string) (bool, error) {
	c, err := api.processor.GetChain(chain)
	if err != nil {
		return false, err
	}

	return c.IsRpcAvailable(), nil
}

func (api *ApiHandler) CreateOrSignWithdraw(ctx context.Context, chain string, req *types.WithdrawRequest, checkOrder bool) (string, error) {
	c, err := api.processor.GetChain(chain)
	if err != nil {
		return "", err
	}

	log.Verbose("Received withdrawal ", req.NerveTxHash, " for chain ", chain)
	return c.Orchestrator().CreateOrSignWithdraw(ctx, req, checkOrder)
}

func (api *ApiHandler) CreateOrSignManagerChange(ctx context.Context, chain string, req *types.ChangeRequest, checkOrder bool) (string, error) {
	c, err := api.processor.GetChain(chain)
	if err != nil {
		return "", err
	}

	log.Verbose("Received manager change ", req.NerveTxHash, " for chain ", chain)
	return c.Orchestrator().CreateOrSignManagerChange(ctx, req, checkOrder)
}

func (api *ApiHandler) CreateOrSignUpgrade(ctx context.Context, chain string, req *types.UpgradeRequest, checkOrder bool) (string, error) {
	c, err := api.processor.GetChain(chain)
	if err != nil {
		return "", err
	}

	log.Verbose("Received upgrade ", req.NerveTxHash, " for chain ", chain)
	return c.Orchestrator().CreateOrSignUpgrade(ctx, req, checkOrder)
}

// SignalRecovery drops the pending manager changes of the chain.
func (api *ApiHandler) SignalRecovery(chain string, nerveTxHash string) error {
	c, err := api.processor.GetChain(chain)
	if err != nil {
		return err
	}

	return c.SignalRecovery(nerveTxHash)
}

func (api *ApiHandler) UnconfirmedTxs(chain string) ([]*types.UnconfirmedTx, error) {
	c, err := api.processor.GetChain(chain)
	if err != nil {
		return nil, err
	}

	return c.UnconfirmedTxs()
}

func (api *ApiHandler) WaitingTxs(chain string) ([]*types.WaitingTx, error) {
	c, err := api.processor.GetChain(chain)
	if err != nil {
		return nil, err
	}

	return c.WaitingTxs()
}
