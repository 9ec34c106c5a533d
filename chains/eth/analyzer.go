package eth

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

var completionEvents = map[string]string{
	MethodCreateOrSignWithdraw:      EventTxWithdrawCompleted,
	MethodCreateOrSignManagerChange: EventTxManagerChangeCompleted,
	MethodCreateOrSignUpgrade:       EventTxUpgradeCompleted,
}

var broadcastTypes = map[string]types.TxType{
	MethodCreateOrSignWithdraw:      types.TxTypeWithdraw,
	MethodCreateOrSignManagerChange: types.TxTypeChange,
	MethodCreateOrSignUpgrade:       types.TxTypeUpgrade,
}

// Analyze returns the deposits, fee recharges and multisig executions found in the block. An
// error means the block must be analyzed again.
func (f *Family) Analyze(ctx context.Context, block *types.Block) ([]*types.UnconfirmedTx, error) {
	ret := make([]*types.UnconfirmedTx, 0)
	for _, tx := range block.Txs {
		if tx.To == "" || !f.isMultisig(tx.To) {
			continue
		}

		utx, err := f.analyzeTx(ctx, tx)
		if err != nil {
			return nil, err
		}
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

func (f *Family) analyzeTx(ctx context.Context, tx *types.ChainTx) (*types.UnconfirmedTx, error) {
	// A native transfer carrying a home chain hash pays an extra fee for that withdrawal.
	if len(tx.Input) == 32 && tx.Value != nil && tx.Value.Sign() > 0 {
		return f.analyzeFeeRecharge(ctx, tx)
	}

	if len(tx.Input) < 4 {
		return nil, nil
	}

	method, err := MultisigAbi.MethodById(tx.Input[:4])
	if err != nil {
		return nil, nil
	}

	args, err := method.Inputs.Unpack(tx.Input[4:])
	if err != nil {
		log.Warnf("Cannot unpack %s of tx %s on chain %s, err = %v", method.Name, tx.Hash, f.cfg.Chain, err)
		return nil, nil
	}

	receipt, err := f.adapter.Receipt(ctx, tx.Hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fmt.Errorf("receipt of tx %s not found on chain %s", tx.Hash, f.cfg.Chain)
	}

	if method.Name == MethodCrossOut {
		if !receipt.Status {
			return nil, nil
		}
		return f.analyzeCrossOut(ctx, tx, args)
	}

	txType, ok := broadcastTypes[method.Name]
	if !ok {
		return nil, nil
	}

	utx := &types.UnconfirmedTx{
		TxHash:      tx.Hash,
		NerveTxHash: args[0].(string),
		TxType:      txType,
		From:        tx.From,
	}

	switch {
	case !receipt.Status:
		utx.Status = types.TxStatusFailed
	case hasEvent(receipt, completionEvents[method.Name]):
		utx.Status = types.TxStatusCompleted
	default:
		// Only a signature was added, the multisig has not executed the request yet.
		return nil, nil
	}

	if txType == types.TxTypeUpgrade {
		utx.To = strings.ToLower(args[1].(common.Address).Hex())
	}

	return utx, nil
}

func (f *Family) analyzeCrossOut(ctx context.Context, tx *types.ChainTx, args []interface{}) (*types.UnconfirmedTx, error) {
	to := args[0].(string)
	erc20 := args[2].(common.Address)

	utx := &types.UnconfirmedTx{
		TxHash: tx.Hash,
		TxType: types.TxTypeDeposit,
		From:   tx.From,
		To:     to,
	}

	if erc20 == (common.Address{}) {
		utx.Amount = tx.Value
		utx.Decimals = f.cfg.NativeDecimals
		return utx, nil
	}

	decimals, err := f.tokenDecimals(ctx, erc20.Hex())
	if err != nil {
		return nil, err
	}

	utx.Amount = args[1].(*big.Int)
	utx.Decimals = decimals
	utx.IsContractAsset = true
	utx.ContractAddress = strings.ToLower(erc20.Hex())

	return utx, nil
}

func (f *Family) analyzeFeeRecharge(ctx context.Context, tx *types.ChainTx) (*types.UnconfirmedTx, error) {
	receipt, err := f.adapter.Receipt(ctx, tx.Hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil || !receipt.Status {
		return nil, nil
	}

	return &types.UnconfirmedTx{
		TxHash:      tx.Hash,
		NerveTxHash: hex.EncodeToString(tx.Input),
		TxType:      types.TxTypeFeeRecharge,
		From:        tx.From,
		Amount:      tx.Value,
		Decimals:    f.cfg.NativeDecimals,
	}, nil
}

func hasEvent(receipt *types.Receipt, name string) bool {
	event, ok := MultisigAbi.Events[name]
	if !ok {
		return false
	}

	id := event.ID.Hex()
	for _, l := range receipt.Logs {
		if len(l.Topics) > 0 && strings.EqualFold(l.Topics[0], id) {
			return true
		}
	}

	return false
}
