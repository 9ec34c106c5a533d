package eth

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/hbridge/utils"
	"github.com/sisu-network/lib/log"
)

type BlockHeightExceededError struct {
	ChainHeight uint64
}

func NewBlockHeightExceededError(chainHeight uint64) error {
	return &BlockHeightExceededError{
		ChainHeight: chainHeight,
	}
}

func (e *BlockHeightExceededError) Error() string {
	return fmt.Sprintf("Our block height is higher than chain's height. Chain height = %d", e.ChainHeight)
}

// Adapter implements chains.Adapter for evm chains.
type Adapter struct {
	cfg    config.Chain
	client EthClient
	signer ethtypes.Signer
	gasCal *gasCalculator
}

func NewAdapter(cfg config.Chain, client EthClient) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: client,
		signer: utils.GetEthChainSigner(cfg.ChainId),
		gasCal: newGasCalculator(cfg.Chain, client, GasPriceUpdateInterval),
	}
}

func (a *Adapter) Chain() string {
	return a.cfg.Chain
}

func (a *Adapter) Height(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, RpcTimeOut)
	defer cancel()

	number, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	return int64(number), nil
}

func (a *Adapter) BlockAt(ctx context.Context, height int64) (*types.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, RpcTimeOut)
	defer cancel()

	block, err := a.client.BlockByNumber(ctx, big.NewInt(height))
	if err == ethereum.NotFound {
		number, numErr := a.client.BlockNumber(ctx)
		if numErr == nil && number < uint64(height) {
			return nil, NewBlockHeightExceededError(number)
		}
	}
	if err != nil {
		return nil, err
	}

	ret := &types.Block{
		Header: *toHeader(block.Header()),
		Txs:    make([]*types.ChainTx, 0, len(block.Transactions())),
	}
	for _, tx := range block.Transactions() {
		chainTx := a.toChainTx(tx)
		chainTx.BlockHeight = height
		chainTx.BlockHash = ret.Hash
		ret.Txs = append(ret.Txs, chainTx)
	}

	return ret, nil
}

func (a *Adapter) HeaderAt(ctx context.Context, height int64) (*types.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, RpcTimeOut)
	defer cancel()

	header, err := a.client.HeaderByNumber(ctx, big.NewInt(height))
	if err != nil {
		return nil, err
	}

	return toHeader(header), nil
}

func (a *Adapter) TxByHash(ctx context.Context, hash string) (*types.ChainTx, error) {
	ctx, cancel := context.WithTimeout(ctx, RpcTimeOut)
	defer cancel()

	tx, isPending, err := a.client.TransactionByHash(ctx, common.HexToHash(hash))
	if err == ethereum.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	chainTx := a.toChainTx(tx)
	if isPending {
		return chainTx, nil
	}

	receipt, err := a.client.TransactionReceipt(ctx, tx.Hash())
	if err != nil && err != ethereum.NotFound {
		return nil, err
	}
	if receipt != nil && receipt.BlockNumber != nil {
		chainTx.BlockHeight = receipt.BlockNumber.Int64()
		chainTx.BlockHash = receipt.BlockHash.Hex()
	}

	return chainTx, nil
}

func (a *Adapter) Receipt(ctx context.Context, hash string) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, RpcTimeOut)
	defer cancel()

	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if err == ethereum.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ret := &types.Receipt{
		TxHash: receipt.TxHash.Hex(),
		Status: receipt.Status == ethtypes.ReceiptStatusSuccessful,
		Logs:   make([]*types.Log, 0, len(receipt.Logs)),
	}
	if receipt.BlockNumber != nil {
		ret.BlockHeight = receipt.BlockNumber.Int64()
	}
	for _, l := range receipt.Logs {
		topics := make([]string, 0, len(l.Topics))
		for _, topic := range l.Topics {
			topics = append(topics, topic.Hex())
		}
		ret.Logs = append(ret.Logs, &types.Log{
			Address: strings.ToLower(l.Address.Hex()),
			Topics:  topics,
			Data:    l.Data,
		})
	}

	return ret, nil
}

func (a *Adapter) CurrentFeeRate(ctx context.Context) (*big.Int, error) {
	return a.gasCal.GetGasPrice(ctx)
}

func (a *Adapter) CallView(ctx context.Context, contract string, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, RpcTimeOut)
	defer cancel()

	to := common.HexToAddress(contract)
	return a.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (a *Adapter) Simulate(ctx context.Context, req *types.CallRequest) (*types.SimulateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, RpcTimeOut)
	defer cancel()

	to := common.HexToAddress(req.To)
	msg := ethereum.CallMsg{
		From:     common.HexToAddress(req.From),
		To:       &to,
		Gas:      req.Gas,
		GasPrice: req.GasPrice,
		Value:    req.Value,
		Data:     req.Data,
	}

	if _, err := a.client.CallContract(ctx, msg, nil); err != nil {
		if _, ok := err.(*NoHealthyClientErr); ok {
			return nil, err
		}

		// A revert comes back as an rpc error.
		return &types.SimulateResult{Success: false, Reason: err.Error()}, nil
	}

	return &types.SimulateResult{Success: true}, nil
}

func (a *Adapter) LatestNonce(ctx context.Context, addr string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, RpcTimeOut)
	defer cancel()

	return a.client.PendingNonceAt(ctx, common.HexToAddress(addr))
}

func (a *Adapter) Broadcast(ctx context.Context, raw []byte) (string, error) {
	tx := &ethtypes.Transaction{}
	if err := tx.UnmarshalBinary(raw); err != nil {
		log.Error("Failed to unmarshal ETH transaction, err = ", err)
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, RpcTimeOut)
	defer cancel()

	err := a.client.SendTransaction(ctx, tx)
	if err != nil && strings.Contains(err.Error(), "already known") {
		// Another node or an earlier cycle has submitted the same transaction. Ethereum does not
		// return error code in its JSON RPC, so we have to rely on string matching.
		log.Verbosef("Tx %s is already known on chain %s", tx.Hash().Hex(), a.cfg.Chain)
		err = nil
	}
	if err != nil {
		return "", err
	}

	return tx.Hash().Hex(), nil
}

func (a *Adapter) CheckRpcs(ctx context.Context) bool {
	return a.client.CheckRpcs(ctx)
}

func (a *Adapter) toChainTx(tx *ethtypes.Transaction) *types.ChainTx {
	ret := &types.ChainTx{
		Hash:     tx.Hash().Hex(),
		Value:    tx.Value(),
		Input:    tx.Data(),
		Nonce:    tx.Nonce(),
		GasPrice: tx.GasPrice(),
		Gas:      tx.Gas(),
	}

	if tx.To() != nil {
		ret.To = strings.ToLower(tx.To().Hex())
	}

	from, err := ethtypes.Sender(a.signer, tx)
	if err != nil {
		log.Verbosef("Cannot get sender of tx %s on chain %s, err = %v", tx.Hash().Hex(), a.cfg.Chain, err)
	} else {
		ret.From = strings.ToLower(from.Hex())
	}

	return ret
}

func toHeader(header *ethtypes.Header) *types.Header {
	return &types.Header{
		Height:     header.Number.Int64(),
		Hash:       header.Hash().Hex(),
		ParentHash: header.ParentHash.Hex(),
		Time:       int64(header.Time),
	}
}
