package eth

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/golang/groupcache/lru"
	"github.com/sisu-network/hbridge/chains"
	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

const (
	DecimalsCacheSize = 1_000
	NonceClearGas     = uint64(21_000)
)

// Family implements chains.Family for evm chains running the multisig contract.
type Family struct {
	cfg     config.Chain
	adapter chains.Adapter
	signer  *KeySigner

	lock          *sync.RWMutex
	multisig      string
	history       map[string]bool
	decimalsCache *lru.Cache
}

func NewFamily(cfg config.Chain, adapter chains.Adapter, signer *KeySigner) *Family {
	multisig := strings.ToLower(cfg.MultisigAddress)
	return &Family{
		cfg:           cfg,
		adapter:       adapter,
		signer:        signer,
		lock:          &sync.RWMutex{},
		multisig:      multisig,
		history:       map[string]bool{multisig: true},
		decimalsCache: lru.New(DecimalsCacheSize),
	}
}

func (f *Family) NativeDecimals() int {
	return f.cfg.NativeDecimals
}

func (f *Family) MultisigAddress() string {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return f.multisig
}

func (f *Family) UpdateMultisig(current string, history []string) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.multisig = strings.ToLower(current)
	f.history[f.multisig] = true
	for _, addr := range history {
		f.history[strings.ToLower(addr)] = true
	}
}

func (f *Family) isMultisig(addr string) bool {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return f.history[strings.ToLower(addr)]
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
		return f.validateWithdraw(ctx, req.Withdraw)

	case types.TxTypeChange:
		for _, add := range req.Change.Adds {
			isManager, err := f.ifManager(ctx, add)
			if err != nil {
				return err
			}
			if isManager {
				return fmt.Errorf("%w: %s", types.ErrDuplicateManager, add)
			}
		}
		for _, remove := range req.Change.Removes {
			isManager, err := f.ifManager(ctx, remove)
			if err != nil {
				return err
			}
			if !isManager {
				return fmt.Errorf("%w: %s", types.ErrManagerNotFound, remove)
			}
		}

	case types.TxTypeUpgrade:
		if !common.IsHexAddress(req.Upgrade.UpgradeContract) {
			return fmt.Errorf("invalid upgrade contract %s", req.Upgrade.UpgradeContract)
		}

	default:
		return types.ErrNotSupported
	}

	return nil
}

func (f *Family) validateWithdraw(ctx context.Context, req *types.WithdrawRequest) error {
	if !common.IsHexAddress(req.To) {
		return fmt.Errorf("invalid recipient %s", req.To)
	}

	if !req.IsContractAsset {
		return nil
	}

	decimals, err := f.tokenDecimals(ctx, req.ContractAddress)
	if err != nil {
		log.Warnf("Cannot get decimals of %s on chain %s, err = %v", req.ContractAddress, f.cfg.Chain, err)
		return fmt.Errorf("%w: %s", types.ErrAssetNotBound, req.ContractAddress)
	}
	if decimals != req.Decimals {
		return fmt.Errorf("%w: decimals of %s is %d, request has %d", types.ErrAssetNotBound,
			req.ContractAddress, decimals, req.Decimals)
	}

	balance, err := f.tokenBalance(ctx, req.ContractAddress, f.MultisigAddress())
	if err != nil {
		return err
	}
	if balance.Cmp(req.Amount) < 0 {
		return fmt.Errorf("%w: balance = %s, amount = %s", types.ErrInsufficientBalance, balance, req.Amount)
	}

	return nil
}

func (f *Family) EstimateWithdrawCost(ctx context.Context, req *types.WithdrawRequest, feeRate *big.Int) (*big.Int, error) {
	gasLimit := f.cfg.GasLimitWithdraw
	if req.IsContractAsset {
		gasLimit = f.cfg.GasLimitErc20Withdraw
	}

	return new(big.Int).Mul(feeRate, new(big.Int).SetUint64(gasLimit)), nil
}

func (f *Family) Build(ctx context.Context, req *types.Request, feeRate *big.Int) (*types.OutboundTx, error) {
	if f.signer == nil {
		return nil, fmt.Errorf("chain %s has no signer key", f.cfg.Chain)
	}

	data, gasLimit, err := f.pack(req)
	if err != nil {
		return nil, err
	}

	nonce, err := f.adapter.LatestNonce(ctx, f.signer.Address())
	if err != nil {
		return nil, err
	}

	return f.sign(&types.SentTxRecord{
		NerveTxHash: req.NerveTxHash(),
		TxType:      req.Type,
		Nonce:       nonce,
		GasPrice:    feeRate,
		GasLimit:    gasLimit,
		From:        f.signer.Address(),
		To:          f.MultisigAddress(),
		Value:       big.NewInt(0),
		Payload:     data,
	})
}

func (f *Family) BuildReplacement(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error) {
	if f.signer == nil {
		return nil, fmt.Errorf("chain %s has no signer key", f.cfg.Chain)
	}

	record := *sent
	record.GasPrice = feeRate
	return f.sign(&record)
}

func (f *Family) BuildNonceClear(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error) {
	if f.signer == nil {
		return nil, fmt.Errorf("chain %s has no signer key", f.cfg.Chain)
	}

	return f.sign(&types.SentTxRecord{
		NerveTxHash: sent.NerveTxHash,
		TxType:      sent.TxType,
		Nonce:       sent.Nonce,
		GasPrice:    feeRate,
		GasLimit:    NonceClearGas,
		From:        sent.From,
		To:          sent.From,
		Value:       big.NewInt(0),
	})
}

func (f *Family) sign(record *types.SentTxRecord) (*types.OutboundTx, error) {
	to := common.HexToAddress(record.To)
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    record.Nonce,
		GasPrice: record.GasPrice,
		Gas:      record.GasLimit,
		To:       &to,
		Value:    record.Value,
		Data:     record.Payload,
	})

	signed, err := f.signer.SignTx(tx, f.cfg.ChainId)
	if err != nil {
		return nil, err
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, err
	}

	record.TxHash = signed.Hash().Hex()
	record.CreatedAt = time.Now()

	return &types.OutboundTx{
		Raw:    raw,
		Hash:   record.TxHash,
		Record: record,
	}, nil
}

func (f *Family) pack(req *types.Request) ([]byte, uint64, error) {
	signatures := joinSignatures(req.Signatures())

	switch req.Type {
	case types.TxTypeWithdraw:
		w := req.Withdraw
		gasLimit := f.cfg.GasLimitWithdraw
		erc20 := common.Address{}
		if w.IsContractAsset {
			gasLimit = f.cfg.GasLimitErc20Withdraw
			erc20 = common.HexToAddress(w.ContractAddress)
		}

		data, err := MultisigAbi.Pack(MethodCreateOrSignWithdraw, w.NerveTxHash, common.HexToAddress(w.To),
			w.Amount, w.IsContractAsset, erc20, signatures)
		return data, gasLimit, err

	case types.TxTypeChange:
		c := req.Change
		data, err := MultisigAbi.Pack(MethodCreateOrSignManagerChange, c.NerveTxHash, toAddresses(c.Adds),
			toAddresses(c.Removes), uint8(c.OrgCount), signatures)
		return data, f.cfg.GasLimitChange, err

	case types.TxTypeUpgrade:
		u := req.Upgrade
		data, err := MultisigAbi.Pack(MethodCreateOrSignUpgrade, u.NerveTxHash,
			common.HexToAddress(u.UpgradeContract), signatures)
		return data, f.cfg.GasLimitUpgrade, err
	}

	return nil, 0, types.ErrNotSupported
}

func (f *Family) IsCompleted(ctx context.Context, nerveTxHash string) (bool, error) {
	data, err := MultisigAbi.Pack(MethodIsCompletedTx, nerveTxHash)
	if err != nil {
		return false, err
	}

	out, err := f.adapter.CallView(ctx, f.MultisigAddress(), data)
	if err != nil {
		return false, err
	}

	return unpackBool(MethodIsCompletedTx, out)
}

func (f *Family) ifManager(ctx context.Context, addr string) (bool, error) {
	data, err := MultisigAbi.Pack(MethodIfManager, common.HexToAddress(addr))
	if err != nil {
		return false, err
	}

	out, err := f.adapter.CallView(ctx, f.MultisigAddress(), data)
	if err != nil {
		return false, err
	}

	return unpackBool(MethodIfManager, out)
}

func (f *Family) tokenDecimals(ctx context.Context, contract string) (int, error) {
	key := strings.ToLower(contract)

	// lru.Cache is not safe for concurrent use.
	f.lock.Lock()
	cached, ok := f.decimalsCache.Get(key)
	f.lock.Unlock()
	if ok {
		return cached.(int), nil
	}

	data, err := Erc20Abi.Pack(MethodDecimals)
	if err != nil {
		return 0, err
	}

	out, err := f.adapter.CallView(ctx, contract, data)
	if err != nil {
		return 0, err
	}

	values, err := Erc20Abi.Unpack(MethodDecimals, out)
	if err != nil || len(values) == 0 {
		return 0, fmt.Errorf("cannot unpack decimals of %s, err = %v", contract, err)
	}
	decimals := int(values[0].(uint8))

	f.lock.Lock()
	f.decimalsCache.Add(key, decimals)
	f.lock.Unlock()

	return decimals, nil
}

func (f *Family) tokenBalance(ctx context.Context, contract, owner string) (*big.Int, error) {
	data, err := Erc20Abi.Pack(MethodBalanceOf, common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}

	out, err := f.adapter.CallView(ctx, contract, data)
	if err != nil {
		return nil, err
	}

	values, err := Erc20Abi.Unpack(MethodBalanceOf, out)
	if err != nil || len(values) == 0 {
		return nil, fmt.Errorf("cannot unpack balance of %s, err = %v", contract, err)
	}

	return values[0].(*big.Int), nil
}

func unpackBool(method string, out []byte) (bool, error) {
	values, err := MultisigAbi.Unpack(method, out)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, fmt.Errorf("empty output of %s", method)
	}

	return values[0].(bool), nil
}

func joinSignatures(sigs []types.Signature) []byte {
	ret := make([]byte, 0, len(sigs)*65)
	for _, sig := range sigs {
		for _, data := range sig.Data {
			ret = append(ret, data...)
		}
	}

	return ret
}

func toAddresses(addrs []string) []common.Address {
	ret := make([]common.Address, 0, len(addrs))
	for _, addr := range addrs {
		ret = append(ret, common.HexToAddress(addr))
	}

	return ret
}
