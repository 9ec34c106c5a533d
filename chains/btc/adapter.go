package btc

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

const (
	// Number of blocks estimatesmartfee aims at.
	FeeTarget = 3
	// Fee rate in sat/vbyte used when the node cannot estimate one.
	DefaultFeeRate = 20
)

// Adapter implements chains.Adapter on top of bitcoind.
type Adapter struct {
	cfg    config.Chain
	client Client
}

func NewAdapter(cfg config.Chain, client Client) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: client,
	}
}

func (a *Adapter) Chain() string {
	return a.cfg.Chain
}

func (a *Adapter) Height(ctx context.Context) (int64, error) {
	return a.client.BlockCount(ctx)
}

func (a *Adapter) HeaderAt(ctx context.Context, height int64) (*types.Header, error) {
	hash, err := a.client.BlockHash(ctx, height)
	if err != nil {
		return nil, err
	}

	header, err := a.client.BlockHeader(ctx, hash)
	if err != nil {
		return nil, err
	}

	return convertHeader(header), nil
}

func (a *Adapter) BlockAt(ctx context.Context, height int64) (*types.Block, error) {
	hash, err := a.client.BlockHash(ctx, height)
	if err != nil {
		return nil, err
	}

	block, err := a.client.Block(ctx, hash)
	if err != nil {
		return nil, err
	}

	ret := &types.Block{
		Header: *convertHeader(&block.BlockHeader),
		Txs:    make([]*types.ChainTx, 0, len(block.Tx)),
	}
	for i := range block.Tx {
		tx := convertTx(&block.Tx[i])
		tx.BlockHeight = block.Height
		tx.BlockHash = block.Hash
		ret.Txs = append(ret.Txs, tx)
	}

	return ret, nil
}

func (a *Adapter) TxByHash(ctx context.Context, hash string) (*types.ChainTx, error) {
	raw, err := a.client.RawTransaction(ctx, hash)
	if err != nil || raw == nil {
		return nil, err
	}

	tx := convertTx(raw)
	if raw.BlockHash != "" {
		header, err := a.client.BlockHeader(ctx, raw.BlockHash)
		if err != nil {
			return nil, err
		}
		tx.BlockHeight = header.Height
		tx.BlockHash = header.Hash
	}

	return tx, nil
}

// Receipt synthesizes a receipt for a mined transaction. Every null data output becomes a log
// so that callers can check what the transaction carried.
func (a *Adapter) Receipt(ctx context.Context, hash string) (*types.Receipt, error) {
	tx, err := a.TxByHash(ctx, hash)
	if err != nil || tx == nil || tx.BlockHeight == 0 {
		return nil, err
	}

	receipt := &types.Receipt{
		TxHash:      tx.Hash,
		BlockHeight: tx.BlockHeight,
		Status:      true,
		Logs:        make([]*types.Log, 0),
	}
	for _, out := range tx.Outputs {
		if out.Data != nil {
			receipt.Logs = append(receipt.Logs, &types.Log{Data: out.Data})
		}
	}

	return receipt, nil
}

// CurrentFeeRate returns the fee rate in sat/vbyte.
func (a *Adapter) CurrentFeeRate(ctx context.Context) (*big.Int, error) {
	fee, err := a.client.EstimateSmartFee(ctx, FeeTarget)
	if err != nil {
		return nil, err
	}

	if fee == nil || fee.FeeRate <= 0 {
		log.Warnf("%s: cannot estimate fee rate, using default %d", a.cfg.Chain, DefaultFeeRate)
		return big.NewInt(DefaultFeeRate), nil
	}

	// feerate is in BTC per kvB.
	perKvB, err := btcutil.NewAmount(fee.FeeRate)
	if err != nil {
		return nil, err
	}
	satPerByte := (int64(perKvB) + 999) / 1000
	if satPerByte < 1 {
		satPerByte = 1
	}

	return big.NewInt(satPerByte), nil
}

func (a *Adapter) CallView(ctx context.Context, contract string, data []byte) ([]byte, error) {
	return nil, types.ErrNotSupported
}

// Simulate checks the raw transaction against the mempool policy of the node.
func (a *Adapter) Simulate(ctx context.Context, req *types.CallRequest) (*types.SimulateResult, error) {
	if len(req.Raw) == 0 {
		return nil, fmt.Errorf("no raw transaction to simulate")
	}

	result, err := a.client.TestMempoolAccept(ctx, req.Raw)
	if err != nil {
		return nil, err
	}

	return &types.SimulateResult{Success: result.Allowed, Reason: result.RejectReason}, nil
}

func (a *Adapter) LatestNonce(ctx context.Context, addr string) (uint64, error) {
	return 0, types.ErrNotSupported
}

func (a *Adapter) Broadcast(ctx context.Context, raw []byte) (string, error) {
	msg := wire.NewMsgTx(wire.TxVersion)
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", err
	}
	hash := msg.TxHash().String()

	txid, err := a.client.SendRawTransaction(ctx, raw)
	if err != nil {
		if isAlreadyBroadcast(err) {
			log.Infof("%s: tx %s has already been broadcast", a.cfg.Chain, hash)
			return hash, nil
		}

		log.Errorf("%s: failed to broadcast tx %s, err = %v", a.cfg.Chain, hash, err)
		return "", err
	}

	return txid, nil
}

// UnspentOf returns the confirmed outputs owned by the address.
func (a *Adapter) UnspentOf(ctx context.Context, address string) ([]*Utxo, error) {
	unspents, err := a.client.ListUnspent(ctx, address)
	if err != nil {
		return nil, err
	}

	utxos := make([]*Utxo, 0, len(unspents))
	for _, u := range unspents {
		amount, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, err
		}
		utxos = append(utxos, &Utxo{
			TxHash: u.Txid,
			Index:  u.Vout,
			Value:  int64(amount),
		})
	}

	return utxos, nil
}

func convertHeader(header *BlockHeader) *types.Header {
	return &types.Header{
		Height:     header.Height,
		Hash:       header.Hash,
		ParentHash: header.PreviousBlockHash,
		Time:       header.Time,
	}
}

func convertTx(raw *RawTx) *types.ChainTx {
	tx := &types.ChainTx{
		Hash:    raw.Txid,
		Value:   big.NewInt(0),
		Inputs:  make([]*types.TxInput, 0, len(raw.Vin)),
		Outputs: make([]*types.TxOutput, 0, len(raw.Vout)),
	}

	for _, vin := range raw.Vin {
		if vin.Coinbase != "" {
			continue
		}

		input := &types.TxInput{PrevHash: vin.Txid, PrevIndex: vin.Vout}
		if vin.Prevout != nil {
			input.Address = vin.Prevout.ScriptPubKey.Address
			if amount, err := btcutil.NewAmount(vin.Prevout.Value); err == nil {
				input.Value = int64(amount)
			}
		}
		tx.Inputs = append(tx.Inputs, input)
	}

	for _, vout := range raw.Vout {
		output := &types.TxOutput{
			Index:   vout.N,
			Address: vout.ScriptPubKey.Address,
		}
		if amount, err := btcutil.NewAmount(vout.Value); err == nil {
			output.Value = int64(amount)
		}
		if vout.ScriptPubKey.Type == "nulldata" {
			output.Data = nullData(vout.ScriptPubKey.Hex)
		}
		tx.Outputs = append(tx.Outputs, output)
	}

	return tx
}

// nullData returns the bytes pushed by an OP_RETURN script.
func nullData(scriptHex string) []byte {
	script, err := hex.DecodeString(scriptHex)
	if err != nil {
		return nil
	}

	pushes, err := txscript.PushedData(script)
	if err != nil {
		return nil
	}

	data := make([]byte, 0)
	for _, push := range pushes {
		data = append(data, push...)
	}

	return data
}
