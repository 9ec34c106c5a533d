package chains

import (
	"context"
	"math/big"

	"github.com/sisu-network/hbridge/types"
)

// Adapter gives uniform access to one external chain. Lookups of a missing transaction or receipt
// return nil without an error.
type Adapter interface {
	Chain() string

	Height(ctx context.Context) (int64, error)
	BlockAt(ctx context.Context, height int64) (*types.Block, error)
	HeaderAt(ctx context.Context, height int64) (*types.Header, error)
	TxByHash(ctx context.Context, hash string) (*types.ChainTx, error)
	Receipt(ctx context.Context, hash string) (*types.Receipt, error)

	// CurrentFeeRate is the gas price in wei on account chains and sat/vbyte on UTXO chains.
	CurrentFeeRate(ctx context.Context) (*big.Int, error)
	CallView(ctx context.Context, contract string, data []byte) ([]byte, error)
	Simulate(ctx context.Context, req *types.CallRequest) (*types.SimulateResult, error)
	LatestNonce(ctx context.Context, addr string) (uint64, error)
	Broadcast(ctx context.Context, raw []byte) (string, error)
}

// RpcSwapper is implemented by adapters that can switch to another rpc endpoint when the current
// one stops making progress.
type RpcSwapper interface {
	CheckRpcs(ctx context.Context) bool
}

// Family holds the chain family specific parts of the bridge: how transactions of the multisig
// are recognized and how outbound multisig transactions are built.
type Family interface {
	NativeDecimals() int

	// Analyze returns the bridge transactions found in the block.
	Analyze(ctx context.Context, block *types.Block) ([]*types.UnconfirmedTx, error)

	// Validate checks the business rules of an outbound request against the chain state.
	Validate(ctx context.Context, req *types.Request) error

	// EstimateWithdrawCost returns the cost of the withdrawal in the native asset at the fee rate.
	EstimateWithdrawCost(ctx context.Context, req *types.WithdrawRequest, feeRate *big.Int) (*big.Int, error)

	// Build creates and signs the outbound transaction for the request.
	Build(ctx context.Context, req *types.Request, feeRate *big.Int) (*types.OutboundTx, error)

	// IsCompleted returns true if the multisig has already executed the home chain request.
	IsCompleted(ctx context.Context, nerveTxHash string) (bool, error)

	// BuildReplacement rebuilds a sent transaction with the same nonce and a new fee rate.
	BuildReplacement(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error)

	// BuildNonceClear builds a zero value self transfer that consumes the nonce of a stuck
	// transaction.
	BuildNonceClear(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error)

	MultisigAddress() string

	// UpdateMultisig sets the current multisig address and the addresses used before upgrades.
	// Deposits to any of them are accepted.
	UpdateMultisig(current string, history []string)
}
