package btc

import (
	"math"

	"github.com/btcsuite/btcd/wire"
)

const (
	// Outputs below this value are not relayed by bitcoind.
	DustLimit = int64(546)
	// Change is never split into more outputs than this.
	MaxSplitOutputs = 10

	// Version, locktime, input and output counts plus the segwit marker and flag.
	txOverheadVsize = 10.5
	// Outpoint, empty script sig and sequence.
	p2wshInputBase = 41.0
	// Value, script length and a 34 byte P2WSH script.
	p2wshOutputSize = 43.0
	// Push opcode, DER signature and sighash type.
	signatureSize = 73
)

// EstimateSize returns the virtual size in bytes of a transaction spending utxoCount m-of-n
// P2WSH outputs into outputCount P2WSH outputs and an optional null data output.
func EstimateSize(utxoCount, outputCount, opReturnLen, m, n int) int64 {
	redeemScriptLen := 3 + 34*n
	witness := wire.VarIntSerializeSize(uint64(m+2)) + 1 + m*signatureSize +
		wire.VarIntSerializeSize(uint64(redeemScriptLen)) + redeemScriptLen
	inputVsize := p2wshInputBase + float64(witness)/4

	size := txOverheadVsize + float64(utxoCount)*inputVsize + float64(outputCount)*p2wshOutputSize
	if opReturnLen > 0 {
		// Value, script length, OP_RETURN, push opcode and the data.
		script := 1 + wire.VarIntSerializeSize(uint64(opReturnLen)) + opReturnLen
		size += float64(8 + wire.VarIntSerializeSize(uint64(script)) + script)
	}

	return int64(math.Ceil(size))
}

// SplitOutputs splits change into outputs of at least granularity satoshi each so that later
// withdrawals can spend them independently. Change below the dust limit is left to the fee.
func SplitOutputs(change, granularity int64) []int64 {
	if change < DustLimit {
		return []int64{}
	}
	if granularity <= 0 || change < 2*granularity {
		return []int64{change}
	}

	count := change / granularity
	if count > MaxSplitOutputs {
		count = MaxSplitOutputs
		granularity = change / count
	}

	outputs := make([]int64, count)
	for i := int64(0); i < count-1; i++ {
		outputs[i] = granularity
	}
	outputs[count-1] = change - granularity*(count-1)

	return outputs
}
