package types

import "math/big"

type Header struct {
	Height     int64  `json:"height"`
	Hash       string `json:"hash"`
	ParentHash string `json:"parent_hash"`
	Time       int64  `json:"time"`
}

// Block is a chain-agnostic view of an external block.
type Block struct {
	Header
	Txs []*ChainTx
}

type TxInput struct {
	PrevHash  string
	PrevIndex uint32
	Address   string
	Value     int64
}

type TxOutput struct {
	Index   uint32
	Address string
	Value   int64
	// Data holds the pushed bytes of a null data (OP_RETURN) output.
	Data []byte
}

// ChainTx is a chain-agnostic view of an external transaction. Account-model chains fill the
// account fields, UTXO chains fill Inputs and Outputs.
type ChainTx struct {
	Hash        string
	BlockHeight int64
	BlockHash   string

	From     string
	To       string
	Value    *big.Int
	Input    []byte
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64

	Inputs  []*TxInput
	Outputs []*TxOutput
}

type Log struct {
	Address string
	Topics  []string
	Data    []byte
}

type Receipt struct {
	TxHash      string
	BlockHeight int64
	Status      bool
	Logs        []*Log
}

// CallRequest describes a contract call or, on UTXO chains, a raw transaction to dry-run.
type CallRequest struct {
	From     string
	To       string
	Value    *big.Int
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
	Raw      []byte
}

type SimulateResult struct {
	Success bool
	Reason  string
}
