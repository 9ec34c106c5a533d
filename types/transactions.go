package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

type TxType int

const (
	TxTypeDeposit TxType = iota
	TxTypeWithdraw
	TxTypeChange
	TxTypeUpgrade
	TxTypeRecovery
	TxTypeFeeRecharge
)

func (t TxType) String() string {
	switch t {
	case TxTypeDeposit:
		return "DEPOSIT"
	case TxTypeWithdraw:
		return "WITHDRAW"
	case TxTypeChange:
		return "CHANGE"
	case TxTypeUpgrade:
		return "UPGRADE"
	case TxTypeRecovery:
		return "RECOVERY"
	case TxTypeFeeRecharge:
		return "FEE_RECHARGE"
	}

	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// IsBroadcast returns true for transactions that bank members broadcast to the external chain.
func (t TxType) IsBroadcast() bool {
	return t == TxTypeWithdraw || t == TxTypeChange || t == TxTypeUpgrade
}

// IsDepositLike returns true for inbound transactions sent by users to the multisig.
func (t TxType) IsDepositLike() bool {
	return t == TxTypeDeposit || t == TxTypeFeeRecharge
}

type TxStatus int

const (
	TxStatusInitial TxStatus = iota
	TxStatusCompleted
	TxStatusFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusInitial:
		return "INITIAL"
	case TxStatusCompleted:
		return "COMPLETED"
	case TxStatusFailed:
		return "FAILED"
	}

	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// UnconfirmedTx is an external chain transaction that has not been reported to the home chain
// yet (or has been reported but is still inside the rollback window).
type UnconfirmedTx struct {
	TxHash      string    `json:"tx_hash"`
	NerveTxHash string    `json:"nerve_tx_hash,omitempty"`
	TxType      TxType    `json:"tx_type"`
	BlockHeight int64     `json:"block_height,omitempty"`
	BlockTime   int64     `json:"block_time,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Status      TxStatus  `json:"status"`

	Validated             bool `json:"validated,omitempty"`
	SkipRounds            int  `json:"skip_rounds,omitempty"`
	DepositErrorCount     int  `json:"deposit_error_count,omitempty"`
	BlockHeightProbeCount int  `json:"block_height_probe_count,omitempty"`
	ResendCount           int  `json:"resend_count,omitempty"`

	MarkedDeleted  bool  `json:"marked_deleted,omitempty"`
	DeleteAtHeight int64 `json:"delete_at_height,omitempty"`

	From            string   `json:"from,omitempty"`
	To              string   `json:"to,omitempty"`
	Amount          *big.Int `json:"amount,omitempty"`
	Decimals        int      `json:"decimals,omitempty"`
	IsContractAsset bool     `json:"is_contract_asset,omitempty"`
	ContractAddress string   `json:"contract_address,omitempty"`
	Signers         []string `json:"signers,omitempty"`
}

func (tx *UnconfirmedTx) String() string {
	return fmt.Sprintf("%s[hash=%s, nerve=%s, height=%d, status=%s]", tx.TxType, tx.TxHash,
		tx.NerveTxHash, tx.BlockHeight, tx.Status)
}

// StoredTx is the durable record of an external transaction and the home chain request it
// belongs to.
type StoredTx struct {
	TxHash      string
	NerveTxHash string
	TxType      TxType
	BlockHeight int64
	Status      TxStatus
}

// NormalizeHash lower-cases a hash and strips its 0x prefix so that hashes coming from
// different sources compare equal.
func NormalizeHash(hash string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hash)), "0x")
}
