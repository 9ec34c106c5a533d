package types

import "fmt"

// Outcome is the typed answer of the home chain to a submission.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	// The home chain has already recorded this submission, possibly from another member.
	OutcomeAlreadyConfirmed
	OutcomePending
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "CONFIRMED"
	case OutcomeAlreadyConfirmed:
		return "ALREADY_CONFIRMED"
	case OutcomePending:
		return "PENDING"
	case OutcomeFailed:
		return "FAILED"
	}

	return fmt.Sprintf("UNKNOWN(%d)", int(o))
}

type SubmitResult struct {
	Outcome     Outcome
	NerveTxHash string
	Reason      string
}

// Done returns true when the home chain holds the submission.
func (r *SubmitResult) Done() bool {
	return r.Outcome == OutcomeConfirmed || r.Outcome == OutcomeAlreadyConfirmed
}

// DepositInfo is what the home chain needs to credit a deposit.
type DepositInfo struct {
	Chain           string `json:"chain"`
	TxHash          string `json:"tx_hash"`
	BlockHeight     int64  `json:"block_height"`
	BlockTime       int64  `json:"block_time"`
	From            string `json:"from"`
	To              string `json:"to"`
	Amount          string `json:"amount"`
	Decimals        int    `json:"decimals"`
	IsContractAsset bool   `json:"is_contract_asset"`
	ContractAddress string `json:"contract_address,omitempty"`
}

// BroadcastConfirmation reports an outbound multisig transaction executed on the external chain.
type BroadcastConfirmation struct {
	Chain           string   `json:"chain"`
	TxType          TxType   `json:"tx_type"`
	NerveTxHash     string   `json:"nerve_tx_hash"`
	TxHash          string   `json:"tx_hash"`
	BlockHeight     int64    `json:"block_height"`
	BlockTime       int64    `json:"block_time"`
	MultisigAddress string   `json:"multisig_address"`
	Signers         []string `json:"signers"`
}

// WithdrawFeeRecord reports an additional withdrawal fee paid on the external chain.
type WithdrawFeeRecord struct {
	Chain       string `json:"chain"`
	TxHash      string `json:"tx_hash"`
	NerveTxHash string `json:"nerve_tx_hash"`
	BlockHeight int64  `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
	Amount      string `json:"amount"`
}

// WithdrawFee is the fee a withdrawal request paid on the home chain.
type WithdrawFee struct {
	Amount   string `json:"amount"`
	Asset    string `json:"asset"`
	Decimals int    `json:"decimals"`
}
