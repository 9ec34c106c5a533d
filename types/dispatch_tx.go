package types

import (
	"math/big"
	"time"
)

// Signature is one bank member's signature over an outbound request. Account-model chains carry
// a single 65 byte signature in Data; UTXO chains carry one signature per input.
type Signature struct {
	Signer string   `json:"signer"`
	Data   [][]byte `json:"data"`
}

// WithdrawRequest moves funds out of the multisig to a user on the external chain.
type WithdrawRequest struct {
	NerveTxHash     string      `json:"nerve_tx_hash"`
	To              string      `json:"to"`
	Amount          *big.Int    `json:"amount"`
	IsContractAsset bool        `json:"is_contract_asset"`
	ContractAddress string      `json:"contract_address,omitempty"`
	Decimals        int         `json:"decimals"`
	Signatures      []Signature `json:"signatures"`
}

// ChangeRequest changes the manager set of the multisig.
type ChangeRequest struct {
	NerveTxHash string      `json:"nerve_tx_hash"`
	Adds        []string    `json:"adds"`
	Removes     []string    `json:"removes"`
	OrgCount    int         `json:"org_count"`
	Signatures  []Signature `json:"signatures"`
}

// IsEmpty returns true when the change neither adds nor removes a manager.
func (r *ChangeRequest) IsEmpty() bool {
	return len(r.Adds) == 0 && len(r.Removes) == 0
}

// UpgradeRequest moves the multisig to a new contract.
type UpgradeRequest struct {
	NerveTxHash     string      `json:"nerve_tx_hash"`
	UpgradeContract string      `json:"upgrade_contract"`
	Signatures      []Signature `json:"signatures"`
}

// Request wraps one of the outbound requests so that it can be persisted and replayed.
type Request struct {
	Type     TxType           `json:"type"`
	Withdraw *WithdrawRequest `json:"withdraw,omitempty"`
	Change   *ChangeRequest   `json:"change,omitempty"`
	Upgrade  *UpgradeRequest  `json:"upgrade,omitempty"`
}

func (r *Request) NerveTxHash() string {
	switch {
	case r.Withdraw != nil:
		return r.Withdraw.NerveTxHash
	case r.Change != nil:
		return r.Change.NerveTxHash
	case r.Upgrade != nil:
		return r.Upgrade.NerveTxHash
	}

	return ""
}

func (r *Request) Signatures() []Signature {
	switch {
	case r.Withdraw != nil:
		return r.Withdraw.Signatures
	case r.Change != nil:
		return r.Change.Signatures
	case r.Upgrade != nil:
		return r.Upgrade.Signatures
	}

	return nil
}

// Signers returns the distinct signer addresses of the request.
func (r *Request) Signers() []string {
	seen := make(map[string]bool)
	ret := make([]string, 0)
	for _, sig := range r.Signatures() {
		if sig.Signer == "" || seen[sig.Signer] {
			continue
		}
		seen[sig.Signer] = true
		ret = append(ret, sig.Signer)
	}

	return ret
}

// WaitingTx is an outbound request waiting for its rightful sender to broadcast it.
type WaitingTx struct {
	NerveTxHash      string         `json:"nerve_tx_hash"`
	Request          *Request       `json:"request"`
	CurrentBankOrder map[string]int `json:"current_bank_order"`
	ThisNodeOrder    int            `json:"this_node_order"`

	RoundStart             time.Time `json:"round_start"`
	RoundDeadline          time.Time `json:"round_deadline"`
	MaxDeadline            time.Time `json:"max_deadline"`
	InvokedResendThisRound bool      `json:"invoked_resend_this_round,omitempty"`
	Sent                   bool      `json:"sent,omitempty"`
	LastValidateHeight     int64     `json:"last_validate_height,omitempty"`
	ResendCount            int       `json:"resend_count,omitempty"`
}

// SentTxRecord keeps what is needed to rebuild a transaction this node broadcast.
type SentTxRecord struct {
	NerveTxHash string    `json:"nerve_tx_hash"`
	TxHash      string    `json:"tx_hash"`
	TxType      TxType    `json:"tx_type"`
	Nonce       uint64    `json:"nonce"`
	GasPrice    *big.Int  `json:"gas_price"`
	GasLimit    uint64    `json:"gas_limit"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       *big.Int  `json:"value"`
	Payload     []byte    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

// OutboundTx is a transaction built by a chain family, ready to be broadcast.
type OutboundTx struct {
	Raw    []byte
	Hash   string
	Record *SentTxRecord
}
