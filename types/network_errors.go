package types

import "errors"

// Business rejections. These never indicate a broken node: the request is simply not
// broadcast and the caller moves on.
var (
	ErrInsufficientFee        = errors.New("insufficient withdrawal fee")
	ErrInsufficientSignatures = errors.New("signature count below byzantine threshold")
	ErrDuplicateManager       = errors.New("manager already exists")
	ErrManagerNotFound        = errors.New("manager to remove does not exist")
	ErrAssetNotBound          = errors.New("asset is not bound to the multisig")
	ErrInsufficientBalance    = errors.New("insufficient multisig balance")
	ErrAlreadyCompleted       = errors.New("multisig transaction already completed")
	ErrNotSupported           = errors.New("operation not supported on this chain family")
)

// Resend and sending conditions that make the caller wait for a later cycle.
var (
	ErrRpcUnavailable     = errors.New("rpc of the chain is not available")
	ErrGasPriceCapReached = errors.New("gas price already at the escalation cap")
	ErrFeeRegression      = errors.New("fee would drop below the committed gas price")
	ErrResendLimit        = errors.New("resend limit reached")
	ErrNoWaitingRecord    = errors.New("no waiting record for the request")
	ErrNotFound           = errors.New("not found")
)

// IsBusinessRejection returns true for errors that mean "do not send" rather than "retry".
func IsBusinessRejection(err error) bool {
	for _, target := range []error{ErrInsufficientFee, ErrInsufficientSignatures,
		ErrDuplicateManager, ErrManagerNotFound, ErrAssetNotBound, ErrInsufficientBalance,
		ErrAlreadyCompleted, ErrNotSupported} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
