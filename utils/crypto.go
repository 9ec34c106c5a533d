package utils

import (
	"github.com/ethereum/go-ethereum/common"
)

// PublicKeyBytesToAddress converts an uncompressed secp256k1 public key to an evm address.
func PublicKeyBytesToAddress(publicKey []byte) common.Address {
	// remove EC prefix 04
	buf := Keccak256(publicKey[1:])

	return common.BytesToAddress(buf[12:])
}
