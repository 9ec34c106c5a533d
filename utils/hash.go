package utils

import (
	"golang.org/x/crypto/sha3"
)

func Keccak256(bz []byte) []byte {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(bz)
	return hash.Sum(nil)
}
